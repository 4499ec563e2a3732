package loader

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/gowthamrao/eurostat-elt/pkg/log"
	"github.com/gowthamrao/eurostat-elt/pkg/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver for sqlx
)

var pgb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresLoader is the canonical adapter. Generic DDL/DML goes through a
// database/sql-compatible sqlx handle built with squirrel for dialect-
// portable statement construction; the bulk path uses the PostgreSQL wire
// protocol's COPY FROM STDIN via a pooled pgx client.
type PostgresLoader struct {
	db   *sqlx.DB   // generic DDL/DML (prepare schema, metadata, merge/swap)
	pool *pgxpool.Pool // COPY FROM STDIN bulk path
}

// NewPostgresLoader connects two handles against the same dsn: a
// database/sql handle for ordinary statements and a pgx pool for the
// native COPY protocol, then runs the embedded metadata-schema migrations.
func NewPostgresLoader(ctx context.Context, dsn string) (*PostgresLoader, error) {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(10)
	db := sqlx.NewDb(sqlDB, "pgx")

	if err := bootstrapMetaSchema("postgres", sqlDB); err != nil {
		db.Close()
		return nil, err
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open pgx pool: %w", err)
	}

	return &PostgresLoader{db: db, pool: pool}, nil
}

func (l *PostgresLoader) CloseConnection() error {
	l.pool.Close()
	return l.db.Close()
}

func (l *PostgresLoader) PrepareSchema(ctx context.Context, dsd *model.DSD, schema string) error {
	if _, err := l.db.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", QuoteIdent(schema))); err != nil {
		return fmt.Errorf("%w: create data schema %s: %v", model.ErrDsdInvalid, schema, err)
	}
	bareTable := SafeIdentifier(dsd.DatasetID)
	qualified := QualifiedTable(schema, bareTable)
	ddl := dataTableDDL(qualified, dsd, postgresColumnTypes)
	if _, err := l.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("%w: prepare schema for %s: %v", model.ErrDsdInvalid, dsd.DatasetID, err)
	}

	existing, err := postgresExistingColumns(ctx, l.db, schema, bareTable)
	if err != nil {
		return fmt.Errorf("%w: introspect schema for %s: %v", model.ErrDsdInvalid, dsd.DatasetID, err)
	}
	return evolveTable(ctx, l.db, qualified, existing, expectedColumns(dsd, postgresColumnTypes))
}

// postgresExistingColumns reports a table's current column names and
// data types via information_schema, the standard SQL introspection path.
func postgresExistingColumns(ctx context.Context, db *sqlx.DB, schema, table string) (map[string]string, error) {
	type infoColumn struct {
		Name string `db:"column_name"`
		Type string `db:"data_type"`
	}
	var rows []infoColumn
	if err := db.SelectContext(ctx, &rows,
		`SELECT column_name, data_type FROM information_schema.columns WHERE table_schema = $1 AND table_name = $2`,
		schema, table); err != nil {
		return nil, fmt.Errorf("introspect columns for %s.%s: %w", schema, table, err)
	}
	cols := make(map[string]string, len(rows))
	for _, r := range rows {
		cols[r.Name] = r.Type
	}
	return cols, nil
}

func (l *PostgresLoader) ManageCodelists(ctx context.Context, codelists model.CodelistSet, schema string) error {
	if len(codelists) == 0 {
		return nil
	}
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin codelist tx: %w", err)
	}
	defer tx.Rollback()

	for id, cl := range codelists {
		for _, e := range cl.Entries() {
			query, args, err := pgb.Insert("meta.codelist_entries").
				Columns("codelist_id", "code", "label", "description", "parent_code").
				Values(id, e.Code, e.Label, nullIfEmpty(e.Description), nullIfEmpty(e.ParentCode)).
				Suffix("ON CONFLICT (codelist_id, code) DO UPDATE SET label = excluded.label, description = excluded.description, parent_code = excluded.parent_code").
				ToSql()
			if err != nil {
				return fmt.Errorf("build codelist upsert: %w", err)
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("%w: upsert code %s/%s: %v", model.ErrBulkLoadFailed, id, e.Code, err)
			}
		}
	}
	return tx.Commit()
}

// observationCopySource adapts a channel of Observations to pgx.CopyFromSource
// so BulkLoadStaging streams rows into COPY FROM STDIN without ever
// materializing the whole dataset in memory.
type observationCopySource struct {
	dsd  *model.DSD
	ch   <-chan model.Observation
	cur  model.Observation
	rows int64
}

func (s *observationCopySource) Next() bool {
	obs, ok := <-s.ch
	if !ok {
		return false
	}
	s.cur = obs
	s.rows++
	return true
}

func (s *observationCopySource) Values() ([]interface{}, error) {
	return observationArgs(s.dsd, s.cur), nil
}

func (s *observationCopySource) Err() error { return nil }

func (l *PostgresLoader) BulkLoadStaging(ctx context.Context, dsd *model.DSD, schema string, observations <-chan model.Observation, useUnloggedStaging bool) (string, int64, error) {
	target := SafeIdentifier(dsd.DatasetID)
	staging := StagingTableName(target, fmt.Sprintf("%d", time.Now().UnixNano()))
	qualifiedStaging := QualifiedTable(schema, staging)

	ddl := dataTableDDL(qualifiedStaging, dsd, postgresColumnTypes)
	if useUnloggedStaging {
		ddl = "CREATE UNLOGGED TABLE IF NOT EXISTS " + ddl[len("CREATE TABLE IF NOT EXISTS "):]
	}
	if _, err := l.db.ExecContext(ctx, ddl); err != nil {
		return "", 0, fmt.Errorf("%w: create staging table: %v", model.ErrBulkLoadFailed, err)
	}

	cols := dataColumns(dsd)
	src := &observationCopySource{dsd: dsd, ch: observations}

	rows, err := l.pool.CopyFrom(ctx, pgx.Identifier{schema, staging}, cols, src)
	if err != nil {
		return "", 0, fmt.Errorf("%w: copy from stdin into %s: %v", model.ErrBulkLoadFailed, staging, err)
	}
	log.Debugf("postgres loader: copied %d rows into %s", rows, qualifiedStaging)
	return staging, rows, nil
}

func (l *PostgresLoader) FinalizeLoad(ctx context.Context, dsd *model.DSD, schema, stagingTable string, strategy model.LoadStrategy) error {
	target := SafeIdentifier(dsd.DatasetID)
	qualifiedTarget := QualifiedTable(schema, target)
	qualifiedStaging := QualifiedTable(schema, stagingTable)

	switch strategy {
	case model.StrategyFull:
		tx, err := l.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("%w: begin swap tx: %v", model.ErrFinalizeFailed, err)
		}
		defer tx.Rollback()

		old := StagingTableName(target, "old")
		qualifiedOld := QualifiedTable(schema, old)

		if _, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE IF EXISTS %s RENAME TO %s", qualifiedTarget, QuoteIdent(old))); err != nil {
			return fmt.Errorf("%w: rename target to old: %v", model.ErrFinalizeFailed, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", qualifiedStaging, QuoteIdent(target))); err != nil {
			return fmt.Errorf("%w: rename staging to target: %v", model.ErrFinalizeFailed, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", qualifiedOld)); err != nil {
			return fmt.Errorf("%w: drop old target: %v", model.ErrFinalizeFailed, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("%w: commit swap: %v", model.ErrFinalizeFailed, err)
		}
		return nil

	case model.StrategyDelta:
		tx, err := l.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("%w: begin merge tx: %v", model.ErrFinalizeFailed, err)
		}
		defer tx.Rollback()

		cols := dataColumns(dsd)
		pkCols := make([]string, 0, len(dsd.Dimensions)+1)
		for _, d := range dsd.Dimensions {
			pkCols = append(pkCols, QuoteIdent(d.ID))
		}
		pkCols = append(pkCols, QuoteIdent("time_period"))

		merge := fmt.Sprintf(
			"INSERT INTO %s (%s) SELECT %s FROM %s "+
				"ON CONFLICT (%s) DO UPDATE SET %s = excluded.%s, %s = excluded.%s",
			qualifiedTarget, quoteColumns(cols), quoteColumns(cols), qualifiedStaging,
			joinComma(pkCols),
			QuoteIdent("obs_value"), QuoteIdent("obs_value"),
			QuoteIdent("obs_flags"), QuoteIdent("obs_flags"),
		)
		if _, err := tx.ExecContext(ctx, merge); err != nil {
			return fmt.Errorf("%w: upsert merge: %v", model.ErrFinalizeFailed, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE %s", qualifiedStaging)); err != nil {
			return fmt.Errorf("%w: drop staging after merge: %v", model.ErrFinalizeFailed, err)
		}
		return tx.Commit()

	default:
		return fmt.Errorf("%w: unknown load strategy %q", model.ErrFinalizeFailed, strategy)
	}
}

func (l *PostgresLoader) GetIngestionState(ctx context.Context, datasetID, schema string) (*model.IngestionHistory, error) {
	var row ingestionHistoryRow
	err := l.db.GetContext(ctx, &row,
		`SELECT ingestion_id, dataset_id, dsd_version, load_strategy, representation, status,
		        start_time, end_time, rows_loaded, source_last_update, error_details
		 FROM meta.ingestion_history WHERE dataset_id = $1 ORDER BY start_time DESC LIMIT 1`,
		datasetID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read ingestion state for %s: %v", model.ErrIngestionHistoryWriteFailed, datasetID, err)
	}
	return row.toModel(), nil
}

func (l *PostgresLoader) SaveIngestionState(ctx context.Context, schema string, record *model.IngestionHistory) error {
	if record.IngestionID == 0 {
		err := l.db.GetContext(ctx, &record.IngestionID,
			`INSERT INTO meta.ingestion_history
			 (dataset_id, dsd_version, load_strategy, representation, status, start_time,
			  end_time, rows_loaded, source_last_update, error_details)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 RETURNING ingestion_id`,
			record.DatasetID, record.DsdVersion, string(record.LoadStrategy), string(record.Representation),
			string(record.Status), record.StartTime, nullableTime(record.EndTime),
			nullableInt64(record.RowsLoaded), nullableTime(record.SourceLastUpdate), nullableString(record.ErrorDetails))
		if err != nil {
			return fmt.Errorf("%w: insert ingestion state: %v", model.ErrIngestionHistoryWriteFailed, err)
		}
		return nil
	}

	_, err := l.db.ExecContext(ctx,
		`UPDATE meta.ingestion_history SET status = $1, end_time = $2, rows_loaded = $3,
		 source_last_update = $4, error_details = $5, dsd_version = $6 WHERE ingestion_id = $7`,
		string(record.Status), nullableTime(record.EndTime), nullableInt64(record.RowsLoaded),
		nullableTime(record.SourceLastUpdate), nullableString(record.ErrorDetails), record.DsdVersion, record.IngestionID)
	if err != nil {
		return fmt.Errorf("%w: update ingestion state %d: %v", model.ErrIngestionHistoryWriteFailed, record.IngestionID, err)
	}
	return nil
}

func (l *PostgresLoader) SweepOrphanedStaging(ctx context.Context, schema string) (int, error) {
	var names []string
	if err := l.db.SelectContext(ctx, &names,
		`SELECT table_name FROM information_schema.tables WHERE table_schema = $1 AND table_name LIKE 'stg\_%'`,
		schema); err != nil {
		return 0, fmt.Errorf("list staging tables: %w", err)
	}
	dropped := 0
	for _, n := range names {
		if _, err := l.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", QualifiedTable(schema, n))); err != nil {
			return dropped, fmt.Errorf("drop orphaned staging table %s: %w", n, err)
		}
		dropped++
	}
	return dropped, nil
}
