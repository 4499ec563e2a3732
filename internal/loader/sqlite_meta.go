package loader

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/gowthamrao/eurostat-elt/pkg/model"
	"github.com/jmoiron/sqlx"
)

var qb = sq.StatementBuilder.PlaceholderFormat(sq.Question)

func upsertCodelistsSQLite(ctx context.Context, db *sqlx.DB, codelists model.CodelistSet) error {
	if len(codelists) == 0 {
		return nil
	}
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin codelist tx: %w", err)
	}
	defer tx.Rollback()

	for id, cl := range codelists {
		for _, e := range cl.Entries() {
			query, args, err := qb.Insert("meta_codelist_entries").
				Columns("codelist_id", "code", "label", "description", "parent_code").
				Values(id, e.Code, e.Label, nullIfEmpty(e.Description), nullIfEmpty(e.ParentCode)).
				Suffix("ON CONFLICT(codelist_id, code) DO UPDATE SET label = excluded.label, description = excluded.description, parent_code = excluded.parent_code").
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

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func mergeStagingSQLite(ctx context.Context, db *sqlx.DB, dsd *model.DSD, target, staging string) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin merge tx: %v", model.ErrFinalizeFailed, err)
	}
	defer tx.Rollback()

	cols := dataColumns(dsd)
	insertCols := quoteColumns(cols)
	selectCols := quoteColumns(cols)

	pkCols := make([]string, 0, len(dsd.Dimensions)+1)
	for _, d := range dsd.Dimensions {
		pkCols = append(pkCols, QuoteIdent(d.ID))
	}
	pkCols = append(pkCols, QuoteIdent("time_period"))

	merge := fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s AS s "+
			"ON CONFLICT (%s) DO UPDATE SET %s = excluded.%s, %s = excluded.%s",
		QuoteIdent(target), insertCols, selectCols, QuoteIdent(staging),
		joinComma(pkCols),
		QuoteIdent("obs_value"), QuoteIdent("obs_value"),
		QuoteIdent("obs_flags"), QuoteIdent("obs_flags"),
	)
	if _, err := tx.ExecContext(ctx, merge); err != nil {
		return fmt.Errorf("%w: upsert merge: %v", model.ErrFinalizeFailed, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE %s", QuoteIdent(staging))); err != nil {
		return fmt.Errorf("%w: drop staging after merge: %v", model.ErrFinalizeFailed, err)
	}
	return tx.Commit()
}

type ingestionHistoryRow struct {
	IngestionID      int64          `db:"ingestion_id"`
	DatasetID        string         `db:"dataset_id"`
	DsdVersion       string         `db:"dsd_version"`
	LoadStrategy     string         `db:"load_strategy"`
	Representation   string         `db:"representation"`
	Status           string         `db:"status"`
	StartTime        time.Time      `db:"start_time"`
	EndTime          sql.NullTime   `db:"end_time"`
	RowsLoaded       sql.NullInt64  `db:"rows_loaded"`
	SourceLastUpdate sql.NullTime   `db:"source_last_update"`
	ErrorDetails     sql.NullString `db:"error_details"`
}

func (r ingestionHistoryRow) toModel() *model.IngestionHistory {
	h := &model.IngestionHistory{
		IngestionID:    r.IngestionID,
		DatasetID:      r.DatasetID,
		DsdVersion:     r.DsdVersion,
		LoadStrategy:   model.LoadStrategy(r.LoadStrategy),
		Representation: model.Representation(r.Representation),
		Status:         model.IngestionStatus(r.Status),
		StartTime:      r.StartTime.UTC(),
	}
	if r.EndTime.Valid {
		t := r.EndTime.Time.UTC()
		h.EndTime = &t
	}
	if r.RowsLoaded.Valid {
		v := r.RowsLoaded.Int64
		h.RowsLoaded = &v
	}
	if r.SourceLastUpdate.Valid {
		t := r.SourceLastUpdate.Time.UTC()
		h.SourceLastUpdate = &t
	}
	if r.ErrorDetails.Valid {
		v := r.ErrorDetails.String
		h.ErrorDetails = &v
	}
	return h
}

func getIngestionStateSQLite(ctx context.Context, db *sqlx.DB, datasetID string) (*model.IngestionHistory, error) {
	var row ingestionHistoryRow
	err := db.GetContext(ctx, &row,
		`SELECT ingestion_id, dataset_id, dsd_version, load_strategy, representation, status,
		        start_time, end_time, rows_loaded, source_last_update, error_details
		 FROM meta_ingestion_history WHERE dataset_id = ? ORDER BY start_time DESC LIMIT 1`,
		datasetID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read ingestion state for %s: %v", model.ErrIngestionHistoryWriteFailed, datasetID, err)
	}
	return row.toModel(), nil
}

func saveIngestionStateSQLite(ctx context.Context, db *sqlx.DB, record *model.IngestionHistory) error {
	if record.IngestionID == 0 {
		res, err := db.ExecContext(ctx,
			`INSERT INTO meta_ingestion_history
			 (dataset_id, dsd_version, load_strategy, representation, status, start_time,
			  end_time, rows_loaded, source_last_update, error_details)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			record.DatasetID, record.DsdVersion, string(record.LoadStrategy), string(record.Representation),
			string(record.Status), record.StartTime, nullableTime(record.EndTime),
			nullableInt64(record.RowsLoaded), nullableTime(record.SourceLastUpdate), nullableString(record.ErrorDetails))
		if err != nil {
			return fmt.Errorf("%w: insert ingestion state: %v", model.ErrIngestionHistoryWriteFailed, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("%w: read inserted ingestion id: %v", model.ErrIngestionHistoryWriteFailed, err)
		}
		record.IngestionID = id
		return nil
	}

	_, err := db.ExecContext(ctx,
		`UPDATE meta_ingestion_history SET status = ?, end_time = ?, rows_loaded = ?,
		 source_last_update = ?, error_details = ?, dsd_version = ? WHERE ingestion_id = ?`,
		string(record.Status), nullableTime(record.EndTime), nullableInt64(record.RowsLoaded),
		nullableTime(record.SourceLastUpdate), nullableString(record.ErrorDetails), record.DsdVersion, record.IngestionID)
	if err != nil {
		return fmt.Errorf("%w: update ingestion state %d: %v", model.ErrIngestionHistoryWriteFailed, record.IngestionID, err)
	}
	return nil
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func nullableInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}
