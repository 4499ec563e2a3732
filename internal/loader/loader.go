// Package loader defines the database-agnostic capability set every
// storage adapter must satisfy, plus the canonical PostgreSQL-style and
// secondary SQLite adapters.
package loader

import (
	"context"

	"github.com/gowthamrao/eurostat-elt/pkg/model"
)

// Loader is the fixed capability set an ELT run drives. Every method
// must be safe to call with dataset ids and schema names that are
// externally supplied — identifiers are sanitized and quoted by the
// adapter, never string-formatted verbatim into SQL.
type Loader interface {
	// PrepareSchema ensures the dataset's target data table exists,
	// creating or widening its columns to match dsd. It is idempotent.
	// The metadata tables are created by the adapter's constructor, not
	// here.
	PrepareSchema(ctx context.Context, dsd *model.DSD, schema string) error

	// ManageCodelists upserts every code entry in codelists into the
	// metadata schema's code-list tables.
	ManageCodelists(ctx context.Context, codelists model.CodelistSet, schema string) error

	// BulkLoadStaging creates a fresh staging table shaped like the
	// target data table and streams observations into it using the
	// adapter's fastest bulk-ingest path. It returns the staging table's
	// name (for FinalizeLoad) and the row count loaded.
	BulkLoadStaging(ctx context.Context, dsd *model.DSD, schema string, observations <-chan model.Observation, useUnloggedStaging bool) (stagingTable string, rowCount int64, err error)

	// FinalizeLoad makes a staging table's contents visible at the
	// target table, per strategy: StrategyFull atomically swaps staging
	// in for target; StrategyDelta upserts staging's rows into target,
	// leaving rows absent from staging untouched.
	FinalizeLoad(ctx context.Context, dsd *model.DSD, schema, stagingTable string, strategy model.LoadStrategy) error

	// GetIngestionState returns the most recent ingestion history record
	// for a dataset, or nil if none exists.
	GetIngestionState(ctx context.Context, datasetID, schema string) (*model.IngestionHistory, error)

	// SaveIngestionState appends or updates an ingestion history record.
	// A record with IngestionID == 0 is inserted and assigned one;
	// otherwise the existing row is updated in place.
	SaveIngestionState(ctx context.Context, schema string, record *model.IngestionHistory) error

	// SweepOrphanedStaging drops staging tables left behind by runs that
	// failed before FinalizeLoad ran.
	SweepOrphanedStaging(ctx context.Context, schema string) (dropped int, err error)

	CloseConnection() error
}
