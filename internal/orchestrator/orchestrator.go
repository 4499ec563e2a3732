// Package orchestrator wires the Fetcher, Parsers, Transformer and
// Loader into one run and makes the full/delta decision described by the
// component design: a delta run that finds the source unchanged since
// the last successful load terminates as a no-op instead of reloading.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/gowthamrao/eurostat-elt/internal/config"
	"github.com/gowthamrao/eurostat-elt/internal/fetcher"
	"github.com/gowthamrao/eurostat-elt/internal/loader"
	"github.com/gowthamrao/eurostat-elt/internal/parser"
	"github.com/gowthamrao/eurostat-elt/internal/transform"
	"github.com/gowthamrao/eurostat-elt/pkg/events"
	"github.com/gowthamrao/eurostat-elt/pkg/log"
	"github.com/gowthamrao/eurostat-elt/pkg/metrics"
	"github.com/gowthamrao/eurostat-elt/pkg/model"
)

// Orchestrator composes the pipeline stages. Publisher may be nil, which
// disables lifecycle-event publishing without affecting load outcomes.
type Orchestrator struct {
	Fetcher   *fetcher.Fetcher
	Loader    loader.Loader
	Config    config.Config
	Publisher *events.Publisher
}

func New(f *fetcher.Fetcher, l loader.Loader, cfg config.Config, pub *events.Publisher) *Orchestrator {
	return &Orchestrator{Fetcher: f, Loader: l, Config: cfg, Publisher: pub}
}

// Run executes one dataset's ingestion end to end: resolve metadata ->
// (for delta) CHECK_STATE -> PREPARE_SCHEMA -> LOAD(MANAGE_CODELISTS ->
// BULK_LOAD_STAGING -> FINALIZE -> SAVE_STATE), or on any failure
// SAVE_STATE(failed) and return the error. A delta run that is already
// current is a no-op and records a "skipped" history row for observability.
func (o *Orchestrator) Run(ctx context.Context, datasetID string, representation model.Representation, strategy model.LoadStrategy) error {
	runStart := time.Now().UTC()
	outcome := "failed"
	defer func() {
		metrics.LoadDuration.WithLabelValues(datasetID, outcome).Observe(time.Since(runStart).Seconds())
	}()

	history := &model.IngestionHistory{
		DatasetID:      datasetID,
		LoadStrategy:   strategy,
		Representation: representation,
		Status:         model.StatusRunning,
		StartTime:      runStart,
	}

	// GetIngestionState returns the most recent row, so the previous run's
	// record must be read before this run's own "running" row is inserted.
	var previous *model.IngestionHistory
	if strategy == model.StrategyDelta {
		prev, err := o.Loader.GetIngestionState(ctx, datasetID, o.Config.MetaSchema)
		if err != nil {
			return fmt.Errorf("read ingestion state: %w", err)
		}
		previous = prev
	}

	if err := o.Loader.SaveIngestionState(ctx, o.Config.MetaSchema, history); err != nil {
		return fmt.Errorf("record running state: %w", err)
	}

	sourceLastUpdate, dsd, codelists, err := o.resolveMetadata(ctx, datasetID)
	if err != nil {
		o.fail(ctx, history, err)
		return err
	}
	history.DsdVersion = dsd.Version
	history.SourceLastUpdate = &sourceLastUpdate

	if strategy == model.StrategyDelta {
		if isDeltaNoOp(previous, sourceLastUpdate) {
			history.Status = model.StatusSkipped
			end := time.Now().UTC()
			history.EndTime = &end
			if err := o.Loader.SaveIngestionState(ctx, o.Config.MetaSchema, history); err != nil {
				return fmt.Errorf("record skipped state: %w", err)
			}
			outcome = "skipped"
			o.publish(history)
			log.Infof("orchestrator: %s is up to date, skipping delta load", datasetID)
			return nil
		}
	}

	if err := o.Loader.PrepareSchema(ctx, dsd, o.Config.DataSchema); err != nil {
		o.fail(ctx, history, err)
		return err
	}
	if err := o.Loader.ManageCodelists(ctx, codelists, o.Config.MetaSchema); err != nil {
		o.fail(ctx, history, err)
		return err
	}

	rowsLoaded, err := o.load(ctx, datasetID, dsd, codelists, representation, strategy)
	if err != nil {
		o.fail(ctx, history, err)
		return err
	}

	history.Status = model.StatusSuccess
	end := time.Now().UTC()
	history.EndTime = &end
	history.RowsLoaded = &rowsLoaded
	if err := o.Loader.SaveIngestionState(ctx, o.Config.MetaSchema, history); err != nil {
		return fmt.Errorf("record success state: %w", err)
	}

	outcome = "success"
	metrics.RowsLoaded.WithLabelValues(datasetID).Add(float64(rowsLoaded))
	o.publish(history)
	log.Infof("orchestrator: loaded %d rows for %s (%s/%s)", rowsLoaded, datasetID, strategy, representation)
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, history *model.IngestionHistory, cause error) {
	history.Status = model.StatusFailed
	end := time.Now().UTC()
	history.EndTime = &end
	msg := cause.Error()
	history.ErrorDetails = &msg
	if err := o.Loader.SaveIngestionState(ctx, o.Config.MetaSchema, history); err != nil {
		log.Errorf("orchestrator: failed to record failure state for %s: %v", history.DatasetID, err)
	}
	o.publish(history)
}

func (o *Orchestrator) publish(history *model.IngestionHistory) {
	if o.Publisher != nil {
		o.Publisher.PublishOutcome(history)
	}
}

// resolveMetadata fetches the inventory, DSD and every referenced code
// list, returning the dataset's recorded source last-update timestamp
// alongside the parsed DSD and code-list set.
func (o *Orchestrator) resolveMetadata(ctx context.Context, datasetID string) (time.Time, *model.DSD, model.CodelistSet, error) {
	invPath, err := o.Fetcher.GetInventory(ctx)
	if err != nil {
		return time.Time{}, nil, nil, fmt.Errorf("fetch inventory: %w", err)
	}
	inv, err := parser.ParseInventoryFile(invPath)
	if err != nil {
		return time.Time{}, nil, nil, fmt.Errorf("parse inventory: %w", err)
	}
	sourceLastUpdate, err := inv.LastUpdate(datasetID)
	if err != nil {
		return time.Time{}, nil, nil, fmt.Errorf("resolve source last-update: %w", err)
	}

	dsdPath, err := o.Fetcher.GetDSD(ctx, datasetID)
	if err != nil {
		return time.Time{}, nil, nil, fmt.Errorf("fetch dsd: %w", err)
	}
	dsd, err := parser.ParseDSDFile(dsdPath, datasetID, nil)
	if err != nil {
		return time.Time{}, nil, nil, fmt.Errorf("parse dsd: %w", err)
	}

	codelistIDs := make(map[string]struct{})
	for _, d := range dsd.Dimensions {
		if d.CodelistID != "" {
			codelistIDs[d.CodelistID] = struct{}{}
		}
	}
	for _, a := range dsd.Attributes {
		if a.CodelistID != "" {
			codelistIDs[a.CodelistID] = struct{}{}
		}
	}

	codelists := make(model.CodelistSet, len(codelistIDs))
	for id := range codelistIDs {
		clPath, err := o.Fetcher.GetCodelist(ctx, id)
		if err != nil {
			// An unresolved code list is permitted by the spec — the
			// transformer falls back to passing codes through unchanged.
			log.Warnf("orchestrator: fetch codelist %s for %s failed, codes will pass through unresolved: %v", id, datasetID, err)
			continue
		}
		cl, err := parser.ParseCodelistFile(clPath)
		if err != nil {
			log.Warnf("orchestrator: parse codelist %s for %s failed, codes will pass through unresolved: %v", id, datasetID, err)
			continue
		}
		codelists[id] = cl
	}

	return sourceLastUpdate, dsd, codelists, nil
}

// isDeltaNoOp reports whether previous, the dataset's most recent history
// record from before this run, is a successful load whose recorded source
// last-update is not older than the source's current one. Any other status
// of that record (failed, skipped, running) leads to a reload.
func isDeltaNoOp(previous *model.IngestionHistory, sourceLastUpdate time.Time) bool {
	if previous == nil || previous.Status != model.StatusSuccess || previous.SourceLastUpdate == nil {
		return false
	}
	return !previous.SourceLastUpdate.Before(sourceLastUpdate)
}

// load streams the TSV matrix through the transformer into the staging
// table and returns the row count the loader reports. It surfaces the
// first error from either the streaming parser, the transformer, or the
// bulk load itself.
func (o *Orchestrator) load(ctx context.Context, datasetID string, dsd *model.DSD, codelists model.CodelistSet, representation model.Representation, strategy model.LoadStrategy) (int64, error) {
	tsvPath, err := o.Fetcher.GetTSV(ctx, datasetID)
	if err != nil {
		return 0, fmt.Errorf("fetch tsv: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	chunks, chunkErrCh := parser.StreamTSVFile(runCtx, tsvPath, 0)
	obsCh, transformErrCh := transform.Run(runCtx, chunks, dsd, codelists, representation)

	stagingTable, rowCount, loadErr := o.Loader.BulkLoadStaging(runCtx, dsd, o.Config.DataSchema, obsCh, o.Config.UseUnloggedStaging)

	if err := firstError(chunkErrCh, transformErrCh); err != nil {
		return 0, fmt.Errorf("stream tsv: %w", err)
	}
	if loadErr != nil {
		return 0, fmt.Errorf("bulk load staging: %w", loadErr)
	}

	if err := o.Loader.FinalizeLoad(ctx, dsd, o.Config.DataSchema, stagingTable, strategy); err != nil {
		return 0, fmt.Errorf("finalize load: %w", err)
	}
	return rowCount, nil
}

func firstError(chans ...<-chan error) error {
	for _, ch := range chans {
		select {
		case err := <-ch:
			if err != nil {
				return err
			}
		default:
		}
	}
	return nil
}
