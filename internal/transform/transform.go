// Package transform unpivots wide TSV chunks into a long sequence of
// Observations: one record per data row per time column, with the
// numeric value and trailing flag letters split out of the raw token.
package transform

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/gowthamrao/eurostat-elt/internal/parser"
	"github.com/gowthamrao/eurostat-elt/pkg/model"
)

// Run consumes TSV chunks and emits Observations in DSD dimension order,
// as a pull-based pipeline: the caller drains obsCh at its own pace and
// only one chunk's rows are ever materialized at a time, so memory stays
// O(chunk) regardless of source file size. The channels are closed when
// chunks is exhausted, ctx is cancelled, or an error occurs; at most one
// error is ever sent on errCh.
func Run(ctx context.Context, chunks <-chan parser.TSVChunk, dsd *model.DSD, codelists model.CodelistSet, representation model.Representation) (<-chan model.Observation, <-chan error) {
	obsCh := make(chan model.Observation)
	errCh := make(chan error, 1)

	go func() {
		defer close(obsCh)
		defer close(errCh)

		for chunk := range chunks {
			if err := ctx.Err(); err != nil {
				errCh <- err
				return
			}
			if err := emitChunk(ctx, chunk, dsd, codelists, representation, obsCh); err != nil {
				errCh <- err
				return
			}
		}
	}()

	return obsCh, errCh
}

func emitChunk(ctx context.Context, chunk parser.TSVChunk, dsd *model.DSD, codelists model.CodelistSet, representation model.Representation, out chan<- model.Observation) error {
	headerIdx := make(map[string]int, len(chunk.DimensionColumns))
	for i, col := range chunk.DimensionColumns {
		headerIdx[col] = i
	}

	order := make([]int, len(dsd.Dimensions))
	for i, dim := range dsd.Dimensions {
		idx, ok := headerIdx[dim.ID]
		if !ok {
			return fmt.Errorf("%w: dsd dimension %q not present in tsv header", model.ErrTsvMalformed, dim.ID)
		}
		order[i] = idx
	}

	for _, row := range chunk.Rows {
		dimValues := make([]string, len(dsd.Dimensions))
		for i, dim := range dsd.Dimensions {
			idx := order[i]
			if idx >= len(row.DimensionValues) {
				return fmt.Errorf("%w: row has no value for dimension %q", model.ErrTsvMalformed, dim.ID)
			}
			v := row.DimensionValues[idx]
			if representation == model.RepresentationFull {
				v = resolveLabel(codelists, dim.CodelistID, v)
			}
			dimValues[i] = v
		}

		for i, timePeriod := range chunk.TimeColumns {
			if i >= len(row.RawTokens) {
				continue
			}
			value, flags := decodeToken(row.RawTokens[i])
			obs := model.Observation{
				DimensionValues: dimValues,
				TimePeriod:      timePeriod,
				Value:           value,
				Flags:           flags,
			}
			select {
			case out <- obs:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

func resolveLabel(codelists model.CodelistSet, codelistID, code string) string {
	if codelistID == "" {
		return code
	}
	cl := codelists.Resolve(codelistID)
	if cl == nil {
		return code
	}
	return cl.Label(code)
}

var (
	tokenPattern = regexp.MustCompile(`^\s*(-?[0-9.eE+-]+)?\s*([A-Za-z ]*)\s*$`)
	colonPattern = regexp.MustCompile(`^\s*:\s*([A-Za-z ]*)\s*$`)
	spaceRun     = regexp.MustCompile(`\s+`)
)

// decodeToken splits one raw observation cell into its numeric value and
// flag letters per the grammar
// ^\s*(-?[0-9.eE+-]+)?\s*([A-Za-z ]*)\s*$
// The literal ":" means "not available" regardless of trailing flags. A
// numeric group that fails to parse (a lone "-" or ".") is classified as
// invalid value -> null with no flag, not as a flagged value. NaN/Inf are
// not permitted values: they yield a null value with the original token
// preserved verbatim in flags.
func decodeToken(raw string) (*float64, *string) {
	if m := colonPattern.FindStringSubmatch(raw); m != nil {
		return nil, collapseFlags(m[1])
	}

	m := tokenPattern.FindStringSubmatch(raw)
	if m == nil {
		return nil, nil
	}

	numPart, flagPart := m[1], m[2]
	if numPart == "" {
		return nil, collapseFlags(flagPart)
	}

	v, err := strconv.ParseFloat(numPart, 64)
	// ParseFloat reports an overflowing literal like "1e400" as
	// (+/-Inf, ErrRange), not as a plain syntax failure, so the Inf/NaN
	// check must run before the err != nil branch below.
	if math.IsNaN(v) || math.IsInf(v, 0) {
		original := collapseFlags(strings.TrimSpace(raw))
		return nil, original
	}
	if err != nil {
		// Lone "-" or "." matches the numeric group's character class
		// but is not a valid float: invalid value, no flag.
		return nil, nil
	}

	return &v, collapseFlags(flagPart)
}

func collapseFlags(s string) *string {
	collapsed := spaceRun.ReplaceAllString(strings.TrimSpace(s), " ")
	if collapsed == "" {
		return nil
	}
	return &collapsed
}
