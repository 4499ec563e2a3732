package parser

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gowthamrao/eurostat-elt/pkg/model"
	"github.com/klauspost/compress/gzip"
)

// DefaultChunkRows bounds how many data rows accumulate into one TSVChunk
// before it is handed downstream, keeping memory at O(chunk) rather than
// O(file) for arbitrarily large matrices.
const DefaultChunkRows = 2000

// TSVRow is one wide data row: the non-time dimension values (same order
// as TSVChunk.DimensionColumns) and the raw observation token per time
// column (same order as TSVChunk.TimeColumns). Tokens are not decoded
// here — that is the Transformer's job.
type TSVRow struct {
	DimensionValues []string
	RawTokens       []string
}

// TSVChunk is a bounded slice of the wide matrix plus the header metadata
// every row in the chunk shares.
type TSVChunk struct {
	DimensionColumns []string
	TimeColumns      []string
	Rows             []TSVRow
}

// StreamTSVFile opens a gzip-compressed TSV matrix file from disk and
// streams it in chunks of chunkRows rows onto the returned channel. The
// channel is closed when the file is exhausted or ctx is cancelled; a
// parse error is delivered once on errCh and then both are closed.
func StreamTSVFile(ctx context.Context, path string, chunkRows int) (<-chan TSVChunk, <-chan error) {
	chunks := make(chan TSVChunk)
	errCh := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errCh)

		f, err := os.Open(path)
		if err != nil {
			errCh <- fmt.Errorf("open tsv %s: %w", path, err)
			return
		}
		defer f.Close()

		if err := streamTSV(ctx, f, chunkRows, chunks); err != nil {
			errCh <- err
		}
	}()

	return chunks, errCh
}

func streamTSV(ctx context.Context, raw *os.File, chunkRows int, out chan<- TSVChunk) error {
	if chunkRows <= 0 {
		chunkRows = DefaultChunkRows
	}

	gz, err := gzip.NewReader(raw)
	if err != nil {
		return fmt.Errorf("%w: gzip header: %v", model.ErrTsvMalformed, err)
	}
	defer gz.Close()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	if !scanner.Scan() {
		return fmt.Errorf("%w: empty tsv", model.ErrTsvMalformed)
	}
	dimCols, timeCols, err := parseHeader(scanner.Text())
	if err != nil {
		return err
	}

	chunk := TSVChunk{DimensionColumns: dimCols, TimeColumns: timeCols}
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		row, err := parseDataRow(line, len(dimCols), len(timeCols))
		if err != nil {
			return err
		}
		chunk.Rows = append(chunk.Rows, row)

		if len(chunk.Rows) >= chunkRows {
			if !sendChunk(ctx, out, chunk) {
				return ctx.Err()
			}
			chunk = TSVChunk{DimensionColumns: dimCols, TimeColumns: timeCols}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: %v", model.ErrTsvMalformed, err)
	}

	if len(chunk.Rows) > 0 {
		if !sendChunk(ctx, out, chunk) {
			return ctx.Err()
		}
	}
	return nil
}

func sendChunk(ctx context.Context, out chan<- TSVChunk, chunk TSVChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// parseHeader splits the header's first cell ("geo,freq\time") into
// non-time dimension ids and reads the remaining cells as time-period
// column labels, in declaration order.
func parseHeader(line string) ([]string, []string, error) {
	cells := strings.Split(line, "\t")
	if len(cells) < 2 {
		return nil, nil, fmt.Errorf("%w: header has no time columns", model.ErrTsvMalformed)
	}

	first := cells[0]
	backslash := strings.LastIndexByte(first, '\\')
	if backslash < 0 {
		return nil, nil, fmt.Errorf("%w: header first cell %q missing '\\'", model.ErrTsvMalformed, first)
	}
	dimPart := first[:backslash]

	var dims []string
	for _, d := range strings.Split(dimPart, ",") {
		d = strings.TrimSpace(d)
		if d != "" {
			dims = append(dims, d)
		}
	}
	if len(dims) == 0 {
		return nil, nil, fmt.Errorf("%w: header declares no non-time dimensions", model.ErrTsvMalformed)
	}

	timeCols := make([]string, 0, len(cells)-1)
	for _, c := range cells[1:] {
		timeCols = append(timeCols, strings.TrimSpace(c))
	}
	return dims, timeCols, nil
}

func parseDataRow(line string, numDims, numTimeCols int) (TSVRow, error) {
	cells := strings.Split(line, "\t")
	if len(cells) < 1 {
		return TSVRow{}, fmt.Errorf("%w: empty data row", model.ErrTsvMalformed)
	}

	dimValues := strings.Split(cells[0], ",")
	for i := range dimValues {
		dimValues[i] = strings.TrimSpace(dimValues[i])
	}
	if len(dimValues) != numDims {
		return TSVRow{}, fmt.Errorf("%w: data row has %d dimension values, header declares %d",
			model.ErrTsvMalformed, len(dimValues), numDims)
	}

	tokens := make([]string, numTimeCols)
	for i := 0; i < numTimeCols; i++ {
		if i+1 < len(cells) {
			tokens[i] = cells[i+1]
		}
	}

	return TSVRow{DimensionValues: dimValues, RawTokens: tokens}, nil
}
