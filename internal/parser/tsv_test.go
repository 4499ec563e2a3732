package parser

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gowthamrao/eurostat-elt/pkg/model"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeGzipTSV(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "data.tsv.gz")

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestStreamTSVFileParsesHeaderAndRows(t *testing.T) {
	content := "geo,unit\\time\t2020\t2021\n" +
		"DE,EUR\t10.5\t11 p\n" +
		"FR,EUR\t:\t9\n"
	path := writeGzipTSV(t, content)

	chunks, errCh := StreamTSVFile(context.Background(), path, 1)

	var got []TSVChunk
	for c := range chunks {
		got = append(got, c)
	}
	require.NoError(t, drainErr(errCh))

	require.Len(t, got, 2, "chunkRows=1 splits the two data rows across two chunks")
	assert.Equal(t, []string{"geo", "unit"}, got[0].DimensionColumns)
	assert.Equal(t, []string{"2020", "2021"}, got[0].TimeColumns)
	require.Len(t, got[0].Rows, 1)
	assert.Equal(t, []string{"DE", "EUR"}, got[0].Rows[0].DimensionValues)
	assert.Equal(t, []string{"10.5", "11 p"}, got[0].Rows[0].RawTokens)

	require.Len(t, got[1].Rows, 1)
	assert.Equal(t, []string{"FR", "EUR"}, got[1].Rows[0].DimensionValues)
	assert.Equal(t, []string{":", "9"}, got[1].Rows[0].RawTokens)
}

func TestStreamTSVFileBatchesIntoOneChunk(t *testing.T) {
	content := "geo\\time\t2020\n" +
		"DE\t1\n" +
		"FR\t2\n" +
		"IT\t3\n"
	path := writeGzipTSV(t, content)

	chunks, errCh := StreamTSVFile(context.Background(), path, DefaultChunkRows)
	var got []TSVChunk
	for c := range chunks {
		got = append(got, c)
	}
	require.NoError(t, drainErr(errCh))
	require.Len(t, got, 1)
	assert.Len(t, got[0].Rows, 3)
}

func TestStreamTSVFileRejectsMissingBackslash(t *testing.T) {
	content := "geo,unit time\t2020\nDE,EUR\t1\n"
	path := writeGzipTSV(t, content)

	chunks, errCh := StreamTSVFile(context.Background(), path, 0)
	for range chunks {
	}
	err := drainErr(errCh)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrTsvMalformed)
}

func TestStreamTSVFileRejectsRowArityMismatch(t *testing.T) {
	content := "geo,unit\\time\t2020\nDE\t1\n"
	path := writeGzipTSV(t, content)

	chunks, errCh := StreamTSVFile(context.Background(), path, 0)
	for range chunks {
	}
	err := drainErr(errCh)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrTsvMalformed)
}

func TestStreamTSVFileMissingFile(t *testing.T) {
	chunks, errCh := StreamTSVFile(context.Background(), "/nonexistent/path.tsv.gz", 0)
	for range chunks {
	}
	assert.Error(t, drainErr(errCh))
}

func drainErr(errCh <-chan error) error {
	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}
