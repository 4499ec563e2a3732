package model_test

import (
	"errors"
	"testing"

	"github.com/gowthamrao/eurostat-elt/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDSDRequiresTimeDimension(t *testing.T) {
	_, err := model.NewDSD("demo", "1.0", nil, nil, "", "", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrDsdInvalid)
}

func TestNewDSDRejectsTimeCollidingDimension(t *testing.T) {
	dims := []model.Dimension{{ID: "geo"}, {ID: "TIME_PERIOD"}}
	_, err := model.NewDSD("demo", "1.0", dims, nil, "", "time_period", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrDsdInvalid)
}

func TestNewDSDDefaultsPrimaryMeasure(t *testing.T) {
	dims := []model.Dimension{{ID: "geo"}, {ID: "unit"}}
	dsd, err := model.NewDSD("demo", "1.0", dims, nil, "", "time_period", nil)
	require.NoError(t, err)
	assert.Equal(t, "obs_value", dsd.PrimaryMeasure)
	assert.Equal(t, []string{"geo", "unit"}, dsd.DimensionIDs())
	assert.Equal(t, 0, dsd.DimensionIndex("geo"))
	assert.Equal(t, 1, dsd.DimensionIndex("unit"))
	assert.Equal(t, -1, dsd.DimensionIndex("time_period"))
}

func TestObservationValidate(t *testing.T) {
	dims := []model.Dimension{{ID: "geo"}, {ID: "unit"}}
	dsd, err := model.NewDSD("demo", "1.0", dims, nil, "", "time_period", nil)
	require.NoError(t, err)

	ok := model.Observation{DimensionValues: []string{"DE", "EUR"}, TimePeriod: "2020"}
	assert.NoError(t, ok.Validate(dsd))

	wrongArity := model.Observation{DimensionValues: []string{"DE"}, TimePeriod: "2020"}
	assert.ErrorIs(t, wrongArity.Validate(dsd), model.ErrTsvMalformed)

	noPeriod := model.Observation{DimensionValues: []string{"DE", "EUR"}}
	assert.ErrorIs(t, noPeriod.Validate(dsd), model.ErrTsvMalformed)
}

func TestObservationDimensionMap(t *testing.T) {
	dims := []model.Dimension{{ID: "geo"}, {ID: "unit"}}
	dsd, err := model.NewDSD("demo", "1.0", dims, nil, "", "time_period", nil)
	require.NoError(t, err)

	obs := model.Observation{DimensionValues: []string{"DE", "EUR"}, TimePeriod: "2020"}
	got := obs.DimensionMap(dsd)
	assert.Equal(t, map[string]string{"geo": "DE", "unit": "EUR"}, got)
}

func TestCodelistAddAndLookup(t *testing.T) {
	cl := model.NewCodelist("geo", "1.0")
	require.NoError(t, cl.Add(model.CodeEntry{Code: "DE", Label: "Germany"}))
	require.NoError(t, cl.Add(model.CodeEntry{Code: "FR", Label: "France"}))

	// Re-adding an identical entry is tolerated.
	require.NoError(t, cl.Add(model.CodeEntry{Code: "DE", Label: "Germany"}))

	// A conflicting re-add is rejected.
	err := cl.Add(model.CodeEntry{Code: "DE", Label: "Deutschland"})
	assert.ErrorIs(t, err, model.ErrDsdInvalid)

	entry, ok := cl.Lookup("FR")
	require.True(t, ok)
	assert.Equal(t, "France", entry.Label)

	assert.Equal(t, "Germany", cl.Label("DE"))
	assert.Equal(t, "XX", cl.Label("XX"), "unresolved code passes through unchanged")

	assert.Equal(t, 2, cl.Len())
	assert.Equal(t, []string{"DE", "FR"}, codesOf(cl.Entries()))
}

func codesOf(entries []model.CodeEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Code
	}
	return out
}

func TestCodelistRejectsEmptyCode(t *testing.T) {
	cl := model.NewCodelist("geo", "1.0")
	err := cl.Add(model.CodeEntry{Code: ""})
	assert.ErrorIs(t, err, model.ErrDsdInvalid)
}

func TestCodelistSetResolve(t *testing.T) {
	var nilSet model.CodelistSet
	assert.Nil(t, nilSet.Resolve("geo"))

	cl := model.NewCodelist("geo", "1.0")
	set := model.CodelistSet{"geo": cl}
	assert.Same(t, cl, set.Resolve("geo"))
	assert.Nil(t, set.Resolve("missing"))
}

func TestIngestionHistoryIsComplete(t *testing.T) {
	h := &model.IngestionHistory{Status: model.StatusRunning}
	assert.False(t, h.IsComplete())

	rows := int64(10)
	h.Status = model.StatusSuccess
	assert.False(t, h.IsComplete(), "missing EndTime/RowsLoaded/SourceLastUpdate")
	h.RowsLoaded = &rows
	assert.False(t, h.IsComplete())
}

func TestSentinelErrorsAreDistinct(t *testing.T) {
	assert.False(t, errors.Is(model.ErrDsdInvalid, model.ErrTsvMalformed))
	assert.True(t, errors.Is(model.ErrDsdInvalid, model.ErrDsdInvalid))
}
