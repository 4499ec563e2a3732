package parser

import (
	"strings"
	"testing"

	"github.com/gowthamrao/eurostat-elt/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDSD = `<?xml version="1.0" encoding="UTF-8"?>
<str:Structure xmlns:str="urn:sdmx:structure">
  <str:DataStructures>
    <str:DataStructure id="NAMA_10_GDP" version="1.0">
      <str:DataStructureComponents>
        <str:DimensionList>
          <str:Dimension id="freq">
            <str:LocalRepresentation>
              <str:Enumeration><Ref id="CL_FREQ"/></str:Enumeration>
            </str:LocalRepresentation>
          </str:Dimension>
          <str:Dimension id="geo" codelist="CL_GEO"></str:Dimension>
          <str:TimeDimension id="TIME_PERIOD"/>
        </str:DimensionList>
        <str:AttributeList>
          <str:Attribute id="OBS_FLAG">
            <str:LocalRepresentation>
              <str:Enumeration><Ref id="CL_OBS_FLAG"/></str:Enumeration>
            </str:LocalRepresentation>
          </str:Attribute>
        </str:AttributeList>
        <str:MeasureList>
          <str:PrimaryMeasure id="OBS_VALUE"/>
        </str:MeasureList>
      </str:DataStructureComponents>
    </str:DataStructure>
  </str:DataStructures>
</str:Structure>`

func TestParseDSD(t *testing.T) {
	dsd, err := ParseDSD(strings.NewReader(sampleDSD), "NAMA_10_GDP", nil)
	require.NoError(t, err)

	assert.Equal(t, "NAMA_10_GDP", dsd.DatasetID)
	assert.Equal(t, "1.0", dsd.Version)
	assert.Equal(t, "TIME_PERIOD", dsd.TimeDimension)
	assert.Equal(t, "OBS_VALUE", dsd.PrimaryMeasure)
	assert.Equal(t, []string{"freq", "geo"}, dsd.DimensionIDs())

	require.Len(t, dsd.Attributes, 1)
	assert.Equal(t, "OBS_FLAG", dsd.Attributes[0].ID)
	assert.Equal(t, "CL_OBS_FLAG", dsd.Attributes[0].CodelistID)

	idx := dsd.DimensionIndex("freq")
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, "CL_FREQ", dsd.Dimensions[idx].CodelistID)

	idx = dsd.DimensionIndex("geo")
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, "CL_GEO", dsd.Dimensions[idx].CodelistID)
}

func TestParseDSDRejectsMissingTimeDimension(t *testing.T) {
	doc := `<str:Structure xmlns:str="urn:sdmx:structure">
  <str:DataStructure id="X" version="1.0">
    <str:DimensionList>
      <str:Dimension id="geo"/>
    </str:DimensionList>
  </str:DataStructure>
</str:Structure>`
	_, err := ParseDSD(strings.NewReader(doc), "X", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrDsdInvalid)
}

const sampleCodelist = `<?xml version="1.0" encoding="UTF-8"?>
<str:Structure xmlns:str="urn:sdmx:structure">
  <str:Codelists>
    <str:Codelist id="CL_GEO" version="13.0">
      <str:Code value="DE">
        <str:Name>Germany</str:Name>
        <str:Description>Federal Republic of Germany</str:Description>
      </str:Code>
      <str:Code value="FR" parentCode="EU27_2020">
        <str:Name>France</str:Name>
      </str:Code>
    </str:Codelist>
  </str:Codelists>
</str:Structure>`

func TestParseCodelist(t *testing.T) {
	cl, err := ParseCodelist(strings.NewReader(sampleCodelist))
	require.NoError(t, err)

	assert.Equal(t, "CL_GEO", cl.ID)
	assert.Equal(t, 2, cl.Len())

	de, ok := cl.Lookup("DE")
	require.True(t, ok)
	assert.Equal(t, "Germany", de.Label)
	assert.Equal(t, "Federal Republic of Germany", de.Description)

	fr, ok := cl.Lookup("FR")
	require.True(t, ok)
	assert.Equal(t, "France", fr.Label)
	assert.Equal(t, "EU27_2020", fr.ParentCode)
}

func TestParseCodelistRejectsMissingCodelistElement(t *testing.T) {
	_, err := ParseCodelist(strings.NewReader(`<str:Structure xmlns:str="urn:sdmx:structure"></str:Structure>`))
	assert.ErrorIs(t, err, model.ErrDsdInvalid)
}
