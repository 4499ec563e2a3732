// Package model holds the SDMX-derived data model shared by the parser,
// transformer and loader stages: the Data Structure Definition, code lists,
// unpivoted observations and the ingestion history record.
package model

import (
	"fmt"
	"strings"
)

// Dimension is a single SDMX dimension declaration, in document order.
type Dimension struct {
	ID         string
	CodelistID string // empty if the dimension has no attached code list
}

// Attribute is a single SDMX attribute declaration, in document order.
type Attribute struct {
	ID         string
	CodelistID string
}

// DSD is the Data Structure Definition for one dataset: its dimensions,
// attributes, primary measure and time dimension. It is immutable once
// built by NewDSD.
type DSD struct {
	DatasetID     string
	Version       string
	Dimensions    []Dimension // non-time dimensions, in declaration order
	Attributes    []Attribute
	PrimaryMeasure string
	TimeDimension string
}

// NewDSD validates and constructs a DSD. dims must exclude the time
// dimension; timeDim is supplied separately and must not duplicate an
// entry in dims. Dimension IDs are case-folded for the uniqueness check
// but stored with their original casing.
func NewDSD(datasetID, version string, dims []Dimension, attrs []Attribute, primaryMeasure, timeDim string, codelists map[string]*Codelist) (*DSD, error) {
	if strings.TrimSpace(timeDim) == "" {
		return nil, fmt.Errorf("%w: dataset %q has no time dimension", ErrDsdInvalid, datasetID)
	}

	seen := make(map[string]struct{}, len(dims)+1)
	seen[strings.ToLower(timeDim)] = struct{}{}
	for _, d := range dims {
		key := strings.ToLower(d.ID)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: duplicate or time-colliding dimension id %q in dataset %q", ErrDsdInvalid, d.ID, datasetID)
		}
		seen[key] = struct{}{}
		if d.CodelistID != "" && codelists != nil {
			if _, ok := codelists[d.CodelistID]; !ok {
				// Unresolved code list references are permitted; the
				// transformer treats codes as their own labels.
				continue
			}
		}
	}

	if primaryMeasure == "" {
		primaryMeasure = "obs_value"
	}

	out := make([]Dimension, len(dims))
	copy(out, dims)
	outAttrs := make([]Attribute, len(attrs))
	copy(outAttrs, attrs)

	return &DSD{
		DatasetID:      datasetID,
		Version:        version,
		Dimensions:     out,
		Attributes:     outAttrs,
		PrimaryMeasure: primaryMeasure,
		TimeDimension:  timeDim,
	}, nil
}

// DimensionIDs returns the non-time dimension ids in declaration order.
func (d *DSD) DimensionIDs() []string {
	ids := make([]string, len(d.Dimensions))
	for i, dim := range d.Dimensions {
		ids[i] = dim.ID
	}
	return ids
}

// DimensionIndex returns the position of a dimension id in declaration
// order, or -1 if it is not a non-time dimension of this DSD.
func (d *DSD) DimensionIndex(id string) int {
	for i, dim := range d.Dimensions {
		if dim.ID == id {
			return i
		}
	}
	return -1
}
