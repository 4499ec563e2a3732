package parser

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gowthamrao/eurostat-elt/pkg/model"
)

// sdmxDoc accumulates the DSD fields ParseDSD collects while streaming a
// structure document, before they are validated by model.NewDSD.
type sdmxDoc struct {
	datasetID string
	version   string
	dims      []model.Dimension
	attrs     []model.Attribute
	measure   string
	timeDim   string
}

// ParseDSDFile streams an SDMX-ML DSD document from disk and resolves its
// dimension/attribute code-list references against known.
func ParseDSDFile(path, datasetID string, known model.CodelistSet) (*model.DSD, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dsd %s: %w", path, err)
	}
	defer f.Close()
	return ParseDSD(f, datasetID, known)
}

// ParseDSD streams an SDMX-ML structure document, token at a time (never
// loading a DOM), and builds a DSD. It rejects documents with no time
// dimension.
func ParseDSD(r io.Reader, datasetID string, known model.CodelistSet) (*model.DSD, error) {
	dec := xml.NewDecoder(r)
	doc := sdmxDoc{datasetID: datasetID}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: decode dsd xml: %v", model.ErrDsdInvalid, err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch localName(start.Name.Local) {
		case "DataStructure":
			doc.version = attrValue(start, "version")
		case "Dimension":
			id := attrValue(start, "id")
			if id == "" {
				continue
			}
			ref := readCodelistRef(dec, start)
			if isTimeDimensionID(id) || attrValue(start, "isTimeDimension") == "true" {
				doc.timeDim = id
				continue
			}
			doc.dims = append(doc.dims, model.Dimension{ID: id, CodelistID: ref})
		case "TimeDimension":
			id := attrValue(start, "id")
			if id == "" {
				id = "time"
			}
			doc.timeDim = id
			// Drain the element so the decoder stays in sync.
			_ = dec.Skip()
		case "Attribute":
			id := attrValue(start, "id")
			if id == "" {
				continue
			}
			ref := readCodelistRef(dec, start)
			doc.attrs = append(doc.attrs, model.Attribute{ID: id, CodelistID: ref})
		case "PrimaryMeasure":
			if id := attrValue(start, "id"); id != "" {
				doc.measure = id
			}
		}
	}

	if doc.timeDim == "" {
		return nil, fmt.Errorf("%w: dataset %q has no time dimension in dsd", model.ErrDsdInvalid, datasetID)
	}

	return model.NewDSD(doc.datasetID, doc.version, doc.dims, doc.attrs, doc.measure, doc.timeDim, known)
}

// ParseCodelistFile streams an SDMX-ML code list document from disk.
func ParseCodelistFile(path string) (*model.Codelist, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open codelist %s: %w", path, err)
	}
	defer f.Close()
	return ParseCodelist(f)
}

// ParseCodelist streams an SDMX-ML code list document, token at a time.
func ParseCodelist(r io.Reader) (*model.Codelist, error) {
	dec := xml.NewDecoder(r)

	var id, version string
	var cl *model.Codelist
	var cur *model.CodeEntry
	var textTarget *string

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: decode codelist xml: %v", model.ErrDsdInvalid, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch localName(t.Name.Local) {
			case "Codelist":
				id = attrValue(t, "id")
				version = attrValue(t, "version")
				cl = model.NewCodelist(id, version)
			case "Code":
				code := attrValue(t, "value")
				if code == "" {
					code = attrValue(t, "id")
				}
				cur = &model.CodeEntry{Code: code, ParentCode: attrValue(t, "parentCode")}
			case "Description":
				if cur != nil {
					textTarget = &cur.Description
				}
			case "Name":
				if cur != nil && cur.Label == "" {
					textTarget = &cur.Label
				}
			}
		case xml.CharData:
			if textTarget != nil {
				*textTarget += string(t)
			}
		case xml.EndElement:
			switch localName(t.Name.Local) {
			case "Description", "Name":
				textTarget = nil
			case "Code":
				if cl != nil && cur != nil {
					if err := cl.Add(*cur); err != nil {
						return nil, err
					}
				}
				cur = nil
			}
		}
	}

	if cl == nil {
		return nil, fmt.Errorf("%w: document has no Codelist element", model.ErrDsdInvalid)
	}
	_ = version
	return cl, nil
}

// readCodelistRef drains a Dimension/Attribute element's children looking
// for either a direct "codelist" attribute on the start tag or an "id"
// attribute on a nested Enumeration or Ref element (as in
// <LocalRepresentation><Enumeration><Ref id="..."/></Enumeration></LocalRepresentation>),
// without ever materializing a DOM. It always consumes through the
// element's matching end tag so the outer decoder stays in sync.
func readCodelistRef(dec *xml.Decoder, start xml.StartElement) string {
	ref := attrValue(start, "codelist")

	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return ref
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if localName(t.Name.Local) == "Enumeration" || localName(t.Name.Local) == "Ref" {
				if id := attrValue(t, "id"); id != "" {
					ref = id
				}
			}
		case xml.EndElement:
			depth--
		}
	}
	return ref
}

func localName(n string) string {
	if i := strings.LastIndexByte(n, ':'); i >= 0 {
		return n[i+1:]
	}
	return n
}

func attrValue(start xml.StartElement, name string) string {
	for _, a := range start.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func isTimeDimensionID(id string) bool {
	lower := strings.ToLower(id)
	return lower == "time" || lower == "time_period"
}
