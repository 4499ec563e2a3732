package model

import "fmt"

// CodeEntry is one code's metadata within a Codelist.
type CodeEntry struct {
	Code        string
	Label       string
	Description string
	ParentCode  string // empty if this code has no parent
}

// Codelist is a code-to-label mapping for one SDMX code list, keyed by
// code exactly as published (case-sensitive).
type Codelist struct {
	ID      string
	Version string
	entries map[string]CodeEntry
	order   []string // preserves insertion order for deterministic exports
}

// NewCodelist creates an empty, mutable code list builder.
func NewCodelist(id, version string) *Codelist {
	return &Codelist{
		ID:      id,
		Version: version,
		entries: make(map[string]CodeEntry),
	}
}

// Add inserts or replaces a code entry. It rejects a duplicate code only
// when the existing entry differs, since SDMX documents may legitimately
// repeat an identical declaration across included fragments.
func (c *Codelist) Add(e CodeEntry) error {
	if e.Code == "" {
		return fmt.Errorf("%w: empty code in codelist %q", ErrDsdInvalid, c.ID)
	}
	if existing, ok := c.entries[e.Code]; ok && existing != e {
		return fmt.Errorf("%w: conflicting duplicate code %q in codelist %q", ErrDsdInvalid, e.Code, c.ID)
	}
	if _, ok := c.entries[e.Code]; !ok {
		c.order = append(c.order, e.Code)
	}
	c.entries[e.Code] = e
	return nil
}

// Lookup returns the entry for a code and whether it was found.
func (c *Codelist) Lookup(code string) (CodeEntry, bool) {
	e, ok := c.entries[code]
	return e, ok
}

// Label returns the label for a code, or the code itself if unresolved —
// the pass-through behavior the transformer relies on for representation=full.
func (c *Codelist) Label(code string) string {
	if e, ok := c.entries[code]; ok {
		return e.Label
	}
	return code
}

// Len returns the number of distinct codes in the list.
func (c *Codelist) Len() int { return len(c.order) }

// Entries returns all entries in insertion order.
func (c *Codelist) Entries() []CodeEntry {
	out := make([]CodeEntry, 0, len(c.order))
	for _, code := range c.order {
		out = append(out, c.entries[code])
	}
	return out
}

// CodelistSet is the set of code lists parsed alongside a DSD, keyed by
// code list id.
type CodelistSet map[string]*Codelist

// Resolve looks up a code list by id, returning nil if absent — callers
// treat a nil codelist the same as an unresolved reference.
func (s CodelistSet) Resolve(id string) *Codelist {
	if s == nil {
		return nil
	}
	return s[id]
}
