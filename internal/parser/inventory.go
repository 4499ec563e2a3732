// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package parser implements the three Eurostat-specific sub-parsers: the
// Table of Contents inventory, SDMX-ML metadata, and the compressed wide
// TSV matrix.
package parser

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gowthamrao/eurostat-elt/pkg/model"
)

// InventoryEntry is one dataset's row from the Table of Contents.
type InventoryEntry struct {
	DatasetID  string
	Type       string
	LastUpdate time.Time
	valid      bool // false when LastUpdate could not be parsed
}

// Inventory is the parsed Table of Contents, keyed by dataset id.
type Inventory struct {
	entries map[string]InventoryEntry
}

// LastUpdate returns the UTC last-update timestamp for a dataset, or
// ErrInventoryMissing if the dataset is absent or its timestamp failed to
// parse. Other datasets in the same TOC remain usable regardless.
func (inv *Inventory) LastUpdate(datasetID string) (time.Time, error) {
	e, ok := inv.entries[datasetID]
	if !ok || !e.valid {
		return time.Time{}, fmt.Errorf("%w: dataset %q", model.ErrInventoryMissing, datasetID)
	}
	return e.LastUpdate, nil
}

var tocTimeLayouts = []string{
	"02.01.2006",
	"2006-01-02",
	time.RFC3339,
}

// ParseInventoryFile opens and parses a Table of Contents TSV file from
// disk, as produced by Fetcher.GetInventory.
func ParseInventoryFile(path string) (*Inventory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open inventory %s: %w", path, err)
	}
	defer f.Close()
	return ParseInventory(f)
}

// ParseInventory parses a Table of Contents TSV stream. Columns are
// resolved by header name so column order in the source is immaterial.
// Only "code" is required; without "last update of data" every dataset's
// LastUpdate reports ErrInventoryMissing, and without "type" Type is empty.
func ParseInventory(r io.Reader) (*Inventory, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	if !scanner.Scan() {
		return nil, fmt.Errorf("%w: empty inventory", model.ErrInventoryMissing)
	}
	header := strings.Split(scanner.Text(), "\t")
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}

	codeIdx, ok := col["code"]
	if !ok {
		return nil, fmt.Errorf("%w: inventory missing 'code' column", model.ErrInventoryMissing)
	}
	typeIdx, hasType := col["type"]
	updateIdx, hasUpdate := col["last update of data"]

	entries := make(map[string]InventoryEntry)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if codeIdx >= len(fields) {
			continue
		}
		id := strings.TrimSpace(fields[codeIdx])
		if id == "" {
			continue
		}

		entry := InventoryEntry{DatasetID: id}
		if hasType && typeIdx < len(fields) {
			entry.Type = strings.TrimSpace(fields[typeIdx])
		}
		if hasUpdate && updateIdx < len(fields) {
			raw := strings.TrimSpace(fields[updateIdx])
			if t, err := parseTocTime(raw); err == nil {
				entry.LastUpdate = t.UTC()
				entry.valid = true
			}
		}
		entries[id] = entry
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan inventory: %w", err)
	}

	return &Inventory{entries: entries}, nil
}

func parseTocTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	var lastErr error
	for _, layout := range tocTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, lastErr
}
