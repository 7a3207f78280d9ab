// Package batch reads inbound stock and outbound order CSVs, drives the
// placement and retrieval services one row at a time, and writes the
// fulfillment report and stock exports.
package batch

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/the-muppet/nice-rack/internal/core"
)

// Import CSV columns. Market Price is optional; the rest are required and
// must appear in this order in the header row.
const (
	colTCGID = "TCGplayer Id"
	colName  = "Product Name"
	colSet   = "Set Name"
	colQty   = "Add to Quantity"
	colPrice = "Market Price"
)

var importHeader = []string{colTCGID, colName, colSet, colQty}

type ImportSummary struct {
	Rows         int
	Imported     int
	Skipped      int
	Units        int
	BoxesCreated int
}

type Importer struct {
	placer core.PlacementService
	log    *slog.Logger
}

func NewImporter(placer core.PlacementService, log *slog.Logger) *Importer {
	return &Importer{placer: placer, log: log}
}

// ImportFile processes one inbound CSV strictly sequentially: each row is one
// consolidate-then-place operation in its own retried store transaction.
// Malformed rows are skipped with a warning; store failures abort the batch.
func (i *Importer) ImportFile(ctx context.Context, path string) (*ImportSummary, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open import file %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	// Ragged rows are skipped per row, not fatal for the batch.
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read import CSV: %w", err)
	}
	if len(records) < 1 {
		return nil, fmt.Errorf("import CSV must have a header row")
	}

	hasPrice, err := validateImportHeader(records[0])
	if err != nil {
		return nil, err
	}

	summary := &ImportSummary{}
	for n, record := range records[1:] {
		rowNum := n + 2
		summary.Rows++

		if len(record) != len(records[0]) {
			i.log.Warn("skipping import row", "row", rowNum,
				"reason", fmt.Sprintf("expected %d columns, got %d", len(records[0]), len(record)))
			summary.Skipped++
			continue
		}

		in, err := parseImportRow(record, hasPrice)
		if err != nil {
			i.log.Warn("skipping import row", "row", rowNum, "reason", err.Error())
			summary.Skipped++
			continue
		}

		res, err := i.placer.Consolidate(ctx, in)
		if err != nil {
			if errors.Is(err, core.ErrInvalidItem) || errors.Is(err, core.ErrInvalidQuantity) {
				i.log.Warn("skipping import row", "row", rowNum, "reason", err.Error())
				summary.Skipped++
				continue
			}
			return summary, fmt.Errorf("import row %d: %w", rowNum, err)
		}

		summary.Imported++
		summary.Units += res.Placed()
		summary.BoxesCreated += res.BoxesCreated
		i.log.Debug("imported row", "row", rowNum,
			"tcg_id", in.TCGID, "name", in.Name, "quantity", in.Quantity,
			"records", len(res.Placements))
	}

	i.log.Info("import finished", "file", path,
		"rows", summary.Rows, "imported", summary.Imported,
		"skipped", summary.Skipped, "units", summary.Units,
		"boxes_created", summary.BoxesCreated)
	return summary, nil
}

func validateImportHeader(header []string) (hasPrice bool, err error) {
	if len(header) != len(importHeader) && len(header) != len(importHeader)+1 {
		return false, fmt.Errorf("import CSV header mismatch. Expected: %v, Got: %v", importHeader, header)
	}
	for i, want := range importHeader {
		if strings.TrimSpace(header[i]) != want {
			return false, fmt.Errorf("import CSV header mismatch. Expected: %v, Got: %v", importHeader, header)
		}
	}
	if len(header) == len(importHeader)+1 {
		if strings.TrimSpace(header[len(importHeader)]) != colPrice {
			return false, fmt.Errorf("import CSV header mismatch. Optional column 5 must be %q, got %q",
				colPrice, header[len(importHeader)])
		}
		return true, nil
	}
	return false, nil
}

func parseImportRow(record []string, hasPrice bool) (core.CardInput, error) {
	tcgID, err := strconv.ParseInt(strings.TrimSpace(record[0]), 10, 64)
	if err != nil {
		return core.CardInput{}, fmt.Errorf("invalid %s %q", colTCGID, record[0])
	}
	qty, err := strconv.Atoi(strings.TrimSpace(record[3]))
	if err != nil {
		return core.CardInput{}, fmt.Errorf("invalid %s %q", colQty, record[3])
	}
	in := core.CardInput{
		TCGID:    tcgID,
		Name:     strings.TrimSpace(record[1]),
		SetName:  strings.TrimSpace(record[2]),
		Quantity: qty,
	}
	if hasPrice {
		raw := strings.TrimSpace(record[4])
		if raw != "" {
			price, err := decimal.NewFromString(strings.TrimPrefix(raw, "$"))
			if err != nil {
				return core.CardInput{}, fmt.Errorf("invalid %s %q", colPrice, record[4])
			}
			in.UnitPrice = price
		}
	}
	return in, nil
}
