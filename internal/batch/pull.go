package batch

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/the-muppet/nice-rack/internal/core"
)

var ordersHeader = []string{colTCGID, "Quantity"}

type PullSummary struct {
	Orders    int
	Skipped   int
	Fulfilled int
	Partial   int
	Units     int
}

type Puller struct {
	retriever core.RetrievalService
	log       *slog.Logger
}

func NewPuller(retriever core.RetrievalService, log *slog.Logger) *Puller {
	return &Puller{retriever: retriever, log: log}
}

// PullOrders fulfills each order row and streams the location report to out.
// Orders short on stock are reported as partial, not failed.
func (p *Puller) PullOrders(ctx context.Context, ordersPath string, out io.Writer) (*PullSummary, error) {
	file, err := os.Open(ordersPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open orders file %s: %w", ordersPath, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	// Ragged rows are skipped per row, not fatal for the batch.
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read orders CSV: %w", err)
	}
	if len(records) < 1 {
		return nil, fmt.Errorf("orders CSV must have a header row")
	}
	for i, want := range ordersHeader {
		if i >= len(records[0]) || strings.TrimSpace(records[0][i]) != want {
			return nil, fmt.Errorf("orders CSV header mismatch. Expected: %v, Got: %v", ordersHeader, records[0])
		}
	}

	summary := &PullSummary{}
	var results []*core.FulfillmentResult
	for n, record := range records[1:] {
		rowNum := n + 2
		summary.Orders++

		if len(record) != len(records[0]) {
			p.log.Warn("skipping order row", "row", rowNum,
				"reason", fmt.Sprintf("expected %d columns, got %d", len(records[0]), len(record)))
			summary.Skipped++
			continue
		}

		tcgID, err := strconv.ParseInt(strings.TrimSpace(record[0]), 10, 64)
		if err != nil {
			p.log.Warn("skipping order row", "row", rowNum, "reason", fmt.Sprintf("invalid %s %q", colTCGID, record[0]))
			summary.Skipped++
			continue
		}
		qty, err := strconv.Atoi(strings.TrimSpace(record[1]))
		if err != nil {
			p.log.Warn("skipping order row", "row", rowNum, "reason", fmt.Sprintf("invalid quantity %q", record[1]))
			summary.Skipped++
			continue
		}

		res, err := p.retriever.Fulfill(ctx, tcgID, qty)
		if err != nil {
			if errors.Is(err, core.ErrInvalidItem) || errors.Is(err, core.ErrInvalidQuantity) {
				p.log.Warn("skipping order row", "row", rowNum, "reason", err.Error())
				summary.Skipped++
				continue
			}
			return summary, fmt.Errorf("order row %d: %w", rowNum, err)
		}

		summary.Fulfilled++
		summary.Units += res.Collected
		if res.Partial {
			summary.Partial++
		}
		results = append(results, res)
	}

	if err := WriteFulfillmentReport(out, results); err != nil {
		return summary, err
	}
	p.log.Info("pull finished", "file", ordersPath,
		"orders", summary.Orders, "fulfilled", summary.Fulfilled,
		"partial", summary.Partial, "skipped", summary.Skipped, "units", summary.Units)
	return summary, nil
}

// WriteFulfillmentReport writes the outbound report CSV: one row per order
// with the quantity collected and every location it was pulled from.
func WriteFulfillmentReport(w io.Writer, results []*core.FulfillmentResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{colTCGID, colName, colSet, "Quantity Fulfilled", "Locations"}); err != nil {
		return fmt.Errorf("failed to write report header: %w", err)
	}
	for _, res := range results {
		fulfilled := strconv.Itoa(res.Collected)
		if res.Partial {
			fulfilled = fmt.Sprintf("%d of %d", res.Collected, res.Requested)
		}
		row := []string{
			strconv.FormatInt(res.TCGID, 10),
			res.Name,
			res.SetName,
			fulfilled,
			res.LocationsString(),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write report row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
