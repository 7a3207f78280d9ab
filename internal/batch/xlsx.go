package batch

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/the-muppet/nice-rack/internal/core"
)

var stockHeader = []string{colTCGID, colName, colSet, "Quantity", "Records", "Value"}

// WriteStockCSV writes the per-item stock summary as CSV.
func WriteStockCSV(w io.Writer, levels []core.StockLevel) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(stockHeader); err != nil {
		return fmt.Errorf("failed to write stock header: %w", err)
	}
	for _, lv := range levels {
		row := []string{
			strconv.FormatInt(lv.TCGID, 10),
			lv.Name,
			lv.SetName,
			strconv.Itoa(lv.Quantity),
			strconv.Itoa(lv.Records),
			lv.Value.StringFixed(2),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write stock row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteStockXLSX writes the per-item stock summary as an XLSX workbook.
func WriteStockXLSX(path string, levels []core.StockLevel) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	const sheet = "Stock"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	for col, h := range stockHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to resolve header cell: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("failed to write header cell: %w", err)
		}
	}

	for i, lv := range levels {
		values := []any{
			lv.TCGID,
			lv.Name,
			lv.SetName,
			lv.Quantity,
			lv.Records,
			lv.Value.InexactFloat64(),
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return fmt.Errorf("failed to resolve cell: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("failed to write cell: %w", err)
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}
