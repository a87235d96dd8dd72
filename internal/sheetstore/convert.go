package sheetstore

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const maxImportRows = 100000

// textDateLayouts are the renderings of a calendar date we accept in text
// cells of converted files. Slash layouts are read month first.
var textDateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"2006.01.02",
	"1/2/2006",
	"01/02/2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
}

func convertXLS(data []byte) (out []byte, err error) {
	// extrame/xls panics on some truncated files.
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%w: malformed xls: %v", ErrUnsupportedFormat, r)
		}
	}()

	workbook, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	if workbook.NumSheets() == 0 {
		return nil, fmt.Errorf("%w: no worksheet found", ErrInvalidWorkbook)
	}
	if workbook.NumSheets() > 1 {
		return nil, fmt.Errorf("%w: multiple worksheets found; please upload a file with a single sheet", ErrInvalidWorkbook)
	}
	rows := workbook.ReadAllCells(maxImportRows)
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: worksheet is empty", ErrInvalidWorkbook)
	}
	return buildWorkbook(rows)
}

func convertCSV(data []byte) ([]byte, error) {
	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	reader := csv.NewReader(transform.NewReader(bytes.NewReader(data), decoder))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: read csv: %v", ErrInvalidWorkbook, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: worksheet is empty", ErrInvalidWorkbook)
	}
	return buildWorkbook(rows)
}

// buildWorkbook writes text rows into a fresh single-sheet workbook, storing
// recognisable dates and numbers as typed cells.
func buildWorkbook(rows [][]string) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	dateStyle, err := f.NewStyle(&excelize.Style{NumFmt: dateNumFmt})
	if err != nil {
		return nil, err
	}

	for r, row := range rows {
		for c, raw := range row {
			value := strings.TrimSpace(raw)
			if value == "" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return nil, err
			}
			if t, ok := parseDateText(value); ok {
				if err := f.SetCellValue(sheet, cell, t); err != nil {
					return nil, fmt.Errorf("cell %s: %w", cell, err)
				}
				if err := f.SetCellStyle(sheet, cell, cell, dateStyle); err != nil {
					return nil, fmt.Errorf("cell %s: %w", cell, err)
				}
				continue
			}
			if n, ok := parseNumber(value); ok {
				if err := f.SetCellFloat(sheet, cell, n, -1, 64); err != nil {
					return nil, fmt.Errorf("cell %s: %w", cell, err)
				}
				continue
			}
			if err := f.SetCellStr(sheet, cell, raw); err != nil {
				return nil, fmt.Errorf("cell %s: %w", cell, err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write to buffer: %w", err)
	}
	return buf.Bytes(), nil
}

func parseDateText(value string) (time.Time, bool) {
	for _, layout := range textDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// parseNumber keeps identifiers with leading zeros ("007") as text.
func parseNumber(value string) (float64, bool) {
	if len(value) > 1 && value[0] == '0' && value[1] != '.' {
		return 0, false
	}
	n, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}
