package sheetstore

import (
	"strconv"
	"strings"
	"time"

	"github.com/phillip-england/attendsuite/internal/attendance"
	"github.com/xuri/excelize/v2"
)

// dateNumFmt is the built-in "m/d/yyyy" format used for date cells we write.
const dateNumFmt = 14

var isoDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func decodeSheet(f *excelize.File, sheet string) ([][]attendance.Cell, error) {
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}

	date1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}

	out := make([][]attendance.Cell, len(rows))
	for r, row := range rows {
		cells := make([]attendance.Cell, len(row))
		for c, raw := range row {
			if raw == "" {
				continue
			}
			name, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return nil, err
			}
			cells[c] = decodeCell(f, sheet, name, raw, date1904)
		}
		out[r] = cells
	}
	return out, nil
}

func decodeCell(f *excelize.File, sheet, name, raw string, date1904 bool) attendance.Cell {
	typ, err := f.GetCellType(sheet, name)
	if err != nil {
		return attendance.Text(raw)
	}

	switch typ {
	case excelize.CellTypeBool:
		if raw == "1" || strings.EqualFold(raw, "true") {
			return attendance.Text("TRUE")
		}
		return attendance.Text("FALSE")
	case excelize.CellTypeDate:
		for _, layout := range isoDateLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return attendance.Date(t)
			}
		}
		return attendance.Text(raw)
	case excelize.CellTypeUnset, excelize.CellTypeNumber:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return attendance.Text(raw)
		}
		if hasDateFormat(f, sheet, name) {
			if t, err := excelize.ExcelDateToTime(v, date1904); err == nil {
				return attendance.Date(t)
			}
		}
		return attendance.Number(v)
	default:
		return attendance.Text(raw)
	}
}

func hasDateFormat(f *excelize.File, sheet, name string) bool {
	styleID, err := f.GetCellStyle(sheet, name)
	if err != nil || styleID == 0 {
		return false
	}
	style, err := f.GetStyle(styleID)
	if err != nil || style == nil {
		return false
	}
	if isBuiltinDateFormat(style.NumFmt) {
		return true
	}
	return style.CustomNumFmt != nil && isDateFormatCode(*style.CustomNumFmt)
}

func isBuiltinDateFormat(id int) bool {
	return (id >= 14 && id <= 22) || (id >= 45 && id <= 47)
}

// isDateFormatCode reports whether a custom number format renders a
// calendar date. Quoted literals, bracketed sections and escaped characters
// are ignored.
func isDateFormatCode(code string) bool {
	var b strings.Builder
	inQuote, inBracket, escaped := false, false, false
	for _, r := range code {
		switch {
		case escaped:
			escaped = false
		case r == '\\':
			escaped = true
		case inQuote:
			inQuote = r != '"'
		case r == '"':
			inQuote = true
		case inBracket:
			inBracket = r != ']'
		case r == '[':
			inBracket = true
		default:
			b.WriteRune(r)
		}
	}
	cleaned := strings.ToLower(b.String())
	return strings.ContainsAny(cleaned, "yd")
}

func writeCell(f *excelize.File, sheet, address string, cell attendance.Cell) error {
	switch cell.Kind {
	case attendance.KindText:
		return f.SetCellStr(sheet, address, cell.Text)
	case attendance.KindNumber:
		return f.SetCellFloat(sheet, address, cell.Number, -1, 64)
	case attendance.KindDate:
		if err := f.SetCellValue(sheet, address, cell.Date); err != nil {
			return err
		}
		style, err := f.NewStyle(&excelize.Style{NumFmt: dateNumFmt})
		if err != nil {
			return err
		}
		return f.SetCellStyle(sheet, address, address, style)
	default:
		return f.SetCellValue(sheet, address, nil)
	}
}
