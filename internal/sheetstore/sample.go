package sheetstore

import (
	"fmt"
	"time"

	"github.com/bxcodec/faker/v4"
	"github.com/xuri/excelize/v2"
)

// SampleRoster builds a blank attendance workbook: "Name" plus one date
// column per day starting at from, and one row per generated person.
func SampleRoster(people, days int, from time.Time) ([]byte, error) {
	if people < 1 || days < 1 {
		return nil, fmt.Errorf("sample roster needs at least one person and one day")
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := f.GetSheetName(0)

	dateStyle, err := f.NewStyle(&excelize.Style{
		NumFmt:    dateNumFmt,
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, err
	}

	if err := f.SetCellStr(sheet, "A1", "Name"); err != nil {
		return nil, err
	}
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	for i := 0; i < days; i++ {
		cell, err := excelize.CoordinatesToCellName(i+2, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, day.AddDate(0, 0, i)); err != nil {
			return nil, fmt.Errorf("header %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, dateStyle); err != nil {
			return nil, fmt.Errorf("header %s: %w", cell, err)
		}
	}

	for i := 0; i < people; i++ {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		name := faker.FirstName() + " " + faker.LastName()
		if err := f.SetCellStr(sheet, cell, name); err != nil {
			return nil, fmt.Errorf("person %d: %w", i+1, err)
		}
	}

	if err := f.SetColWidth(sheet, "A", "A", 30); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write to buffer: %w", err)
	}
	return buf.Bytes(), nil
}
