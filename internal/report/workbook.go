// Package report exports training load to an Excel workbook.
package report

import (
	"fmt"
	"time"

	cycling "github.com/lucasjlepore/cycling-analyzer"
	"github.com/xuri/excelize/v2"
)

const (
	SheetWeekly = "Weekly TSS"
	SheetLoad   = "Training Load"
)

type styles struct {
	header int
	date   int
	number int
}

func createStyles(f *excelize.File) (*styles, error) {
	border := []excelize.Border{
		{Type: "left", Color: "#B4C6E7", Style: 1},
		{Type: "right", Color: "#B4C6E7", Style: 1},
		{Type: "top", Color: "#B4C6E7", Style: 1},
		{Type: "bottom", Color: "#B4C6E7", Style: 1},
	}
	var (
		s   styles
		err error
	)
	s.header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#2E75B6"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    border,
	})
	if err != nil {
		return nil, err
	}
	dateFmt := "yyyy-mm-dd"
	s.date, err = f.NewStyle(&excelize.Style{
		Font:         &excelize.Font{Size: 10},
		CustomNumFmt: &dateFmt,
		Alignment:    &excelize.Alignment{Horizontal: "center"},
		Border:       border,
	})
	if err != nil {
		return nil, err
	}
	numFmt := "0.0"
	s.number, err = f.NewStyle(&excelize.Style{
		Font:         &excelize.Font{Size: 10},
		CustomNumFmt: &numFmt,
		Alignment:    &excelize.Alignment{Horizontal: "right"},
		Border:       border,
	})
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// WriteWorkbook saves weekly buckets and the load series to path.
func WriteWorkbook(path string, weeks []cycling.WeekBucket, series []cycling.LoadPoint) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetWeekly); err != nil {
		return err
	}
	if _, err := f.NewSheet(SheetLoad); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	st, err := createStyles(f)
	if err != nil {
		return fmt.Errorf("create styles: %w", err)
	}

	weekRows := make([][]any, len(weeks))
	for i, w := range weeks {
		weekRows[i] = []any{w.WeekStart, cycling.Round1(w.TSS), w.Workouts}
	}
	if err := writeSheet(f, st, SheetWeekly, []string{"Week Start", "TSS", "Workouts"}, 1, weekRows); err != nil {
		return err
	}

	loadRows := make([][]any, len(series))
	for i, p := range series {
		loadRows[i] = []any{p.Date, cycling.Round1(p.TSS), cycling.Round1(p.CTL), cycling.Round1(p.ATL), cycling.Round1(p.TSB)}
	}
	if err := writeSheet(f, st, SheetLoad, []string{"Date", "TSS", "CTL", "ATL", "TSB"}, 4, loadRows); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

// writeSheet writes a header and rows whose first column is a date, followed
// by `decimals` columns shown with one decimal.
func writeSheet(f *excelize.File, st *styles, sheet string, header []string, decimals int, rows [][]any) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, st.header); err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "A", "A", 14); err != nil {
		return err
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if t, ok := row[0].(time.Time); ok {
			row[0] = t.Format(time.DateOnly)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	if len(rows) > 0 {
		end, _ := excelize.CoordinatesToCellName(1, len(rows)+1)
		if err := f.SetCellStyle(sheet, "A2", end, st.date); err != nil {
			return err
		}
		from, _ := excelize.CoordinatesToCellName(2, 2)
		to, _ := excelize.CoordinatesToCellName(1+decimals, len(rows)+1)
		if err := f.SetCellStyle(sheet, from, to, st.number); err != nil {
			return err
		}
	}
	return nil
}
