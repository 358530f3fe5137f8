package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// WriteXLSX saves rows to path: a header row, then one row per pair with the
// input thumbnail in column A, the style in B and the output thumbnail in C.
// The computed layout is returned for callers that render it elsewhere.
func (w *Writer) WriteXLSX(path string, rows []Row) (*Layout, error) {
	layout := w.Layout(rows)

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", w.sheet); err != nil {
		return nil, fmt.Errorf("report: rename sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("report: header style: %w", err)
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(w.sheet, cell, h); err != nil {
			return nil, fmt.Errorf("report: header %s: %w", cell, err)
		}
	}
	if err := f.SetCellStyle(w.sheet, "A1", "C1", bold); err != nil {
		return nil, fmt.Errorf("report: header style: %w", err)
	}

	for i, rl := range layout.Rows {
		r := i + 2
		if rl.Input != nil {
			if err := addThumbnail(f, w.sheet, fmt.Sprintf("A%d", r), rl.Input); err != nil {
				return nil, err
			}
		}
		if err := f.SetCellValue(w.sheet, fmt.Sprintf("B%d", r), rl.Row.Style); err != nil {
			return nil, fmt.Errorf("report: style cell: %w", err)
		}
		if rl.Output != nil {
			if err := addThumbnail(f, w.sheet, fmt.Sprintf("C%d", r), rl.Output); err != nil {
				return nil, err
			}
		}
		if rl.Height > 0 {
			if err := f.SetRowHeight(w.sheet, r, rl.Height); err != nil {
				return nil, fmt.Errorf("report: row height: %w", err)
			}
		}
	}

	for col, width := range map[string]float64{"A": layout.WidthA, "B": layout.WidthB, "C": layout.WidthC} {
		if width <= 0 {
			continue
		}
		if err := f.SetColWidth(w.sheet, col, col, width); err != nil {
			return nil, fmt.Errorf("report: column %s width: %w", col, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return nil, fmt.Errorf("report: save %s: %w", path, err)
	}
	w.logger.Info().Str("path", path).Int("rows", len(layout.Rows)).Msg("report saved")
	return layout, nil
}

func addThumbnail(f *excelize.File, sheet, cell string, t *Thumbnail) error {
	err := f.AddPictureFromBytes(sheet, cell, &excelize.Picture{
		Extension: ".png",
		File:      t.Data,
		Format: &excelize.GraphicOptions{
			ScaleX:          1,
			ScaleY:          1,
			LockAspectRatio: true,
			Positioning:     "oneCell",
		},
	})
	if err != nil {
		return fmt.Errorf("report: picture %s: %w", cell, err)
	}
	return nil
}
