package report

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const (
	pdfMargin     = 36.0
	pdfHeaderSize = 18.0
	pdfCellPad    = 4.0
)

// WritePDF renders the same rows as WriteXLSX as a printable contact sheet.
// Thumbnails keep their pixel size at 96 DPI.
func (w *Writer) WritePDF(path string, rows []Row) error {
	layout := w.Layout(rows)

	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(false, pdfMargin)
	pdf.SetTitle(w.sheet, true)

	colImage := float64(w.maxPixels)*pointsPerPixel + 2*pdfCellPad
	pageW, pageH := pdf.GetPageSize()
	colStyle := max(pageW-2*pdfMargin-2*colImage, 72)
	x0 := pdfMargin

	header := func() {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.SetX(x0)
		pdf.CellFormat(colImage, pdfHeaderSize, headers[0], "1", 0, "C", false, 0, "")
		pdf.CellFormat(colStyle, pdfHeaderSize, headers[1], "1", 0, "C", false, 0, "")
		pdf.CellFormat(colImage, pdfHeaderSize, headers[2], "1", 1, "C", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
	}

	pdf.AddPage()
	header()
	for i, rl := range layout.Rows {
		h := max(rl.Height, pdfHeaderSize) + 2*pdfCellPad
		if pdf.GetY()+h > pageH-pdfMargin {
			pdf.AddPage()
			header()
		}
		y := pdf.GetY()
		pdf.Rect(x0, y, colImage, h, "D")
		pdf.Rect(x0+colImage, y, colStyle, h, "D")
		pdf.Rect(x0+colImage+colStyle, y, colImage, h, "D")

		if rl.Input != nil {
			placeImage(pdf, fmt.Sprintf("in-%d", i), rl.Input, x0+pdfCellPad, y+pdfCellPad)
		}
		pdf.SetXY(x0+colImage, y)
		pdf.CellFormat(colStyle, h, rl.Row.Style, "", 0, "C", false, 0, "")
		if rl.Output != nil {
			placeImage(pdf, fmt.Sprintf("out-%d", i), rl.Output, x0+colImage+colStyle+pdfCellPad, y+pdfCellPad)
		}
		pdf.SetXY(x0, y+h)
	}

	if err := pdf.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("report: save %s: %w", path, err)
	}
	w.logger.Info().Str("path", path).Int("rows", len(layout.Rows)).Msg("pdf saved")
	return nil
}

func placeImage(pdf *gofpdf.Fpdf, name string, t *Thumbnail, x, y float64) {
	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(t.Data))
	pdf.ImageOptions(name, x, y, float64(t.Width)*pointsPerPixel, float64(t.Height)*pointsPerPixel, false, opts, 0, "")
}
