// Package report renders batch results as a spreadsheet with embedded
// thumbnails, with optional PDF and ZIP companions.
package report

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/disintegration/imaging"

	"tensorjobs/internal/infra"
)

const (
	DefaultSheetName = "TensorART Results"
	// DefaultMaxPixels is about 5 cm at 96 DPI.
	DefaultMaxPixels = 189

	pointsPerPixel    = 0.75
	widthPerPixel     = 0.14
	widthPerStyleRune = 1.2
)

var headers = [3]string{"Input Image", "Style", "Output Image"}

// Row is one (input, style) pair. OutputPath is empty when the job produced
// nothing.
type Row struct {
	InputPath  string
	Style      string
	OutputPath string
}

// Thumbnail is a PNG-encoded image already scaled to its display size.
type Thumbnail struct {
	Data   []byte
	Width  int
	Height int
}

// RowLayout is the rendered form of a Row.
type RowLayout struct {
	Row    Row
	Input  *Thumbnail
	Output *Thumbnail
	// Height is the row height in points.
	Height float64
}

// Layout holds everything needed to draw the report.
type Layout struct {
	Rows   []RowLayout
	WidthA float64
	WidthB float64
	WidthC float64
}

type Options struct {
	SheetName string
	MaxPixels int
	Logger    *infra.Logger
}

// Writer builds report artifacts. Thumbnails are cached per source path, so
// an input shared by several rows is decoded once.
type Writer struct {
	sheet     string
	maxPixels int
	logger    *infra.Logger
	cache     map[string]*Thumbnail
}

func NewWriter(opts Options) *Writer {
	sheet := strings.TrimSpace(opts.SheetName)
	if sheet == "" {
		sheet = DefaultSheetName
	}
	maxPixels := opts.MaxPixels
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Writer{sheet: sheet, maxPixels: maxPixels, logger: logger, cache: map[string]*Thumbnail{}}
}

// ScaleToFit shrinks w x h so neither side exceeds limit while keeping the
// aspect ratio. Images already within the limit are returned unchanged and
// results are truncated, never rounded up.
func ScaleToFit(w, h, limit int) (int, int) {
	if w <= 0 || h <= 0 || limit <= 0 {
		return 0, 0
	}
	if w <= limit && h <= limit {
		return w, h
	}
	var sw, sh int
	if w >= h {
		sw, sh = limit, h*limit/w
	} else {
		sw, sh = w*limit/h, limit
	}
	return max(sw, 1), max(sh, 1)
}

// Thumbnail decodes path and scales it to fit the writer's limit.
func (w *Writer) Thumbnail(path string) (*Thumbnail, error) {
	if t, ok := w.cache[path]; ok {
		return t, nil
	}
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("report: open %s: %w", path, err)
	}
	b := img.Bounds()
	sw, sh := ScaleToFit(b.Dx(), b.Dy(), w.maxPixels)
	if sw != b.Dx() || sh != b.Dy() {
		img = imaging.Resize(img, sw, sh, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("report: encode thumbnail: %w", err)
	}
	t := &Thumbnail{Data: buf.Bytes(), Width: sw, Height: sh}
	w.cache[path] = t
	return t, nil
}

// Layout computes thumbnails, row heights and column widths. Unreadable
// images are logged and left out of their cell.
func (w *Writer) Layout(rows []Row) *Layout {
	layout := &Layout{Rows: make([]RowLayout, 0, len(rows))}
	var maxA, maxC, longestStyle int
	for _, row := range rows {
		rl := RowLayout{Row: row}
		var heightPx int
		if t := w.tryThumbnail(row.InputPath); t != nil {
			rl.Input = t
			maxA = max(maxA, t.Width)
			heightPx = max(heightPx, t.Height)
		}
		if t := w.tryThumbnail(row.OutputPath); t != nil {
			rl.Output = t
			maxC = max(maxC, t.Width)
			heightPx = max(heightPx, t.Height)
		}
		rl.Height = float64(heightPx) * pointsPerPixel
		longestStyle = max(longestStyle, utf8.RuneCountInString(row.Style))
		layout.Rows = append(layout.Rows, rl)
	}
	layout.WidthA = float64(maxA) * widthPerPixel
	layout.WidthB = float64(longestStyle) * widthPerStyleRune
	layout.WidthC = float64(maxC) * widthPerPixel
	return layout
}

func (w *Writer) tryThumbnail(path string) *Thumbnail {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	t, err := w.Thumbnail(path)
	if err != nil {
		w.logger.Warn().Err(err).Str("path", path).Msg("thumbnail skipped")
		return nil
	}
	return t
}
