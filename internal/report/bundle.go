package report

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"tensorjobs/pkg/zip"
)

// WriteBundle archives every distinct input and output image of rows into a
// ZIP at path, under inputs/ and outputs/. Extra files such as the
// spreadsheet are added at the archive root. Missing files are skipped.
func (w *Writer) WriteBundle(path string, rows []Row, extra ...string) error {
	var assets []zip.Asset
	seen := map[string]struct{}{}
	add := func(src, dir string) {
		if strings.TrimSpace(src) == "" {
			return
		}
		if _, dup := seen[src]; dup {
			return
		}
		seen[src] = struct{}{}
		data, err := os.ReadFile(src)
		if err != nil {
			w.logger.Warn().Err(err).Str("path", src).Msg("bundle: file skipped")
			return
		}
		assets = append(assets, zip.Asset{
			Filename: filepath.ToSlash(filepath.Join(dir, filepath.Base(src))),
			MIME:     mime.TypeByExtension(filepath.Ext(src)),
			Data:     data,
		})
	}
	for _, row := range rows {
		add(row.InputPath, "inputs")
	}
	for _, row := range rows {
		add(row.OutputPath, "outputs")
	}
	for _, e := range extra {
		add(e, "")
	}

	data, err := zip.ArchiveAssets(assets)
	if err != nil {
		return fmt.Errorf("report: bundle: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("report: save %s: %w", path, err)
	}
	w.logger.Info().Str("path", path).Int("files", len(assets)).Msg("bundle saved")
	return nil
}
