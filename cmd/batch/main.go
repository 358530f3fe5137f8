// Command batch runs every image of the input directory against every style
// and writes a spreadsheet report, optionally with a PDF and a ZIP bundle.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"tensorjobs/internal/bootstrap"
	"tensorjobs/internal/infra"
	"tensorjobs/internal/orchestrator"
	"tensorjobs/internal/providers/tensorart"
	"tensorjobs/internal/report"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}

	var inputs, styles, prompt, negative, reportPath, pdfPath, zipPath string
	flag.StringVar(&inputs, "inputs", cfg.InputDir, "directory with .png/.jpg/.jpeg inputs")
	flag.StringVar(&styles, "styles", "", "comma separated styles; the profile list when empty")
	flag.StringVar(&prompt, "prompt", "", "positive prompt (asked for when empty)")
	flag.StringVar(&negative, "negative", "", "negative prompt; the profile default when empty")
	flag.StringVar(&reportPath, "report", cfg.ReportFile, "spreadsheet report path")
	flag.StringVar(&pdfPath, "pdf", "", "also write a PDF contact sheet to this path")
	flag.StringVar(&zipPath, "zip", "", "also bundle inputs, outputs and the report into this ZIP")
	flag.Parse()

	logger := infra.NewLoggerWithLevel(cfg.AppEnv, cfg.LogLevel).With().Str("cmd", "batch").Logger()

	files, err := orchestrator.ListInputImages(inputs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "No input images found in the '%s' folder.\n", inputs)
		return 1
	}
	if prompt, err = bootstrap.NewPrompter(os.Stdin, os.Stdout).AskIfEmpty(prompt, "Enter the prompt for the images: "); err != nil {
		fmt.Fprintf(os.Stderr, "read prompt: %v\n", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		if errors.Is(err, tensorart.ErrMissingAPIKey) {
			fmt.Fprintln(os.Stderr, "TENSORART_API_KEY is required (or store one with apikey)")
			return 2
		}
		logger.Error().Err(err).Msg("startup failed")
		return 1
	}
	defer rt.Close()

	items, runErr := rt.Orchestrator.Batch(ctx, orchestrator.BatchRequest{
		Inputs:         files,
		Styles:         splitStyles(styles),
		Prompt:         prompt,
		NegativePrompt: negative,
	})
	if runErr != nil {
		rt.Logger.Warn().Err(runErr).Int("completed", len(items)).Msg("batch interrupted; reporting partial results")
	}

	rows := make([]report.Row, 0, len(items))
	failed := 0
	for _, item := range items {
		if item.Err != nil {
			failed++
		}
		rows = append(rows, report.Row{InputPath: item.InputPath, Style: item.Style, OutputPath: item.Output.LocalPath})
	}

	writer := report.NewWriter(report.Options{MaxPixels: cfg.ThumbnailMax, Logger: &rt.Logger})
	if _, err := writer.WriteXLSX(reportPath, rows); err != nil {
		rt.Logger.Error().Err(err).Msg("report failed")
		return 1
	}
	fmt.Printf("Excel file saved as %s\n", reportPath)
	if pdfPath != "" {
		if err := writer.WritePDF(pdfPath, rows); err != nil {
			rt.Logger.Error().Err(err).Msg("pdf failed")
			return 1
		}
	}
	if zipPath != "" {
		if err := writer.WriteBundle(zipPath, rows, reportPath); err != nil {
			rt.Logger.Error().Err(err).Msg("bundle failed")
			return 1
		}
	}

	rt.Logger.Info().Int("jobs", len(items)).Int("failed", failed).Str("output_dir", rt.Orchestrator.OutputDir()).Msg("batch finished")
	if runErr != nil {
		return 1
	}
	return 0
}

func splitStyles(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
