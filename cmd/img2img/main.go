// Command img2img restyles one local image through the workflow template and
// saves the result under the output directory.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"tensorjobs/internal/bootstrap"
	"tensorjobs/internal/infra"
	"tensorjobs/internal/providers/tensorart"
)

func main() {
	os.Exit(run())
}

func run() int {
	var imagePath, prompt, style string
	flag.StringVar(&imagePath, "image", "", "path of the source image (asked for when empty)")
	flag.StringVar(&prompt, "prompt", "", "positive prompt (asked for when empty)")
	flag.StringVar(&style, "style", "", "style name (asked for when empty; blank answer keeps the profile default)")
	flag.Parse()

	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}
	logger := infra.NewLoggerWithLevel(cfg.AppEnv, cfg.LogLevel).With().Str("cmd", "img2img").Logger()

	ask := bootstrap.NewPrompter(os.Stdin, os.Stdout)
	if imagePath, err = ask.AskIfEmpty(imagePath, "Enter the path of the image: "); err != nil || imagePath == "" {
		fmt.Fprintln(os.Stderr, "an image path is required")
		return 2
	}
	if prompt, err = ask.AskIfEmpty(prompt, "Enter the prompt: "); err != nil {
		fmt.Fprintf(os.Stderr, "read prompt: %v\n", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg.WorkflowFile = cfg.Img2ImgFile
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

	if style, err = ask.AskStyle(style, rt.Profile); err != nil {
		fmt.Fprintf(os.Stderr, "read style: %v\n", err)
		return 2
	}

	out, err := rt.Orchestrator.Img2Img(ctx, imagePath, style, prompt)
	if err != nil {
		rt.Logger.Error().Err(err).Str("input", imagePath).Msg("img2img failed")
		return 1
	}
	fmt.Printf("Image saved to %s\n", out.Output.LocalPath)
	return 0
}
