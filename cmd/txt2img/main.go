// Command txt2img generates one image from a text prompt with the staged
// pipeline described in the workflow profile.
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
	var prompt string
	flag.StringVar(&prompt, "prompt", "", "text prompt (asked for when empty)")
	flag.Parse()

	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}
	logger := infra.NewLoggerWithLevel(cfg.AppEnv, cfg.LogLevel).With().Str("cmd", "txt2img").Logger()

	if prompt, err = bootstrap.NewPrompter(os.Stdin, os.Stdout).AskIfEmpty(prompt, "Enter the prompt: "); err != nil || prompt == "" {
		fmt.Fprintln(os.Stderr, "a prompt is required")
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

	out, err := rt.Orchestrator.Txt2Img(ctx, prompt)
	if err != nil {
		rt.Logger.Error().Err(err).Msg("txt2img failed")
		return 1
	}
	fmt.Printf("Image saved to %s\n", out.Output.LocalPath)
	return 0
}
