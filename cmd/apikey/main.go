// Command apikey stores the TensorArt API key in Postgres so the other
// binaries can run without TENSORART_API_KEY.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"tensorjobs/internal/infra"
	"tensorjobs/internal/infra/credentials"
)

func main() {
	os.Exit(run())
}

func run() int {
	var keyFlag string
	var show bool
	flag.StringVar(&keyFlag, "key", "", "TensorArt API key (fallbacks to TENSORART_API_KEY)")
	flag.BoolVar(&show, "show", false, "print whether a key is stored instead of writing one")
	flag.Parse()

	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}

	key := strings.TrimSpace(keyFlag)
	if key == "" {
		key = cfg.APIKey
	}
	if key == "" && !show {
		fmt.Fprintln(os.Stderr, "TensorArt API key is required via -key or environment")
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		if errors.Is(err, infra.ErrNoDatabase) {
			fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
			return 2
		}
		fmt.Fprintf(os.Stderr, "failed to connect database: %v\n", err)
		return 1
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "apikey").Str("provider", credentials.ProviderTensorArt).Logger()
	store := credentials.NewStore(infra.NewSQLRunner(pool, logger))
	if err := store.EnsureSchema(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to prepare integration_tokens: %v\n", err)
		return 1
	}

	if show {
		stored, err := store.APIKey(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read api key: %v\n", err)
			return 1
		}
		if stored == "" {
			fmt.Println("no TensorArt API key stored")
			return 1
		}
		fmt.Printf("TensorArt API key stored (%s)\n", mask(stored))
		return 0
	}

	if err := store.SetAPIKey(ctx, key, cfg.BaseURL); err != nil {
		fmt.Fprintf(os.Stderr, "failed to persist api key: %v\n", err)
		return 1
	}
	fmt.Println("TensorArt API key stored successfully")
	return 0
}

func mask(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
