// Command crawl runs a single crawl pass and exits. Useful for manual
// triggers and cron-style deployments. Pass -source to restrict the pass
// to one configured source id, or -summarize to print a posting's summary
// instead of crawling.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Shin-In-Gyu/DBtest/internal/app"
	"github.com/Shin-In-Gyu/DBtest/internal/config"
	"github.com/Shin-In-Gyu/DBtest/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "crawl failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	sourceID := flag.String("source", "", "restrict the pass to a single source id")
	summarizeID := flag.Uint64("summarize", 0, "print the summary for the given posting id and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Init(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	harvester, err := app.NewHarvester(ctx, cfg, log)
	if err != nil {
		log.ErrorObj("failed to initialize harvester", "error", err.Error())
		return err
	}
	defer harvester.Close()

	if *summarizeID != 0 {
		text, err := harvester.Summarize(ctx, *summarizeID)
		if err != nil {
			return fmt.Errorf("summarize posting %d: %w", *summarizeID, err)
		}
		fmt.Println(text)
		return nil
	}

	if err := harvester.RunOnce(ctx, *sourceID); err != nil {
		return fmt.Errorf("crawl pass: %w", err)
	}

	return nil
}
