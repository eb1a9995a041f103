package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Shin-In-Gyu/DBtest/internal/config"
	"github.com/Shin-In-Gyu/DBtest/internal/crawler"
	"github.com/Shin-In-Gyu/DBtest/internal/logger"
	"github.com/Shin-In-Gyu/DBtest/internal/notify"
	"github.com/Shin-In-Gyu/DBtest/internal/storage"
	"github.com/Shin-In-Gyu/DBtest/internal/summary"
	"github.com/Shin-In-Gyu/DBtest/pkg/events"
	"github.com/Shin-In-Gyu/DBtest/pkg/httpclient"
	"github.com/Shin-In-Gyu/DBtest/pkg/push"
	"github.com/Shin-In-Gyu/DBtest/pkg/sources"
	"github.com/Shin-In-Gyu/DBtest/pkg/summarizer"
)

// Harvester is the long-running ingestion runtime. It owns the source
// registry, the store, the dispatcher, and the periodic crawl loop, and
// tears them down in order on shutdown.
type Harvester struct {
	cfg           *config.Config
	sourceReg     *sources.Registry
	crawlService  *crawler.Service
	summaries     *summary.Service
	store         storage.Store
	httpClient    *httpclient.RestyClient
	crawlInterval time.Duration
	closeOnce     sync.Once
	log           logger.Logger
}

// NewHarvester builds the harvester runtime from config files.
func NewHarvester(ctx context.Context, cfg *config.Config, log logger.Logger) (*Harvester, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	log = logger.Ensure(log)
	if ctx == nil {
		ctx = context.Background()
	}

	sourceReg, err := sources.LoadRegistry(cfg.SourcesFile)
	if err != nil {
		return nil, fmt.Errorf("load sources registry: %w", err)
	}
	sourceList := sourceReg.All()
	sourceIDs := make([]string, 0, len(sourceList))
	for _, s := range sourceList {
		sourceIDs = append(sourceIDs, s.ID)
	}
	log.InfoObj("sources registry loaded", "sources_meta", map[string]any{
		"count": len(sourceIDs),
		"ids":   sourceIDs,
	})

	store, err := storage.NewStore(cfg.StorageType, cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	httpClient := httpclient.NewRestyClient(httpclient.Options{
		Timeout:     cfg.HTTPTimeout,
		InsecureTLS: cfg.InsecureTLS,
	})
	adapters := sources.DefaultAdapterRegistry(httpClient)

	gateway, err := buildPushGateway(ctx, cfg, log)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("build push gateway: %w", err)
	}
	dispatcher := notify.NewDispatcher(store, gateway, cfg.PushBatchSize, log)

	fanout, err := buildEventFanout(ctx, cfg, log)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("build event sinks: %w", err)
	}

	var ingestPub crawler.IngestPublisher
	if fanout != nil {
		ingestPub = fanout
	}

	gate := crawler.NewGate(cfg.FetchConcurrency, cfg.FetchDelay)
	staleAfter := time.Duration(cfg.PinStaleDays) * 24 * time.Hour
	crawlService := crawler.NewService(adapters, store, dispatcher, ingestPub, gate, staleAfter, log)
	summaries := summary.NewService(store, buildSummarizer(cfg, log), sourceReg, adapters, log)

	return &Harvester{
		cfg:           cfg,
		sourceReg:     sourceReg,
		crawlService:  crawlService,
		summaries:     summaries,
		store:         store,
		httpClient:    httpClient,
		crawlInterval: cfg.CrawlInterval,
		log:           log,
	}, nil
}

// buildSummarizer selects the configured summarizer backend.
func buildSummarizer(cfg *config.Config, log logger.Logger) summarizer.Summarizer {
	if !cfg.SummarizerEnabled || cfg.GeminiAPIKey == "" {
		return summarizer.Disabled{}
	}
	return summarizer.NewGeminiSummarizer(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiEndpoint, log)
}

func buildPushGateway(ctx context.Context, cfg *config.Config, log logger.Logger) (push.Gateway, error) {
	switch cfg.PushGateway {
	case "expo":
		return push.NewExpoGateway(cfg.PushURL, cfg.HTTPTimeout), nil
	case "sns":
		return push.NewSNSGateway(ctx, cfg.SNSRegion)
	case "none", "":
		log.WarnObj("push gateway disabled", "push_gateway", cfg.PushGateway)
		return push.NewNoopGateway(), nil
	default:
		return nil, fmt.Errorf("unknown push gateway %q", cfg.PushGateway)
	}
}

// buildEventFanout wires the optional downstream event sinks. No events
// file configured means no fanout, which the crawler treats as a no-op.
func buildEventFanout(ctx context.Context, cfg *config.Config, log logger.Logger) (*events.Fanout, error) {
	if cfg.EventsFile == "" {
		return nil, nil
	}
	sinkReg, err := events.LoadRegistry(cfg.EventsFile)
	if err != nil {
		return nil, fmt.Errorf("load sink registry: %w", err)
	}
	enabled := sinkReg.Enabled()
	if len(enabled) == 0 {
		log.WarnObj("no event sinks enabled", "events_file", cfg.EventsFile)
		return nil, nil
	}
	sinks, err := events.BuildAll(ctx, events.DefaultRegistry(), enabled, log)
	if err != nil {
		return nil, err
	}
	sinkSummaries := make([]map[string]string, 0, len(enabled))
	for _, sinkCfg := range enabled {
		sinkSummaries = append(sinkSummaries, map[string]string{
			"id":   sinkCfg.ID,
			"type": sinkCfg.Type,
		})
	}
	log.InfoObj("event sinks loaded", "sinks_meta", map[string]any{
		"count": len(sinkSummaries),
		"sinks": sinkSummaries,
	})
	return events.NewFanout(sinks), nil
}

// Run executes the crawl loop until the context is cancelled, then waits
// up to ShutdownTimeout for the in-flight pass before returning.
func (h *Harvester) Run(ctx context.Context) error {
	if h == nil || h.crawlService == nil {
		return fmt.Errorf("harvester is not initialized")
	}
	defer h.Close()

	srcs := h.sourceReg.All()
	if len(srcs) == 0 {
		h.log.WarnObj("no sources configured; harvester idle", "sources_file", h.cfg.SourcesFile)
		<-ctx.Done()
		return nil
	}

	h.log.InfoObj("harvester loop starting", "harvester_state", map[string]any{
		"sources_count":  len(srcs),
		"crawl_interval": h.crawlInterval.String(),
		"startup_delay":  h.cfg.StartupDelay.String(),
	})

	select {
	case <-time.After(h.cfg.StartupDelay):
	case <-ctx.Done():
		return nil
	}

	var wg sync.WaitGroup
	var running atomic.Bool
	passCtx, cancelPass := context.WithCancel(context.Background())
	defer cancelPass()

	runPass := func() {
		if !running.CompareAndSwap(false, true) {
			h.log.WarnObj("previous crawl pass still running; skipping tick", "crawl_interval", h.crawlInterval.String())
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer running.Store(false)
			if err := h.runOnce(passCtx, srcs); err != nil {
				h.log.ErrorObj("crawl pass failed", "error", err.Error())
			}
		}()
	}

	runPass()

	ticker := time.NewTicker(h.crawlInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.InfoObj("harvester shutting down", "shutdown_timeout", h.cfg.ShutdownTimeout.String())
			cancelPass()
			waitWithTimeout(&wg, h.cfg.ShutdownTimeout, h.log)
			return nil
		case <-ticker.C:
			runPass()
		}
	}
}

// RunOnce executes a single crawl pass, optionally restricted to one
// source id. Used by the manual trigger command.
func (h *Harvester) RunOnce(ctx context.Context, sourceID string) error {
	if h == nil || h.crawlService == nil {
		return fmt.Errorf("harvester is not initialized")
	}

	srcs := h.sourceReg.All()
	if sourceID != "" {
		src, ok := h.sourceReg.ByID(sourceID)
		if !ok {
			return fmt.Errorf("unknown source id %q", sourceID)
		}
		srcs = []sources.Source{src}
	}
	return h.runOnce(ctx, srcs)
}

// Summarize resolves (or lazily generates) the summary for one posting.
func (h *Harvester) Summarize(ctx context.Context, postingID uint64) (string, error) {
	if h == nil || h.summaries == nil {
		return "", fmt.Errorf("harvester is not initialized")
	}
	return h.summaries.GetOrCreate(ctx, postingID)
}

func (h *Harvester) runOnce(ctx context.Context, srcs []sources.Source) error {
	start := time.Now()
	h.log.InfoObj("crawl started", "crawl_meta", map[string]any{
		"sources_count": len(srcs),
		"started_at":    start.UTC(),
	})
	if err := h.crawlService.Run(ctx, srcs, h.cfg.CategoryPause); err != nil {
		return err
	}
	h.log.InfoObj("crawl completed", "crawl_meta", map[string]any{
		"sources_count": len(srcs),
		"elapsed_ms":    time.Since(start).Milliseconds(),
	})
	return nil
}

// Close releases the HTTP connection pool and the storage handle. The
// pools are process-wide, so Close belongs at process teardown: Run calls
// it when the loop exits, and the one-shot commands defer it once around
// however many RunOnce/Summarize calls they make. Repeated calls are no-ops.
func (h *Harvester) Close() {
	if h == nil {
		return
	}
	h.closeOnce.Do(func() {
		if h.httpClient != nil {
			h.httpClient.Close()
		}
		if h.store != nil {
			if err := h.store.Close(); err != nil {
				h.log.WarnObj("store close failed", "close_error", err.Error())
			}
		}
	})
}

func waitWithTimeout(wg *sync.WaitGroup, timeout time.Duration, log logger.Logger) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		log.WarnObj("shutdown wait elapsed with crawl still running", "timeout", timeout.String())
	}
}
