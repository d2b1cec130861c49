package app

import (
	"context"
	"fmt"
	"time"

	"github.com/fairscope-hq/expo-harvester/internal/config"
	"github.com/fairscope-hq/expo-harvester/internal/harvest"
	"github.com/fairscope-hq/expo-harvester/internal/logger"
	"github.com/fairscope-hq/expo-harvester/internal/storage"
	"github.com/fairscope-hq/expo-harvester/pkg/fetchclient"
	"github.com/fairscope-hq/expo-harvester/pkg/notify"
	"github.com/fairscope-hq/expo-harvester/pkg/sites"
)

// Harvester represents the expo harvester runtime. It manages the harvest
// loop, coordinating between site parsers, the harvest service, the
// persistence gateway, and outcome notifiers.
type Harvester struct {
	cfg             *config.Config
	siteReg         *sites.Registry
	fanout          *notify.Fanout
	harvestService  *harvest.Service
	harvestInterval time.Duration
	log             logger.Logger
	gateway         storage.Gateway
}

// NewHarvester builds a harvester runtime from config files.
func NewHarvester(ctx context.Context, cfg *config.Config, log logger.Logger) (*Harvester, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if log == nil {
		log = &logger.NopLogger{}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	siteReg, err := sites.LoadRegistry(cfg.SitesFile)
	if err != nil {
		return nil, fmt.Errorf("load sites registry: %w", err)
	}
	siteList := siteReg.All()
	siteIDs := make([]string, 0, len(siteList))
	for _, s := range siteList {
		siteIDs = append(siteIDs, s.ID)
	}
	log.InfoObj("sites registry loaded", "sites_meta", map[string]any{
		"count": len(siteIDs),
		"ids":   siteIDs,
	})

	fanout, err := buildNotifiers(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	gateway, err := storage.NewGateway(cfg.StorageType, storageDSN(cfg), storage.Options{
		DefaultCountryID:  cfg.DefaultCountryID,
		DefaultIndustryID: cfg.DefaultIndustryID,
	})
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	log.InfoObj("storage initialized", "storage_config", map[string]any{
		"type": cfg.StorageType,
	})

	gate := fetchclient.NewGate(cfg.RequestDelay)
	fetcher := fetchclient.NewFetcher(fetchclient.NewRestyClient(cfg.RequestTimeout), fetchclient.Options{
		MaxAttempts: cfg.MaxRetries,
		BaseDelay:   cfg.RequestDelay,
		Gate:        gate,
		Log:         log,
	})

	parserReg := sites.DefaultParserRegistry(fetcher)
	walker := harvest.NewWalker(parserReg, cfg.PageSize)
	harvestService := harvest.NewService(parserReg, walker, gateway, fanout, cfg.FutureEventsOnly, log)

	return &Harvester{
		cfg:             cfg,
		siteReg:         siteReg,
		fanout:          fanout,
		harvestService:  harvestService,
		harvestInterval: cfg.HarvestInterval,
		log:             log,
		gateway:         gateway,
	}, nil
}

// buildNotifiers loads the notifiers registry and fans out enabled entries.
// A missing or empty registry disables notifications rather than failing.
func buildNotifiers(ctx context.Context, cfg *config.Config, log logger.Logger) (*notify.Fanout, error) {
	notifierReg, err := notify.LoadRegistry(cfg.NotifiersFile)
	if err != nil {
		log.WarnObj("notifiers registry unavailable; notifications disabled", "notifiers_error", err.Error())
		return notify.NewFanout(nil), nil
	}

	enabled := notifierReg.Enabled()
	clients, err := notify.BuildAll(ctx, notify.DefaultRegistry(), enabled, log)
	if err != nil {
		return nil, fmt.Errorf("build notifiers: %w", err)
	}

	summaries := make([]map[string]string, 0, len(enabled))
	for _, c := range enabled {
		summaries = append(summaries, map[string]string{
			"id":   c.ID,
			"type": c.Type,
		})
	}
	log.InfoObj("notifiers registry loaded", "notifiers_meta", map[string]any{
		"count":     len(summaries),
		"notifiers": summaries,
	})

	return notify.NewFanout(clients), nil
}

func storageDSN(cfg *config.Config) string {
	if cfg.StorageType == "postgres" {
		return cfg.PostgresURL
	}
	return cfg.BBoltPath
}

// Run executes harvest passes until the context is cancelled. A zero
// interval means a single pass.
func (h *Harvester) Run(ctx context.Context) error {
	if h == nil || h.harvestService == nil {
		return fmt.Errorf("harvester is not initialized")
	}
	defer h.closeGateway()

	siteList := h.siteReg.All()
	if len(siteList) == 0 {
		h.log.WarnObj("no sites configured; harvester idle", "sites_file", h.cfg.SitesFile)
		return nil
	}

	h.log.InfoObj("harvester starting", "harvester_state", map[string]any{
		"sites_count":      len(siteList),
		"notifiers_count":  h.fanout.Size(),
		"harvest_interval": h.harvestInterval.String(),
	})

	if err := h.runOnce(ctx, siteList); err != nil {
		if h.harvestInterval <= 0 {
			return err
		}
		h.log.ErrorObj("initial harvest failed", "error", err)
	}
	if h.harvestInterval <= 0 {
		return nil
	}

	ticker := time.NewTicker(h.harvestInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.InfoObj("harvester loop exiting", "reason", ctx.Err())
			return nil
		case <-ticker.C:
			if err := h.runOnce(ctx, siteList); err != nil {
				h.log.ErrorObj("scheduled harvest failed", "error", err)
			}
		}
	}
}

// runOnce performs a single harvest pass across all sites.
func (h *Harvester) runOnce(ctx context.Context, siteList []sites.Site) error {
	start := time.Now()
	h.log.InfoObj("harvest started", "harvest_meta", map[string]any{
		"sites_count": len(siteList),
		"started_at":  start.UTC(),
	})
	if err := h.harvestService.Run(ctx, siteList); err != nil {
		return err
	}
	h.log.InfoObj("harvest completed", "harvest_meta", map[string]any{
		"sites_count": len(siteList),
		"elapsed_ms":  time.Since(start).Milliseconds(),
	})
	return nil
}

// closeGateway safely closes the storage backend, logging any errors encountered.
func (h *Harvester) closeGateway() {
	if h == nil || h.gateway == nil {
		return
	}
	if err := h.gateway.Close(); err != nil {
		h.log.ErrorObj("storage close failed", "error", err)
	}
}
