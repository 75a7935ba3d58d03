// Package proxy orchestrates the SEI listing endpoints: cache-first reads,
// resilient full fetches, fast partial fetches upgraded in the background,
// and the invalidation that keeps cached listings honest after mutations.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/coolbeans/seiview/pkg/background"
	"github.com/coolbeans/seiview/pkg/cache"
	"github.com/coolbeans/seiview/pkg/paginate"
	"github.com/coolbeans/seiview/pkg/processo"
	"github.com/coolbeans/seiview/pkg/sei"
)

// SEIClient is the slice of the upstream client the proxy consumes.
type SEIClient interface {
	DocumentsPage(ctx context.Context, token, protocolo, idUnidade string, page, pageSize int) (sei.DocumentPage, error)
	ProgressPage(ctx context.Context, token, protocolo, idUnidade string, page, pageSize int) (sei.ProgressPage, error)
	Procedure(ctx context.Context, token, protocolo, idUnidade string) (sei.Procedimento, error)
	Sign(ctx context.Context, token, idUnidade, protocoloDocumento string, signRequest sei.SignRequest) error
	Health(ctx context.Context) error
}

// EnvelopeInfo is the pagination metadata returned to callers. The proxy
// collapses the upstream's pages into one logical page.
type EnvelopeInfo struct {
	Pagina          int    `json:"Pagina"`
	TotalPaginas    int    `json:"TotalPaginas"`
	QuantidadeItens int    `json:"QuantidadeItens"`
	TotalItens      int    `json:"TotalItens"`
	NumeroProcesso  string `json:"NumeroProcesso,omitempty"`
	Parcial         bool   `json:"Parcial"`
}

// Envelope is the proxy's response shape for both listing kinds.
type Envelope struct {
	Info       EnvelopeInfo    `json:"Info"`
	Documentos []sei.Documento `json:"Documentos,omitempty"`
	Andamentos []sei.Andamento `json:"Andamentos,omitempty"`
}

// Options tunes a Service.
type Options struct {
	// FetchConfig parameterizes the paged fetcher. Zero values use the
	// fetcher defaults.
	FetchConfig paginate.Config

	// EnvelopeTTL is how long cached envelopes live. Default 24h.
	EnvelopeTTL time.Duration

	Logger *slog.Logger
}

// Service coordinates the upstream client, the cache and the background
// runner behind the proxy endpoints.
type Service struct {
	client   SEIClient
	cache    cache.Cache
	runner   *background.Runner
	flight   singleflight.Group
	fetchCfg paginate.Config
	ttl      time.Duration
	logger   *slog.Logger
}

// NewService wires a Service. The runner may be nil, in which case partial
// fetches are returned as-is and never upgraded in the background.
func NewService(client SEIClient, store cache.Cache, runner *background.Runner, opts Options) *Service {
	ttl := opts.EnvelopeTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		client:   client,
		cache:    store,
		runner:   runner,
		fetchCfg: opts.FetchConfig,
		ttl:      ttl,
		logger:   logger.With("component", "proxy"),
	}
}

// Documents returns the full document listing for a process in a unit.
// Cache hits are served directly. On a miss, partial requests return the
// head and tail of the listing immediately and schedule the complete fetch
// in the background; full requests fetch everything before returning.
func (s *Service) Documents(ctx context.Context, token, numeroProcesso, idUnidade string, partial bool) (Envelope, error) {
	numero := processo.Normalize(numeroProcesso)
	key := cache.DocumentsKey(numero, idUnidade)

	var cached Envelope
	if s.cacheGet(ctx, key, &cached) {
		return cached, nil
	}

	pageFn := func(ctx context.Context, page, pageSize int) ([]sei.Documento, int, error) {
		result, err := s.client.DocumentsPage(ctx, token, numero, idUnidade, page, pageSize)
		return result.Documentos, result.Info.TotalItens, err
	}

	if partial {
		items, total, isPartial, err := paginate.FetchPartial(ctx, s.fetchCfg, pageFn)
		if err != nil {
			return Envelope{}, err
		}
		envelope := documentsEnvelope(numero, items, total, isPartial)
		if isPartial {
			s.spawnCompletion("documentos:"+numero, key, func(ctx context.Context) (Envelope, error) {
				items, err := paginate.FetchAll(ctx, s.fetchCfg, pageFn)
				if err != nil {
					return Envelope{}, err
				}
				return documentsEnvelope(numero, items, len(items), false), nil
			})
		} else {
			s.cacheSet(ctx, key, envelope)
		}
		return envelope, nil
	}

	result, err, _ := s.flight.Do(key, func() (interface{}, error) {
		// The fetch is shared by every collapsed caller, so it must not
		// die with the first caller's context.
		flightCtx := context.WithoutCancel(ctx)
		items, err := paginate.FetchAll(flightCtx, s.fetchCfg, pageFn)
		if err != nil {
			return Envelope{}, err
		}
		envelope := documentsEnvelope(numero, items, len(items), false)
		s.cacheSet(flightCtx, key, envelope)
		return envelope, nil
	})
	if err != nil {
		return Envelope{}, err
	}
	return result.(Envelope), nil
}

// Progress returns the full andamento listing for a process in a unit,
// with the same cache, partial and background-completion behavior as
// Documents.
func (s *Service) Progress(ctx context.Context, token, numeroProcesso, idUnidade string, partial bool) (Envelope, error) {
	numero := processo.Normalize(numeroProcesso)
	key := cache.ProgressKey(numero, idUnidade)

	var cached Envelope
	if s.cacheGet(ctx, key, &cached) {
		return cached, nil
	}

	pageFn := func(ctx context.Context, page, pageSize int) ([]sei.Andamento, int, error) {
		result, err := s.client.ProgressPage(ctx, token, numero, idUnidade, page, pageSize)
		return result.Andamentos, result.Info.TotalItens, err
	}

	if partial {
		items, total, isPartial, err := paginate.FetchPartial(ctx, s.fetchCfg, pageFn)
		if err != nil {
			return Envelope{}, err
		}
		envelope := progressEnvelope(numero, items, total, isPartial)
		if isPartial {
			s.spawnCompletion("andamentos:"+numero, key, func(ctx context.Context) (Envelope, error) {
				items, err := paginate.FetchAll(ctx, s.fetchCfg, pageFn)
				if err != nil {
					return Envelope{}, err
				}
				return progressEnvelope(numero, items, len(items), false), nil
			})
		} else {
			s.cacheSet(ctx, key, envelope)
		}
		return envelope, nil
	}

	result, err, _ := s.flight.Do(key, func() (interface{}, error) {
		flightCtx := context.WithoutCancel(ctx)
		items, err := paginate.FetchAll(flightCtx, s.fetchCfg, pageFn)
		if err != nil {
			return Envelope{}, err
		}
		envelope := progressEnvelope(numero, items, len(items), false)
		s.cacheSet(flightCtx, key, envelope)
		return envelope, nil
	})
	if err != nil {
		return Envelope{}, err
	}
	return result.(Envelope), nil
}

// OpenUnits returns the units where the process is open, cached under the
// same TTL as listings.
func (s *Service) OpenUnits(ctx context.Context, token, numeroProcesso, idUnidade string) (sei.Procedimento, error) {
	numero := processo.Normalize(numeroProcesso)
	key := cache.OpenUnitsKey(numero, idUnidade)

	var cached sei.Procedimento
	if s.cacheGet(ctx, key, &cached) {
		return cached, nil
	}

	procedimento, err := s.client.Procedure(ctx, token, numero, idUnidade)
	if err != nil {
		return sei.Procedimento{}, err
	}
	s.cacheSet(ctx, key, procedimento)
	return procedimento, nil
}

// Sign signs a document upstream and drops every cached document listing
// for the unit, since signing changes the listing's content.
func (s *Service) Sign(ctx context.Context, token, idUnidade, protocoloDocumento string, signRequest sei.SignRequest) error {
	if err := s.client.Sign(ctx, token, idUnidade, protocoloDocumento, signRequest); err != nil {
		return err
	}
	removed, err := s.cache.DeletePattern(ctx, cache.UnitDocumentsPattern(idUnidade))
	if err != nil {
		s.logger.Warn("cache invalidation after sign failed", "unidade", idUnidade, "error", err)
		return nil
	}
	s.logger.Info("invalidated unit document listings after sign", "unidade", idUnidade, "removed", removed)
	return nil
}

// Invalidate removes every cached entry for a process across all units and
// returns how many entries were dropped.
func (s *Service) Invalidate(ctx context.Context, numeroProcesso string) (int, error) {
	numero := processo.Normalize(numeroProcesso)
	removed := 0
	for _, pattern := range cache.ProcessPatterns(numero) {
		n, err := s.cache.DeletePattern(ctx, pattern)
		if err != nil {
			return removed, fmt.Errorf("invalidating %s: %w", pattern, err)
		}
		removed += n
	}
	return removed, nil
}

// HealthStatus reports the reachability of the proxy's dependencies.
type HealthStatus struct {
	Upstream string `json:"upstream"`
	Cache    string `json:"cache"`
}

// Health probes the upstream API and the cache. Cache failure is reported
// but never makes the proxy unhealthy.
func (s *Service) Health(ctx context.Context) HealthStatus {
	status := HealthStatus{Upstream: "up", Cache: "up"}
	if err := s.client.Health(ctx); err != nil {
		status.Upstream = "down"
	}
	if err := s.cache.Ping(ctx); err != nil {
		status.Cache = "down"
	}
	return status
}

// spawnCompletion schedules the full fetch that upgrades a partial cache
// entry. Failures only log: the caller already has its partial response.
func (s *Service) spawnCompletion(name, key string, fetch func(ctx context.Context) (Envelope, error)) {
	if s.runner == nil {
		return
	}
	err := s.runner.Spawn("complete:"+name, func(ctx context.Context) {
		envelope, err := fetch(ctx)
		if err != nil {
			s.logger.Warn("background completion failed", "task", name, "error", err)
			return
		}
		s.cacheSet(ctx, key, envelope)
	})
	if err != nil {
		s.logger.Warn("background completion not scheduled", "task", name, "error", err)
	}
}

func (s *Service) cacheGet(ctx context.Context, key string, target any) bool {
	err := cache.GetJSON(ctx, s.cache, key, target)
	if err == nil {
		return true
	}
	if !errors.Is(err, cache.ErrMiss) {
		s.logger.Warn("cache read failed", "key", key, "error", err)
	}
	return false
}

func (s *Service) cacheSet(ctx context.Context, key string, value any) {
	if err := cache.SetJSON(ctx, s.cache, key, value, s.ttl); err != nil {
		s.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

func documentsEnvelope(numero string, items []sei.Documento, total int, partial bool) Envelope {
	return Envelope{
		Info: EnvelopeInfo{
			Pagina:          1,
			TotalPaginas:    1,
			QuantidadeItens: len(items),
			TotalItens:      total,
			NumeroProcesso:  numero,
			Parcial:         partial,
		},
		Documentos: items,
	}
}

func progressEnvelope(numero string, items []sei.Andamento, total int, partial bool) Envelope {
	return Envelope{
		Info: EnvelopeInfo{
			Pagina:          1,
			TotalPaginas:    1,
			QuantidadeItens: len(items),
			TotalItens:      total,
			NumeroProcesso:  numero,
			Parcial:         partial,
		},
		Andamentos: items,
	}
}
