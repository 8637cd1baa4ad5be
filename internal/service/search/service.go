package search

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pomodorotube/server/internal/repository/search"
	"github.com/pomodorotube/server/pkg/youtube"
	"golang.org/x/time/rate"
)

var (
	ErrEmptyQuery = errors.New("search query is empty")
	ErrProvider   = errors.New("search provider failed")
)

type iProvider interface {
	Search(ctx context.Context, query string, maxResults int) ([]youtube.Video, error)
}

type iCacheRepo interface {
	SetResults(context.Context, *search.SetResultsParams) error
	GetResults(context.Context, *search.GetResultsParams) ([]search.Video, error)
}

type Config struct {
	MaxResults          int
	CacheTTL            time.Duration
	DefaultThumbnailURL string
	// RateLimit is the number of provider requests allowed per second.
	RateLimit float64
	RateBurst int
}

type service struct {
	provider            iProvider
	cacheRepo           iCacheRepo
	limiter             *rate.Limiter
	maxResults          int
	cacheTTL            time.Duration
	defaultThumbnailURL string
	logger              *slog.Logger
}

// NewService builds the search service. cacheRepo may be nil to disable caching.
func NewService(provider iProvider, cacheRepo iCacheRepo, cfg *Config, logger *slog.Logger) *service {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}

	return &service{
		provider:            provider,
		cacheRepo:           cacheRepo,
		limiter:             rate.NewLimiter(limit, burst),
		maxResults:          cfg.MaxResults,
		cacheTTL:            cfg.CacheTTL,
		defaultThumbnailURL: cfg.DefaultThumbnailURL,
		logger:              logger,
	}
}
