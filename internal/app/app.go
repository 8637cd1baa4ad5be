package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pomodorotube/server/internal/controller"
	"github.com/pomodorotube/server/internal/repository/session/inmemory"
	searchRedis "github.com/pomodorotube/server/internal/repository/search/redis"
	"github.com/pomodorotube/server/internal/service/search"
	"github.com/pomodorotube/server/internal/timer"
	"github.com/pomodorotube/server/pkg/ctxlogger"
	"github.com/pomodorotube/server/pkg/redisclient"
	"github.com/pomodorotube/server/pkg/youtube"
	"github.com/pomodorotube/server/pkg/ytvideodata"
)

const shutdownTimeout = 30 * time.Second

type AppConfig struct {
	Host                string        `json:"host"`
	Port                int           `json:"port"`
	LogLevel            string        `json:"log_level"`
	YouTubeAPIKey       string        `json:"-"`
	YouTubeAPIURL       string        `json:"youtube_api_url"`
	SearchMaxResults    int           `json:"search_max_results"`
	SearchDebounce      time.Duration `json:"search_debounce"`
	SearchCacheTTL      time.Duration `json:"search_cache_ttl"`
	SearchRateLimit     float64       `json:"search_rate_limit"`
	SearchRateBurst     int           `json:"search_rate_burst"`
	DefaultThumbnailURL string        `json:"default_thumbnail_url"`
	PomodoroDuration    time.Duration `json:"pomodoro_duration"`
	ShortBreakDuration  time.Duration `json:"short_break_duration"`
	LongBreakDuration   time.Duration `json:"long_break_duration"`
	TimerInterval       time.Duration `json:"timer_interval"`
	AllowedOrigins      []string      `json:"allowed_origins"`
	RedisEnabled        bool          `json:"redis_enabled"`
	RedisHost           string        `json:"redis_host"`
	RedisPort           int           `json:"redis_port"`
	RedisPassword       string        `json:"-"`
}

func (cfg *AppConfig) Validate() error {
	var errs []error
	if cfg.Port < 1 || cfg.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be between 1 and 65535"))
	}
	if cfg.YouTubeAPIKey == "" {
		errs = append(errs, fmt.Errorf("youtube api key is required"))
	}
	if cfg.SearchMaxResults < 1 || cfg.SearchMaxResults > 50 {
		errs = append(errs, fmt.Errorf("search max results must be between 1 and 50"))
	}
	if cfg.SearchDebounce < 0 {
		errs = append(errs, fmt.Errorf("search debounce must not be negative"))
	}
	if cfg.SearchRateLimit < 0 {
		errs = append(errs, fmt.Errorf("search rate limit must not be negative"))
	}
	if cfg.PomodoroDuration < time.Second || cfg.ShortBreakDuration < time.Second || cfg.LongBreakDuration < time.Second {
		errs = append(errs, fmt.Errorf("timer durations must be at least 1s"))
	}
	if cfg.TimerInterval <= 0 {
		errs = append(errs, fmt.Errorf("timer interval must be positive"))
	}
	if _, err := parseLogLevel(cfg.LogLevel); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func parseLogLevel(level string) (slog.Level, error) {
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return logLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	return logLevel, nil
}

func newLogger(level slog.Level) *slog.Logger {
	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:     level,
			AddSource: true,
		}),
	}

	return slog.New(&h)
}

func Run(ctx context.Context, cfg *AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logLevel, _ := parseLogLevel(cfg.LogLevel)
	logger := newLogger(logLevel)
	slog.SetDefault(logger)

	ytClient := youtube.NewClient(&youtube.Config{
		APIKey:     cfg.YouTubeAPIKey,
		BaseURL:    cfg.YouTubeAPIURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	})

	searchConfig := &search.Config{
		MaxResults:          cfg.SearchMaxResults,
		CacheTTL:            cfg.SearchCacheTTL,
		DefaultThumbnailURL: cfg.DefaultThumbnailURL,
		RateLimit:           cfg.SearchRateLimit,
		RateBurst:           cfg.SearchRateBurst,
	}
	searchService := search.NewService(ytClient, nil, searchConfig, logger)
	if cfg.RedisEnabled {
		rc, err := redisclient.NewRedisClient(ctx, &redisclient.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			return fmt.Errorf("failed to create redis client: %w", err)
		}
		defer rc.Close()

		searchService = search.NewService(ytClient, searchRedis.NewRepo(rc), searchConfig, logger)
	}

	videoDataClient := ytvideodata.NewClient(&ytvideodata.Config{
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	})
	sessionRepo := inmemory.NewRepo(logger)

	controller, err := controller.NewController(searchService, videoDataClient, sessionRepo, &controller.Config{
		SearchDebounce: cfg.SearchDebounce,
		TimerDurations: timer.Durations{
			Pomodoro:   cfg.PomodoroDuration,
			ShortBreak: cfg.ShortBreakDuration,
			LongBreak:  cfg.LongBreakDuration,
		},
		TimerInterval:  cfg.TimerInterval,
		AllowedOrigins: cfg.AllowedOrigins,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create controller: %w", err)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           controller.GetMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server.RegisterOnShutdown(func() {
		// hijacked websocket connections are not tracked by the server
		sessionRepo.CloseAll()
	})

	// graceful shutdown
	serverCtx, serverStopCtx := context.WithCancel(ctx)
	defer serverStopCtx()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(sig)
	go func() {
		select {
		case <-sig:
		case <-serverCtx.Done():
		}

		shutdownCtx, c := context.WithTimeout(context.WithoutCancel(serverCtx), shutdownTimeout)
		defer c()

		go func() {
			<-shutdownCtx.Done()
			if shutdownCtx.Err() == context.DeadlineExceeded {
				log.Fatal("graceful shutdown timed out.. forcing exit.")
			}
		}()

		logger.InfoContext(shutdownCtx, "shutting down server")
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.ErrorContext(shutdownCtx, "failed to shutdown server", "error", err)
		}
		serverStopCtx()
	}()

	logger.InfoContext(serverCtx, "starting server",
		"address", server.Addr,
		"search_cache", cfg.RedisEnabled,
	)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	<-serverCtx.Done()

	return nil
}
