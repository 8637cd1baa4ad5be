package controller

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pomodorotube/server/internal/service/search"
	"github.com/pomodorotube/server/internal/timer"
	"github.com/pomodorotube/server/pkg/validator"
	"github.com/pomodorotube/server/pkg/wsrouter"
	"github.com/pomodorotube/server/pkg/ytvideodata"
)

type iSearchService interface {
	Search(context.Context, *search.SearchParams) (search.SearchResponse, error)
}

type iVideoDataClient interface {
	Get(ctx context.Context, videoID string) (*ytvideodata.VideoData, error)
}

type iSessionRepo interface {
	Add(conn *websocket.Conn, sessionID string) error
	Remove(sessionID string) error
	Count() int
}

type Config struct {
	SearchDebounce time.Duration
	TimerDurations timer.Durations
	TimerInterval  time.Duration
	AllowedOrigins []string
}

type controller struct {
	searchService   iSearchService
	videoDataClient iVideoDataClient
	sessionRepo     iSessionRepo
	upgrader        websocket.Upgrader
	validate        *validator.Validator
	wsmux           *wsrouter.WSRouter
	logger          *slog.Logger
	searchDebounce  time.Duration
	timerDurations  timer.Durations
	timerInterval   time.Duration
	allowedOrigins  []string
}

func NewController(
	searchService iSearchService,
	videoDataClient iVideoDataClient,
	sessionRepo iSessionRepo,
	cfg *Config,
	logger *slog.Logger,
) (*controller, error) {
	validate, err := validator.NewValidator(
		validator.WithStringRule("videoid", ytvideodata.ValidVideoID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	c := controller{
		searchService:   searchService,
		videoDataClient: videoDataClient,
		sessionRepo:     sessionRepo,
		validate:        validate,
		logger:          logger,
		searchDebounce:  cfg.SearchDebounce,
		timerDurations:  cfg.TimerDurations,
		timerInterval:   cfg.TimerInterval,
		allowedOrigins:  cfg.AllowedOrigins,
	}
	c.upgrader = websocket.Upgrader{
		CheckOrigin: c.checkOrigin,
	}
	c.wsmux = c.getWSRouter()

	logger.Debug("websocket routes registered", "types", c.wsmux.Routes())

	return &c, nil
}

func (c *controller) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	for _, allowed := range c.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	return false
}
