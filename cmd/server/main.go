package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pomodorotube/server/internal/app"
	"github.com/pomodorotube/server/pkg/youtube"
)

type configVar[T any] struct {
	envKey       string
	flagKey      string
	defaultValue T
	usage        string
}

func (v configVar[T]) bind() {
	viper.BindEnv(v.flagKey, v.envKey)
	viper.SetDefault(v.flagKey, v.defaultValue)
}

var (
	host = configVar[string]{
		envKey:       "SERVER_HOST",
		flagKey:      "host",
		defaultValue: "0.0.0.0",
		usage:        "Server host",
	}
	port = configVar[int]{
		envKey:       "SERVER_PORT",
		flagKey:      "port",
		defaultValue: 8080,
		usage:        "Server port",
	}
	logLevel = configVar[string]{
		envKey:       "SERVER_LOG_LEVEL",
		flagKey:      "log-level",
		defaultValue: "INFO",
		usage:        "Logging level",
	}
	allowedOrigins = configVar[string]{
		envKey:       "ALLOWED_ORIGINS",
		flagKey:      "allowed-origins",
		defaultValue: "*",
		usage:        "Comma separated list of allowed origins",
	}
	youtubeAPIKey = configVar[string]{
		envKey:       "YOUTUBE_API_KEY",
		flagKey:      "youtube-api-key",
		defaultValue: "",
		usage:        "YouTube Data API key",
	}
	youtubeAPIURL = configVar[string]{
		envKey:       "YOUTUBE_API_URL",
		flagKey:      "youtube-api-url",
		defaultValue: youtube.DefaultBaseURL,
		usage:        "YouTube Data API base url",
	}
	searchMaxResults = configVar[int]{
		envKey:       "SEARCH_MAX_RESULTS",
		flagKey:      "search-max-results",
		defaultValue: 10,
		usage:        "Maximum number of search results",
	}
	searchDebounce = configVar[time.Duration]{
		envKey:       "SEARCH_DEBOUNCE",
		flagKey:      "search-debounce",
		defaultValue: 500 * time.Millisecond,
		usage:        "Quiet period before a search input is sent",
	}
	searchCacheTTL = configVar[time.Duration]{
		envKey:       "SEARCH_CACHE_TTL",
		flagKey:      "search-cache-ttl",
		defaultValue: time.Hour,
		usage:        "Search results cache ttl",
	}
	searchRateLimit = configVar[float64]{
		envKey:       "SEARCH_RATE_LIMIT",
		flagKey:      "search-rate-limit",
		defaultValue: 5,
		usage:        "YouTube requests per second, 0 disables the limit",
	}
	searchRateBurst = configVar[int]{
		envKey:       "SEARCH_RATE_BURST",
		flagKey:      "search-rate-burst",
		defaultValue: 10,
		usage:        "YouTube request burst",
	}
	defaultThumbnailURL = configVar[string]{
		envKey:       "DEFAULT_THUMBNAIL_URL",
		flagKey:      "default-thumbnail-url",
		defaultValue: "/thumbnail-default.png",
		usage:        "Thumbnail used when a video has none",
	}
	pomodoroDuration = configVar[time.Duration]{
		envKey:       "POMODORO_DURATION",
		flagKey:      "pomodoro-duration",
		defaultValue: 25 * time.Minute,
		usage:        "Pomodoro duration",
	}
	shortBreakDuration = configVar[time.Duration]{
		envKey:       "SHORT_BREAK_DURATION",
		flagKey:      "short-break-duration",
		defaultValue: 5 * time.Minute,
		usage:        "Short break duration",
	}
	longBreakDuration = configVar[time.Duration]{
		envKey:       "LONG_BREAK_DURATION",
		flagKey:      "long-break-duration",
		defaultValue: 15 * time.Minute,
		usage:        "Long break duration",
	}
	timerInterval = configVar[time.Duration]{
		envKey:       "TIMER_INTERVAL",
		flagKey:      "timer-interval",
		defaultValue: time.Second,
		usage:        "Wall time of one timer second",
	}
	redisEnabled = configVar[bool]{
		envKey:       "REDIS_ENABLED",
		flagKey:      "redis-enabled",
		defaultValue: false,
		usage:        "Cache search results in redis",
	}
	redisHost = configVar[string]{
		envKey:       "REDIS_HOST",
		flagKey:      "redis-host",
		defaultValue: "localhost",
		usage:        "Redis host",
	}
	redisPort = configVar[int]{
		envKey:       "REDIS_PORT",
		flagKey:      "redis-port",
		defaultValue: 6379,
		usage:        "Redis port",
	}
	redisPassword = configVar[string]{
		envKey:       "REDIS_PASSWORD",
		flagKey:      "redis-password",
		defaultValue: "",
		usage:        "Redis password",
	}
)

func loadAppConfig() *app.AppConfig {
	for _, v := range []configVar[string]{host, logLevel, allowedOrigins, youtubeAPIKey, youtubeAPIURL, defaultThumbnailURL, redisHost, redisPassword} {
		pflag.String(v.flagKey, v.defaultValue, v.usage)
		v.bind()
	}
	for _, v := range []configVar[int]{port, searchMaxResults, searchRateBurst, redisPort} {
		pflag.Int(v.flagKey, v.defaultValue, v.usage)
		v.bind()
	}
	for _, v := range []configVar[time.Duration]{searchDebounce, searchCacheTTL, pomodoroDuration, shortBreakDuration, longBreakDuration, timerInterval} {
		pflag.Duration(v.flagKey, v.defaultValue, v.usage)
		v.bind()
	}
	pflag.Float64(searchRateLimit.flagKey, searchRateLimit.defaultValue, searchRateLimit.usage)
	searchRateLimit.bind()
	pflag.Bool(redisEnabled.flagKey, redisEnabled.defaultValue, redisEnabled.usage)
	redisEnabled.bind()
	pflag.Parse()

	viper.BindPFlags(pflag.CommandLine)

	config := &app.AppConfig{
		Host:                viper.GetString(host.flagKey),
		Port:                viper.GetInt(port.flagKey),
		LogLevel:            viper.GetString(logLevel.flagKey),
		YouTubeAPIKey:       viper.GetString(youtubeAPIKey.flagKey),
		YouTubeAPIURL:       viper.GetString(youtubeAPIURL.flagKey),
		SearchMaxResults:    viper.GetInt(searchMaxResults.flagKey),
		SearchDebounce:      viper.GetDuration(searchDebounce.flagKey),
		SearchCacheTTL:      viper.GetDuration(searchCacheTTL.flagKey),
		SearchRateLimit:     viper.GetFloat64(searchRateLimit.flagKey),
		SearchRateBurst:     viper.GetInt(searchRateBurst.flagKey),
		DefaultThumbnailURL: viper.GetString(defaultThumbnailURL.flagKey),
		PomodoroDuration:    viper.GetDuration(pomodoroDuration.flagKey),
		ShortBreakDuration:  viper.GetDuration(shortBreakDuration.flagKey),
		LongBreakDuration:   viper.GetDuration(longBreakDuration.flagKey),
		TimerInterval:       viper.GetDuration(timerInterval.flagKey),
		AllowedOrigins:      splitList(viper.GetString(allowedOrigins.flagKey)),
		RedisEnabled:        viper.GetBool(redisEnabled.flagKey),
		RedisHost:           viper.GetString(redisHost.flagKey),
		RedisPort:           viper.GetInt(redisPort.flagKey),
		RedisPassword:       viper.GetString(redisPassword.flagKey),
	}

	return config
}

func splitList(s string) []string {
	var list []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}

	return list
}

func main() {
	ctx := context.Background()

	appConfig := loadAppConfig()

	jsonConfig, _ := json.MarshalIndent(appConfig, "", "  ")
	fmt.Printf("starting app with config: %s\n", jsonConfig)

	if err := app.Run(ctx, appConfig); err != nil {
		log.Fatal(err)
	}
}
