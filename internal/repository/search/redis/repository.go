package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pomodorotube/server/internal/repository/search"
	"github.com/redis/go-redis/v9"
)

type repo struct {
	rc     *redis.Client
	prefix string
}

func NewRepo(rc *redis.Client) *repo {
	return &repo{
		rc:     rc,
		prefix: "search",
	}
}

func (r repo) getResultsKey(query string, maxResults int) string {
	return r.prefix + ":" + strings.ToLower(strings.TrimSpace(query)) + ":" + strconv.Itoa(maxResults)
}

func (r repo) SetResults(ctx context.Context, params *search.SetResultsParams) error {
	data, err := json.Marshal(params.Videos)
	if err != nil {
		return fmt.Errorf("failed to marshal videos: %w", err)
	}

	key := r.getResultsKey(params.Query, params.MaxResults)
	if err := r.rc.Set(ctx, key, data, params.TTL).Err(); err != nil {
		return fmt.Errorf("failed to set results: %w", err)
	}

	return nil
}

func (r repo) GetResults(ctx context.Context, params *search.GetResultsParams) ([]search.Video, error) {
	key := r.getResultsKey(params.Query, params.MaxResults)
	data, err := r.rc.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, search.ErrCacheMiss
		}

		return nil, fmt.Errorf("failed to get results: %w", err)
	}

	var videos []search.Video
	if err := json.Unmarshal(data, &videos); err != nil {
		// corrupt entry, let the caller refill it
		r.rc.Del(ctx, key)
		return nil, search.ErrCacheMiss
	}

	return videos, nil
}
