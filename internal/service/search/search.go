package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pomodorotube/server/internal/repository/search"
	"github.com/pomodorotube/server/pkg/youtube"
)

type SearchParams struct {
	Query string
}

type SearchResponse struct {
	Query  string
	Videos []Video
	Cached bool
}

// NormalizeQuery trims surrounding whitespace. An empty result means no search is issued.
func NormalizeQuery(query string) string {
	return strings.TrimSpace(query)
}

func (s service) Search(ctx context.Context, params *SearchParams) (SearchResponse, error) {
	query := NormalizeQuery(params.Query)
	if query == "" {
		return SearchResponse{Videos: []Video{}}, ErrEmptyQuery
	}

	if videos, ok := s.getCached(ctx, query); ok {
		return SearchResponse{
			Query:  query,
			Videos: videos,
			Cached: true,
		}, nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return SearchResponse{Query: query, Videos: []Video{}}, fmt.Errorf("failed to wait for rate limiter: %w", err)
	}

	ytVideos, err := s.provider.Search(ctx, query, s.maxResults)
	if err != nil {
		if ctx.Err() != nil {
			return SearchResponse{Query: query, Videos: []Video{}}, ctx.Err()
		}

		s.logger.WarnContext(ctx, "provider search failed", "query", query, "error", err)
		return SearchResponse{Query: query, Videos: []Video{}}, fmt.Errorf("%w: %w", ErrProvider, err)
	}

	videos := make([]Video, 0, len(ytVideos))
	for _, v := range ytVideos {
		videos = append(videos, s.mapVideo(&v))
	}

	s.setCached(ctx, query, videos)

	return SearchResponse{
		Query:  query,
		Videos: videos,
	}, nil
}

func (s service) mapVideo(v *youtube.Video) Video {
	return Video{
		ID:           v.ID,
		Title:        v.Title,
		ThumbnailURL: s.pickThumbnail(&v.Thumbnails),
		ChannelTitle: v.ChannelTitle,
		Description:  v.Description,
		PublishedAt:  v.PublishedAt,
		Link:         v.Link,
	}
}

func (s service) pickThumbnail(t *youtube.Thumbnails) string {
	for _, thumb := range []*youtube.Thumbnail{t.Default, t.Medium, t.High} {
		if thumb != nil && thumb.URL != "" {
			return thumb.URL
		}
	}

	return s.defaultThumbnailURL
}

func (s service) getCached(ctx context.Context, query string) ([]Video, bool) {
	if s.cacheRepo == nil {
		return nil, false
	}

	cached, err := s.cacheRepo.GetResults(ctx, &search.GetResultsParams{
		Query:      query,
		MaxResults: s.maxResults,
	})
	if err != nil {
		if !errors.Is(err, search.ErrCacheMiss) {
			s.logger.WarnContext(ctx, "failed to read search cache", "query", query, "error", err)
		}
		return nil, false
	}

	videos := make([]Video, 0, len(cached))
	for _, v := range cached {
		videos = append(videos, Video(v))
	}

	s.logger.DebugContext(ctx, "search cache hit", "query", query, "count", len(videos))
	return videos, true
}

func (s service) setCached(ctx context.Context, query string, videos []Video) {
	if s.cacheRepo == nil || s.cacheTTL <= 0 {
		return
	}

	cached := make([]search.Video, 0, len(videos))
	for _, v := range videos {
		cached = append(cached, search.Video(v))
	}

	if err := s.cacheRepo.SetResults(ctx, &search.SetResultsParams{
		Query:      query,
		MaxResults: s.maxResults,
		Videos:     cached,
		TTL:        s.cacheTTL,
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to write search cache", "query", query, "error", err)
	}
}
