package ytvideodata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
)

var (
	ErrVideoNotFound      = errors.New("video not found")
	ErrVideoNotEmbeddable = errors.New("video is not embeddable")
	ErrInvalidVideoID     = errors.New("invalid video id")
)

var videoIDRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)

const (
	defaultOEmbedURL = "https://www.youtube.com/oembed"
	defaultWatchURL  = "https://www.youtube.com/watch"
	thumbnailURLFmt  = "https://i.ytimg.com/vi/%s/hqdefault.jpg"
)

type VideoData struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	ThumbnailUrl string `json:"thumbnail_url"`
}

type Config struct {
	HTTPClient *http.Client
	OEmbedURL  string
	WatchURL   string
}

type Client struct {
	httpClient *http.Client
	oEmbedURL  string
	watchURL   string
}

func NewClient(cfg *Config) *Client {
	c := Client{
		httpClient: cfg.HTTPClient,
		oEmbedURL:  cfg.OEmbedURL,
		watchURL:   cfg.WatchURL,
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	if c.oEmbedURL == "" {
		c.oEmbedURL = defaultOEmbedURL
	}
	if c.watchURL == "" {
		c.watchURL = defaultWatchURL
	}

	return &c
}

func ValidVideoID(videoID string) bool {
	return videoIDRe.MatchString(videoID)
}

// Get returns video metadata. Videos hidden from oEmbed are looked up on the
// watch page; they are still reported with ErrVideoNotEmbeddable.
func (c *Client) Get(ctx context.Context, videoID string) (*VideoData, error) {
	if !ValidVideoID(videoID) {
		return nil, ErrInvalidVideoID
	}

	videoData, err := c.getWithEmbed(ctx, videoID)
	if err != nil {
		if !errors.Is(err, ErrVideoNotEmbeddable) {
			return nil, fmt.Errorf("failed to get video data with embed: %w", err)
		}

		videoData, pageErr := c.getFromPage(ctx, videoID)
		if pageErr != nil {
			return nil, fmt.Errorf("failed to get video data from page: %w", pageErr)
		}

		return videoData, ErrVideoNotEmbeddable
	}

	return videoData, nil
}
