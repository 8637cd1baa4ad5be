package ytvideodata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

func (c *Client) getWithEmbed(ctx context.Context, videoID string) (*VideoData, error) {
	params := url.Values{}
	params.Set("url", defaultWatchURL+"?v="+videoID)
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.oEmbedURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		switch resp.StatusCode {
		case http.StatusBadRequest, http.StatusNotFound:
			return nil, ErrVideoNotFound
		case http.StatusUnauthorized, http.StatusForbidden:
			return nil, ErrVideoNotEmbeddable
		default:
			return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}
	}

	var result VideoData
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode oembed response: %w", err)
	}

	return &result, nil
}

type PlayerOptions struct {
	Autoplay bool `json:"autoplay"`
	Loop     bool `json:"loop"`
	Mute     bool `json:"mute"`
	Controls bool `json:"controls"`
	Start    int  `json:"start" validate:"min=0"`
}

func DefaultPlayerOptions() PlayerOptions {
	return PlayerOptions{
		Autoplay: true,
		Loop:     true,
		Controls: true,
	}
}

func boolParam(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// EmbedURL builds the iframe player URL for videoID.
func EmbedURL(videoID string, opts PlayerOptions) string {
	params := url.Values{}
	params.Set("autoplay", boolParam(opts.Autoplay))
	params.Set("mute", boolParam(opts.Mute))
	params.Set("controls", boolParam(opts.Controls))
	if opts.Loop {
		// the embedded player only loops a playlist, so loop the video over itself
		params.Set("loop", "1")
		params.Set("playlist", videoID)
	}
	if opts.Start > 0 {
		params.Set("start", strconv.Itoa(opts.Start))
	}

	return "https://www.youtube.com/embed/" + url.PathEscape(videoID) + "?" + params.Encode()
}
