package controller

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pomodorotube/server/internal/service/search"
	"github.com/pomodorotube/server/pkg/rest"
	"github.com/pomodorotube/server/pkg/ytvideodata"
)

const cacheHeader = "X-Cache"

func (c *controller) healthz(w http.ResponseWriter, r *http.Request) {
	rest.WriteJSON(w, http.StatusOK, rest.Envelope{
		"status":   "OK",
		"sessions": c.sessionRepo.Count(),
	})
}

// searchYouTube answers with a JSON array of videos. Failures still carry an
// empty array so the client can render "no results" unconditionally.
func (c *controller) searchYouTube(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("search")

	searchResp, err := c.searchService.Search(r.Context(), &search.SearchParams{Query: query})
	if err != nil {
		if errors.Is(err, search.ErrEmptyQuery) {
			c.logger.DebugContext(r.Context(), "no search value provided")
			rest.WriteJSON(w, http.StatusBadRequest, []search.Video{})
			return
		}

		c.logger.WarnContext(r.Context(), "failed to search youtube", "query", query, "error", err)
		rest.WriteJSON(w, http.StatusInternalServerError, []search.Video{})
		return
	}

	if searchResp.Cached {
		w.Header().Set(cacheHeader, "HIT")
	} else {
		w.Header().Set(cacheHeader, "MISS")
	}

	rest.WriteJSON(w, http.StatusOK, searchResp.Videos)
}

type getVideoInput struct {
	VideoID string `json:"video_id" validate:"required,videoid"`
	Start   int    `json:"start" validate:"min=0"`
}

type videoOutput struct {
	VideoID      string                    `json:"video_id"`
	Title        string                    `json:"title"`
	AuthorName   string                    `json:"author_name"`
	ThumbnailURL string                    `json:"thumbnail_url"`
	EmbedURL     string                    `json:"embed_url"`
	Options      ytvideodata.PlayerOptions `json:"options"`
}

func (c *controller) getVideo(w http.ResponseWriter, r *http.Request) {
	opts, err := c.getPlayerOptions(r)
	if err != nil {
		c.logger.DebugContext(r.Context(), "invalid player options", "error", err)
		rest.WriteJSON(w, http.StatusBadRequest, rest.Envelope{"error": err.Error()})
		return
	}

	input := getVideoInput{
		VideoID: chi.URLParam(r, "video-id"),
		Start:   opts.Start,
	}
	if validationErrors, ok := c.validate.Validate(input); !ok {
		c.logger.DebugContext(r.Context(), "invalid video request", "errors", validationErrors)
		rest.WriteJSON(w, http.StatusBadRequest, rest.Envelope{"errors": validationErrors})
		return
	}

	videoData, err := c.videoDataClient.Get(r.Context(), input.VideoID)
	if err != nil {
		switch {
		case errors.Is(err, ytvideodata.ErrVideoNotFound), errors.Is(err, ytvideodata.ErrInvalidVideoID):
			rest.WriteJSON(w, http.StatusNotFound, rest.Envelope{"error": "video not found"})
		case errors.Is(err, ytvideodata.ErrVideoNotEmbeddable):
			rest.WriteJSON(w, http.StatusUnprocessableEntity, rest.Envelope{
				"error": "video is not embeddable",
				"data":  c.newVideoOutput(input.VideoID, videoData, opts),
			})
		default:
			c.logger.WarnContext(r.Context(), "failed to get video data", "video_id", input.VideoID, "error", err)
			rest.WriteJSON(w, http.StatusBadGateway, rest.Envelope{"error": "failed to get video data"})
		}
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": c.newVideoOutput(input.VideoID, videoData, opts)})
}

func (c *controller) newVideoOutput(videoID string, data *ytvideodata.VideoData, opts ytvideodata.PlayerOptions) videoOutput {
	out := videoOutput{
		VideoID:  videoID,
		EmbedURL: ytvideodata.EmbedURL(videoID, opts),
		Options:  opts,
	}
	if data != nil {
		out.Title = data.Title
		out.AuthorName = data.AuthorName
		out.ThumbnailURL = data.ThumbnailUrl
	}

	return out
}

func (c *controller) getPlayerOptions(r *http.Request) (ytvideodata.PlayerOptions, error) {
	opts := ytvideodata.DefaultPlayerOptions()
	q := r.URL.Query()

	for key, dst := range map[string]*bool{
		"autoplay": &opts.Autoplay,
		"loop":     &opts.Loop,
		"mute":     &opts.Mute,
		"controls": &opts.Controls,
	} {
		if !q.Has(key) {
			continue
		}
		v, err := strconv.ParseBool(q.Get(key))
		if err != nil {
			return opts, fmt.Errorf("%s must be a boolean", key)
		}
		*dst = v
	}

	if q.Has("start") {
		start, err := strconv.Atoi(q.Get("start"))
		if err != nil {
			return opts, errors.New("start must be an integer")
		}
		opts.Start = start
	}

	return opts, nil
}
