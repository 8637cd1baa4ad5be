package controller

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pomodorotube/server/internal/repository/session/inmemory"
	"github.com/pomodorotube/server/internal/service/search"
	"github.com/pomodorotube/server/internal/timer"
	"github.com/pomodorotube/server/pkg/ytvideodata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearchService struct {
	mu      sync.Mutex
	queries []string
	videos  []search.Video
	err     error
	cached  bool
}

func (s *fakeSearchService) Search(_ context.Context, params *search.SearchParams) (search.SearchResponse, error) {
	query := search.NormalizeQuery(params.Query)
	if query == "" {
		return search.SearchResponse{Videos: []search.Video{}}, search.ErrEmptyQuery
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
	if s.err != nil {
		return search.SearchResponse{Query: query, Videos: []search.Video{}}, s.err
	}

	return search.SearchResponse{Query: query, Videos: s.videos, Cached: s.cached}, nil
}

func (s *fakeSearchService) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

type fakeVideoDataClient struct {
	data map[string]*ytvideodata.VideoData
	errs map[string]error
}

func (c *fakeVideoDataClient) Get(_ context.Context, videoID string) (*ytvideodata.VideoData, error) {
	return c.data[videoID], c.errs[videoID]
}

// gatedSearchService holds searches for gated queries until their gate is
// closed, regardless of the request context.
type gatedSearchService struct {
	gates    map[string]chan struct{}
	returned map[string]chan struct{}
}

func newGatedSearchService(queries ...string) *gatedSearchService {
	s := &gatedSearchService{
		gates:    make(map[string]chan struct{}),
		returned: make(map[string]chan struct{}),
	}
	for _, q := range queries {
		s.gates[q] = make(chan struct{})
		s.returned[q] = make(chan struct{})
	}
	return s
}

func (s *gatedSearchService) Search(_ context.Context, params *search.SearchParams) (search.SearchResponse, error) {
	query := search.NormalizeQuery(params.Query)
	if gate, ok := s.gates[query]; ok {
		<-gate
		defer close(s.returned[query])
	}

	return search.SearchResponse{
		Query:  query,
		Videos: []search.Video{{ID: query + "-video", Title: query}},
	}, nil
}

// finish releases query and waits until its search has returned.
func (s *gatedSearchService) finish(t *testing.T, query string) {
	t.Helper()
	close(s.gates[query])
	select {
	case <-s.returned[query]:
	case <-time.After(3 * time.Second):
		t.Fatalf("search for %q did not return", query)
	}
	// let the session decide what to do with the result
	time.Sleep(50 * time.Millisecond)
}

const lofiID = "jfKfPfyJRdk"

func newFakeVideoDataClient() *fakeVideoDataClient {
	return &fakeVideoDataClient{
		data: map[string]*ytvideodata.VideoData{
			lofiID: {Title: "lofi hip hop radio", AuthorName: "Lofi Girl", ThumbnailUrl: "https://i.ytimg.com/vi/jfKfPfyJRdk/hqdefault.jpg"},
			"hiddenVid01": {Title: "hidden"},
		},
		errs: map[string]error{
			"missingVid1": ytvideodata.ErrVideoNotFound,
			"hiddenVid01": ytvideodata.ErrVideoNotEmbeddable,
			"brokenVid01": errors.New("upstream exploded"),
		},
	}
}

func lofiResults() []search.Video {
	return []search.Video{
		{ID: lofiID, Title: "lofi hip hop radio", ThumbnailURL: "https://i.ytimg.com/vi/jfKfPfyJRdk/default.jpg"},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *Config {
	return &Config{
		SearchDebounce: 50 * time.Millisecond,
		TimerDurations: timer.Durations{
			Pomodoro:   2 * time.Second,
			ShortBreak: time.Second,
			LongBreak:  3 * time.Second,
		},
		TimerInterval:  10 * time.Millisecond,
		AllowedOrigins: []string{"*"},
	}
}

func newTestServer(t *testing.T, searchService iSearchService) *httptest.Server {
	t.Helper()

	c, err := NewController(searchService, newFakeVideoDataClient(), inmemory.NewRepo(discardLogger()), testConfig(), discardLogger())
	require.NoError(t, err)

	srv := httptest.NewServer(c.GetMux())
	t.Cleanup(srv.Close)

	return srv
}

func getJSON(t *testing.T, url string, dst any) *http.Response {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
	return resp
}

func TestSearchYouTube(t *testing.T) {
	srv := newTestServer(t, &fakeSearchService{videos: lofiResults()})

	var videos []search.Video
	resp := getJSON(t, srv.URL+"/api/search-youtube?search=lofi", &videos)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "MISS", resp.Header.Get(cacheHeader))
	assert.NotEmpty(t, resp.Header.Get(requestIdHeader))
	assert.Equal(t, lofiResults(), videos)
}

func TestSearchYouTubeCacheHit(t *testing.T) {
	srv := newTestServer(t, &fakeSearchService{videos: lofiResults(), cached: true})

	var videos []search.Video
	resp := getJSON(t, srv.URL+"/api/search-youtube?search=lofi", &videos)
	assert.Equal(t, "HIT", resp.Header.Get(cacheHeader))
}

func TestSearchYouTubeEmptyQuery(t *testing.T) {
	searchService := &fakeSearchService{videos: lofiResults()}
	srv := newTestServer(t, searchService)

	for _, path := range []string{"/api/search-youtube", "/api/search-youtube?search=", "/api/search-youtube?search=%20%20"} {
		var videos []search.Video
		resp := getJSON(t, srv.URL+path, &videos)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
		assert.NotNil(t, videos, path)
		assert.Empty(t, videos, path)
	}
	assert.Empty(t, searchService.calls())
}

func TestSearchYouTubeProviderFailure(t *testing.T) {
	srv := newTestServer(t, &fakeSearchService{err: search.ErrProvider})

	var videos []search.Video
	resp := getJSON(t, srv.URL+"/api/search-youtube?search=lofi", &videos)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.NotNil(t, videos)
	assert.Empty(t, videos)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, &fakeSearchService{})

	var body map[string]any
	resp := getJSON(t, srv.URL+"/api/healthz", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", body["status"])
	assert.EqualValues(t, 0, body["sessions"])
}

func TestGetVideo(t *testing.T) {
	srv := newTestServer(t, &fakeSearchService{})

	var body struct {
		Data videoOutput `json:"data"`
	}
	resp := getJSON(t, srv.URL+"/api/videos/"+lofiID+"?mute=true&start=30", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, lofiID, body.Data.VideoID)
	assert.Equal(t, "lofi hip hop radio", body.Data.Title)
	assert.Equal(t, "Lofi Girl", body.Data.AuthorName)
	assert.True(t, body.Data.Options.Mute)
	assert.True(t, body.Data.Options.Autoplay)
	assert.Equal(t, 30, body.Data.Options.Start)
	assert.Contains(t, body.Data.EmbedURL, "/embed/"+lofiID)
	assert.Contains(t, body.Data.EmbedURL, "start=30")
}

func TestGetVideoErrors(t *testing.T) {
	srv := newTestServer(t, &fakeSearchService{})

	cases := map[string]int{
		"/api/videos/missingVid1":             http.StatusNotFound,
		"/api/videos/hiddenVid01":             http.StatusUnprocessableEntity,
		"/api/videos/brokenVid01":             http.StatusBadGateway,
		"/api/videos/short":                   http.StatusBadRequest,
		"/api/videos/" + lofiID + "?start=-5": http.StatusBadRequest,
		"/api/videos/" + lofiID + "?loop=yes": http.StatusBadRequest,
	}
	for path, status := range cases {
		var body map[string]any
		resp := getJSON(t, srv.URL+path, &body)
		assert.Equal(t, status, resp.StatusCode, path)
	}
}

type wsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dialSession(t *testing.T, srv *httptest.Server) *wsClient {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/ws/session", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) send(messageType string, payload any) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(map[string]any{"type": messageType, "payload": payload}))
}

func (c *wsClient) read() wsMessage {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg wsMessage
	require.NoError(c.t, c.conn.ReadJSON(&msg))
	return msg
}

// readType skips messages until one of the given type arrives.
func (c *wsClient) readType(messageType string, dst any) {
	c.t.Helper()
	for {
		msg := c.read()
		if msg.Type != messageType {
			continue
		}
		if dst != nil {
			require.NoError(c.t, json.Unmarshal(msg.Payload, dst))
		}
		return
	}
}

func TestSessionStarted(t *testing.T) {
	srv := newTestServer(t, &fakeSearchService{})
	client := dialSession(t, srv)

	var started struct {
		SessionID  string      `json:"session_id"`
		Timer      timerOutput `json:"timer"`
		DebounceMS int64       `json:"debounce_ms"`
	}
	client.readType("SESSION_STARTED", &started)
	assert.NotEmpty(t, started.SessionID)
	assert.Equal(t, timer.ModePomodoro, started.Timer.Mode)
	assert.Equal(t, timer.StatusStopped, started.Timer.Status)
	assert.Equal(t, 2, started.Timer.RemainingSeconds)
	assert.Equal(t, "00:02", started.Timer.Display)
	assert.EqualValues(t, 50, started.DebounceMS)

	var body map[string]any
	getJSON(t, srv.URL+"/api/healthz", &body)
	assert.EqualValues(t, 1, body["sessions"])
}

func TestSessionDebouncedSearch(t *testing.T) {
	searchService := &fakeSearchService{videos: lofiResults()}
	srv := newTestServer(t, searchService)
	client := dialSession(t, srv)
	client.readType("SESSION_STARTED", nil)

	client.send("SEARCH_INPUT", map[string]string{"value": "l"})
	client.send("SEARCH_INPUT", map[string]string{"value": "lo"})
	client.send("SEARCH_INPUT", map[string]string{"value": "lofi "})

	var loading map[string]string
	client.readType("SEARCH_LOADING", &loading)
	assert.Equal(t, "lofi", loading["query"])

	var results searchResultsOutput
	client.readType("SEARCH_RESULTS", &results)
	assert.Equal(t, "lofi", results.Query)
	assert.Equal(t, lofiResults(), results.Videos)
	assert.Empty(t, results.Error)
	assert.Equal(t, []string{"lofi"}, searchService.calls())
}

func TestSessionEmptySearchClearsImmediately(t *testing.T) {
	searchService := &fakeSearchService{videos: lofiResults()}
	srv := newTestServer(t, searchService)
	client := dialSession(t, srv)
	client.readType("SESSION_STARTED", nil)

	client.send("SEARCH_INPUT", map[string]string{"value": "lofi"})
	client.send("SEARCH_INPUT", map[string]string{"value": "  "})

	msg := client.read()
	require.Equal(t, "SEARCH_RESULTS", msg.Type)
	var results searchResultsOutput
	require.NoError(t, json.Unmarshal(msg.Payload, &results))
	assert.Empty(t, results.Query)
	assert.NotNil(t, results.Videos)
	assert.Empty(t, results.Videos)

	// the pending "lofi" search was dropped
	time.Sleep(150 * time.Millisecond)
	assert.Empty(t, searchService.calls())
}

func TestSessionSearchFailure(t *testing.T) {
	srv := newTestServer(t, &fakeSearchService{err: search.ErrProvider})
	client := dialSession(t, srv)
	client.readType("SESSION_STARTED", nil)

	client.send("SEARCH_INPUT", map[string]string{"value": "lofi"})

	var results searchResultsOutput
	client.readType("SEARCH_RESULTS", &results)
	assert.Equal(t, "lofi", results.Query)
	assert.Empty(t, results.Videos)
	assert.NotEmpty(t, results.Error)
}

func TestSessionTimerRunsToZero(t *testing.T) {
	srv := newTestServer(t, &fakeSearchService{})
	client := dialSession(t, srv)
	client.readType("SESSION_STARTED", nil)

	client.send("SELECT_VIDEO", map[string]string{"video_id": lofiID})
	client.readType("VIDEO_SELECTED", nil)

	client.send("TIMER_START", nil)

	var remaining []int
	for {
		msg := client.read()
		if msg.Type == "TIME_OVER" {
			var over timeOverOutput
			require.NoError(t, json.Unmarshal(msg.Payload, &over))
			assert.Equal(t, timer.StatusFinished, over.Status)
			assert.Equal(t, 0, over.RemainingSeconds)
			assert.Equal(t, lofiID, over.VideoID)
			break
		}
		require.Equal(t, "TIMER_UPDATED", msg.Type)
		var st timerOutput
		require.NoError(t, json.Unmarshal(msg.Payload, &st))
		remaining = append(remaining, st.RemainingSeconds)
	}
	assert.Equal(t, []int{2, 1, 0}, remaining)
}

func TestSessionTimerControls(t *testing.T) {
	srv := newTestServer(t, &fakeSearchService{})
	client := dialSession(t, srv)
	client.readType("SESSION_STARTED", nil)

	var st timerOutput

	client.send("TIMER_SET_MODE", map[string]string{"mode": "LONG_BREAK"})
	client.readType("TIMER_UPDATED", &st)
	assert.Equal(t, timer.ModeLongBreak, st.Mode)
	assert.Equal(t, timer.StatusStopped, st.Status)
	assert.Equal(t, 3, st.RemainingSeconds)

	client.send("TIMER_TOGGLE", nil)
	client.readType("TIMER_UPDATED", &st)
	assert.Equal(t, timer.StatusRunning, st.Status)

	client.send("TIMER_RESET", nil)
	for {
		client.readType("TIMER_UPDATED", &st)
		if st.Status == timer.StatusStopped {
			break
		}
	}
	assert.Equal(t, 3, st.RemainingSeconds)

	client.send("TIMER_SET_MODE", map[string]string{"mode": "COFFEE"})
	var errOut errorOutput
	client.readType("ERROR", &errOut)
	assert.Equal(t, "VALIDATION_ERROR", errOut.Code)
	assert.Equal(t, "TIMER_SET_MODE", errOut.MessageType)
}

func TestSessionSelectVideo(t *testing.T) {
	srv := newTestServer(t, &fakeSearchService{})
	client := dialSession(t, srv)
	client.readType("SESSION_STARTED", nil)

	client.send("SELECT_VIDEO", map[string]any{
		"video_id": lofiID,
		"options":  map[string]any{"autoplay": false, "controls": true, "start": 10},
	})
	var selected videoOutput
	client.readType("VIDEO_SELECTED", &selected)
	assert.Equal(t, lofiID, selected.VideoID)
	assert.Equal(t, "lofi hip hop radio", selected.Title)
	assert.False(t, selected.Options.Autoplay)
	assert.Equal(t, 10, selected.Options.Start)
	assert.Contains(t, selected.EmbedURL, "start=10")

	var errOut errorOutput
	client.send("SELECT_VIDEO", map[string]string{"video_id": "missingVid1"})
	client.readType("ERROR", &errOut)
	assert.Equal(t, "VIDEO_NOT_FOUND", errOut.Code)

	client.send("SELECT_VIDEO", map[string]string{"video_id": "nope"})
	client.readType("ERROR", &errOut)
	assert.Equal(t, "VALIDATION_ERROR", errOut.Code)
}

func TestSessionUnknownMessage(t *testing.T) {
	srv := newTestServer(t, &fakeSearchService{})
	client := dialSession(t, srv)
	client.readType("SESSION_STARTED", nil)

	client.send("DANCE", nil)
	var errOut errorOutput
	client.readType("ERROR", &errOut)
	assert.Equal(t, "UNKNOWN_MESSAGE_TYPE", errOut.Code)

	// still alive
	client.send("ALIVE", nil)
	client.send("TIMER_PAUSE", nil)
	client.send("TIMER_START", nil)
	var st timerOutput
	client.readType("TIMER_UPDATED", &st)
	assert.Equal(t, timer.StatusRunning, st.Status)
}

func TestSessionSupersededSearchInFlightIsDropped(t *testing.T) {
	searchService := newGatedSearchService("jazz", "lofi")
	srv := newTestServer(t, searchService)
	client := dialSession(t, srv)
	client.readType("SESSION_STARTED", nil)

	var loading map[string]string
	client.send("SEARCH_INPUT", map[string]string{"value": "jazz"})
	client.readType("SEARCH_LOADING", &loading)
	require.Equal(t, "jazz", loading["query"])

	client.send("SEARCH_INPUT", map[string]string{"value": "lofi"})
	client.readType("SEARCH_LOADING", &loading)
	require.Equal(t, "lofi", loading["query"])

	searchService.finish(t, "jazz")
	searchService.finish(t, "lofi")

	msg := client.read()
	require.Equal(t, "SEARCH_RESULTS", msg.Type)
	var results searchResultsOutput
	require.NoError(t, json.Unmarshal(msg.Payload, &results))
	assert.Equal(t, "lofi", results.Query)
	require.Len(t, results.Videos, 1)
	assert.Equal(t, "lofi-video", results.Videos[0].ID)

	// nothing else was queued before this reply
	client.send("TIMER_RESET", nil)
	assert.Equal(t, "TIMER_UPDATED", client.read().Type)
}

func TestSessionClearedSearchInFlightIsDropped(t *testing.T) {
	searchService := newGatedSearchService("jazz")
	srv := newTestServer(t, searchService)
	client := dialSession(t, srv)
	client.readType("SESSION_STARTED", nil)

	var loading map[string]string
	client.send("SEARCH_INPUT", map[string]string{"value": "jazz"})
	client.readType("SEARCH_LOADING", &loading)
	require.Equal(t, "jazz", loading["query"])

	client.send("SEARCH_INPUT", map[string]string{"value": "  "})

	msg := client.read()
	require.Equal(t, "SEARCH_RESULTS", msg.Type)
	var results searchResultsOutput
	require.NoError(t, json.Unmarshal(msg.Payload, &results))
	assert.Empty(t, results.Query)
	assert.NotNil(t, results.Videos)
	assert.Empty(t, results.Videos)

	searchService.finish(t, "jazz")

	client.send("TIMER_RESET", nil)
	assert.Equal(t, "TIMER_UPDATED", client.read().Type)
}
