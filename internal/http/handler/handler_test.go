package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/edirooss/loopcast/internal/changelog"
	"github.com/edirooss/loopcast/internal/domain/stream"
	"github.com/edirooss/loopcast/internal/infrastructure/configstore"
	"github.com/edirooss/loopcast/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStream struct {
	startErr error
	pid      int
	stops    int
	status   service.Status
	logs     []string
	lastN    int
}

func (f *fakeStream) Start(context.Context) (int, error) {
	if f.startErr != nil {
		return 0, f.startErr
	}
	return f.pid, nil
}
func (f *fakeStream) Stop()                                    { f.stops++ }
func (f *fakeStream) Restart(ctx context.Context) (int, error) { return f.Start(ctx) }
func (f *fakeStream) Status() service.Status                   { return f.status }
func (f *fakeStream) Logs(n int) []string                      { f.lastN = n; return f.logs }

type testAPI struct {
	r      *gin.Engine
	stream *fakeStream
	root   string
	lib    *configstore.Library
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	root := t.TempDir()
	log := zap.NewNop()
	store := configstore.NewFileStore(log, filepath.Join(root, "config"))
	require.NoError(t, os.MkdirAll(store.Dir(), 0o755))
	lib := configstore.NewLibrary(log, filepath.Join(root, "media"))
	require.NoError(t, lib.Ensure())
	cl := changelog.New(log, filepath.Join(root, "CHANGELOG.md"))

	fs := &fakeStream{pid: 4242}
	sh := NewStreamHandler(log, fs)
	seth := NewSettingsHandler(log, service.NewSettingsService(log, store, cl))
	mh := NewMediaHandler(log, service.NewMediaService(log, store, lib, cl))
	ch := NewChangelogHandler(log, cl)

	r := gin.New()
	r.POST("/api/stream/start", sh.Start)
	r.POST("/api/stream/stop", sh.Stop)
	r.POST("/api/stream/restart", sh.Restart)
	r.GET("/api/stream/status", sh.Status)
	r.GET("/api/stream/logs", sh.Logs)
	r.GET("/api/settings", seth.Get)
	r.POST("/api/settings", seth.Save)
	r.GET("/api/media", mh.List)
	r.POST("/api/media/selection", mh.SaveSelection)
	r.POST("/api/media/loop", mh.SetLoop)
	r.POST("/api/media/upload", mh.Upload)
	r.DELETE("/api/media", mh.Delete)
	r.GET("/api/changelog", ch.List)
	r.POST("/api/changelog", ch.Add)

	return &testAPI{r: r, stream: fs, root: root, lib: lib}
}

func (a *testAPI) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	a.r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestStartErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{nil, http.StatusOK},
		{stream.ErrAlreadyRunning, http.StatusConflict},
		{stream.ErrNoVideoSelected, http.StatusPreconditionFailed},
		{stream.ErrNoValidAudioAfterFiltering, http.StatusPreconditionFailed},
		{stream.ErrMediaMissing, http.StatusPreconditionFailed},
		{&stream.ValidationError{Field: "streamKey", Reason: "required"}, http.StatusUnprocessableEntity},
		{stream.ErrSpawnFailure, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		a := newTestAPI(t)
		a.stream.startErr = tc.err
		rec := a.do(http.MethodPost, "/api/stream/start", "")
		assert.Equal(t, tc.code, rec.Code, "err=%v", tc.err)

		body := decode(t, rec)
		if tc.err == nil {
			assert.EqualValues(t, 4242, body["pid"])
		} else {
			assert.Equal(t, tc.err.Error(), body["message"])
		}
	}
}

func TestStopAlwaysOK(t *testing.T) {
	a := newTestAPI(t)
	for range 2 {
		assert.Equal(t, http.StatusOK, a.do(http.MethodPost, "/api/stream/stop", "").Code)
	}
	assert.Equal(t, 2, a.stream.stops)
}

func TestStatusShape(t *testing.T) {
	a := newTestAPI(t)
	a.stream.status = service.Status{
		State:        service.StateIdle,
		Uptime:       "00:00:00",
		FPS:          service.DefaultFPS,
		Bitrate:      service.DefaultBitrate,
		CurrentTrack: "",
	}
	body := decode(t, a.do(http.MethodGet, "/api/stream/status", ""))
	assert.Equal(t, "idle", body["status"])
	stats := body["stats"].(map[string]any)
	assert.Equal(t, "Never", stats["lastReconnect"])
	assert.Equal(t, "0 kbps", stats["bitrate"])
	assert.NotContains(t, body, "pid")

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	a.stream.status = service.Status{State: service.StateRunning, PID: 77, LastReconnect: at, Uptime: "00:01:00"}
	body = decode(t, a.do(http.MethodGet, "/api/stream/status", ""))
	assert.Equal(t, "streaming", body["status"])
	assert.Equal(t, "running", body["state"])
	assert.EqualValues(t, 77, body["pid"])
	assert.Equal(t, "2025-03-01T12:00:00Z", body["stats"].(map[string]any)["lastReconnect"])
}

func TestLogsQuery(t *testing.T) {
	a := newTestAPI(t)
	a.stream.logs = []string{"a", "b"}

	body := decode(t, a.do(http.MethodGet, "/api/stream/logs?lines=5", ""))
	assert.Equal(t, []any{"a", "b"}, body["logs"])
	assert.Equal(t, 5, a.stream.lastN)

	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, "/api/stream/logs?lines=x", "").Code)
}

func TestSettingsPartialUpdate(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(http.MethodPost, "/api/settings", `{"streamKey":"live-key","resolution":"1920x1080"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, a.do(http.MethodGet, "/api/settings", ""))
	assert.Equal(t, "live-key", body["streamKey"])
	assert.Equal(t, "1920x1080", body["resolution"])
	assert.EqualValues(t, 2500, body["videoBitrate"])
}

func TestSettingsErrors(t *testing.T) {
	a := newTestAPI(t)

	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/api/settings", `{"fps":`).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/api/settings", `{"bogus":1}`).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, a.do(http.MethodPost, "/api/settings", `{"fps":0}`).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, a.do(http.MethodPost, "/api/settings", `{"fps":null}`).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, a.do(http.MethodPost, "/api/settings", `{"resolution":"1000x1000"}`).Code)
}

func TestMediaSelectionAndLoop(t *testing.T) {
	a := newTestAPI(t)
	track := filepath.Join(a.lib.Dir(configstore.KindAudio), "song.mp3")
	require.NoError(t, os.WriteFile(track, []byte("x"), 0o644))

	rec := a.do(http.MethodPost, "/api/media/selection", `{"video":null,"audioPlaylist":["`+track+`"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(http.MethodPost, "/api/media/loop", `{"videoLooping":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["videoLooping"])
	assert.Equal(t, http.StatusUnprocessableEntity, a.do(http.MethodPost, "/api/media/loop", `{}`).Code)

	body := decode(t, a.do(http.MethodGet, "/api/media", ""))
	audio := body["audio"].([]any)
	require.Len(t, audio, 1)
	assert.Equal(t, true, audio[0].(map[string]any)["selected"])
	assert.Equal(t, false, body["videoLooping"])
}

func TestUploadAndDelete(t *testing.T) {
	a := newTestAPI(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("type", "video"))
	fw, err := mw.CreateFormFile("files", "bg.mp4")
	require.NoError(t, err)
	_, err = fw.Write([]byte("video-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/media/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	a.r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	path := filepath.Join(a.lib.Dir(configstore.KindVideo), "bg.mp4")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "video-bytes", string(data))

	assert.Equal(t, http.StatusBadRequest,
		a.do(http.MethodDelete, "/api/media", `{"filePath":"/etc/passwd","type":"video"}`).Code)
	assert.Equal(t, http.StatusOK,
		a.do(http.MethodDelete, "/api/media", `{"filePath":"`+path+`","type":"video"}`).Code)
	assert.Equal(t, http.StatusNotFound,
		a.do(http.MethodDelete, "/api/media", `{"filePath":"`+path+`","type":"video"}`).Code)
}

func TestChangelogRoutes(t *testing.T) {
	a := newTestAPI(t)

	assert.Equal(t, http.StatusUnprocessableEntity, a.do(http.MethodPost, "/api/changelog", `{"title":" "}`).Code)

	rec := a.do(http.MethodPost, "/api/changelog", `{"date":"2025-01-02","title":"Switched video","description":"New loop"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var entries []changelog.Entry
	rec = a.do(http.MethodGet, "/api/changelog", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "Switched video", entries[0].Title)
}
