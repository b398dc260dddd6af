package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"wisefido-pose/internal/models"
	"wisefido-pose/internal/notifier"
	"wisefido-pose/internal/session"
	"wisefido-pose/internal/timeutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func standingPose() []models.Landmark {
	const torso = 0.3
	rad := 10 * math.Pi / 180
	hipX := 0.5 - torso*math.Sin(rad)
	hipY := 0.4 + torso*math.Cos(rad)

	lms := make([]models.Landmark, models.PoseLandmarkCount)
	for i := range lms {
		lms[i] = models.Landmark{X: hipX, Y: hipY, Visibility: 0.9}
	}
	lms[models.LandmarkNose] = models.Landmark{X: 0.5, Y: 0.2, Visibility: 0.9}
	lms[models.LandmarkLeftShoulder] = models.Landmark{X: 0.45, Y: 0.4, Visibility: 0.9}
	lms[models.LandmarkRightShoulder] = models.Landmark{X: 0.55, Y: 0.4, Visibility: 0.9}
	lms[models.LandmarkLeftHip] = models.Landmark{X: hipX - 0.04, Y: hipY, Visibility: 0.9}
	lms[models.LandmarkRightHip] = models.Landmark{X: hipX + 0.04, Y: hipY, Visibility: 0.9}
	return lms
}

type fakeStatusCache struct {
	results map[string]*models.FrameResult
	listErr error
}

func (f *fakeStatusCache) GetStatus(_ context.Context, cameraID string) (*models.FrameResult, error) {
	if r, ok := f.results[cameraID]; ok {
		return r, nil
	}
	return nil, errors.New("status not found")
}

func (f *fakeStatusCache) ListCameraIDs(_ context.Context) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	ids := make([]string, 0, len(f.results))
	for id := range f.results {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

type fakeStateStore struct {
	states  map[string]*models.SessionState
	deleted []string
}

func (f *fakeStateStore) GetState(_ context.Context, cameraID string) (*models.SessionState, error) {
	if st, ok := f.states[cameraID]; ok {
		return st, nil
	}
	return nil, errors.New("state not found")
}

func (f *fakeStateStore) DeleteState(_ context.Context, cameraID string) error {
	f.deleted = append(f.deleted, cameraID)
	return nil
}

type cameraTestEnv struct {
	router  *Router
	manager *session.Manager
	banners *notifier.BannerBoard
	cache   *fakeStatusCache
	states  *fakeStateStore
	start   time.Time
}

func newCameraTestEnv() *cameraTestEnv {
	start := time.Unix(1_700_000_000, 0)
	clock := timeutil.NewMockClock(start)
	env := &cameraTestEnv{
		manager: session.NewManager(session.DefaultSettings(), session.DefaultOptions(), clock, zap.NewNop()),
		banners: notifier.NewBannerBoard(clock),
		cache:   &fakeStatusCache{results: map[string]*models.FrameResult{}},
		states:  &fakeStateStore{states: map[string]*models.SessionState{}},
		start:   start,
	}
	env.router = NewRouter(zap.NewNop())
	env.router.RegisterCameraRoutes(NewCameraHandler(env.manager, env.banners, env.cache, env.states, zap.NewNop()))
	return env
}

func (e *cameraTestEnv) feed(t *testing.T, cameraID string) models.FrameResult {
	res, err := e.manager.GetOrCreate(cameraID).ProcessFrame(models.Frame{
		CameraID:  cameraID,
		Seq:       1,
		Timestamp: e.start,
		Landmarks: standingPose(),
	})
	require.NoError(t, err)
	return res
}

func (e *cameraTestEnv) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, Result[json.RawMessage]) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var resp Result[json.RawMessage]
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestListCameras(t *testing.T) {
	env := newCameraTestEnv()

	w, resp := env.do(t, http.MethodGet, "/api/v1/cameras", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ResultSuccess, resp.Code)

	env.feed(t, "cam-2")
	env.feed(t, "cam-1")

	_, resp = env.do(t, http.MethodGet, "/api/v1/cameras", "")
	var list struct {
		Items []CameraSummary `json:"items"`
		Total int             `json:"total"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &list))
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, "cam-1", list.Items[0].CameraID)
	assert.True(t, list.Items[0].Running)
	assert.Equal(t, models.StatusStanding, list.Items[0].Status)
	assert.Equal(t, 1, list.Items[0].HistoryLen)
	assert.True(t, list.Items[0].Local)

	w, _ = env.do(t, http.MethodPost, "/api/v1/cameras", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestGetStatus(t *testing.T) {
	env := newCameraTestEnv()
	result := env.feed(t, "cam-1")

	require.NoError(t, env.banners.Notify(context.Background(), result, models.AlertEffect{
		Kind:           models.AlertFall,
		Banner:         []string{"axis horizontalization"},
		BannerDuration: 2 * time.Second,
	}))

	w, resp := env.do(t, http.MethodGet, "/api/v1/cameras/cam-1/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var status CameraStatus
	require.NoError(t, json.Unmarshal(resp.Result, &status))
	assert.True(t, status.Running)
	require.NotNil(t, status.Result)
	assert.Equal(t, models.StatusStanding, status.Result.Status)
	require.NotNil(t, status.Banner)
	assert.Equal(t, []string{"axis horizontalization"}, status.Banner.Rules)
}

func TestGetStatus_FallsBackToCache(t *testing.T) {
	env := newCameraTestEnv()
	env.cache.results["cam-remote"] = &models.FrameResult{CameraID: "cam-remote", Status: models.StatusLying, Text: "Lying"}

	w, resp := env.do(t, http.MethodGet, "/api/v1/cameras/cam-remote/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	var status CameraStatus
	require.NoError(t, json.Unmarshal(resp.Result, &status))
	require.NotNil(t, status.Result)
	assert.Equal(t, models.StatusLying, status.Result.Status)
	assert.Nil(t, status.State)

	w, resp = env.do(t, http.MethodGet, "/api/v1/cameras/cam-unknown/status", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, ResultError, resp.Code)
}

func TestGetStatus_CacheFallbackIncludesStateSnapshot(t *testing.T) {
	env := newCameraTestEnv()
	fallAt := env.start.Add(2 * time.Second)
	env.cache.results["cam-remote"] = &models.FrameResult{CameraID: "cam-remote", Status: models.StatusFall, Text: "Fall detected!"}
	env.states.states["cam-remote"] = &models.SessionState{CurrentStatus: models.StatusFall, FallDetectedTime: &fallAt}

	w, resp := env.do(t, http.MethodGet, "/api/v1/cameras/cam-remote/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	var status CameraStatus
	require.NoError(t, json.Unmarshal(resp.Result, &status))
	assert.True(t, status.Running)
	require.NotNil(t, status.State)
	assert.Equal(t, models.StatusFall, status.State.CurrentStatus)
	require.NotNil(t, status.State.FallDetectedTime)
	assert.True(t, fallAt.Equal(*status.State.FallDetectedTime))
}

func TestListCameras_IncludesCachedCameras(t *testing.T) {
	env := newCameraTestEnv()
	env.feed(t, "cam-b")
	// cam-b 本地会话优先于缓存
	env.cache.results["cam-b"] = &models.FrameResult{CameraID: "cam-b", Status: models.StatusLying}
	env.cache.results["cam-a"] = &models.FrameResult{CameraID: "cam-a", Status: models.StatusSitting, Text: "Sitting"}
	env.cache.results["cam-c"] = &models.FrameResult{CameraID: "cam-c", Status: models.StatusUnknown, Text: session.TextStopped, Skipped: true}

	w, resp := env.do(t, http.MethodGet, "/api/v1/cameras", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Items []CameraSummary `json:"items"`
		Total int             `json:"total"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &list))
	require.Equal(t, 3, list.Total)

	assert.Equal(t, CameraSummary{CameraID: "cam-a", Running: true, Status: models.StatusSitting, Text: "Sitting"}, list.Items[0])
	assert.Equal(t, "cam-b", list.Items[1].CameraID)
	assert.True(t, list.Items[1].Local)
	assert.Equal(t, models.StatusStanding, list.Items[1].Status)
	assert.Equal(t, "cam-c", list.Items[2].CameraID)
	assert.False(t, list.Items[2].Running)
	assert.False(t, list.Items[2].Local)
}

func TestListCameras_CacheErrorListsLocalOnly(t *testing.T) {
	env := newCameraTestEnv()
	env.feed(t, "cam-1")
	env.cache.listErr = errors.New("redis down")

	w, resp := env.do(t, http.MethodGet, "/api/v1/cameras", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &list))
	assert.Equal(t, 1, list.Total)
}

func TestSettings_GetAndPartialUpdate(t *testing.T) {
	env := newCameraTestEnv()

	w, _ := env.do(t, http.MethodGet, "/api/v1/cameras/cam-1/settings", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	// PUT 在首帧前创建会话
	w, resp := env.do(t, http.MethodPut, "/api/v1/cameras/cam-1/settings",
		`{"policy":"OR","thresholds":{"angle":60},"alert_enabled":false}`)
	require.Equal(t, http.StatusOK, w.Code, string(resp.Result))

	var settings session.Settings
	require.NoError(t, json.Unmarshal(resp.Result, &settings))
	assert.Equal(t, models.PolicyOr, settings.Policy)
	assert.Equal(t, 60.0, settings.Thresholds.Angle)
	assert.Equal(t, 0.20, settings.Thresholds.HeadDrop)
	assert.False(t, settings.AlertEnabled)
	assert.Equal(t, models.AllRulesEnabled(), settings.Enabled)

	_, resp = env.do(t, http.MethodGet, "/api/v1/cameras/cam-1/settings", "")
	require.NoError(t, json.Unmarshal(resp.Result, &settings))
	assert.Equal(t, models.PolicyOr, settings.Policy)

	w, resp = env.do(t, http.MethodPut, "/api/v1/cameras/cam-1/settings", `{"policy":"majority"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, resp.Message, "unknown combine policy")

	w, _ = env.do(t, http.MethodPut, "/api/v1/cameras/cam-1/settings", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestControl_StopStartReset(t *testing.T) {
	env := newCameraTestEnv()
	result := env.feed(t, "cam-1")
	require.NoError(t, env.banners.Notify(context.Background(), result, models.AlertEffect{
		Kind:           models.AlertFall,
		Banner:         []string{"floor proximity"},
		BannerDuration: 2 * time.Second,
	}))

	var body map[string]any

	_, resp := env.do(t, http.MethodPost, "/api/v1/cameras/cam-1/stop", "")
	require.NoError(t, json.Unmarshal(resp.Result, &body))
	assert.Equal(t, false, body["running"])
	assert.Equal(t, session.TextStopped, body["text"])

	_, resp = env.do(t, http.MethodPost, "/api/v1/cameras/cam-1/start", "")
	require.NoError(t, json.Unmarshal(resp.Result, &body))
	assert.Equal(t, true, body["running"])

	_, resp = env.do(t, http.MethodPost, "/api/v1/cameras/cam-1/reset", "")
	require.NoError(t, json.Unmarshal(resp.Result, &body))
	assert.Equal(t, session.TextReset, body["text"])
	assert.Equal(t, "unknown", body["status"])

	_, ok := env.banners.Active("cam-1")
	assert.False(t, ok)
	assert.Equal(t, []string{"cam-1"}, env.states.deleted)
	assert.Zero(t, env.manager.GetOrCreate("cam-1").HistoryLen())
}

func TestControl_Errors(t *testing.T) {
	env := newCameraTestEnv()

	w, _ := env.do(t, http.MethodPost, "/api/v1/cameras/cam-x/reset", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = env.do(t, http.MethodGet, "/api/v1/cameras/cam-x/reset", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w, _ = env.do(t, http.MethodGet, "/api/v1/cameras/cam-x/unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = env.do(t, http.MethodGet, "/api/v1/cameras/cam-x", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	// start 创建会话
	w, _ = env.do(t, http.MethodPost, "/api/v1/cameras/cam-x/start", "")
	assert.Equal(t, http.StatusOK, w.Code)
	_, err := env.manager.Get("cam-x")
	assert.NoError(t, err)
}
