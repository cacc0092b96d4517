package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"floraGuardAPI/internal/achievement"
	"floraGuardAPI/internal/notification"
	"floraGuardAPI/internal/pkg/logger"
	"floraGuardAPI/internal/stats"
	"floraGuardAPI/middleware"
	"floraGuardAPI/services"
)

type testServer struct {
	router *mux.Router
	store  *services.MemoryStore
	bus    *services.LocalBus
	svc    *services.GamificationService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logger.NewNop()
	store := services.NewMemoryStore()
	bus := services.NewLocalBus()

	svc := services.NewGamificationService(services.GamificationDeps{
		Store:   store,
		Catalog: services.NewCatalogService(store, nil, time.Minute, log),
		Logger:  log,
	})
	gh := NewGamificationHandler(svc, log)
	nh := NewNotificationHandler(services.NewNotificationService(store, bus, log), log)

	// stands in for Clerk: the caller id comes from X-Test-User
	fakeAuth := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id := r.Header.Get("X-Test-User"); id != "" {
				r = r.WithContext(middleware.WithClerkID(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}

	r := mux.NewRouter()
	r.Use(middleware.NewHTTPMetrics(prometheus.NewRegistry()).Middleware)
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(fakeAuth)
	api.HandleFunc("/gamification/stats", gh.GetStats).Methods("GET")
	api.HandleFunc("/gamification/achievements", gh.GetAchievements).Methods("GET")
	api.HandleFunc("/gamification/achievements/catalog", gh.GetCatalog).Methods("GET")
	api.HandleFunc("/gamification/leaderboard", gh.GetLeaderboard).Methods("GET")
	api.HandleFunc("/gamification/tasks/{taskID}/complete", gh.CompleteTask).Methods("POST")
	api.HandleFunc("/gamification/plants", gh.PlantAdded).Methods("POST")
	api.HandleFunc("/gamification/milestones", gh.MilestoneAdded).Methods("POST")
	api.HandleFunc("/gamification/diseases/treated", gh.DiseaseTreated).Methods("POST")
	api.HandleFunc("/gamification/perfect-weeks", gh.PerfectWeek).Methods("POST")
	api.HandleFunc("/gamification/achievements/{achievementID}/check", gh.CheckAchievement).Methods("POST")
	api.HandleFunc("/notifications/devices", nh.RegisterDevice).Methods("POST")
	api.HandleFunc("/notifications/stream", nh.Stream).Methods("GET")

	return &testServer{router: r, store: store, bus: bus, svc: svc}
}

func (s *testServer) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func TestGetStatsCreatesRow(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodGet, "/api/v1/gamification/stats", "user_1", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp stats.StatsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "user_1", resp.Stats.UserID)
	assert.Equal(t, 1, resp.Stats.Level)
	assert.Equal(t, 100, resp.Progress.NextLevelXP)

	rr = s.do(t, http.MethodGet, "/api/v1/gamification/stats", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCompleteTaskFlow(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/api/v1/gamification/tasks/task-1/complete", "user_1",
		map[string]any{"completed_at": "2024-03-15T12:00:00Z"})
	require.Equal(t, http.StatusOK, rr.Code)

	var res services.ActivityResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.True(t, res.Saved)
	assert.False(t, res.Duplicate)
	assert.Equal(t, 50, res.XPGained)
	require.Len(t, res.Awarded, 1)
	assert.Equal(t, achievement.FirstTask, res.Awarded[0].AchievementID)

	rr = s.do(t, http.MethodPost, "/api/v1/gamification/tasks/task-2/complete", "user_1",
		map[string]any{"completed_at": "2999-01-01T00:00:00Z"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// no body means "now"
	rr = s.do(t, http.MethodPost, "/api/v1/gamification/tasks/task-1/complete", "user_1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.True(t, res.Duplicate)
	assert.Equal(t, 50, res.Stats.TotalXP)

	rr = s.do(t, http.MethodGet, "/api/v1/gamification/achievements", "user_1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list []achievement.Achievement
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "CheckCircle", list[0].Icon)
}

func TestActivityEndpoints(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/api/v1/gamification/plants", "user_1", map[string]string{"plant_id": "p1"})
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = s.do(t, http.MethodPost, "/api/v1/gamification/milestones", "user_1", map[string]any{
		"milestone_id": "m1", "plant_id": "p1", "milestone_type": "flowering", "title": "Bloom", "plant_milestone_count": 50,
	})
	require.Equal(t, http.StatusOK, rr.Code)
	var milestone services.ActivityResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &milestone))
	require.Len(t, milestone.Awarded, 1)
	assert.Equal(t, achievement.FirstBloom, milestone.Awarded[0].AchievementID)

	rr = s.do(t, http.MethodPost, "/api/v1/gamification/diseases/treated", "user_1", map[string]string{"diagnosis_id": "d1"})
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = s.do(t, http.MethodPost, "/api/v1/gamification/perfect-weeks", "user_1", map[string]string{"week_start": "2024-03-11"})
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = s.do(t, http.MethodPost, "/api/v1/gamification/perfect-weeks", "user_1", map[string]string{"week_start": "last monday"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, http.MethodPost, "/api/v1/gamification/plants", "user_1", map[string]string{"plant_id": ""})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, http.MethodPost, "/api/v1/gamification/achievements/fifty_tasks/check", "user_1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var check services.ActivityResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &check))
	assert.Empty(t, check.Awarded)

	rr = s.do(t, http.MethodPost, "/api/v1/gamification/achievements/first_plant/check", "user_1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &check))
	assert.Empty(t, check.Awarded)

	st, err := s.store.GetStats(context.Background(), "user_1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.PlantsAdded)
	assert.Equal(t, 1, st.DiseasesTreated)
	assert.Equal(t, 1, st.PerfectWeeks)
	assert.Equal(t, 4, st.AchievementsEarned)

	rr = s.do(t, http.MethodGet, "/api/v1/gamification/achievements/catalog", "user_1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var catalog []achievement.DefinitionWithStatus
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &catalog))
	unlocked := 0
	for _, d := range catalog {
		if d.Unlocked {
			unlocked++
		}
	}
	assert.Equal(t, 4, unlocked)
}

func TestGetLeaderboardHandler(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	for i, xp := range []int{300, 50, 900} {
		st := stats.New("user_" + strconv.Itoa(i))
		st.TotalXP = xp
		require.NoError(t, s.store.UpsertStats(ctx, st))
	}

	rr := s.do(t, http.MethodGet, "/api/v1/gamification/leaderboard?limit=1", "user_1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var board struct {
		Entries []struct {
			UserID string `json:"user_id"`
			Rank   int    `json:"rank"`
		} `json:"entries"`
		UserPosition struct {
			Rank int `json:"rank"`
		} `json:"user_position"`
		TotalUsers int `json:"total_users"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &board))
	require.Len(t, board.Entries, 1)
	assert.Equal(t, "user_2", board.Entries[0].UserID)
	assert.Equal(t, 3, board.UserPosition.Rank)
	assert.Equal(t, 3, board.TotalUsers)
}

func TestRegisterDevice(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/api/v1/notifications/devices", "user_1",
		notification.RegisterDeviceRequest{Token: "fcm-token", Platform: "android"})
	assert.Equal(t, http.StatusCreated, rr.Code)

	rr = s.do(t, http.MethodPost, "/api/v1/notifications/devices", "user_1",
		notification.RegisterDeviceRequest{Token: "fcm-token", Platform: "blackberry"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	tokens, err := s.store.ListDeviceTokens(context.Background(), "user_1")
	require.NoError(t, err)
	assert.Len(t, tokens, 1)
}

func TestNotificationStream(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/notifications/stream"
	header := http.Header{}
	header.Set("X-Test-User", "user_1")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()

	sent := notification.New("user_1", notification.NotificationLevelUp, "Level Up!", "level 2")
	// the subscription is registered before the upgrade completes
	require.NoError(t, s.bus.Publish(context.Background(), sent))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got notification.Notification
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, sent.ID, got.ID)
	assert.Equal(t, notification.NotificationLevelUp, got.Type)
}

func signWebhook(t *testing.T, secret, id string, ts time.Time, body []byte) http.Header {
	t.Helper()
	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, "whsec_"))
	require.NoError(t, err)
	stamp := strconv.FormatInt(ts.Unix(), 10)
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(id + "." + stamp + "." + string(body)))

	h := http.Header{}
	h.Set("svix-id", id)
	h.Set("svix-timestamp", stamp)
	h.Set("svix-signature", "v1,bogus v1,"+base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	return h
}

func TestClerkWebhookCreatesStats(t *testing.T) {
	s := newTestServer(t)
	secret := "whsec_" + base64.StdEncoding.EncodeToString([]byte("super-secret-key"))
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	h := NewWebhookHandler(s.svc, secret, logger.NewNop())
	h.now = func() time.Time { return now }

	body := []byte(`{"type":"user.created","data":{"id":"user_new"}}`)

	send := func(header http.Header) int {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/clerk", bytes.NewReader(body))
		for k, v := range header {
			req.Header[k] = v
		}
		rr := httptest.NewRecorder()
		h.HandleClerkWebhook(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusUnauthorized, send(http.Header{}))
	assert.Equal(t, http.StatusUnauthorized, send(signWebhook(t, secret, "msg_1", now.Add(-time.Hour), body)))

	require.Equal(t, http.StatusOK, send(signWebhook(t, secret, "msg_1", now, body)))
	st, err := s.store.GetStats(context.Background(), "user_new")
	require.NoError(t, err)
	assert.Equal(t, 0, st.TotalXP)
}
