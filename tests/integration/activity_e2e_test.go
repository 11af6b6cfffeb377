package integration_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/activity-api/internal/config"
	"github.com/noah-isme/activity-api/internal/dto"
	"github.com/noah-isme/activity-api/internal/models"
	"github.com/noah-isme/activity-api/internal/server"
	"github.com/noah-isme/activity-api/internal/testutil"
	"github.com/noah-isme/activity-api/pkg/events"
)

func setupApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()

	db := testutil.NewSQLite(t)
	cache := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: cache.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	app := server.New(server.Options{
		Config: config.Config{
			AppName:        "Activity API",
			AppEnv:         "test",
			AppVersion:     "9.9.9",
			JWTSecret:      "integration-secret",
			JWTIssuer:      "activity-api",
			JWTTTL:         time.Hour,
			StatsCacheTTL:  time.Minute,
			AuthRateLimit:  50,
			AuthRateWindow: time.Minute,
		},
		DB:        db,
		Redis:     client,
		Publisher: events.NopPublisher{},
		Logger:    testutil.Logger(),
	})
	return app, db
}

type envelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

func call[T any](t *testing.T, app *fiber.App, method, path, token string, payload interface{}) (int, envelope[T]) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := app.Test(req, -1)
	require.NoError(t, err)
	defer res.Body.Close()

	var out envelope[T]
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &out), string(data))
	return res.StatusCode, out
}

func TestActivityEndToEndFlow(t *testing.T) {
	app, db := setupApp(t)

	// Step 1: register and log in
	status, registered := call[dto.AuthResponse](t, app, http.MethodPost, "/api/auth/register", "", map[string]interface{}{
		"name": "Linus", "email": "linus@example.com", "password": "kernel1", "age": 30,
	})
	require.Equal(t, fiber.StatusCreated, status)
	require.True(t, registered.Success)

	status, login := call[dto.AuthResponse](t, app, http.MethodPost, "/api/auth/login", "", map[string]interface{}{
		"email": "linus@example.com", "password": "kernel1",
	})
	require.Equal(t, fiber.StatusOK, status)
	userToken := login.Data.Token

	// Step 2: log activities
	status, created := call[dto.ActivityCreatedResponse](t, app, http.MethodPost, "/api/activity", userToken, map[string]interface{}{
		"url": "https://example.com/pricing?plan=pro", "pathname": "/pricing", "method": "GET",
		"searchParams": map[string]string{"plan": "pro"}, "userId": login.Data.User.ID,
		"userAgent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0 Safari/537.36 Edg/120.0",
	})
	require.Equal(t, fiber.StatusCreated, status)
	require.NotZero(t, created.Data.ID)

	status, batch := call[dto.ActivityBatchResponse](t, app, http.MethodPost, "/api/activity/batch", userToken, map[string]interface{}{
		"activities": []map[string]interface{}{
			{"url": "https://example.com/", "pathname": "/", "method": "GET", "ip": "198.51.100.1"},
			{"url": "https://example.com/pricing", "pathname": "/pricing", "method": "GET", "ip": "198.51.100.2"},
			{"url": "https://example.com/old", "pathname": "/old", "method": "GET", "timestamp": time.Now().UTC().AddDate(0, 0, -45).Format(time.RFC3339)},
		},
	})
	require.Equal(t, fiber.StatusCreated, status)
	require.Equal(t, 3, batch.Data.Count)

	// Step 3: read back
	status, list := call[dto.ActivityListResponse](t, app, http.MethodGet, "/api/activity?pathname=pricing", userToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	require.EqualValues(t, 2, list.Data.Pagination.Total)

	status, mine := call[dto.UserActivityListResponse](t, app, http.MethodGet, "/api/activity/user/"+strconv.FormatUint(uint64(login.Data.User.ID), 10), userToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	require.EqualValues(t, 1, mine.Data.Total)
	require.Equal(t, "Edge", mine.Data.Activities[0].Browser)
	require.Equal(t, "pro", mine.Data.Activities[0].SearchParams["plan"])

	now := time.Now().UTC()
	statsURL := "/api/activity/stats?startDate=" + now.AddDate(0, 0, -7).Format(time.RFC3339) + "&endDate=" + now.Add(time.Hour).Format(time.RFC3339)
	status, stats := call[dto.ActivityStatsResponse](t, app, http.MethodGet, statsURL, userToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	require.EqualValues(t, 3, stats.Data.Summary.TotalActivities)
	require.False(t, stats.Data.CacheHit)

	_, cached := call[dto.ActivityStatsResponse](t, app, http.MethodGet, statsURL, userToken, nil)
	require.True(t, cached.Data.CacheHit)

	status, pages := call[[]dto.PopularPageResponse](t, app, http.MethodGet, "/api/activity/popular-pages", userToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, "/pricing", pages.Data[0].Pathname)

	// Step 4: cleanup is gated until an admin grants the permission
	status, _ = call[any](t, app, http.MethodDelete, "/api/activity/cleanup", userToken, nil)
	require.Equal(t, fiber.StatusForbidden, status)

	require.NoError(t, db.Model(&models.User{}).Where("id = ?", login.Data.User.ID).Update("role", models.RoleAdmin).Error)
	_, adminLogin := call[dto.AuthResponse](t, app, http.MethodPost, "/api/auth/login", "", map[string]interface{}{
		"email": "linus@example.com", "password": "kernel1",
	})
	adminToken := adminLogin.Data.Token

	status, dry := call[dto.ActivityCleanupResponse](t, app, http.MethodDelete, "/api/activity/cleanup?dryRun=true", adminToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	require.EqualValues(t, 1, dry.Data.MatchedCount)

	status, done := call[dto.ActivityCleanupResponse](t, app, http.MethodDelete, "/api/activity/cleanup", adminToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	require.EqualValues(t, 1, done.Data.DeletedCount)

	// Step 5: admin routes and public health
	status, dashboard := call[dto.AdminDashboardResponse](t, app, http.MethodGet, "/api/users/admin/dashboard", adminToken, nil)
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, "Welcome Admin!", dashboard.Message)
	require.EqualValues(t, 1, dashboard.Data.TotalUsers)

	status, health := call[dto.ActivityHealthResponse](t, app, http.MethodGet, "/api/activity/health", "", nil)
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, "9.9.9", health.Data.Version)
}

func TestRootAndMetricsArePublic(t *testing.T) {
	app, _ := setupApp(t)

	res, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, res.StatusCode)
	text, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.Equal(t, "Activity API is running", string(text))

	res, err = app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, res.StatusCode)

	status, _ := call[any](t, app, http.MethodGet, "/api/nowhere", "", nil)
	require.Equal(t, fiber.StatusNotFound, status)
}
