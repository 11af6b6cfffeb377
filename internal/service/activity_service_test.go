package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/activity-api/internal/dto"
	"github.com/noah-isme/activity-api/internal/models"
	"github.com/noah-isme/activity-api/internal/repository"
	"github.com/noah-isme/activity-api/internal/testutil"
	"github.com/noah-isme/activity-api/internal/utils"
	"github.com/noah-isme/activity-api/pkg/events"
)

var fixedNow = time.Date(2024, 5, 10, 12, 30, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

type activityFixture struct {
	svc       *activityService
	repo      repository.ActivityRepository
	publisher *recordingPublisher
	redis     *miniredis.Miniredis
}

func newActivityFixture(t *testing.T) activityFixture {
	t.Helper()

	db := testutil.NewSQLite(t)
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := repository.NewActivityRepository(db)
	publisher := &recordingPublisher{}
	svc := NewActivityService(repo, client, time.Minute, publisher, utils.NewValidator(), testutil.Logger()).(*activityService)
	svc.now = func() time.Time { return fixedNow }

	return activityFixture{svc: svc, repo: repo, publisher: publisher, redis: server}
}

func activityAt(pathname, method, ip, timestamp string) dto.ActivityCreateRequest {
	return dto.ActivityCreateRequest{
		URL:       "https://example.com" + pathname,
		Pathname:  pathname,
		Method:    method,
		IP:        ip,
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0",
		Timestamp: timestamp,
	}
}

func TestActivityServiceLogAppliesDefaults(t *testing.T) {
	f := newActivityFixture(t)
	ctx := context.Background()

	created, err := f.svc.Log(ctx, dto.ActivityCreateRequest{
		URL:      "https://example.com/pricing",
		Pathname: "/pricing",
		Method:   "get",
	}, "10.0.0.1")
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	require.Equal(t, "GET", created.Method)
	require.True(t, created.Timestamp.Equal(fixedNow))

	items, total, err := f.repo.List(ctx, repository.ActivityFilter{Limit: 10, SortBy: "timestamp"})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	stored := items[0]
	require.Equal(t, "10.0.0.1", stored.IP)
	require.Equal(t, "Unknown", stored.UserAgent)
	require.Equal(t, models.DeviceDesktop, stored.DeviceType)
	require.Equal(t, "Other", stored.Browser)
	require.Equal(t, 200, stored.StatusCode)
	require.NotNil(t, stored.SearchParams)

	require.Len(t, f.publisher.events, 1)
	require.Equal(t, events.TypeActivityLogged, f.publisher.events[0].Type)
}

func TestActivityServiceEventCarriesCorrelationID(t *testing.T) {
	f := newActivityFixture(t)
	ctx := events.WithCorrelationID(context.Background(), "req-7")

	_, err := f.svc.Log(ctx, activityAt("/", "GET", "1.1.1.1", ""), "")
	require.NoError(t, err)

	require.Len(t, f.publisher.events, 1)
	require.Equal(t, "req-7", f.publisher.events[0].CorrelationID)
	require.True(t, f.publisher.events[0].OccurredAt.Equal(fixedNow))
}

func TestActivityServiceLogRejectsMissingFields(t *testing.T) {
	f := newActivityFixture(t)

	_, err := f.svc.Log(context.Background(), dto.ActivityCreateRequest{URL: "https://example.com"}, "10.0.0.1")

	var validationErr *ActivityValidationError
	require.True(t, errors.As(err, &validationErr))
	require.Equal(t, "Missing required fields: url, pathname, method", validationErr.Message)
	require.Equal(t, []string{"url", "pathname", "method"}, validationErr.Details["required"])
	require.Empty(t, f.publisher.events)
}

func TestActivityServiceLogRejectsInvalidMethod(t *testing.T) {
	f := newActivityFixture(t)

	_, err := f.svc.Log(context.Background(), activityAt("/", "FETCH", "1.1.1.1", ""), "")

	var validationErr *ActivityValidationError
	require.True(t, errors.As(err, &validationErr))
	require.Equal(t, "Invalid HTTP method", validationErr.Message)
	require.Contains(t, validationErr.Details, "validMethods")
}

func TestActivityServiceLogRejectsOutOfRangeStatus(t *testing.T) {
	f := newActivityFixture(t)
	payload := activityAt("/", "GET", "1.1.1.1", "")
	status := 42
	payload.StatusCode = &status

	_, err := f.svc.Log(context.Background(), payload, "")

	var validationErrs validator.ValidationErrors
	require.True(t, errors.As(err, &validationErrs))
	require.Equal(t, "gte=100", utils.ValidationDetails(err)["statusCode"])
}

func TestActivityServiceLogRejectsBadTimestamp(t *testing.T) {
	f := newActivityFixture(t)

	_, err := f.svc.Log(context.Background(), activityAt("/", "GET", "1.1.1.1", "yesterday"), "")

	var validationErr *ActivityValidationError
	require.True(t, errors.As(err, &validationErr))
	require.Equal(t, "Invalid timestamp", validationErr.Message)
}

func TestActivityServiceLogBatchValidation(t *testing.T) {
	f := newActivityFixture(t)
	ctx := context.Background()

	_, err := f.svc.LogBatch(ctx, dto.ActivityBatchRequest{}, "")
	var validationErr *ActivityValidationError
	require.True(t, errors.As(err, &validationErr))
	require.Equal(t, "Activities must be a non-empty array", validationErr.Message)

	oversized := make([]dto.ActivityCreateRequest, MaxBatchSize+1)
	for i := range oversized {
		oversized[i] = activityAt("/", "GET", "1.1.1.1", "")
	}
	_, err = f.svc.LogBatch(ctx, dto.ActivityBatchRequest{Activities: oversized}, "")
	require.True(t, errors.As(err, &validationErr))
	require.Equal(t, "Maximum 100 activities allowed per batch", validationErr.Message)

	_, err = f.svc.LogBatch(ctx, dto.ActivityBatchRequest{Activities: []dto.ActivityCreateRequest{
		activityAt("/a", "GET", "1.1.1.1", ""),
		{URL: "https://example.com/b"},
	}}, "")
	require.True(t, errors.As(err, &validationErr))
	require.Equal(t, "Activity at index 1 is missing required fields", validationErr.Message)

	total, err := f.repo.Count(ctx, repository.TimeWindow{Start: fixedNow.Add(-time.Hour), End: fixedNow.Add(time.Hour)})
	require.NoError(t, err)
	require.Zero(t, total, "a rejected batch stores nothing")
}

func TestActivityServiceLogBatchStoresAll(t *testing.T) {
	f := newActivityFixture(t)

	result, err := f.svc.LogBatch(context.Background(), dto.ActivityBatchRequest{Activities: []dto.ActivityCreateRequest{
		activityAt("/a", "GET", "1.1.1.1", ""),
		activityAt("/b", "POST", "", ""),
		activityAt("/c", "DELETE", "3.3.3.3", "2024-05-10T09:00:00Z"),
	}}, "9.9.9.9")
	require.NoError(t, err)
	require.Equal(t, 3, result.Count)
	require.Len(t, result.IDs, 3)
	require.Len(t, f.publisher.events, 1)

	list, err := f.svc.List(context.Background(), dto.ActivityListRequest{IP: "9.9.9.9"})
	require.NoError(t, err)
	require.EqualValues(t, 1, list.Pagination.Total)
	require.Equal(t, "/b", list.Activities[0].Pathname)
}

func TestActivityServiceListPaginates(t *testing.T) {
	f := newActivityFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := f.svc.Log(ctx, activityAt(fmt.Sprintf("/page/%d", i), "GET", "1.1.1.1", fixedNow.Add(-time.Duration(i)*time.Hour).Format(time.RFC3339)), "")
		require.NoError(t, err)
	}

	list, err := f.svc.List(ctx, dto.ActivityListRequest{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.EqualValues(t, 5, list.Pagination.Total)
	require.Equal(t, 3, list.Pagination.Pages)
	require.Equal(t, 2, list.Pagination.CurrentPage)
	require.Len(t, list.Activities, 2)
	require.Equal(t, "/page/2", list.Activities[0].Pathname)
	require.Equal(t, "desc", list.Filters.SortOrder)

	asc, err := f.svc.List(ctx, dto.ActivityListRequest{Limit: 1, SortBy: "timestamp", SortOrder: "ASC"})
	require.NoError(t, err)
	require.Equal(t, "/page/4", asc.Activities[0].Pathname)

	_, err = f.svc.List(ctx, dto.ActivityListRequest{SortBy: "password"})
	var validationErr *ActivityValidationError
	require.True(t, errors.As(err, &validationErr))
}

func TestActivityServiceListByUser(t *testing.T) {
	f := newActivityFixture(t)
	ctx := context.Background()
	userID := uint(7)

	owned := activityAt("/mine", "GET", "1.1.1.1", "")
	owned.UserID = &userID
	_, err := f.svc.Log(ctx, owned, "")
	require.NoError(t, err)
	_, err = f.svc.Log(ctx, activityAt("/other", "GET", "1.1.1.1", ""), "")
	require.NoError(t, err)

	result, err := f.svc.ListByUser(ctx, userID, 0, 0)
	require.NoError(t, err)
	require.Equal(t, userID, result.UserID)
	require.EqualValues(t, 1, result.Total)
	require.Equal(t, DefaultListLimit, result.Limit)
	require.Equal(t, "/mine", result.Activities[0].Pathname)
}

func TestActivityServiceStatsAggregatesAndCaches(t *testing.T) {
	f := newActivityFixture(t)
	ctx := context.Background()

	seed := []dto.ActivityCreateRequest{
		activityAt("/", "GET", "1.1.1.1", "2024-05-10T10:05:00Z"),
		activityAt("/", "GET", "2.2.2.2", "2024-05-10T10:45:00Z"),
		activityAt("/login", "POST", "1.1.1.1", "2024-05-10T11:15:00Z"),
		activityAt("/old", "GET", "3.3.3.3", "2024-04-01T08:00:00Z"),
	}
	seed[1].UserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile Safari"
	_, err := f.svc.LogBatch(ctx, dto.ActivityBatchRequest{Activities: seed}, "")
	require.NoError(t, err)

	stats, err := f.svc.Stats(ctx, dto.ActivityStatsRequest{GroupBy: "hour"})
	require.NoError(t, err)
	require.False(t, stats.CacheHit)
	require.EqualValues(t, 3, stats.Summary.TotalActivities)
	require.EqualValues(t, 2, stats.Summary.UniqueIPs)
	require.EqualValues(t, 2, stats.Summary.UniquePages)
	require.Equal(t, fixedNow.Add(time.Minute).Add(-DefaultStatsWindow), stats.Summary.Period.Start)
	require.Equal(t, []dto.DistributionBucket{{Key: "GET", Count: 2}, {Key: "POST", Count: 1}}, stats.MethodDistribution)
	require.Equal(t, []dto.DistributionBucket{{Key: "desktop", Count: 2}, {Key: "mobile", Count: 1}}, stats.DeviceDistribution)
	require.Equal(t, []dto.TimeBucket{{Key: 10, Count: 2}, {Key: 11, Count: 1}}, stats.TimeDistribution)
	require.Len(t, f.redis.Keys(), 2, "generation counter plus one cached entry")

	cached, err := f.svc.Stats(ctx, dto.ActivityStatsRequest{GroupBy: "hour"})
	require.NoError(t, err)
	require.True(t, cached.CacheHit)
	require.Equal(t, stats.Summary.TotalActivities, cached.Summary.TotalActivities)

	byDay, err := f.svc.Stats(ctx, dto.ActivityStatsRequest{})
	require.NoError(t, err)
	require.Equal(t, GroupByDay, byDay.GroupBy)
	require.Equal(t, []dto.TimeBucket{{Key: fixedNow.YearDay(), Count: 3}}, byDay.TimeDistribution)
}

func TestActivityServiceStatsCacheDroppedAfterWrites(t *testing.T) {
	f := newActivityFixture(t)
	ctx := context.Background()

	_, err := f.svc.Log(ctx, activityAt("/", "GET", "1.1.1.1", "2024-05-10T10:00:00Z"), "")
	require.NoError(t, err)

	first, err := f.svc.Stats(ctx, dto.ActivityStatsRequest{})
	require.NoError(t, err)
	require.EqualValues(t, 1, first.Summary.TotalActivities)

	cached, err := f.svc.Stats(ctx, dto.ActivityStatsRequest{})
	require.NoError(t, err)
	require.True(t, cached.CacheHit)

	_, err = f.svc.Log(ctx, activityAt("/pricing", "GET", "2.2.2.2", "2024-05-10T11:00:00Z"), "")
	require.NoError(t, err)

	fresh, err := f.svc.Stats(ctx, dto.ActivityStatsRequest{})
	require.NoError(t, err)
	require.False(t, fresh.CacheHit)
	require.EqualValues(t, 2, fresh.Summary.TotalActivities)

	_, err = f.svc.LogBatch(ctx, dto.ActivityBatchRequest{Activities: []dto.ActivityCreateRequest{
		activityAt("/", "POST", "3.3.3.3", "2024-05-10T11:30:00Z"),
	}}, "")
	require.NoError(t, err)

	afterBatch, err := f.svc.Stats(ctx, dto.ActivityStatsRequest{})
	require.NoError(t, err)
	require.False(t, afterBatch.CacheHit)
	require.EqualValues(t, 3, afterBatch.Summary.TotalActivities)

	_, err = f.svc.Log(ctx, activityAt("/", "GET", "4.4.4.4", "2024-01-01T00:00:00Z"), "")
	require.NoError(t, err)
	_, err = f.svc.Stats(ctx, dto.ActivityStatsRequest{})
	require.NoError(t, err)

	cleaned, err := f.svc.Cleanup(ctx, dto.ActivityCleanupRequest{Days: 30})
	require.NoError(t, err)
	require.EqualValues(t, 1, cleaned.DeletedCount)

	afterCleanup, err := f.svc.Stats(ctx, dto.ActivityStatsRequest{})
	require.NoError(t, err)
	require.False(t, afterCleanup.CacheHit)
	require.EqualValues(t, 3, afterCleanup.Summary.TotalActivities)
}

func TestActivityServiceStatsValidatesInput(t *testing.T) {
	f := newActivityFixture(t)
	ctx := context.Background()

	_, err := f.svc.Stats(ctx, dto.ActivityStatsRequest{GroupBy: "week"})
	var validationErr *ActivityValidationError
	require.True(t, errors.As(err, &validationErr))

	start := fixedNow
	end := fixedNow.Add(-time.Hour)
	_, err = f.svc.Stats(ctx, dto.ActivityStatsRequest{ActivityWindowRequest: dto.ActivityWindowRequest{StartDate: &start, EndDate: &end}})
	require.True(t, errors.As(err, &validationErr))
}

func TestActivityServiceStatsWithoutCache(t *testing.T) {
	db := testutil.NewSQLite(t)
	svc := NewActivityService(repository.NewActivityRepository(db), nil, 0, nil, utils.NewValidator(), testutil.Logger())

	stats, err := svc.Stats(context.Background(), dto.ActivityStatsRequest{})
	require.NoError(t, err)
	require.Zero(t, stats.Summary.TotalActivities)
	require.Empty(t, stats.MethodDistribution)
}

func TestActivityServicePopularPages(t *testing.T) {
	f := newActivityFixture(t)
	ctx := context.Background()

	_, err := f.svc.LogBatch(ctx, dto.ActivityBatchRequest{Activities: []dto.ActivityCreateRequest{
		activityAt("/docs", "GET", "1.1.1.1", "2024-05-10T08:00:00Z"),
		activityAt("/docs", "GET", "1.1.1.1", "2024-05-10T09:00:00Z"),
		activityAt("/docs", "GET", "2.2.2.2", "2024-05-10T11:00:00Z"),
		activityAt("/blog", "GET", "1.1.1.1", "2024-05-10T10:00:00Z"),
	}}, "")
	require.NoError(t, err)

	pages, err := f.svc.PopularPages(ctx, dto.PopularPagesRequest{Limit: 1})
	require.NoError(t, err)
	require.Len(t, pages, 1)
	require.Equal(t, "/docs", pages[0].Pathname)
	require.EqualValues(t, 3, pages[0].Visits)
	require.EqualValues(t, 2, pages[0].UniqueVisitors)
	require.True(t, pages[0].LastVisit.Equal(time.Date(2024, 5, 10, 11, 0, 0, 0, time.UTC)))
}

func TestActivityServiceHourly(t *testing.T) {
	f := newActivityFixture(t)
	ctx := context.Background()

	_, err := f.svc.LogBatch(ctx, dto.ActivityBatchRequest{Activities: []dto.ActivityCreateRequest{
		activityAt("/", "GET", "1.1.1.1", "2024-05-10T09:10:00Z"),
		activityAt("/", "GET", "1.1.1.1", "2024-05-10T09:50:00Z"),
		activityAt("/", "GET", "1.1.1.1", "2024-05-09T23:00:00Z"),
		activityAt("/", "GET", "1.1.1.1", "2024-05-08T09:00:00Z"),
	}}, "")
	require.NoError(t, err)

	hours, err := f.svc.Hourly(ctx, dto.ActivityWindowRequest{})
	require.NoError(t, err)
	require.Equal(t, []dto.HourlyActivityResponse{
		{Hour: "9:00", Count: 2},
		{Hour: "23:00", Count: 1},
	}, hours)
}

func TestActivityServiceCleanup(t *testing.T) {
	f := newActivityFixture(t)
	ctx := context.Background()

	_, err := f.svc.LogBatch(ctx, dto.ActivityBatchRequest{Activities: []dto.ActivityCreateRequest{
		activityAt("/", "GET", "1.1.1.1", "2024-05-09T12:00:00Z"),
		activityAt("/", "GET", "1.1.1.1", "2024-03-01T12:00:00Z"),
		activityAt("/", "GET", "1.1.1.1", "2024-01-01T12:00:00Z"),
	}}, "")
	require.NoError(t, err)

	dry, err := f.svc.Cleanup(ctx, dto.ActivityCleanupRequest{DryRun: true})
	require.NoError(t, err)
	require.True(t, dry.DryRun)
	require.EqualValues(t, 2, dry.MatchedCount)
	require.Zero(t, dry.DeletedCount)
	require.Equal(t, "Would delete 2 activities older than 30 days", dry.Message)
	require.Equal(t, fixedNow.Add(-30*24*time.Hour), dry.CutoffDate)

	done, err := f.svc.Cleanup(ctx, dto.ActivityCleanupRequest{Days: 90})
	require.NoError(t, err)
	require.EqualValues(t, 1, done.DeletedCount)
	require.Equal(t, "Deleted 1 activities older than 90 days", done.Message)

	_, err = f.svc.Cleanup(ctx, dto.ActivityCleanupRequest{Days: -1})
	var validationErr *ActivityValidationError
	require.True(t, errors.As(err, &validationErr))
}

func TestParseTime(t *testing.T) {
	cases := map[string]time.Time{
		"2024-05-10":                time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC),
		"2024-05-10T08:30:00Z":      time.Date(2024, 5, 10, 8, 30, 0, 0, time.UTC),
		"2024-05-10T10:30:00+02:00": time.Date(2024, 5, 10, 8, 30, 0, 0, time.UTC),
		"2024-05-10T08:30:00":       time.Date(2024, 5, 10, 8, 30, 0, 0, time.UTC),
	}
	for raw, want := range cases {
		got, err := ParseTime(raw)
		require.NoError(t, err, raw)
		require.True(t, want.Equal(got), raw)
	}

	_, err := ParseTime("10/05/2024")
	require.Error(t, err)
}
