package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/noah-isme/activity-api/internal/dto"
	"github.com/noah-isme/activity-api/internal/models"
	"github.com/noah-isme/activity-api/internal/observability"
	"github.com/noah-isme/activity-api/internal/repository"
	"github.com/noah-isme/activity-api/internal/utils"
	"github.com/noah-isme/activity-api/pkg/events"
)

// Limits applied to activity queries.
const (
	DefaultListLimit    = 50
	MaxListLimit        = 200
	MaxBatchSize        = 100
	DefaultPopularLimit = 10
	MaxPopularLimit     = 100
	DefaultCleanupDays  = 30
	DefaultStatsWindow  = 7 * 24 * time.Hour
	DefaultHourlyWindow = 24 * time.Hour
)

// Supported stats groupings.
const (
	GroupByHour  = repository.BucketHour
	GroupByDay   = repository.BucketDay
	GroupByMonth = repository.BucketMonth
)

// statsGenerationKey is bumped on every write so cached stats from before the write are never served.
const statsGenerationKey = "activity:stats:generation"

var optionalActivityFields = []string{"userAgent", "referer", "ip", "searchParams", "headers", "sessionId", "userId"}

// ActivityService records request activities and serves aggregate statistics.
type ActivityService interface {
	Log(ctx context.Context, payload dto.ActivityCreateRequest, clientIP string) (dto.ActivityCreatedResponse, error)
	LogBatch(ctx context.Context, payload dto.ActivityBatchRequest, clientIP string) (dto.ActivityBatchResponse, error)
	List(ctx context.Context, req dto.ActivityListRequest) (dto.ActivityListResponse, error)
	ListByUser(ctx context.Context, userID uint, limit, offset int) (dto.UserActivityListResponse, error)
	Stats(ctx context.Context, req dto.ActivityStatsRequest) (dto.ActivityStatsResponse, error)
	PopularPages(ctx context.Context, req dto.PopularPagesRequest) ([]dto.PopularPageResponse, error)
	Hourly(ctx context.Context, req dto.ActivityWindowRequest) ([]dto.HourlyActivityResponse, error)
	Cleanup(ctx context.Context, req dto.ActivityCleanupRequest) (dto.ActivityCleanupResponse, error)
	Ping(ctx context.Context) error
}

type activityService struct {
	repo      repository.ActivityRepository
	cache     *redis.Client
	cacheTTL  time.Duration
	publisher events.Publisher
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewActivityService constructs the activity service. cache and publisher are optional.
func NewActivityService(repo repository.ActivityRepository, cache *redis.Client, cacheTTL time.Duration, publisher events.Publisher, validator *validator.Validate, logger zerolog.Logger) ActivityService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &activityService{
		repo:      repo,
		cache:     cache,
		cacheTTL:  cacheTTL,
		publisher: publisher,
		validator: validator,
		logger:    logger.With().Str("component", "activity_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/activity-api/internal/service/activity"),
		now:       time.Now,
	}
}

func (s *activityService) Log(ctx context.Context, payload dto.ActivityCreateRequest, clientIP string) (dto.ActivityCreatedResponse, error) {
	activity, err := s.buildActivity(payload, clientIP, -1)
	if err != nil {
		return dto.ActivityCreatedResponse{}, err
	}

	if err := s.repo.Create(ctx, &activity); err != nil {
		s.logger.Error().Err(err).Msg("failed to persist activity")
		return dto.ActivityCreatedResponse{}, fmt.Errorf("create activity: %w", err)
	}

	observability.ActivitiesLogged().WithLabelValues(activity.Method, activity.DeviceType).Inc()
	s.invalidateStats(ctx)
	s.publish(ctx, []uint{activity.ID})

	return dto.ActivityCreatedResponse{
		ID:        activity.ID,
		Timestamp: activity.Timestamp,
		Pathname:  activity.Pathname,
		Method:    activity.Method,
	}, nil
}

func (s *activityService) LogBatch(ctx context.Context, payload dto.ActivityBatchRequest, clientIP string) (dto.ActivityBatchResponse, error) {
	if len(payload.Activities) == 0 {
		return dto.ActivityBatchResponse{}, &ActivityValidationError{Message: "Activities must be a non-empty array"}
	}
	if len(payload.Activities) > MaxBatchSize {
		return dto.ActivityBatchResponse{}, &ActivityValidationError{
			Message: fmt.Sprintf("Maximum %d activities allowed per batch", MaxBatchSize),
		}
	}

	activities := make([]models.Activity, 0, len(payload.Activities))
	for index, item := range payload.Activities {
		activity, err := s.buildActivity(item, clientIP, index)
		if err != nil {
			return dto.ActivityBatchResponse{}, err
		}
		activities = append(activities, activity)
	}

	if err := s.repo.CreateBatch(ctx, activities); err != nil {
		s.logger.Error().Err(err).Int("count", len(activities)).Msg("failed to persist activity batch")
		return dto.ActivityBatchResponse{}, fmt.Errorf("create activity batch: %w", err)
	}

	ids := make([]uint, 0, len(activities))
	for _, activity := range activities {
		ids = append(ids, activity.ID)
		observability.ActivitiesLogged().WithLabelValues(activity.Method, activity.DeviceType).Inc()
	}
	s.invalidateStats(ctx)
	s.publish(ctx, ids)

	return dto.ActivityBatchResponse{Count: len(ids), IDs: ids}, nil
}

func (s *activityService) List(ctx context.Context, req dto.ActivityListRequest) (dto.ActivityListResponse, error) {
	limit := clampLimit(req.Limit, DefaultListLimit, MaxListLimit)
	offset := maxInt(req.Offset, 0)

	sortBy := req.SortBy
	if sortBy == "" {
		sortBy = "timestamp"
	}
	if !repository.IsSortableField(sortBy) {
		return dto.ActivityListResponse{}, &ActivityValidationError{
			Message: "Invalid sortBy field",
			Details: map[string]interface{}{"sortBy": sortBy},
		}
	}
	sortOrder := strings.ToLower(req.SortOrder)
	if sortOrder != "asc" {
		sortOrder = "desc"
	}

	filter := repository.ActivityFilter{
		Limit:     limit,
		Offset:    offset,
		Start:     req.StartDate,
		End:       req.EndDate,
		Method:    strings.ToUpper(strings.TrimSpace(req.Method)),
		Pathname:  strings.TrimSpace(req.Pathname),
		IP:        strings.TrimSpace(req.IP),
		UserID:    req.UserID,
		SessionID: strings.TrimSpace(req.SessionID),
		SortBy:    sortBy,
		SortDesc:  sortOrder == "desc",
	}

	activities, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return dto.ActivityListResponse{}, fmt.Errorf("list activities: %w", err)
	}

	return dto.ActivityListResponse{
		Activities: dto.NewActivityResponses(activities),
		Pagination: dto.ActivityPagination{
			Total:       total,
			Limit:       limit,
			Offset:      offset,
			Pages:       int(math.Ceil(float64(total) / float64(limit))),
			CurrentPage: offset/limit + 1,
		},
		Filters: dto.ActivityListFilters{
			StartDate: req.StartDate,
			EndDate:   req.EndDate,
			Method:    filter.Method,
			Pathname:  filter.Pathname,
			IP:        filter.IP,
			UserID:    filter.UserID,
			SessionID: filter.SessionID,
			SortBy:    sortBy,
			SortOrder: sortOrder,
		},
	}, nil
}

func (s *activityService) ListByUser(ctx context.Context, userID uint, limit, offset int) (dto.UserActivityListResponse, error) {
	limit = clampLimit(limit, DefaultListLimit, MaxListLimit)
	offset = maxInt(offset, 0)

	activities, total, err := s.repo.List(ctx, repository.ActivityFilter{
		Limit:    limit,
		Offset:   offset,
		UserID:   &userID,
		SortBy:   "timestamp",
		SortDesc: true,
	})
	if err != nil {
		return dto.UserActivityListResponse{}, fmt.Errorf("list user activities: %w", err)
	}

	return dto.UserActivityListResponse{
		UserID:     userID,
		Activities: dto.NewActivityResponses(activities),
		Total:      total,
		Limit:      limit,
		Offset:     offset,
	}, nil
}

func (s *activityService) Stats(ctx context.Context, req dto.ActivityStatsRequest) (dto.ActivityStatsResponse, error) {
	groupBy := strings.ToLower(strings.TrimSpace(req.GroupBy))
	if groupBy == "" {
		groupBy = GroupByDay
	}
	if groupBy != GroupByHour && groupBy != GroupByDay && groupBy != GroupByMonth {
		return dto.ActivityStatsResponse{}, &ActivityValidationError{
			Message: "Invalid groupBy value",
			Details: map[string]interface{}{"validGroupBy": []string{GroupByHour, GroupByDay, GroupByMonth}},
		}
	}

	window, err := s.resolveWindow(req.ActivityWindowRequest, DefaultStatsWindow)
	if err != nil {
		return dto.ActivityStatsResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "activity.stats")
	cacheKey := fmt.Sprintf("activity:stats:g%d:%d:%d:%s", s.statsGeneration(ctx), window.Start.UnixNano(), window.End.UnixNano(), groupBy)
	span.SetAttributes(
		attribute.String("activity.stats.cache_key", cacheKey),
		attribute.String("activity.stats.group_by", groupBy),
	)
	defer span.End()

	if cached, ok := s.readStatsCache(ctx, span, cacheKey); ok {
		return cached, nil
	}

	response, err := s.aggregateStats(ctx, window, groupBy)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "aggregate_failed")
		return dto.ActivityStatsResponse{}, err
	}
	span.SetAttributes(attribute.Int64("activity.stats.total", response.Summary.TotalActivities))

	s.writeStatsCache(ctx, span, cacheKey, response)
	return response, nil
}

func (s *activityService) aggregateStats(ctx context.Context, window repository.TimeWindow, groupBy string) (dto.ActivityStatsResponse, error) {
	total, err := s.repo.Count(ctx, window)
	if err != nil {
		return dto.ActivityStatsResponse{}, fmt.Errorf("count activities: %w", err)
	}

	uniqueIPs, err := s.repo.CountDistinct(ctx, "ip", window)
	if err != nil {
		return dto.ActivityStatsResponse{}, fmt.Errorf("count unique ips: %w", err)
	}

	uniquePages, err := s.repo.CountDistinct(ctx, "pathname", window)
	if err != nil {
		return dto.ActivityStatsResponse{}, fmt.Errorf("count unique pages: %w", err)
	}

	methods, err := s.repo.GroupCount(ctx, "method", window)
	if err != nil {
		return dto.ActivityStatsResponse{}, fmt.Errorf("method distribution: %w", err)
	}

	devices, err := s.repo.GroupCount(ctx, "deviceType", window)
	if err != nil {
		return dto.ActivityStatsResponse{}, fmt.Errorf("device distribution: %w", err)
	}

	buckets, err := s.repo.TimeDistribution(ctx, groupBy, window)
	if err != nil {
		return dto.ActivityStatsResponse{}, fmt.Errorf("time distribution: %w", err)
	}

	timeDistribution := make([]dto.TimeBucket, 0, len(buckets))
	for _, bucket := range buckets {
		timeDistribution = append(timeDistribution, dto.TimeBucket{Key: bucket.Bucket, Count: bucket.Total})
	}

	return dto.ActivityStatsResponse{
		Summary: dto.ActivityStatsSummary{
			TotalActivities: total,
			UniqueIPs:       uniqueIPs,
			UniquePages:     uniquePages,
			Period:          dto.ActivityPeriod{Start: window.Start, End: window.End},
		},
		MethodDistribution: toDistribution(methods),
		DeviceDistribution: toDistribution(devices),
		TimeDistribution:   timeDistribution,
		GroupBy:            groupBy,
	}, nil
}

func (s *activityService) readStatsCache(ctx context.Context, span trace.Span, key string) (dto.ActivityStatsResponse, bool) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return dto.ActivityStatsResponse{}, false
	}

	cached, err := s.cache.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read stats cache")
			span.RecordError(err)
		}
		return dto.ActivityStatsResponse{}, false
	}

	var response dto.ActivityStatsResponse
	if err := json.Unmarshal([]byte(cached), &response); err != nil {
		s.logger.Warn().Err(err).Msg("discarding malformed stats cache entry")
		return dto.ActivityStatsResponse{}, false
	}

	response.CacheHit = true
	span.SetAttributes(attribute.Bool("activity.stats.cache_hit", true))
	return response, true
}

func (s *activityService) statsGeneration(ctx context.Context) int64 {
	if s.cache == nil || s.cacheTTL <= 0 {
		return 0
	}
	generation, err := s.cache.Get(ctx, statsGenerationKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		s.logger.Warn().Err(err).Msg("failed to read stats generation")
	}
	return generation
}

func (s *activityService) invalidateStats(ctx context.Context) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}
	if err := s.cache.Incr(ctx, statsGenerationKey).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to invalidate stats cache")
	}
}

func (s *activityService) writeStatsCache(ctx context.Context, span trace.Span, key string, response dto.ActivityStatsResponse) {
	if s.cache == nil || s.cacheTTL <= 0 {
		return
	}

	payload, err := json.Marshal(response)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, payload, s.cacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to store stats cache")
		span.RecordError(err)
	}
}

func (s *activityService) PopularPages(ctx context.Context, req dto.PopularPagesRequest) ([]dto.PopularPageResponse, error) {
	window, err := s.resolveWindow(req.ActivityWindowRequest, DefaultStatsWindow)
	if err != nil {
		return nil, err
	}
	limit := clampLimit(req.Limit, DefaultPopularLimit, MaxPopularLimit)

	rows, err := s.repo.PopularPages(ctx, window, limit)
	if err != nil {
		return nil, fmt.Errorf("popular pages: %w", err)
	}

	pages := make([]dto.PopularPageResponse, 0, len(rows))
	for _, row := range rows {
		pages = append(pages, dto.PopularPageResponse{
			Pathname:       row.Pathname,
			Visits:         row.Visits,
			UniqueVisitors: row.UniqueVisitors,
			LastVisit:      row.LastVisit.Time,
		})
	}
	return pages, nil
}

func (s *activityService) Hourly(ctx context.Context, req dto.ActivityWindowRequest) ([]dto.HourlyActivityResponse, error) {
	window, err := s.resolveWindow(req, DefaultHourlyWindow)
	if err != nil {
		return nil, err
	}

	buckets, err := s.repo.TimeDistribution(ctx, GroupByHour, window)
	if err != nil {
		return nil, fmt.Errorf("hourly distribution: %w", err)
	}

	hours := make([]dto.HourlyActivityResponse, 0, len(buckets))
	for _, bucket := range buckets {
		hours = append(hours, dto.HourlyActivityResponse{
			Hour:  fmt.Sprintf("%d:00", bucket.Bucket),
			Count: bucket.Total,
		})
	}
	return hours, nil
}

func (s *activityService) Cleanup(ctx context.Context, req dto.ActivityCleanupRequest) (dto.ActivityCleanupResponse, error) {
	days := req.Days
	if days == 0 {
		days = DefaultCleanupDays
	}
	if days < 1 {
		return dto.ActivityCleanupResponse{}, &ActivityValidationError{Message: "days must be a positive integer"}
	}

	cutoff := s.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)

	if req.DryRun {
		count, err := s.repo.CountOlderThan(ctx, cutoff)
		if err != nil {
			return dto.ActivityCleanupResponse{}, fmt.Errorf("count expired activities: %w", err)
		}
		return dto.ActivityCleanupResponse{
			Message:      fmt.Sprintf("Would delete %d activities older than %d days", count, days),
			DryRun:       true,
			MatchedCount: count,
			CutoffDate:   cutoff,
		}, nil
	}

	deleted, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error().Err(err).Time("cutoff", cutoff).Msg("failed to delete expired activities")
		return dto.ActivityCleanupResponse{}, fmt.Errorf("delete expired activities: %w", err)
	}

	if deleted > 0 {
		s.invalidateStats(ctx)
	}
	s.logger.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("expired activities deleted")
	return dto.ActivityCleanupResponse{
		Message:      fmt.Sprintf("Deleted %d activities older than %d days", deleted, days),
		MatchedCount: deleted,
		DeletedCount: deleted,
		CutoffDate:   cutoff,
	}, nil
}

func (s *activityService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *activityService) buildActivity(payload dto.ActivityCreateRequest, clientIP string, index int) (models.Activity, error) {
	url := strings.TrimSpace(payload.URL)
	pathname := strings.TrimSpace(payload.Pathname)
	method := strings.ToUpper(strings.TrimSpace(payload.Method))

	if url == "" || pathname == "" || method == "" {
		message := "Missing required fields: url, pathname, method"
		if index >= 0 {
			message = fmt.Sprintf("Activity at index %d is missing required fields", index)
		}
		return models.Activity{}, &ActivityValidationError{
			Message: message,
			Details: map[string]interface{}{
				"required": []string{"url", "pathname", "method"},
				"optional": optionalActivityFields,
			},
		}
	}

	if !models.IsValidMethod(method) {
		message := "Invalid HTTP method"
		if index >= 0 {
			message = fmt.Sprintf("Activity at index %d has an invalid HTTP method", index)
		}
		return models.Activity{}, &ActivityValidationError{
			Message: message,
			Details: map[string]interface{}{"validMethods": models.ValidMethods},
		}
	}

	if err := s.validator.Struct(payload); err != nil {
		if index < 0 {
			return models.Activity{}, err
		}
		return models.Activity{}, &ActivityValidationError{
			Message: fmt.Sprintf("Activity at index %d is invalid", index),
			Details: map[string]interface{}{"fields": utils.ValidationDetails(err)},
		}
	}

	timestamp := s.now().UTC()
	if raw := strings.TrimSpace(payload.Timestamp); raw != "" {
		parsed, err := ParseTime(raw)
		if err != nil {
			return models.Activity{}, &ActivityValidationError{
				Message: "Invalid timestamp",
				Details: map[string]interface{}{"timestamp": raw},
			}
		}
		timestamp = parsed
	}

	activity := models.Activity{
		URL:          url,
		Pathname:     pathname,
		Method:       method,
		UserAgent:    firstNonEmpty(payload.UserAgent, "Unknown"),
		Referer:      strings.TrimSpace(payload.Referer),
		IP:           firstNonEmpty(payload.IP, clientIP, "unknown"),
		Timestamp:    timestamp,
		SearchParams: datatypes.JSONMap(payload.SearchParams),
		SessionID:    nonEmptyPtr(payload.SessionID),
		UserID:       payload.UserID,
		ResponseTime: payload.ResponseTime,
		StatusCode:   fiberStatusOrDefault(payload.StatusCode),
	}
	if payload.Headers != nil {
		activity.HeaderAccept = payload.Headers.Accept
		activity.HeaderAcceptLanguage = payload.Headers.AcceptLanguage
	}
	if activity.SearchParams == nil {
		activity.SearchParams = datatypes.JSONMap{}
	}

	return activity, nil
}

func (s *activityService) resolveWindow(req dto.ActivityWindowRequest, fallback time.Duration) (repository.TimeWindow, error) {
	// Minute granularity keeps the default window stable across calls so cache keys repeat.
	end := s.now().UTC().Truncate(time.Minute).Add(time.Minute)
	if req.EndDate != nil {
		end = req.EndDate.UTC()
	}
	start := end.Add(-fallback)
	if req.StartDate != nil {
		start = req.StartDate.UTC()
	}
	if start.After(end) {
		return repository.TimeWindow{}, &ActivityValidationError{Message: "startDate must not be after endDate"}
	}
	return repository.TimeWindow{Start: start, End: end}, nil
}

func (s *activityService) publish(ctx context.Context, ids []uint) {
	correlationID := events.CorrelationIDFromContext(ctx)
	err := s.publisher.Publish(ctx, events.Event{
		Type:          events.TypeActivityLogged,
		OccurredAt:    s.now().UTC(),
		CorrelationID: correlationID,
		Data: map[string]interface{}{
			"ids":   ids,
			"count": len(ids),
		},
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("correlation_id", correlationID).Int("count", len(ids)).Msg("failed to publish activity event")
	}
}

// ParseTime accepts RFC3339 timestamps with or without zone and plain YYYY-MM-DD dates; results are UTC.
func ParseTime(raw string) (time.Time, error) {
	layouts := []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, strings.TrimSpace(raw)); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported time format %q", raw)
}

func toDistribution(rows []repository.GroupCount) []dto.DistributionBucket {
	buckets := make([]dto.DistributionBucket, 0, len(rows))
	for _, row := range rows {
		buckets = append(buckets, dto.DistributionBucket{Key: row.Bucket, Count: row.Total})
	}
	return buckets
}

func clampLimit(limit, fallback, max int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > max {
		return max
	}
	return limit
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func nonEmptyPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func fiberStatusOrDefault(status *int) int {
	if status == nil || *status == 0 {
		return 200
	}
	return *status
}
