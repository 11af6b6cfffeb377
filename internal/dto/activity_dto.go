package dto

import (
	"time"

	"github.com/noah-isme/activity-api/internal/models"
)

// ActivityHeaders is the subset of request headers kept per activity.
type ActivityHeaders struct {
	Accept         string `json:"accept"`
	AcceptLanguage string `json:"acceptLanguage"`
}

// ActivityCreateRequest is a single activity submitted by a tracking client.
type ActivityCreateRequest struct {
	URL          string                 `json:"url" validate:"max=8192"`
	Pathname     string                 `json:"pathname" validate:"max=2048"`
	Method       string                 `json:"method"`
	UserAgent    string                 `json:"userAgent"`
	Referer      string                 `json:"referer"`
	IP           string                 `json:"ip" validate:"max=64"`
	Timestamp    string                 `json:"timestamp"`
	SearchParams map[string]interface{} `json:"searchParams"`
	Headers      *ActivityHeaders       `json:"headers"`
	SessionID    *string                `json:"sessionId" validate:"omitempty,max=255"`
	UserID       *uint                  `json:"userId"`
	ResponseTime *float64               `json:"responseTime" validate:"omitempty,gte=0"`
	StatusCode   *int                   `json:"statusCode" validate:"omitempty,gte=100,lte=599"`
}

// ActivityBatchRequest wraps a batch of activities.
type ActivityBatchRequest struct {
	Activities []ActivityCreateRequest `json:"activities"`
}

// ActivityCreatedResponse is returned after logging a single activity.
type ActivityCreatedResponse struct {
	ID        uint      `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Pathname  string    `json:"pathname"`
	Method    string    `json:"method"`
}

// ActivityBatchResponse is returned after logging a batch.
type ActivityBatchResponse struct {
	Count int    `json:"count"`
	IDs   []uint `json:"ids"`
}

// ActivityResponse serializes a stored activity.
type ActivityResponse struct {
	ID           uint                   `json:"id"`
	URL          string                 `json:"url"`
	Pathname     string                 `json:"pathname"`
	Method       string                 `json:"method"`
	UserAgent    string                 `json:"userAgent"`
	Referer      string                 `json:"referer"`
	IP           string                 `json:"ip"`
	Timestamp    time.Time              `json:"timestamp"`
	SearchParams map[string]interface{} `json:"searchParams"`
	Headers      ActivityHeaders        `json:"headers"`
	SessionID    *string                `json:"sessionId"`
	UserID       *uint                  `json:"userId"`
	DeviceType   string                 `json:"deviceType"`
	Browser      string                 `json:"browser"`
	OS           string                 `json:"os"`
	ResponseTime *float64               `json:"responseTime"`
	StatusCode   int                    `json:"statusCode"`
	CreatedAt    time.Time              `json:"createdAt"`
	UpdatedAt    time.Time              `json:"updatedAt"`
}

// NewActivityResponse converts a model into a DTO.
func NewActivityResponse(activity models.Activity) ActivityResponse {
	return ActivityResponse{
		ID:           activity.ID,
		URL:          activity.URL,
		Pathname:     activity.Pathname,
		Method:       activity.Method,
		UserAgent:    activity.UserAgent,
		Referer:      activity.Referer,
		IP:           activity.IP,
		Timestamp:    activity.Timestamp,
		SearchParams: metadataFromJSON(activity.SearchParams),
		Headers: ActivityHeaders{
			Accept:         activity.HeaderAccept,
			AcceptLanguage: activity.HeaderAcceptLanguage,
		},
		SessionID:    activity.SessionID,
		UserID:       activity.UserID,
		DeviceType:   activity.DeviceType,
		Browser:      activity.Browser,
		OS:           activity.OS,
		ResponseTime: activity.ResponseTime,
		StatusCode:   activity.StatusCode,
		CreatedAt:    activity.CreatedAt,
		UpdatedAt:    activity.UpdatedAt,
	}
}

// NewActivityResponses converts a slice of models.
func NewActivityResponses(items []models.Activity) []ActivityResponse {
	responses := make([]ActivityResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, NewActivityResponse(item))
	}
	return responses
}

// ActivityListRequest carries the parsed query of GET /api/activity.
type ActivityListRequest struct {
	Limit     int
	Offset    int
	StartDate *time.Time
	EndDate   *time.Time
	Method    string
	Pathname  string
	IP        string
	UserID    *uint
	SessionID string
	SortBy    string
	SortOrder string
}

// ActivityPagination is the offset based pagination block of activity lists.
type ActivityPagination struct {
	Total       int64 `json:"total"`
	Limit       int   `json:"limit"`
	Offset      int   `json:"offset"`
	Pages       int   `json:"pages"`
	CurrentPage int   `json:"currentPage"`
}

// ActivityListFilters echoes the filters applied to a list query.
type ActivityListFilters struct {
	StartDate *time.Time `json:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`
	Method    string     `json:"method,omitempty"`
	Pathname  string     `json:"pathname,omitempty"`
	IP        string     `json:"ip,omitempty"`
	UserID    *uint      `json:"userId,omitempty"`
	SessionID string     `json:"sessionId,omitempty"`
	SortBy    string     `json:"sortBy"`
	SortOrder string     `json:"sortOrder"`
}

// ActivityListResponse is returned by GET /api/activity.
type ActivityListResponse struct {
	Activities []ActivityResponse  `json:"activities"`
	Pagination ActivityPagination  `json:"pagination"`
	Filters    ActivityListFilters `json:"filters"`
}

// UserActivityListResponse is returned by GET /api/activity/user/:userId.
type UserActivityListResponse struct {
	UserID     uint               `json:"userId"`
	Activities []ActivityResponse `json:"activities"`
	Total      int64              `json:"total"`
	Limit      int                `json:"limit"`
	Offset     int                `json:"offset"`
}

// ActivityWindowRequest is a time window shared by the analytics routes.
type ActivityWindowRequest struct {
	StartDate *time.Time
	EndDate   *time.Time
}

// ActivityStatsRequest carries the parsed query of GET /api/activity/stats.
type ActivityStatsRequest struct {
	ActivityWindowRequest
	GroupBy string
}

// ActivityPeriod is the resolved window of a stats response.
type ActivityPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ActivityStatsSummary aggregates headline counters.
type ActivityStatsSummary struct {
	TotalActivities int64          `json:"totalActivities"`
	UniqueIPs       int64          `json:"uniqueIPs"`
	UniquePages     int64          `json:"uniquePages"`
	Period          ActivityPeriod `json:"period"`
}

// DistributionBucket is one group of a categorical distribution.
type DistributionBucket struct {
	Key   string `json:"_id"`
	Count int64  `json:"count"`
}

// TimeBucket is one group of a time based distribution.
type TimeBucket struct {
	Key   int   `json:"_id"`
	Count int64 `json:"count"`
}

// ActivityStatsResponse is returned by GET /api/activity/stats.
type ActivityStatsResponse struct {
	Summary            ActivityStatsSummary `json:"summary"`
	MethodDistribution []DistributionBucket `json:"methodDistribution"`
	DeviceDistribution []DistributionBucket `json:"deviceDistribution"`
	TimeDistribution   []TimeBucket         `json:"timeDistribution"`
	GroupBy            string               `json:"groupBy"`
	CacheHit           bool                 `json:"cacheHit"`
}

// PopularPagesRequest carries the parsed query of GET /api/activity/popular-pages.
type PopularPagesRequest struct {
	ActivityWindowRequest
	Limit int
}

// PopularPageResponse is one entry of the popular pages ranking.
type PopularPageResponse struct {
	Pathname       string    `json:"pathname"`
	Visits         int64     `json:"visits"`
	UniqueVisitors int64     `json:"uniqueVisitors"`
	LastVisit      time.Time `json:"lastVisit"`
}

// HourlyActivityResponse is one hour bucket of GET /api/activity/hourly.
type HourlyActivityResponse struct {
	Hour  string `json:"hour"`
	Count int64  `json:"count"`
}

// ActivityCleanupRequest carries the parsed query of DELETE /api/activity/cleanup.
type ActivityCleanupRequest struct {
	Days   int
	DryRun bool
}

// ActivityCleanupResponse reports the outcome of a cleanup run.
type ActivityCleanupResponse struct {
	Message      string    `json:"message"`
	DryRun       bool      `json:"dryRun"`
	MatchedCount int64     `json:"matchedCount"`
	DeletedCount int64     `json:"deletedCount"`
	CutoffDate   time.Time `json:"cutoffDate"`
}

// ActivityHealthResponse reports database reachability.
type ActivityHealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Database  string    `json:"database"`
	Version   string    `json:"version"`
	Error     string    `json:"error,omitempty"`
}
