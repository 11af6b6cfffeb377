package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/activity-api/internal/models"
)

// Time bucket units supported by TimeDistribution.
const (
	BucketHour  = "hour"
	BucketDay   = "day"
	BucketMonth = "month"
)

// ErrUnsupportedColumn is returned when a caller asks to group or sort by an unknown field.
var ErrUnsupportedColumn = errors.New("unsupported column")

// sortColumns maps API field names onto table columns.
var sortColumns = map[string]string{
	"timestamp":    "occurred_at",
	"pathname":     "pathname",
	"method":       "method",
	"ip":           "ip",
	"statusCode":   "status_code",
	"responseTime": "response_time",
	"createdAt":    "created_at",
}

// groupColumns lists columns that categorical distributions may group on.
var groupColumns = map[string]string{
	"method":     "method",
	"deviceType": "device_type",
	"browser":    "browser",
	"os":         "os",
}

// IsSortableField reports whether field may be passed as ActivityFilter.SortBy.
func IsSortableField(field string) bool {
	_, ok := sortColumns[field]
	return ok
}

// TimeWindow bounds a query on the activity timestamp, both ends inclusive.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// ActivityFilter narrows activity listings.
type ActivityFilter struct {
	Limit     int
	Offset    int
	Start     *time.Time
	End       *time.Time
	Method    string
	Pathname  string
	IP        string
	UserID    *uint
	SessionID string
	SortBy    string
	SortDesc  bool
}

// GroupCount is the row count of one categorical group.
type GroupCount struct {
	Bucket string
	Total  int64
}

// TimeCount is the row count of one time bucket.
type TimeCount struct {
	Bucket int
	Total  int64
}

// PageStat aggregates visits of a single pathname.
type PageStat struct {
	Pathname       string
	Visits         int64
	UniqueVisitors int64
	LastVisit      FlexibleTime
}

// ActivityRepository persists and aggregates logged activities.
type ActivityRepository interface {
	Create(ctx context.Context, activity *models.Activity) error
	CreateBatch(ctx context.Context, activities []models.Activity) error
	List(ctx context.Context, filter ActivityFilter) ([]models.Activity, int64, error)
	Count(ctx context.Context, window TimeWindow) (int64, error)
	CountDistinct(ctx context.Context, field string, window TimeWindow) (int64, error)
	GroupCount(ctx context.Context, field string, window TimeWindow) ([]GroupCount, error)
	TimeDistribution(ctx context.Context, unit string, window TimeWindow) ([]TimeCount, error)
	PopularPages(ctx context.Context, window TimeWindow, limit int) ([]PageStat, error)
	CountOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Ping(ctx context.Context) error
}

type activityRepository struct {
	db *gorm.DB
}

// NewActivityRepository constructs the gorm backed activity repository.
func NewActivityRepository(db *gorm.DB) ActivityRepository {
	return &activityRepository{db: db}
}

func (r *activityRepository) Create(ctx context.Context, activity *models.Activity) error {
	return r.db.WithContext(ctx).Create(activity).Error
}

func (r *activityRepository) CreateBatch(ctx context.Context, activities []models.Activity) error {
	if len(activities) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&activities, 100).Error
	})
}

func (r *activityRepository) List(ctx context.Context, filter ActivityFilter) ([]models.Activity, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Activity{})

	if filter.Start != nil {
		query = query.Where("occurred_at >= ?", filter.Start.UTC())
	}
	if filter.End != nil {
		query = query.Where("occurred_at <= ?", filter.End.UTC())
	}
	if filter.Method != "" {
		query = query.Where("method = ?", strings.ToUpper(filter.Method))
	}
	if filter.Pathname != "" {
		pattern := "%" + escapeLike(strings.ToLower(filter.Pathname)) + "%"
		query = query.Where("LOWER(pathname) LIKE ? ESCAPE '\\'", pattern)
	}
	if filter.IP != "" {
		query = query.Where("ip = ?", filter.IP)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.SessionID != "" {
		query = query.Where("session_id = ?", filter.SessionID)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	column := "occurred_at"
	if filter.SortBy != "" {
		mapped, ok := sortColumns[filter.SortBy]
		if !ok {
			return nil, 0, fmt.Errorf("sort by %q: %w", filter.SortBy, ErrUnsupportedColumn)
		}
		column = mapped
	}
	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}
	query = query.Order(column + " " + direction).Order("id " + direction)

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var activities []models.Activity
	if err := query.Find(&activities).Error; err != nil {
		return nil, 0, err
	}
	return activities, total, nil
}

func (r *activityRepository) Count(ctx context.Context, window TimeWindow) (int64, error) {
	var total int64
	err := r.windowed(ctx, window).Count(&total).Error
	return total, err
}

func (r *activityRepository) CountDistinct(ctx context.Context, field string, window TimeWindow) (int64, error) {
	var column string
	switch field {
	case "ip":
		column = "ip"
	case "pathname":
		column = "pathname"
	default:
		return 0, fmt.Errorf("distinct %q: %w", field, ErrUnsupportedColumn)
	}

	var total int64
	err := r.windowed(ctx, window).Distinct(column).Count(&total).Error
	return total, err
}

func (r *activityRepository) GroupCount(ctx context.Context, field string, window TimeWindow) ([]GroupCount, error) {
	column, ok := groupColumns[field]
	if !ok {
		return nil, fmt.Errorf("group by %q: %w", field, ErrUnsupportedColumn)
	}

	var rows []GroupCount
	err := r.windowed(ctx, window).
		Select(column + " AS bucket, COUNT(*) AS total").
		Group(column).
		Order("total DESC").
		Order(column + " ASC").
		Scan(&rows).Error
	return rows, err
}

func (r *activityRepository) TimeDistribution(ctx context.Context, unit string, window TimeWindow) ([]TimeCount, error) {
	expr, err := timeBucketExpr(r.db.Dialector.Name(), unit)
	if err != nil {
		return nil, err
	}

	var rows []TimeCount
	err = r.windowed(ctx, window).
		Select(expr + " AS bucket, COUNT(*) AS total").
		Group(expr).
		Order("bucket ASC").
		Scan(&rows).Error
	return rows, err
}

func (r *activityRepository) PopularPages(ctx context.Context, window TimeWindow, limit int) ([]PageStat, error) {
	query := r.windowed(ctx, window).
		Select("pathname, COUNT(*) AS visits, COUNT(DISTINCT ip) AS unique_visitors, MAX(occurred_at) AS last_visit").
		Group("pathname").
		Order("visits DESC").
		Order("pathname ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []PageStat
	err := query.Scan(&rows).Error
	return rows, err
}

func (r *activityRepository) CountOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.Activity{}).
		Where("occurred_at < ?", cutoff.UTC()).
		Count(&total).Error
	return total, err
}

func (r *activityRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("occurred_at < ?", cutoff.UTC()).
		Delete(&models.Activity{})
	return result.RowsAffected, result.Error
}

func (r *activityRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *activityRepository) windowed(ctx context.Context, window TimeWindow) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.Activity{}).
		Where("occurred_at >= ? AND occurred_at <= ?", window.Start.UTC(), window.End.UTC())
}

// timeBucketExpr returns the SQL expression extracting unit from occurred_at in UTC.
func timeBucketExpr(dialect, unit string) (string, error) {
	var pgField, sqliteFormat string
	switch unit {
	case BucketHour:
		pgField, sqliteFormat = "HOUR", "%H"
	case BucketDay:
		pgField, sqliteFormat = "DOY", "%j"
	case BucketMonth:
		pgField, sqliteFormat = "MONTH", "%m"
	default:
		return "", fmt.Errorf("time bucket %q: %w", unit, ErrUnsupportedColumn)
	}

	switch dialect {
	case "postgres":
		return fmt.Sprintf("CAST(EXTRACT(%s FROM occurred_at AT TIME ZONE 'UTC') AS INTEGER)", pgField), nil
	case "sqlite":
		return fmt.Sprintf("CAST(strftime('%s', occurred_at) AS INTEGER)", sqliteFormat), nil
	default:
		return "", fmt.Errorf("time buckets are not supported for dialect %q", dialect)
	}
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}

// sqliteTimeLayouts are the textual layouts aggregate timestamps come back in.
var sqliteTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	time.RFC3339Nano,
}

// FlexibleTime scans timestamps returned either natively or as text by aggregate expressions.
type FlexibleTime struct {
	time.Time
}

// Scan implements sql.Scanner.
func (t *FlexibleTime) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v.UTC()
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("cannot scan %T into FlexibleTime", value)
	}
}

// Value implements driver.Valuer.
func (t FlexibleTime) Value() (driver.Value, error) {
	return t.Time, nil
}

func (t *FlexibleTime) parse(raw string) error {
	raw = strings.TrimSpace(raw)
	for _, layout := range sqliteTimeLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("cannot parse %q as time", raw)
}
