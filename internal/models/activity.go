package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Device classes derived from the user agent.
const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceDesktop = "desktop"
)

// ValidMethods lists the HTTP verbs accepted for logged activities.
var ValidMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS", "HEAD"}

// IsValidMethod reports whether method (case-insensitive) is an accepted HTTP verb.
func IsValidMethod(method string) bool {
	upper := strings.ToUpper(strings.TrimSpace(method))
	for _, m := range ValidMethods {
		if m == upper {
			return true
		}
	}
	return false
}

// Activity records metadata about a single HTTP request made against a tracked site.
type Activity struct {
	ID                   uint              `gorm:"primaryKey" json:"id"`
	URL                  string            `gorm:"type:text;not null" json:"url"`
	Pathname             string            `gorm:"size:2048;not null;index;index:idx_activities_occurred_pathname,priority:2" json:"pathname"`
	Method               string            `gorm:"size:10;not null;index:idx_activities_method_occurred,priority:1" json:"method"`
	UserAgent            string            `gorm:"type:text;not null" json:"userAgent"`
	Referer              string            `gorm:"type:text" json:"referer"`
	IP                   string            `gorm:"size:64;not null;index;index:idx_activities_ip_occurred,priority:1" json:"ip"`
	Timestamp            time.Time         `gorm:"column:occurred_at;not null;index;index:idx_activities_occurred_pathname,priority:1;index:idx_activities_ip_occurred,priority:2;index:idx_activities_method_occurred,priority:2" json:"timestamp"`
	SearchParams         datatypes.JSONMap `json:"searchParams"`
	HeaderAccept         string            `gorm:"type:text" json:"-"`
	HeaderAcceptLanguage string            `gorm:"type:text" json:"-"`
	SessionID            *string           `gorm:"size:255;index" json:"sessionId"`
	UserID               *uint             `gorm:"index" json:"userId"`
	DeviceType           string            `gorm:"size:16;not null;default:unknown;index" json:"deviceType"`
	Browser              string            `gorm:"size:32;not null;default:unknown" json:"browser"`
	OS                   string            `gorm:"size:32;not null;default:unknown" json:"os"`
	ResponseTime         *float64          `json:"responseTime"`
	StatusCode           int               `gorm:"not null;default:200" json:"statusCode"`
	CreatedAt            time.Time         `json:"createdAt"`
	UpdatedAt            time.Time         `json:"updatedAt"`
}

// TableName keeps the table name stable across renames of the struct.
func (Activity) TableName() string {
	return "activities"
}

// BeforeCreate derives device, browser and OS labels on first save.
func (a *Activity) BeforeCreate(tx *gorm.DB) error {
	a.ParseUserAgent()
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}
	a.Timestamp = a.Timestamp.UTC()
	if a.SearchParams == nil {
		a.SearchParams = datatypes.JSONMap{}
	}
	return nil
}

// ParseUserAgent fills DeviceType, Browser and OS from UserAgent.
func (a *Activity) ParseUserAgent() {
	info := ParseUserAgent(a.UserAgent)
	a.DeviceType = info.DeviceType
	a.Browser = info.Browser
	a.OS = info.OS
}

// UserAgentInfo holds coarse labels derived from a user agent string.
type UserAgentInfo struct {
	DeviceType string
	Browser    string
	OS         string
}

// ParseUserAgent classifies ua with ordered substring checks; the first match wins.
func ParseUserAgent(ua string) UserAgentInfo {
	lower := strings.ToLower(strings.TrimSpace(ua))
	info := UserAgentInfo{}

	switch {
	case containsAny(lower, "mobile", "android", "iphone"):
		info.DeviceType = DeviceMobile
	case containsAny(lower, "tablet", "ipad"):
		info.DeviceType = DeviceTablet
	default:
		info.DeviceType = DeviceDesktop
	}

	// Chromium Edge also advertises "chrome", so its token is checked first.
	switch {
	case strings.Contains(lower, "edg/"):
		info.Browser = "Edge"
	case strings.Contains(lower, "chrome"):
		info.Browser = "Chrome"
	case strings.Contains(lower, "firefox"):
		info.Browser = "Firefox"
	case strings.Contains(lower, "safari"):
		info.Browser = "Safari"
	case strings.Contains(lower, "edge"):
		info.Browser = "Edge"
	default:
		info.Browser = "Other"
	}

	// Apple mobile agents carry "mac os x" and Android agents carry "linux", so those labels win.
	switch {
	case strings.Contains(lower, "windows"):
		info.OS = "Windows"
	case strings.Contains(lower, "mac"):
		info.OS = "macOS"
	case strings.Contains(lower, "linux"):
		info.OS = "Linux"
	case strings.Contains(lower, "android"):
		info.OS = "Android"
	case strings.Contains(lower, "ios"):
		info.OS = "iOS"
	default:
		info.OS = "Other"
	}

	return info
}

func containsAny(s string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}
