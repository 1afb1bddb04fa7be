// Package domain provides domain models used across the application.
package domain

import (
	"regexp"
	"strings"
	"time"
)

// DefaultProcessInterval is the reprocess interval assigned to sites
// created on first reference.
const DefaultProcessInterval = 720 * time.Hour

// Site represents a monitored site whose schema maps are periodically
// rediscovered and reconciled.
type Site struct {
	SiteURL         string        `db:"site_url" json:"site_url"`
	Owner           string        `db:"owner" json:"owner"`
	ProcessInterval time.Duration `db:"-" json:"process_interval"`
	IntervalHours   float64       `db:"process_interval_hours" json:"-"`
	LastProcessed   *time.Time    `db:"last_processed" json:"last_processed,omitempty"`
	SchemaMapURL    string        `db:"schema_map_url" json:"schema_map_url,omitempty"`
	Active          bool          `db:"is_active" json:"is_active"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
}

var (
	schemeRe = regexp.MustCompile(`^https?://`)
	wwwRe    = regexp.MustCompile(`^www\.`)
)

// NormalizeSiteURL strips the scheme, a leading www prefix, and any
// trailing slash so that the same site always maps to the same key.
// The normalized form keys the per-site mutex and the sites table.
func NormalizeSiteURL(siteURL string) string {
	if siteURL == "" {
		return siteURL
	}

	url := schemeRe.ReplaceAllString(siteURL, "")
	url = wwwRe.ReplaceAllString(url, "")
	return strings.TrimRight(url, "/")
}

// Due reports whether the site's reprocess interval has elapsed since it
// was last processed. Sites that were never processed are always due.
func (s *Site) Due(now time.Time) bool {
	if s.LastProcessed == nil {
		return true
	}
	return !now.Before(s.LastProcessed.Add(s.ProcessInterval))
}
