package domain

import "time"

// File represents a content file discovered in a site's schema map.
// Files are soft-deactivated rather than deleted when they disappear
// from the latest manifest, preserving error history and supporting
// re-adds.
type File struct {
	FileURL     string     `db:"file_url" json:"file_url"`
	Owner       string     `db:"owner" json:"owner"`
	SiteURL     string     `db:"site_url" json:"site_url"`
	SchemaMap   string     `db:"schema_map" json:"schema_map,omitempty"`
	ContentType string     `db:"content_type" json:"content_type,omitempty"`
	LastRead    *time.Time `db:"last_read_time" json:"last_read_time,omitempty"`
	ItemCount   int        `db:"number_of_items" json:"number_of_items"`
	Manual      bool       `db:"is_manual" json:"is_manual"`
	Active      bool       `db:"is_active" json:"is_active"`
}

// ManifestEntry is one file listed in a site's schema map, together
// with the content-type hint the manifest carried for it.
type ManifestEntry struct {
	FileURL     string `json:"file_url"`
	ContentType string `json:"content_type,omitempty"`
}
