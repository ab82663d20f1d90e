package models

import "time"

// ActivityKind groups activity entries by the action that produced them.
type ActivityKind string

const (
	ActivityChat     ActivityKind = "chat"
	ActivityUpload   ActivityKind = "upload"
	ActivityDownload ActivityKind = "download"
)

// ActivityEntry is a single recorded user action and how it ended.
type ActivityEntry struct {
	ID        string       `json:"id"`
	Kind      ActivityKind `json:"kind"`
	Subject   string       `json:"subject,omitempty"`
	Outcome   string       `json:"outcome"`
	Detail    string       `json:"detail,omitempty"`
	Rows      int          `json:"rows,omitempty"`
	LatencyMs int64        `json:"latency_ms"`
	CreatedAt time.Time    `json:"created_at"`
}

// ActivityConfig controls the activity log.
type ActivityConfig struct {
	Enabled        bool   `yaml:"enabled"`
	DBPath         string `yaml:"db_path"`
	RetentionDays  int    `yaml:"retention_days"`
	IncludeQueries bool   `yaml:"include_queries"`
	MaxSubjectSize int    `yaml:"max_subject_size"` // bytes
}

// ActivityQueryOpts specifies filters for querying activity entries.
type ActivityQueryOpts struct {
	Kind    ActivityKind
	Outcome string
	Since   time.Time
	ID      string
	Limit   int
}

// ActivityStat holds aggregate counts for a kind/outcome/day combination.
type ActivityStat struct {
	Kind    ActivityKind
	Outcome string
	Day     string
	Count   int
}
