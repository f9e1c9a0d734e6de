package models

import (
	"time"
)

// ResourceType classifies a detected media resource.
type ResourceType string

const (
	TypeImage ResourceType = "image"
	TypeVideo ResourceType = "video"
	TypeAudio ResourceType = "audio"
	TypeOther ResourceType = "other"
)

// Quality is a coarse quality bucket assigned to a resource. Unknown means
// no detector has measured anything yet; merge logic never lets Unknown
// overwrite a measured value.
type Quality string

const (
	QualityHigh    Quality = "high"
	QualityMedium  Quality = "medium"
	QualityLow     Quality = "low"
	QualityUnknown Quality = "unknown"
)

// Provenance tags describing where a resource was sighted. A resource keeps
// the union of all tags it has been reported with.
const (
	SourceDOM       = "dom"
	SourceCSS       = "css"
	SourceShadowDOM = "shadow-dom"
	SourceAttribute = "attribute"
	SourceStreaming = "streaming"
	SourceNetwork   = "network"
	SourcePredicted = "predicted"
	SourceOriginal  = "original"
)

type (
	// Resource is one detected media item, keyed by URL within a context.
	// It is created on first sighting and mutated in place by every later
	// sighting; it is never replaced.
	Resource struct {
		URL         string       `json:"url"`
		Type        ResourceType `json:"type"`
		ContentType string       `json:"contentType,omitempty"`
		Size        int64        `json:"size,omitempty"`
		Width       int          `json:"width,omitempty"`
		Height      int          `json:"height,omitempty"`
		Quality     Quality      `json:"quality"`
		Score       int          `json:"score"`
		Sources     []string     `json:"sources"`
		Timestamp   time.Time    `json:"timestamp"`
		Fingerprint string       `json:"fingerprint"`
		IsPredicted bool         `json:"isPredicted,omitempty"`
		Confidence  float64      `json:"confidence,omitempty"`
	}

	// Candidate is the raw record a detector reports before it is merged
	// into the store. Zero-valued optional fields mean "not measured".
	Candidate struct {
		URL         string       `json:"url"`
		Type        ResourceType `json:"type"`
		ContentType string       `json:"contentType,omitempty"`
		Size        int64        `json:"size,omitempty"`
		Width       int          `json:"width,omitempty"`
		Height      int          `json:"height,omitempty"`
		Quality     Quality      `json:"quality,omitempty"`
		Source      string       `json:"source"`
		Timestamp   time.Time    `json:"timestamp"`
		IsPredicted bool         `json:"isPredicted,omitempty"`
		Confidence  float64      `json:"confidence,omitempty"`
	}

	// QueueItem is one requested download. It lives in the scheduler from
	// enqueue until a terminal status, at which point it is snapshotted
	// into a HistoryEntry and discarded.
	QueueItem struct {
		ID             string    `json:"id"`
		Resource       *Resource `json:"resource"`
		Status         Status    `json:"status"`
		AddedTime      time.Time `json:"addedTime"`
		StartTime      time.Time `json:"startTime,omitempty"`
		EndTime        time.Time `json:"endTime,omitempty"`
		BytesReceived  int64     `json:"bytesReceived"`
		TotalBytes     int64     `json:"totalBytes"`
		Progress       int       `json:"progress"`
		ExternalHandle string    `json:"externalHandle,omitempty"`
		SuggestedPath  string    `json:"suggestedPath,omitempty"`
		Error          string    `json:"error,omitempty"`
	}

	// HistoryEntry is the immutable snapshot written to the ledger when a
	// queue item reaches a terminal status.
	HistoryEntry struct {
		URL       string       `json:"url"`
		Filename  string       `json:"filename"`
		Outcome   Status       `json:"outcome"`
		Error     string       `json:"error,omitempty"`
		Type      ResourceType `json:"type"`
		Size      int64        `json:"size,omitempty"`
		AddedTime time.Time    `json:"addedTime"`
		EndTime   time.Time    `json:"endTime"`
	}

	// EnqueueOptions carry the per-request download preferences from the
	// caller (UI or CLI) into the scheduler.
	EnqueueOptions struct {
		SaveAs              string `json:"saveAs,omitempty"`
		SiteName            string `json:"siteName,omitempty"`
		CategorizeByWebsite bool   `json:"categorizeByWebsite"`
		CategorizeByType    bool   `json:"categorizeByType"`
	}

	// Config holds the application's configuration settings.
	Config struct {
		DefaultPath             string `toml:"DefaultPath" json:"DefaultPath"`
		DatabasePath            string `toml:"DatabasePath" json:"DatabasePath"`
		LogLevel                string `toml:"LogLevel" json:"LogLevel"`
		LogFormat               string `toml:"LogFormat" json:"LogFormat"`
		MaxConcurrentDownloads  int    `toml:"MaxConcurrentDownloads" json:"MaxConcurrentDownloads"`
		DownloadSpeedLimitKBps  int    `toml:"DownloadSpeedLimitKBps" json:"DownloadSpeedLimitKBps"`
		ClientTimeoutSec        int    `toml:"ClientTimeoutSec" json:"ClientTimeoutSec"`
		CategorizeByWebsite     bool   `toml:"CategorizeByWebsite" json:"CategorizeByWebsite"`
		CategorizeByType        bool   `toml:"CategorizeByType" json:"CategorizeByType"`
	}

	// Settings is the subset of Config persisted through the key/value
	// store as user overrides. Pointer fields distinguish "not set" from
	// a zero value.
	Settings struct {
		MaxConcurrentDownloads *int    `json:"maxConcurrentDownloads,omitempty"`
		DownloadSpeedLimitKBps *int    `json:"downloadSpeedLimitKBps,omitempty"`
		CategorizeByWebsite    *bool   `json:"categorizeByWebsite,omitempty"`
		CategorizeByType       *bool   `json:"categorizeByType,omitempty"`
		DefaultPath            *string `json:"defaultPath,omitempty"`
	}
)

// HasSource reports whether the resource already carries the given
// provenance tag.
func (r *Resource) HasSource(tag string) bool {
	for _, s := range r.Sources {
		if s == tag {
			return true
		}
	}
	return false
}

// AddSource unions a provenance tag into the resource's source set.
func (r *Resource) AddSource(tag string) {
	if tag == "" || r.HasSource(tag) {
		return
	}
	r.Sources = append(r.Sources, tag)
}

// PixelArea returns width*height, or 0 when dimensions are unknown.
func (r *Resource) PixelArea() int {
	if r.Width <= 0 || r.Height <= 0 {
		return 0
	}
	return r.Width * r.Height
}

// ParseResourceType maps an arbitrary string onto a ResourceType,
// defaulting to TypeOther.
func ParseResourceType(s string) ResourceType {
	switch ResourceType(s) {
	case TypeImage, TypeVideo, TypeAudio:
		return ResourceType(s)
	default:
		return TypeOther
	}
}
