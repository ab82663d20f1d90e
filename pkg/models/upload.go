package models

import "time"

// UploadStatus is the state of an upload session.
type UploadStatus string

const (
	UploadIdle       UploadStatus = "idle"
	UploadUploading  UploadStatus = "uploading"
	UploadUploaded   UploadStatus = "uploaded"
	UploadProcessing UploadStatus = "processing"
	UploadComplete   UploadStatus = "complete"
)

// ObjectInfo is a single object in a bucket listing.
type ObjectInfo struct {
	Key          string    `json:"key"`
	LastModified time.Time `json:"last_modified"`
	Size         int64     `json:"size"`
}

// UploadState is a point-in-time view of an upload session.
type UploadState struct {
	ID               string       `json:"id,omitempty"`
	Status           UploadStatus `json:"status"`
	OriginalFilename string       `json:"original_filename,omitempty"`
	BaseName         string       `json:"base_name,omitempty"`
	SelectedKey      string       `json:"selected_key,omitempty"`
	Message          string       `json:"message,omitempty"`
	Known            []string     `json:"known,omitempty"`
	StartedAt        time.Time    `json:"started_at,omitempty"`
}

// PollResult describes the outcome of a single poll tick.
type PollResult struct {
	Objects   []ObjectInfo `json:"objects"`
	Relevant  []string     `json:"relevant"`
	Completed bool         `json:"completed"`
	ResultKey string       `json:"result_key,omitempty"`
	Stale     bool         `json:"stale,omitempty"`
}
