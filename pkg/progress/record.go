// Package progress specializes the SSE stream decoder for the backend's
// download-progress payload schema. It exposes a subscribe/cancel interface
// over per-task progress streams with exactly-once terminal-state detection.
package progress

// Status enumerates the download states the backend reports. Completed,
// Error and Cancelled are terminal: once one is observed no further
// callbacks are valid for that task.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusDownloading Status = "downloading"
	StatusValidating  Status = "validating"
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
	StatusCancelled   Status = "cancelled"
)

// IsTerminal reports whether the status ends the task's progress stream.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusCancelled
}

// Detail is one task's byte-level progress.
type Detail struct {
	DownloadedBytes int64    `json:"downloaded_bytes"`
	TotalBytes      int64    `json:"total_bytes"`
	Percent         float64  `json:"percent"`
	SpeedMbps       float64  `json:"speed_mbps"`
	EtaSeconds      *float64 `json:"eta_seconds,omitempty"`
	Status          Status   `json:"status"`
}

// Record is the normalized view of one progress frame. Each record is built
// fresh from a single data frame and fully supersedes the subscriber's view
// of current progress; records are never merged across frames.
//
// Downloads may carry a secondary task (e.g. a companion file fetched
// alongside the primary artifact), reported through the secondary fields.
type Record struct {
	TaskID          string  `json:"task_id"`
	SecondaryTaskID string  `json:"secondary_task_id,omitempty"`
	Status          Status  `json:"status"`
	Primary         Detail  `json:"primary_progress"`
	Secondary       *Detail `json:"secondary_progress,omitempty"`
	Error           string  `json:"error,omitempty"`
	FilePath        string  `json:"file_path,omitempty"`
}
