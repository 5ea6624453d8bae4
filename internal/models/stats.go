package models

// QueueStats is a point-in-time snapshot of the offload queue counters.
// Exposed on the status API for health checks and metrics scraping.
type QueueStats struct {
	TotalQueued    int64 `json:"total_queued"`
	TotalProcessed int64 `json:"total_processed"`
	TotalFailed    int64 `json:"total_failed"`
	QueueFullCount int64 `json:"queue_full_count"`
	CurrentSize    int   `json:"current_size"`
	MaxSize        int   `json:"max_size"`
}
