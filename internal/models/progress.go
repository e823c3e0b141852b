package models

type ProgressUpdate struct {
	JobID         string  `json:"jobId"`
	Message       string  `json:"message"`
	Progress      float64 `json:"progress"`
	ItemID        string  `json:"item_id"`
	Page          int     `json:"page"`
	ContentLength int64   `json:"content_length"`
	Downloaded    int64   `json:"downloaded"`
	Status        string  `json:"status"` // e.g. "in_progress", "completed", "failed"
	Done          bool    `json:"done"`
}
