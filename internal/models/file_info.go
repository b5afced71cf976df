package models

import "time"

// FileInfo represents metadata about a spooled file.
type FileInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	SpooledAt time.Time `json:"spooledAt"`
}
