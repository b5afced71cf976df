package models

import "time"

// ConsoleSession describes one browser session of the console server.
type ConsoleSession struct {
	ID           string         `json:"id"`
	CreatedAt    time.Time      `json:"createdAt"`
	LastAccessed time.Time      `json:"lastAccessed"`
	Status       WorkflowStatus `json:"status"`
}
