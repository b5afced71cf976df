package models

import "time"

// WorkflowStatus represents the upload workflow state.
type WorkflowStatus string

const (
	StatusIdle      WorkflowStatus = "idle"
	StatusUploading WorkflowStatus = "uploading"
	StatusSucceeded WorkflowStatus = "succeeded"
	StatusFailed    WorkflowStatus = "failed"
)

// NoticeKind distinguishes error and success notices.
type NoticeKind string

const (
	NoticeError   NoticeKind = "error"
	NoticeSuccess NoticeKind = "success"
)

// Notice is a transient message for the user. Only the latest one is shown.
type Notice struct {
	ID       string     `json:"id"`
	Kind     NoticeKind `json:"kind"`
	Message  string     `json:"message"`
	RaisedAt time.Time  `json:"raisedAt"`
}

// Snapshot is a read-only copy of the workflow state for rendering.
type Snapshot struct {
	CycleID        string              `json:"cycleId"`
	FileName       string              `json:"fileName,omitempty"`
	Columns        []string            `json:"columns"`
	SelectedColumn string              `json:"selectedColumn"`
	Status         WorkflowStatus      `json:"status"`
	Result         *VerificationResult `json:"result"`
	Notice         *Notice             `json:"notice"`
	CanSubmit      bool                `json:"canSubmit"`
}

// ChartBar is one bar of the result chart.
type ChartBar struct {
	Category Category `json:"category"`
	Label    string   `json:"label"`
	Count    int64    `json:"count"`
}

// Chart returns the result counts in display order. Counts are zero when no
// result has been published.
func (s Snapshot) Chart() []ChartBar {
	bars := make([]ChartBar, 0, len(Categories))
	for _, c := range Categories {
		bars = append(bars, ChartBar{
			Category: c,
			Label:    c.Label(),
			Count:    s.Result.Count(c),
		})
	}
	return bars
}
