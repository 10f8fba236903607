package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusProcessed = "processed"
	StatusFailed    = "failed"
)

// Outcome describes the result of one pipeline invocation.
// It is reported and optionally published, never stored.
type Outcome struct {
	ID          uuid.UUID     `json:"id"`
	Source      string        `json:"source"`
	Destination string        `json:"destination"`
	Location    string        `json:"location,omitempty"` // where the storage backend put the result
	Status      string        `json:"status"`             // processed / failed
	Error       string        `json:"error,omitempty"`
	Width       int           `json:"width,omitempty"`
	Height      int           `json:"height,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
}

// Failed reports whether the invocation did not produce a destination file.
func (o Outcome) Failed() bool {
	return o.Status == StatusFailed
}
