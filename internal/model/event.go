package model

// ChangeType classifies a single filesystem change reported by the watch source.
type ChangeType string

const (
	ChangeCreated ChangeType = "created"
	ChangeUpdated ChangeType = "updated"
	ChangeDeleted ChangeType = "deleted"
	ChangeUnknown ChangeType = "unknown"
)

// WatchEvent is one filesystem change. Events arrive in batches of arbitrary size.
type WatchEvent struct {
	Path string     `json:"path"` // absolute file path
	Type ChangeType `json:"type"`
}
