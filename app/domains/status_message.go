package domains

import (
	"math"
	"time"
)

// Event types and results reported by machines
const (
	EventTypeStart    = "start"
	EventTypeProgress = "progress"
	EventTypeFinish   = "finish"

	ResultSuccess = "SUCCESS"
	ResultFailure = "FAILURE"
	ResultFail    = "FAIL"
)

// RequiredMessageKeys are the top-level keys every status message must carry, in reporting order
var RequiredMessageKeys = []string{"event_type", "origin", "name", "description"}

// StatusMessage is a single report sent by a machine
type StatusMessage struct {
	EventType   string           `json:"event_type"`
	Origin      string           `json:"origin"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Result      string           `json:"result,omitempty"`
	Timestamp   *float64         `json:"timestamp,omitempty"`
	Files       []FileAttachment `json:"files,omitempty"`
}

// FileAttachment is an encoded file carried by a status message
type FileAttachment struct {
	Path        string `json:"path" validate:"required"`
	Encoding    string `json:"encoding" validate:"required"`
	Compression string `json:"compression,omitempty"`
	Content     string `json:"content"`
	Result      *int   `json:"result,omitempty"`
}

// ExitStatus returns the reported process exit code, 0 when absent
func (f *FileAttachment) ExitStatus() int {
	if f.Result == nil {
		return 0
	}
	return *f.Result
}

// IsFinish reports whether the message closes an install step
func (m *StatusMessage) IsFinish() bool {
	return m.EventType == EventTypeFinish
}

// Failed reports whether the message carries a failure result
func (m *StatusMessage) Failed() bool {
	return m.Result == ResultFailure || m.Result == ResultFail
}

// IsUrgent reports whether the message must bypass the batching delay
func (m *StatusMessage) IsUrgent() bool {
	return m.IsFinish() || len(m.Files) > 0
}

// Time returns the message timestamp, or fallback when none was sent
func (m *StatusMessage) Time(fallback time.Time) time.Time {
	if m.Timestamp == nil {
		return fallback
	}
	sec, frac := math.Modf(*m.Timestamp)
	return time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC()
}
