package domains

import (
	"fmt"
	"time"
)

// ResultType is the purpose of a script set
type ResultType string

const (
	ResultTypeCommissioning ResultType = "commissioning"
	ResultTypeTesting       ResultType = "testing"
	ResultTypeInstallation  ResultType = "installation"
)

// ScriptStatus is the execution state of one script
type ScriptStatus string

const (
	ScriptStatusPending  ScriptStatus = "pending"
	ScriptStatusRunning  ScriptStatus = "running"
	ScriptStatusPassed   ScriptStatus = "passed"
	ScriptStatusFailed   ScriptStatus = "failed"
	ScriptStatusTimedOut ScriptStatus = "timedout"
	ScriptStatusAborted  ScriptStatus = "aborted"
)

// Name returns the display name of the status
func (s ScriptStatus) Name() string {
	switch s {
	case ScriptStatusPending:
		return "Pending"
	case ScriptStatusRunning:
		return "Running"
	case ScriptStatusPassed:
		return "Passed"
	case ScriptStatusFailed:
		return "Failed"
	case ScriptStatusTimedOut:
		return "Timed out"
	case ScriptStatusAborted:
		return "Aborted"
	}
	return string(s)
}

// ScriptSet groups the script results of one provisioning attempt
type ScriptSet struct {
	ID         int64      `db:"id"`
	NodeID     string     `db:"node_id"`
	ResultType ResultType `db:"result_type"`
	LastPing   *time.Time `db:"last_ping"`
	Created    time.Time  `db:"created_at"`
}

// ScriptResult records one script execution and its captured output
type ScriptResult struct {
	ID          int64        `db:"id"`
	ScriptSetID int64        `db:"script_set_id"`
	Name        string       `db:"name"`
	Status      ScriptStatus `db:"status"`
	ExitStatus  *int         `db:"exit_status"`
	Output      []byte       `db:"output"`
	Stdout      []byte       `db:"stdout"`
	Stderr      []byte       `db:"stderr"`
	Result      []byte       `db:"result"`
	Started     *time.Time   `db:"started"`
	Ended       *time.Time   `db:"ended"`
	Updated     time.Time    `db:"updated_at"`
}

// Runtime returns the execution time formatted as H:MM:SS, or empty when unknown
func (r *ScriptResult) Runtime() string {
	if r.Started == nil || r.Ended == nil {
		return ""
	}
	d := r.Ended.Sub(*r.Started).Round(time.Second)
	if d < 0 {
		return ""
	}
	return fmt.Sprintf("%d:%02d:%02d", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}
