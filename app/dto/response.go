package dto

import "time"

// NodeResponse represents a node in list responses
type NodeResponse struct {
	NodeID           string    `json:"node_id"`
	Hostname         string    `json:"hostname"`
	Status           string    `json:"status"`
	Owner            *string   `json:"owner"`
	ErrorDescription string    `json:"error_description,omitempty"`
	Tags             []string  `json:"tags"`
	LastSeenAt       time.Time `json:"last_seen_at"`
}

// ListNodesResponse represents the node list
type ListNodesResponse struct {
	Nodes []NodeResponse `json:"nodes"`
}

// EventResponse represents an audit event
type EventResponse struct {
	ID          int64     `json:"id"`
	Type        string    `json:"type"`
	Origin      string    `json:"origin"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Created     time.Time `json:"created"`
}

// ListEventsResponse represents the events of one node
type ListEventsResponse struct {
	NodeID string          `json:"node_id"`
	Events []EventResponse `json:"events"`
}

// ScriptResultResponse represents one script result without its blobs
type ScriptResultResponse struct {
	ID         int64                  `json:"id"`
	Name       string                 `json:"name"`
	ResultType string                 `json:"result_type"`
	Status     string                 `json:"status"`
	StatusName string                 `json:"status_name"`
	ExitStatus *int                   `json:"exit_status"`
	Runtime    string                 `json:"runtime"`
	Started    *time.Time             `json:"started,omitempty"`
	Ended      *time.Time             `json:"ended,omitempty"`
	Results    map[string]interface{} `json:"results,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

// ListResultsResponse represents the results of one node
type ListResultsResponse struct {
	NodeID  string                 `json:"node_id"`
	Results []ScriptResultResponse `json:"results"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}
