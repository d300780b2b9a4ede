package domains

import "time"

// Event is an audit record of one status message
type Event struct {
	ID          int64     `db:"id"`
	NodeID      string    `db:"node_id"`
	Type        string    `db:"event_type"`
	Origin      string    `db:"origin"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	Created     time.Time `db:"created_at"`
}
