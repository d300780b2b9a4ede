package clients

import (
	"context"
	"time"

	"provision-svc/app/domains"
)

// StorageAdapter defines the interface for storage operations
type StorageAdapter interface {
	// WithTx runs fn inside one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx NodeTx) error) error

	GetNode(ctx context.Context, nodeID string) (*domains.Node, error)
	ListNodes(ctx context.Context) ([]domains.Node, error)
	ListEvents(ctx context.Context, nodeID string) ([]domains.Event, error)
	GetScriptSet(ctx context.Context, id int64) (*domains.ScriptSet, error)
	ListScriptResults(ctx context.Context, scriptSetID int64) ([]domains.ScriptResult, error)
	GetScriptResult(ctx context.Context, id int64) (*domains.ScriptResult, error)
	CleanupOldEvents(ctx context.Context, retentionDays int) error
	Ping(ctx context.Context) error
	Close()
}

// NodeTx is the transaction-scoped data access used by the state applier
type NodeTx interface {
	// LockNode loads a node and holds its row lock until the transaction ends
	LockNode(ctx context.Context, nodeID string) (*domains.Node, error)
	UpdateNode(ctx context.Context, node *domains.Node) error
	TouchNode(ctx context.Context, nodeID string, seen time.Time) error
	SetNodeTags(ctx context.Context, nodeID string, tags []string) error

	InsertEvent(ctx context.Context, event *domains.Event) error

	GetScriptSet(ctx context.Context, id int64) (*domains.ScriptSet, error)
	CreateScriptSet(ctx context.Context, set *domains.ScriptSet) error
	UpdateScriptSetLastPing(ctx context.Context, id int64, ping time.Time) error

	GetScriptResultByName(ctx context.Context, scriptSetID int64, name string) (*domains.ScriptResult, error)
	CreateScriptResult(ctx context.Context, result *domains.ScriptResult) error
	UpdateScriptResult(ctx context.Context, result *domains.ScriptResult) error
}

type txMarkerKey struct{}

// ContextWithTx marks ctx as running inside a transaction
func ContextWithTx(ctx context.Context) context.Context {
	return context.WithValue(ctx, txMarkerKey{}, true)
}

// InTransaction reports whether ctx belongs to an open transaction
func InTransaction(ctx context.Context) bool {
	v, _ := ctx.Value(txMarkerKey{}).(bool)
	return v
}
