package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"provision-svc/app/clients"
	"provision-svc/app/domains"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both the pool and an open transaction
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const nodeColumns = `id, node_id, hostname, status, owner, error_description, tags,
	current_commissioning_script_set_id, current_testing_script_set_id,
	current_installation_script_set_id, last_seen_at`

const scriptResultColumns = `id, script_set_id, name, status, exit_status, output, stdout, stderr,
	result, started, ended, updated_at`

// Store represents the Postgres storage implementation
type Store struct {
	pool *pgxpool.Pool
}

var _ clients.StorageAdapter = (*Store)(nil)

// NewStore creates a new Postgres store
// The database must already exist - creation should be handled at the infrastructure/deployment level
func NewStore(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close closes the connection pool
func (s *Store) Close() {
	s.pool.Close()
}

// Ping checks that the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// WithTx runs fn in a read-committed transaction
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx clients.NodeTx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(clients.ContextWithTx(ctx), &pgTx{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetNode retrieves a node by ID
func (s *Store) GetNode(ctx context.Context, nodeID string) (*domains.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE node_id = $1`
	return scanNode(s.pool.QueryRow(ctx, query, nodeID))
}

// ListNodes retrieves all nodes
func (s *Store) ListNodes(ctx context.Context) ([]domains.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes ORDER BY node_id ASC`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []domains.Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *node)
	}
	return nodes, rows.Err()
}

// ListEvents retrieves the audit events of a node, oldest first
func (s *Store) ListEvents(ctx context.Context, nodeID string) ([]domains.Event, error) {
	query := `
		SELECT id, node_id, event_type, origin, name, description, created_at
		FROM events
		WHERE node_id = $1
		ORDER BY id ASC
	`
	rows, err := s.pool.Query(ctx, query, nodeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domains.Event
	for rows.Next() {
		var ev domains.Event
		if err := rows.Scan(&ev.ID, &ev.NodeID, &ev.Type, &ev.Origin, &ev.Name, &ev.Description, &ev.Created); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// GetScriptSet retrieves a script set by ID
func (s *Store) GetScriptSet(ctx context.Context, id int64) (*domains.ScriptSet, error) {
	return getScriptSet(ctx, s.pool, id)
}

// ListScriptResults retrieves the results of a script set ordered by name
func (s *Store) ListScriptResults(ctx context.Context, scriptSetID int64) ([]domains.ScriptResult, error) {
	query := `SELECT ` + scriptResultColumns + ` FROM script_results WHERE script_set_id = $1 ORDER BY name ASC`
	rows, err := s.pool.Query(ctx, query, scriptSetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domains.ScriptResult
	for rows.Next() {
		result, err := scanScriptResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *result)
	}
	return results, rows.Err()
}

// GetScriptResult retrieves a script result by ID
func (s *Store) GetScriptResult(ctx context.Context, id int64) (*domains.ScriptResult, error) {
	query := `SELECT ` + scriptResultColumns + ` FROM script_results WHERE id = $1`
	result, err := scanScriptResult(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return result, err
}

// CleanupOldEvents deletes events older than retention days
func (s *Store) CleanupOldEvents(ctx context.Context, retentionDays int) error {
	query := `DELETE FROM events WHERE created_at < NOW() - make_interval(days => $1)`
	_, err := s.pool.Exec(ctx, query, retentionDays)
	return err
}

// pgTx implements clients.NodeTx on an open pgx transaction
type pgTx struct {
	q querier
}

func (t *pgTx) LockNode(ctx context.Context, nodeID string) (*domains.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE node_id = $1 FOR UPDATE`
	return scanNode(t.q.QueryRow(ctx, query, nodeID))
}

func (t *pgTx) UpdateNode(ctx context.Context, node *domains.Node) error {
	query := `
		UPDATE nodes
		SET status = $1, owner = $2, error_description = $3,
			current_commissioning_script_set_id = $4,
			current_testing_script_set_id = $5,
			current_installation_script_set_id = $6
		WHERE node_id = $7
	`
	tag, err := t.q.Exec(ctx, query,
		string(node.Status), node.Owner, node.ErrorDescription,
		node.CurrentCommissioningScriptSet, node.CurrentTestingScriptSet, node.CurrentInstallationScriptSet,
		node.NodeID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domains.ErrNodeNotFound, node.NodeID)
	}
	return nil
}

func (t *pgTx) TouchNode(ctx context.Context, nodeID string, seen time.Time) error {
	_, err := t.q.Exec(ctx, `UPDATE nodes SET last_seen_at = $1 WHERE node_id = $2`, seen, nodeID)
	return err
}

func (t *pgTx) SetNodeTags(ctx context.Context, nodeID string, tags []string) error {
	if tags == nil {
		tags = []string{}
	}
	_, err := t.q.Exec(ctx, `UPDATE nodes SET tags = $1 WHERE node_id = $2`, tags, nodeID)
	return err
}

func (t *pgTx) InsertEvent(ctx context.Context, event *domains.Event) error {
	query := `
		INSERT INTO events (node_id, event_type, origin, name, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	return t.q.QueryRow(ctx, query,
		event.NodeID, event.Type, event.Origin, event.Name, event.Description, event.Created,
	).Scan(&event.ID)
}

func (t *pgTx) GetScriptSet(ctx context.Context, id int64) (*domains.ScriptSet, error) {
	return getScriptSet(ctx, t.q, id)
}

func (t *pgTx) CreateScriptSet(ctx context.Context, set *domains.ScriptSet) error {
	query := `
		INSERT INTO script_sets (node_id, result_type, last_ping, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	if set.Created.IsZero() {
		set.Created = time.Now()
	}
	return t.q.QueryRow(ctx, query, set.NodeID, string(set.ResultType), set.LastPing, set.Created).Scan(&set.ID)
}

func (t *pgTx) UpdateScriptSetLastPing(ctx context.Context, id int64, ping time.Time) error {
	_, err := t.q.Exec(ctx, `UPDATE script_sets SET last_ping = $1 WHERE id = $2`, ping, id)
	return err
}

func (t *pgTx) GetScriptResultByName(ctx context.Context, scriptSetID int64, name string) (*domains.ScriptResult, error) {
	query := `SELECT ` + scriptResultColumns + ` FROM script_results WHERE script_set_id = $1 AND name = $2 FOR UPDATE`
	result, err := scanScriptResult(t.q.QueryRow(ctx, query, scriptSetID, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return result, err
}

func (t *pgTx) CreateScriptResult(ctx context.Context, result *domains.ScriptResult) error {
	query := `
		INSERT INTO script_results (script_set_id, name, status, exit_status, output, stdout, stderr, result, started, ended, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	result.Updated = time.Now()
	return t.q.QueryRow(ctx, query,
		result.ScriptSetID, result.Name, string(result.Status), result.ExitStatus,
		nonNil(result.Output), nonNil(result.Stdout), nonNil(result.Stderr), nonNil(result.Result),
		result.Started, result.Ended, result.Updated,
	).Scan(&result.ID)
}

func (t *pgTx) UpdateScriptResult(ctx context.Context, result *domains.ScriptResult) error {
	query := `
		UPDATE script_results
		SET status = $1, exit_status = $2, output = $3, stdout = $4, stderr = $5, result = $6,
			started = $7, ended = $8, updated_at = $9
		WHERE id = $10
	`
	result.Updated = time.Now()
	_, err := t.q.Exec(ctx, query,
		string(result.Status), result.ExitStatus,
		nonNil(result.Output), nonNil(result.Stdout), nonNil(result.Stderr), nonNil(result.Result),
		result.Started, result.Ended, result.Updated, result.ID,
	)
	return err
}

func getScriptSet(ctx context.Context, q querier, id int64) (*domains.ScriptSet, error) {
	var set domains.ScriptSet
	var resultType string
	query := `SELECT id, node_id, result_type, last_ping, created_at FROM script_sets WHERE id = $1`
	err := q.QueryRow(ctx, query, id).Scan(&set.ID, &set.NodeID, &resultType, &set.LastPing, &set.Created)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	set.ResultType = domains.ResultType(resultType)
	return &set, nil
}

func scanNode(row pgx.Row) (*domains.Node, error) {
	var node domains.Node
	var status string
	err := row.Scan(
		&node.ID, &node.NodeID, &node.Hostname, &status, &node.Owner, &node.ErrorDescription, &node.Tags,
		&node.CurrentCommissioningScriptSet, &node.CurrentTestingScriptSet, &node.CurrentInstallationScriptSet,
		&node.LastSeenAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	node.Status = domains.NodeStatus(status)
	return &node, nil
}

func scanScriptResult(row pgx.Row) (*domains.ScriptResult, error) {
	var result domains.ScriptResult
	var status string
	err := row.Scan(
		&result.ID, &result.ScriptSetID, &result.Name, &status, &result.ExitStatus,
		&result.Output, &result.Stdout, &result.Stderr, &result.Result,
		&result.Started, &result.Ended, &result.Updated,
	)
	if err != nil {
		return nil, err
	}
	result.Status = domains.ScriptStatus(status)
	return &result, nil
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
