// Package memory is an in-process implementation of the storage adapter.
// Transactions are serialized and run against a private copy of the state
// that replaces the live state only on commit.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"provision-svc/app/clients"
	"provision-svc/app/domains"
)

type state struct {
	nodes         map[string]*domains.Node
	scriptSets    map[int64]*domains.ScriptSet
	scriptResults map[int64]*domains.ScriptResult
	events        []domains.Event
	nextID        int64
}

// Store is an in-memory storage adapter
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	st   *state
}

var _ clients.StorageAdapter = (*Store)(nil)

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return &Store{st: &state{
		nodes:         make(map[string]*domains.Node),
		scriptSets:    make(map[int64]*domains.ScriptSet),
		scriptResults: make(map[int64]*domains.ScriptResult),
	}}
}

// Close is a no-op
func (s *Store) Close() {}

// Ping always succeeds
func (s *Store) Ping(ctx context.Context) error { return nil }

// WithTx runs fn against a copy of the state and publishes the copy if fn succeeds
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx clients.NodeTx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	working := s.st.clone()
	s.mu.RUnlock()

	if err := fn(clients.ContextWithTx(ctx), &memTx{st: working}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.mu.Lock()
	s.st = working
	s.mu.Unlock()
	return nil
}

// AddNode inserts or replaces a node
func (s *Store) AddNode(node domains.Node) *domains.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.nextID++
	node.ID = s.st.nextID
	if node.Status == "" {
		node.Status = domains.NodeStatusNew
	}
	n := cloneNode(&node)
	s.st.nodes[node.NodeID] = n
	return cloneNode(n)
}

// AddScriptSet creates a script set and makes it the node's current set for its purpose
func (s *Store) AddScriptSet(nodeID string, rt domains.ResultType, names ...string) (*domains.ScriptSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, ok := s.st.nodes[nodeID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domains.ErrNodeNotFound, nodeID)
	}
	tx := &memTx{st: s.st}
	set := &domains.ScriptSet{NodeID: nodeID, ResultType: rt}
	if err := tx.CreateScriptSet(context.Background(), set); err != nil {
		return nil, err
	}
	node.SetCurrentScriptSetID(rt, set.ID)
	for _, name := range names {
		result := &domains.ScriptResult{ScriptSetID: set.ID, Name: name, Status: domains.ScriptStatusPending}
		if err := tx.CreateScriptResult(context.Background(), result); err != nil {
			return nil, err
		}
	}
	out := *set
	return &out, nil
}

// SetScriptResultStatus changes the status of a script result outside the pipeline
func (s *Store) SetScriptResultStatus(id int64, status domains.ScriptStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.st.scriptResults[id]; ok {
		r.Status = status
	}
}

// ScriptResultByName returns a result of a script set by name
func (s *Store) ScriptResultByName(scriptSetID int64, name string) *domains.ScriptResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, _ := (&memTx{st: s.st}).GetScriptResultByName(context.Background(), scriptSetID, name)
	return r
}

func (s *Store) GetNode(ctx context.Context, nodeID string) (*domains.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.st.nodes[nodeID]
	if !ok {
		return nil, nil
	}
	return cloneNode(n), nil
}

func (s *Store) ListNodes(ctx context.Context) ([]domains.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	nodes := make([]domains.Node, 0, len(s.st.nodes))
	for _, n := range s.st.nodes {
		nodes = append(nodes, *cloneNode(n))
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].NodeID < nodes[j].NodeID })
	return nodes, nil
}

func (s *Store) ListEvents(ctx context.Context, nodeID string) ([]domains.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var events []domains.Event
	for _, ev := range s.st.events {
		if ev.NodeID == nodeID {
			events = append(events, ev)
		}
	}
	return events, nil
}

func (s *Store) GetScriptSet(ctx context.Context, id int64) (*domains.ScriptSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&memTx{st: s.st}).GetScriptSet(ctx, id)
}

func (s *Store) ListScriptResults(ctx context.Context, scriptSetID int64) ([]domains.ScriptResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var results []domains.ScriptResult
	for _, r := range s.st.scriptResults {
		if r.ScriptSetID == scriptSetID {
			results = append(results, *cloneResult(r))
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results, nil
}

func (s *Store) GetScriptResult(ctx context.Context, id int64) (*domains.ScriptResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.st.scriptResults[id]
	if !ok {
		return nil, nil
	}
	return cloneResult(r), nil
}

func (s *Store) CleanupOldEvents(ctx context.Context, retentionDays int) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	kept := s.st.events[:0]
	for _, ev := range s.st.events {
		if !ev.Created.Before(cutoff) {
			kept = append(kept, ev)
		}
	}
	s.st.events = kept
	return nil
}

// memTx implements clients.NodeTx on a working copy
type memTx struct {
	st *state
}

func (t *memTx) LockNode(ctx context.Context, nodeID string) (*domains.Node, error) {
	n, ok := t.st.nodes[nodeID]
	if !ok {
		return nil, nil
	}
	return cloneNode(n), nil
}

func (t *memTx) UpdateNode(ctx context.Context, node *domains.Node) error {
	n, ok := t.st.nodes[node.NodeID]
	if !ok {
		return fmt.Errorf("%w: %s", domains.ErrNodeNotFound, node.NodeID)
	}
	n.Status = node.Status
	n.Owner = copyString(node.Owner)
	n.ErrorDescription = node.ErrorDescription
	n.CurrentCommissioningScriptSet = copyInt64(node.CurrentCommissioningScriptSet)
	n.CurrentTestingScriptSet = copyInt64(node.CurrentTestingScriptSet)
	n.CurrentInstallationScriptSet = copyInt64(node.CurrentInstallationScriptSet)
	return nil
}

func (t *memTx) TouchNode(ctx context.Context, nodeID string, seen time.Time) error {
	if n, ok := t.st.nodes[nodeID]; ok {
		n.LastSeenAt = seen
	}
	return nil
}

func (t *memTx) SetNodeTags(ctx context.Context, nodeID string, tags []string) error {
	n, ok := t.st.nodes[nodeID]
	if !ok {
		return fmt.Errorf("%w: %s", domains.ErrNodeNotFound, nodeID)
	}
	n.Tags = append([]string(nil), tags...)
	return nil
}

func (t *memTx) InsertEvent(ctx context.Context, event *domains.Event) error {
	if _, ok := t.st.nodes[event.NodeID]; !ok {
		return fmt.Errorf("%w: %s", domains.ErrNodeNotFound, event.NodeID)
	}
	t.st.nextID++
	event.ID = t.st.nextID
	t.st.events = append(t.st.events, *event)
	return nil
}

func (t *memTx) GetScriptSet(ctx context.Context, id int64) (*domains.ScriptSet, error) {
	set, ok := t.st.scriptSets[id]
	if !ok {
		return nil, nil
	}
	out := *set
	out.LastPing = copyTime(set.LastPing)
	return &out, nil
}

func (t *memTx) CreateScriptSet(ctx context.Context, set *domains.ScriptSet) error {
	if _, ok := t.st.nodes[set.NodeID]; !ok {
		return fmt.Errorf("%w: %s", domains.ErrNodeNotFound, set.NodeID)
	}
	t.st.nextID++
	set.ID = t.st.nextID
	if set.Created.IsZero() {
		set.Created = time.Now()
	}
	stored := *set
	stored.LastPing = copyTime(set.LastPing)
	t.st.scriptSets[set.ID] = &stored
	return nil
}

func (t *memTx) UpdateScriptSetLastPing(ctx context.Context, id int64, ping time.Time) error {
	if set, ok := t.st.scriptSets[id]; ok {
		set.LastPing = &ping
	}
	return nil
}

func (t *memTx) GetScriptResultByName(ctx context.Context, scriptSetID int64, name string) (*domains.ScriptResult, error) {
	for _, r := range t.st.scriptResults {
		if r.ScriptSetID == scriptSetID && r.Name == name {
			return cloneResult(r), nil
		}
	}
	return nil, nil
}

func (t *memTx) CreateScriptResult(ctx context.Context, result *domains.ScriptResult) error {
	if _, ok := t.st.scriptSets[result.ScriptSetID]; !ok {
		return fmt.Errorf("script set %d not found", result.ScriptSetID)
	}
	if existing, _ := t.GetScriptResultByName(ctx, result.ScriptSetID, result.Name); existing != nil {
		return fmt.Errorf("script result %q already exists in set %d", result.Name, result.ScriptSetID)
	}
	t.st.nextID++
	result.ID = t.st.nextID
	result.Updated = time.Now()
	t.st.scriptResults[result.ID] = cloneResult(result)
	return nil
}

func (t *memTx) UpdateScriptResult(ctx context.Context, result *domains.ScriptResult) error {
	if _, ok := t.st.scriptResults[result.ID]; !ok {
		return fmt.Errorf("script result %d not found", result.ID)
	}
	result.Updated = time.Now()
	t.st.scriptResults[result.ID] = cloneResult(result)
	return nil
}

func (st *state) clone() *state {
	out := &state{
		nodes:         make(map[string]*domains.Node, len(st.nodes)),
		scriptSets:    make(map[int64]*domains.ScriptSet, len(st.scriptSets)),
		scriptResults: make(map[int64]*domains.ScriptResult, len(st.scriptResults)),
		events:        append([]domains.Event(nil), st.events...),
		nextID:        st.nextID,
	}
	for k, n := range st.nodes {
		out.nodes[k] = cloneNode(n)
	}
	for k, set := range st.scriptSets {
		c := *set
		c.LastPing = copyTime(set.LastPing)
		out.scriptSets[k] = &c
	}
	for k, r := range st.scriptResults {
		out.scriptResults[k] = cloneResult(r)
	}
	return out
}

func cloneNode(n *domains.Node) *domains.Node {
	c := *n
	c.Owner = copyString(n.Owner)
	c.Tags = append([]string(nil), n.Tags...)
	c.CurrentCommissioningScriptSet = copyInt64(n.CurrentCommissioningScriptSet)
	c.CurrentTestingScriptSet = copyInt64(n.CurrentTestingScriptSet)
	c.CurrentInstallationScriptSet = copyInt64(n.CurrentInstallationScriptSet)
	return &c
}

func cloneResult(r *domains.ScriptResult) *domains.ScriptResult {
	c := *r
	c.Output = append([]byte(nil), r.Output...)
	c.Stdout = append([]byte(nil), r.Stdout...)
	c.Stderr = append([]byte(nil), r.Stderr...)
	c.Result = append([]byte(nil), r.Result...)
	c.Started = copyTime(r.Started)
	c.Ended = copyTime(r.Ended)
	if r.ExitStatus != nil {
		v := *r.ExitStatus
		c.ExitStatus = &v
	}
	return &c
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyInt64(i *int64) *int64 {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
