package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"provision-svc/app/clients"
	"provision-svc/app/domains"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_WithTxCommits(t *testing.T) {
	store := NewStore()
	store.AddNode(domains.Node{NodeID: "node-1", Status: domains.NodeStatusDeploying})

	err := store.WithTx(context.Background(), func(ctx context.Context, tx clients.NodeTx) error {
		assert.True(t, clients.InTransaction(ctx))
		node, err := tx.LockNode(ctx, "node-1")
		require.NoError(t, err)
		node.Status = domains.NodeStatusFailedDeployment
		if err := tx.UpdateNode(ctx, node); err != nil {
			return err
		}
		return tx.InsertEvent(ctx, &domains.Event{NodeID: "node-1", Type: domains.EventTypeFinish})
	})
	require.NoError(t, err)

	node, err := store.GetNode(context.Background(), "node-1")
	require.NoError(t, err)
	assert.Equal(t, domains.NodeStatusFailedDeployment, node.Status)

	events, err := store.ListEvents(context.Background(), "node-1")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestStore_WithTxRollsBack(t *testing.T) {
	store := NewStore()
	store.AddNode(domains.Node{NodeID: "node-1", Status: domains.NodeStatusDeploying})
	set, err := store.AddScriptSet("node-1", domains.ResultTypeInstallation, "curtin")
	require.NoError(t, err)
	errBoom := errors.New("boom")

	err = store.WithTx(context.Background(), func(ctx context.Context, tx clients.NodeTx) error {
		node, _ := tx.LockNode(ctx, "node-1")
		node.Status = domains.NodeStatusFailedDeployment
		require.NoError(t, tx.UpdateNode(ctx, node))
		require.NoError(t, tx.SetNodeTags(ctx, "node-1", []string{"virtual"}))
		require.NoError(t, tx.InsertEvent(ctx, &domains.Event{NodeID: "node-1"}))

		result, _ := tx.GetScriptResultByName(ctx, set.ID, "curtin")
		result.Stdout = []byte("partial")
		require.NoError(t, tx.UpdateScriptResult(ctx, result))
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)

	node, _ := store.GetNode(context.Background(), "node-1")
	assert.Equal(t, domains.NodeStatusDeploying, node.Status)
	assert.Empty(t, node.Tags)
	events, _ := store.ListEvents(context.Background(), "node-1")
	assert.Empty(t, events)
	assert.Empty(t, store.ScriptResultByName(set.ID, "curtin").Stdout)
}

func TestStore_ReadsReturnCopies(t *testing.T) {
	store := NewStore()
	owner := "admin"
	store.AddNode(domains.Node{NodeID: "node-1", Owner: &owner, Tags: []string{"a"}})

	node, _ := store.GetNode(context.Background(), "node-1")
	*node.Owner = "mallory"
	node.Tags[0] = "b"

	again, _ := store.GetNode(context.Background(), "node-1")
	assert.Equal(t, "admin", *again.Owner)
	assert.Equal(t, []string{"a"}, again.Tags)
	assert.Equal(t, domains.NodeStatusNew, again.Status)
}

func TestStore_ScriptResultNamesAreUniquePerSet(t *testing.T) {
	store := NewStore()
	store.AddNode(domains.Node{NodeID: "node-1"})
	set, err := store.AddScriptSet("node-1", domains.ResultTypeCommissioning, "lshw")
	require.NoError(t, err)

	err = store.WithTx(context.Background(), func(ctx context.Context, tx clients.NodeTx) error {
		return tx.CreateScriptResult(ctx, &domains.ScriptResult{ScriptSetID: set.ID, Name: "lshw"})
	})
	assert.Error(t, err)

	results, err := store.ListScriptResults(context.Background(), set.ID)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestStore_CleanupOldEvents(t *testing.T) {
	store := NewStore()
	store.AddNode(domains.Node{NodeID: "node-1"})

	err := store.WithTx(context.Background(), func(ctx context.Context, tx clients.NodeTx) error {
		if err := tx.InsertEvent(ctx, &domains.Event{NodeID: "node-1", Name: "old", Created: time.Now().AddDate(0, 0, -30)}); err != nil {
			return err
		}
		return tx.InsertEvent(ctx, &domains.Event{NodeID: "node-1", Name: "new", Created: time.Now()})
	})
	require.NoError(t, err)

	require.NoError(t, store.CleanupOldEvents(context.Background(), 7))
	events, _ := store.ListEvents(context.Background(), "node-1")
	require.Len(t, events, 1)
	assert.Equal(t, "new", events[0].Name)
}
