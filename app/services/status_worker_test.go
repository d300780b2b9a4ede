package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"provision-svc/app/domains"
	"provision-svc/app/utils"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens map[string]string

func (s staticTokens) ResolveToken(token string) (string, error) {
	nodeID, ok := s[token]
	if !ok {
		return "", domains.ErrUnknownToken
	}
	return nodeID, nil
}

type recordingScheduler struct {
	mu    sync.Mutex
	tasks []Task
}

func (r *recordingScheduler) AddTask(task Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, task)
	return nil
}

func (r *recordingScheduler) taken() []Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.tasks
	r.tasks = nil
	return out
}

type recordingApplier struct {
	mu      sync.Mutex
	batches []Batch
}

func (r *recordingApplier) ProcessMessages(ctx context.Context, batch Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, batch)
	return nil
}

func runTasks(t *testing.T, tasks []Task) {
	t.Helper()
	for _, task := range tasks {
		require.NoError(t, task.Run(context.Background()))
	}
}

func progressMsg(description string) domains.StatusMessage {
	return domains.StatusMessage{
		EventType:   domains.EventTypeProgress,
		Origin:      "curtin",
		Name:        "cmd-install",
		Description: description,
	}
}

func TestStatusWorker_DropsUnknownToken(t *testing.T) {
	sched := &recordingScheduler{}
	w := NewStatusWorker(staticTokens{}, sched, &recordingApplier{}, time.Minute, zerolog.Nop())

	w.QueueMessage("stale-token", progressMsg("lost"))
	w.TryUpdateNodes()

	assert.Equal(t, 0, w.Pending())
	assert.Empty(t, sched.taken())
}

func TestStatusWorker_BatchesUntilTick(t *testing.T) {
	sched := &recordingScheduler{}
	applier := &recordingApplier{}
	w := NewStatusWorker(staticTokens{"tok-a": "node-a"}, sched, applier, time.Minute, zerolog.Nop())

	w.QueueMessage("tok-a", progressMsg("one"))
	w.QueueMessage("tok-a", progressMsg("two"))
	assert.Equal(t, 2, w.Pending())
	assert.Empty(t, sched.taken())

	w.TryUpdateNodes()
	assert.Equal(t, 0, w.Pending())

	tasks := sched.taken()
	require.Len(t, tasks, 1)
	assert.Equal(t, "node-a", tasks[0].Key)
	runTasks(t, tasks)

	require.Len(t, applier.batches, 1)
	batch := applier.batches[0]
	assert.Equal(t, "node-a", batch.NodeID)
	require.Len(t, batch.Messages, 2)
	assert.Equal(t, "one", batch.Messages[0].Description)
	assert.Equal(t, "two", batch.Messages[1].Description)
}

func TestStatusWorker_UrgentMessagesDispatchImmediately(t *testing.T) {
	tests := []struct {
		name   string
		urgent domains.StatusMessage
	}{
		{
			name: "finish event",
			urgent: domains.StatusMessage{
				EventType:   domains.EventTypeFinish,
				Origin:      "curtin",
				Name:        "cmd-install",
				Description: "done",
				Result:      domains.ResultSuccess,
			},
		},
		{
			name: "message with files",
			urgent: domains.StatusMessage{
				EventType:   domains.EventTypeProgress,
				Origin:      "cloud-init",
				Name:        "commissioning",
				Description: "done",
				Files:       []domains.FileAttachment{{Path: "a.out", Encoding: utils.EncodingBase64}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sched := &recordingScheduler{}
			applier := &recordingApplier{}
			w := NewStatusWorker(staticTokens{"tok-a": "node-a", "tok-b": "node-b"}, sched, applier, time.Minute, zerolog.Nop())

			w.QueueMessage("tok-a", progressMsg("queued"))
			w.QueueMessage("tok-b", progressMsg("other node"))
			w.QueueMessage("tok-a", tt.urgent)

			tasks := sched.taken()
			require.Len(t, tasks, 1, "only the urgent node is dispatched")
			runTasks(t, tasks)
			require.Len(t, applier.batches, 1)
			assert.Equal(t, "node-a", applier.batches[0].NodeID)
			require.Len(t, applier.batches[0].Messages, 2)
			assert.Equal(t, "queued", applier.batches[0].Messages[0].Description)
			assert.Equal(t, 1, w.Pending())

			w.QueueMessage("tok-a", progressMsg("after"))
			w.TryUpdateNodes()
			tasks = sched.taken()
			require.Len(t, tasks, 2)
		})
	}
}

func TestStatusWorker_RunDispatchesOnShutdown(t *testing.T) {
	sched := &recordingScheduler{}
	w := NewStatusWorker(staticTokens{"tok-a": "node-a"}, sched, &recordingApplier{}, time.Hour, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	w.QueueMessage("tok-a", progressMsg("pending at shutdown"))
	cancel()
	<-done

	assert.Len(t, sched.taken(), 1)
	assert.Equal(t, 0, w.Pending())
}

func TestStatusWorker_EndToEnd(t *testing.T) {
	applier, store := newTestApplier(t)
	addTestNode(store, "node-a", domains.NodeStatusDeploying, "alice")
	addTestNode(store, "node-b", domains.NodeStatusCommissioning, "bob")

	sched := NewTaskScheduler(4, utils.NewRetryPolicy(3, time.Millisecond, time.Millisecond), time.Second, zerolog.Nop())
	sched.Start()
	defer sched.Stop()

	tokens := staticTokens{"tok-a": "node-a", "tok-b": "node-b"}
	w := NewStatusWorker(tokens, sched, applier, time.Minute, zerolog.Nop())

	var wg sync.WaitGroup
	for _, token := range []string{"tok-a", "tok-b"} {
		wg.Add(1)
		go func(token string) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				w.QueueMessage(token, progressMsg(fmt.Sprintf("step %d", i)))
				if i%7 == 0 {
					w.TryUpdateNodes()
				}
			}
		}(token)
	}
	wg.Wait()

	finish := progressMsg("Command Install")
	finish.EventType = domains.EventTypeFinish
	finish.Result = domains.ResultFailure
	w.QueueMessage("tok-a", finish)
	w.TryUpdateNodes()
	sched.WaitIdle()

	for _, nodeID := range []string{"node-a", "node-b"} {
		events := listEvents(t, store, nodeID)
		require.GreaterOrEqual(t, len(events), 20)
		for i := 0; i < 20; i++ {
			assert.Equal(t, fmt.Sprintf("'curtin' step %d", i), events[i].Description)
		}
	}

	nodeA := getNode(t, store, "node-a")
	assert.Equal(t, domains.NodeStatusFailedDeployment, nodeA.Status)
	assert.Equal(t, "alice", *nodeA.Owner)
	assert.Len(t, listEvents(t, store, "node-a"), 21)
	assert.Equal(t, domains.NodeStatusCommissioning, getNode(t, store, "node-b").Status)
}
