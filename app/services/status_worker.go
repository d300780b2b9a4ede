package services

import (
	"context"
	"errors"
	"time"

	"provision-svc/app/domains"
	"provision-svc/app/metrics"

	"github.com/rs/zerolog"
)

// DefaultStatusInterval is how long non-urgent messages wait in a mailbox
const DefaultStatusInterval = 60 * time.Second

// Batch is one node's ordered messages, applied as a single transaction
type Batch struct {
	NodeID   string
	Messages []domains.StatusMessage
}

// BatchProcessor applies a batch to the store
type BatchProcessor interface {
	ProcessMessages(ctx context.Context, batch Batch) error
}

// StatusWorker keeps a mailbox per node and hands mailboxes to the task
// scheduler, immediately for finish events and file uploads and otherwise on
// every tick. It never touches the database itself.
type StatusWorker struct {
	tokens    TokenResolver
	scheduler TaskAdder
	applier   BatchProcessor
	interval  time.Duration
	logger    zerolog.Logger
	mailboxes *Coalescer[string, domains.StatusMessage]
}

// NewStatusWorker creates a status worker
func NewStatusWorker(tokens TokenResolver, scheduler TaskAdder, applier BatchProcessor, interval time.Duration, logger zerolog.Logger) *StatusWorker {
	if interval <= 0 {
		interval = DefaultStatusInterval
	}
	w := &StatusWorker{
		tokens:    tokens,
		scheduler: scheduler,
		applier:   applier,
		interval:  interval,
		logger:    logger,
	}
	w.mailboxes = NewCoalescer[string, domains.StatusMessage](w.dispatch)
	return w
}

// QueueMessage adds a message to its node's mailbox. Messages whose token no
// longer resolves are dropped: a machine can lose its token mid-deployment.
func (w *StatusWorker) QueueMessage(token string, msg domains.StatusMessage) {
	nodeID, err := w.tokens.ResolveToken(token)
	if err != nil {
		reason := "token_error"
		if errors.Is(err, domains.ErrUnknownToken) {
			reason = "unknown_token"
		}
		metrics.StatusMessagesDropped.WithLabelValues(reason).Inc()
		w.logger.Warn().
			Err(err).
			Str("event_type", msg.EventType).
			Str("origin", msg.Origin).
			Msg("dropping status message: token does not resolve to a node")
		return
	}

	w.mailboxes.Add(nodeID, msg, msg.IsUrgent())
	metrics.MailboxPending.Set(float64(w.mailboxes.Pending()))
}

// TryUpdateNodes dispatches every non-empty mailbox
func (w *StatusWorker) TryUpdateNodes() {
	w.mailboxes.Tick()
	metrics.MailboxPending.Set(float64(w.mailboxes.Pending()))
}

// Pending returns the number of messages waiting in mailboxes
func (w *StatusWorker) Pending() int {
	return w.mailboxes.Pending()
}

// Run dispatches mailboxes every interval until ctx is done. Messages still
// queued at that point are dispatched before Run returns.
func (w *StatusWorker) Run(ctx context.Context) {
	w.logger.Info().Dur("interval", w.interval).Msg("status worker started")
	w.mailboxes.Run(ctx, w.interval)
	metrics.MailboxPending.Set(float64(w.mailboxes.Pending()))
	w.logger.Info().Msg("status worker stopped")
}

func (w *StatusWorker) dispatch(nodeID string, messages []domains.StatusMessage, trigger string) {
	batch := Batch{NodeID: nodeID, Messages: messages}
	err := w.scheduler.AddTask(Task{
		Key:  nodeID,
		Name: "process-status-messages",
		Run: func(ctx context.Context) error {
			return w.applier.ProcessMessages(ctx, batch)
		},
	})
	if err != nil {
		metrics.StatusMessagesDropped.WithLabelValues("scheduler_stopped").Add(float64(len(messages)))
		w.logger.Error().
			Err(err).
			Str("node_id", nodeID).
			Int("messages", len(messages)).
			Msg("failed to schedule status batch")
		return
	}
	metrics.BatchesDispatched.WithLabelValues(trigger).Inc()
}
