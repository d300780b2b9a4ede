package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"provision-svc/app/clients"
	"provision-svc/app/domains"
	"provision-svc/app/metrics"
	"provision-svc/app/utils"

	"github.com/rs/zerolog"
)

// VirtualityProbeScript is the commissioning script whose stdout reports virtualization
const VirtualityProbeScript = "00-maas-02-virtuality"

// Failure comments recorded on the node
const (
	CommissioningFailedComment = "Commissioning failed, cloud-init reported a failure (refer to the event log for more information)."
	InstallationFailedComment  = "Installation failed (refer to the installation log for more information)."
	DiskErasingFailedComment   = "Failed to erase disks."
)

type failureTransition struct {
	to         domains.NodeStatus
	comment    string
	clearOwner bool
}

// failureTransitions is applied on a failed finish event; other states ignore the result
var failureTransitions = map[domains.NodeStatus]failureTransition{
	domains.NodeStatusCommissioning: {to: domains.NodeStatusFailedCommissioning, comment: CommissioningFailedComment, clearOwner: true},
	domains.NodeStatusDeploying:     {to: domains.NodeStatusFailedDeployment, comment: InstallationFailedComment},
	domains.NodeStatusDiskErasing:   {to: domains.NodeStatusFailedDiskErasing, comment: DiskErasingFailedComment, clearOwner: true},
}

// NextStatus returns the status a node moves to when a finish event with
// result arrives. The second value is false when the status does not change;
// a successful finish never completes a phase here.
func NextStatus(current domains.NodeStatus, result string) (domains.NodeStatus, bool) {
	if result != domains.ResultFailure && result != domains.ResultFail {
		return current, false
	}
	t, ok := failureTransitions[current]
	if !ok {
		return current, false
	}
	return t.to, true
}

// StatusApplier applies batches of status messages to the store
type StatusApplier struct {
	storage clients.StorageAdapter
	logger  zerolog.Logger
	now     func() time.Time
}

// NewStatusApplier creates a status applier
func NewStatusApplier(storage clients.StorageAdapter, logger zerolog.Logger) *StatusApplier {
	return &StatusApplier{
		storage: storage,
		logger:  logger,
		now:     time.Now,
	}
}

// ProcessMessages applies a batch in one transaction. It refuses to run inside
// a caller's transaction. Any error rolls back every message of the batch.
func (a *StatusApplier) ProcessMessages(ctx context.Context, batch Batch) error {
	if clients.InTransaction(ctx) {
		return domains.ErrInTransaction
	}
	if len(batch.Messages) == 0 {
		return nil
	}

	timer := metrics.NewTimer()
	err := a.storage.WithTx(ctx, func(ctx context.Context, tx clients.NodeTx) error {
		node, err := tx.LockNode(ctx, batch.NodeID)
		if err != nil {
			return fmt.Errorf("failed to lock node %s: %w", batch.NodeID, err)
		}
		if node == nil {
			return fmt.Errorf("%w: %s", domains.ErrNodeNotFound, batch.NodeID)
		}

		if err := a.updateLastPing(ctx, tx, node, &batch.Messages[len(batch.Messages)-1]); err != nil {
			return err
		}
		for i := range batch.Messages {
			if err := a.processMessage(ctx, tx, node, &batch.Messages[i]); err != nil {
				return err
			}
		}
		return nil
	})
	timer.ObserveDuration(metrics.BatchApplyDuration)

	if err != nil {
		metrics.BatchesApplied.WithLabelValues("rolled_back").Inc()
		return fmt.Errorf("failed to apply status batch for node %s: %w", batch.NodeID, err)
	}
	metrics.BatchesApplied.WithLabelValues("committed").Inc()
	a.logger.Debug().
		Str("node_id", batch.NodeID).
		Int("messages", len(batch.Messages)).
		Dur("duration", timer.Duration()).
		Msg("status batch applied")
	return nil
}

// updateLastPing records the heartbeat on the node and on the script set of its current phase
func (a *StatusApplier) updateLastPing(ctx context.Context, tx clients.NodeTx, node *domains.Node, last *domains.StatusMessage) error {
	now := a.now()
	if err := tx.TouchNode(ctx, node.NodeID, now); err != nil {
		return fmt.Errorf("failed to update last seen: %w", err)
	}

	rt, ok := node.Status.ResultType()
	if !ok {
		return nil
	}
	setID := node.CurrentScriptSetID(rt)
	if setID == nil {
		return nil
	}
	if err := tx.UpdateScriptSetLastPing(ctx, *setID, last.Time(now)); err != nil {
		return fmt.Errorf("failed to update last ping: %w", err)
	}
	return nil
}

func (a *StatusApplier) processMessage(ctx context.Context, tx clients.NodeTx, node *domains.Node, msg *domains.StatusMessage) error {
	now := a.now()
	event := &domains.Event{
		NodeID:      node.NodeID,
		Type:        msg.EventType,
		Origin:      msg.Origin,
		Name:        msg.Name,
		Description: fmt.Sprintf("'%s' %s", msg.Origin, msg.Description),
		Created:     msg.Time(now),
	}
	if err := tx.InsertEvent(ctx, event); err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}

	commissioningFailed := msg.IsFinish() && msg.Failed() && node.Status == domains.NodeStatusCommissioning

	var probe []byte
	if len(msg.Files) > 0 {
		var err error
		if probe, err = a.storeFiles(ctx, tx, node, msg); err != nil {
			return err
		}
	}

	if msg.IsFinish() {
		if err := a.applyTransition(ctx, tx, node, msg); err != nil {
			return err
		}
	}

	if probe != nil && !commissioningFailed {
		if err := a.updateVirtualTag(ctx, tx, node, probe); err != nil {
			return err
		}
	}
	return nil
}

// storeFiles writes every attachment into the active script set. It returns
// the virtuality probe output when one of the files carried it.
func (a *StatusApplier) storeFiles(ctx context.Context, tx clients.NodeTx, node *domains.Node, msg *domains.StatusMessage) ([]byte, error) {
	if !node.Status.AcceptsFiles() {
		return nil, domains.NewValidationError("invalid status for saving files: %s", node.Status)
	}
	rt, _ := node.Status.ResultType()

	set, err := a.activeScriptSet(ctx, tx, node, rt)
	if err != nil {
		return nil, err
	}

	var probe []byte
	reported := msg.Time(a.now())
	for i := range msg.Files {
		file := &msg.Files[i]
		if err := utils.ValidateStruct(file); err != nil {
			return nil, domains.NewValidationError("invalid file %d: %v", i, err)
		}
		data, err := utils.DecodePayload(file.Encoding, file.Compression, file.Content)
		if err != nil {
			return nil, utils.FormatDecodeError(file.Path, err)
		}

		name, stream := utils.ClassifyPath(file.Path)
		result, err := tx.GetScriptResultByName(ctx, set.ID, name)
		if err != nil {
			return nil, fmt.Errorf("failed to load script result %s: %w", name, err)
		}
		created := result == nil
		if created {
			result = &domains.ScriptResult{ScriptSetID: set.ID, Name: name, Started: &reported}
		}

		switch stream {
		case utils.StreamStdout:
			result.Stdout = data
		case utils.StreamStderr:
			result.Stderr = data
		case utils.StreamResult:
			result.Result = data
		default:
			result.Output = data
		}
		exitStatus := file.ExitStatus()
		result.ExitStatus = &exitStatus
		result.Status = scriptStatusFor(msg, exitStatus)
		result.Ended = &reported

		if created {
			err = tx.CreateScriptResult(ctx, result)
		} else {
			err = tx.UpdateScriptResult(ctx, result)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to store script result %s: %w", name, err)
		}

		if name == VirtualityProbeScript && stream == utils.StreamStdout {
			probe = data
		}
	}
	return probe, nil
}

// activeScriptSet returns the node's current script set for rt, creating it when missing
func (a *StatusApplier) activeScriptSet(ctx context.Context, tx clients.NodeTx, node *domains.Node, rt domains.ResultType) (*domains.ScriptSet, error) {
	if id := node.CurrentScriptSetID(rt); id != nil {
		set, err := tx.GetScriptSet(ctx, *id)
		if err != nil {
			return nil, fmt.Errorf("failed to load script set %d: %w", *id, err)
		}
		if set != nil {
			return set, nil
		}
	}

	set := &domains.ScriptSet{NodeID: node.NodeID, ResultType: rt, Created: a.now()}
	if err := tx.CreateScriptSet(ctx, set); err != nil {
		return nil, fmt.Errorf("failed to create %s script set: %w", rt, err)
	}
	node.SetCurrentScriptSetID(rt, set.ID)
	if err := tx.UpdateNode(ctx, node); err != nil {
		return nil, fmt.Errorf("failed to link script set: %w", err)
	}
	return set, nil
}

func (a *StatusApplier) applyTransition(ctx context.Context, tx clients.NodeTx, node *domains.Node, msg *domains.StatusMessage) error {
	from := node.Status
	to, changed := NextStatus(from, msg.Result)
	if !changed {
		return nil
	}
	t := failureTransitions[from]

	node.Status = to
	node.ErrorDescription = t.comment
	if t.clearOwner {
		node.Owner = nil
	}
	if err := tx.UpdateNode(ctx, node); err != nil {
		return fmt.Errorf("failed to update node status: %w", err)
	}

	metrics.NodeTransitions.WithLabelValues(string(from), string(to)).Inc()
	a.logger.Info().
		Str("node_id", node.NodeID).
		Str("from", string(from)).
		Str("to", string(to)).
		Str("origin", msg.Origin).
		Str("name", msg.Name).
		Msg("node status changed")
	return nil
}

func (a *StatusApplier) updateVirtualTag(ctx context.Context, tx clients.NodeTx, node *domains.Node, probe []byte) error {
	virtual := isVirtual(probe)
	if virtual == node.HasTag(domains.TagVirtual) {
		return nil
	}

	tags := make([]string, 0, len(node.Tags)+1)
	for _, t := range node.Tags {
		if t != domains.TagVirtual {
			tags = append(tags, t)
		}
	}
	if virtual {
		tags = append(tags, domains.TagVirtual)
	}
	if err := tx.SetNodeTags(ctx, node.NodeID, tags); err != nil {
		return fmt.Errorf("failed to update tags: %w", err)
	}
	node.Tags = tags
	return nil
}

func isVirtual(probe []byte) bool {
	switch strings.ToLower(strings.TrimSpace(string(probe))) {
	case "", "none", "false":
		return false
	}
	return true
}

func scriptStatusFor(msg *domains.StatusMessage, exitStatus int) domains.ScriptStatus {
	if msg.Failed() || exitStatus != 0 {
		return domains.ScriptStatusFailed
	}
	return domains.ScriptStatusPassed
}
