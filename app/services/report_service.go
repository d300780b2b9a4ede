package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"provision-svc/app/clients"
	"provision-svc/app/domains"
	"provision-svc/app/utils"

	"github.com/rs/zerolog"
)

// StatusSender delivers encoded status messages
type StatusSender interface {
	SendRaw(ctx context.Context, token string, body []byte) error
}

// Outbox keeps messages that could not be delivered
type Outbox interface {
	Enqueue(ctx context.Context, token string, payload []byte) (string, error)
	Pending(ctx context.Context, limit int) ([]clients.SpooledMessage, error)
	Remove(ctx context.Context, messageID string) error
	MarkFailed(ctx context.Context, messageID string, cause error) error
}

// FlushResult summarizes one outbox flush
type FlushResult struct {
	Sent      int
	Failed    int
	Abandoned int
}

// ReportService sends status messages from the machine side and spools
// them when the controller cannot be reached
type ReportService struct {
	sender StatusSender
	outbox Outbox
	policy *utils.RetryPolicy
	logger zerolog.Logger
}

// NewReportService creates a new report service. outbox may be nil.
func NewReportService(sender StatusSender, outbox Outbox, policy *utils.RetryPolicy, logger zerolog.Logger) *ReportService {
	if policy == nil {
		policy = utils.DefaultRetryPolicy()
	}
	return &ReportService{
		sender: sender,
		outbox: outbox,
		policy: policy,
		logger: logger,
	}
}

// Report sends msg, retrying transient failures. When delivery still fails
// the message is spooled and spooled is true.
func (s *ReportService) Report(ctx context.Context, token string, msg *domains.StatusMessage) (spooled bool, err error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return false, fmt.Errorf("failed to marshal status message: %w", err)
	}

	err = s.policy.Execute(ctx, func() error {
		return s.sender.SendRaw(ctx, token, body)
	}, isTransientSendError)
	if err == nil {
		return false, nil
	}
	if !isTransientSendError(err) || s.outbox == nil {
		return false, err
	}

	messageID, spoolErr := s.outbox.Enqueue(ctx, token, body)
	if spoolErr != nil {
		return false, fmt.Errorf("delivery failed (%v) and spooling failed: %w", err, spoolErr)
	}
	s.logger.Warn().
		Err(err).
		Str("message_id", messageID).
		Str("event_type", msg.EventType).
		Msg("status message spooled for later delivery")
	return true, nil
}

// Flush resends up to limit spooled messages in order. Messages the server
// rejects permanently are abandoned; the first transient failure stops the
// flush so later messages are not delivered ahead of earlier ones.
func (s *ReportService) Flush(ctx context.Context, limit int) (FlushResult, error) {
	var res FlushResult
	if s.outbox == nil {
		return res, nil
	}

	pending, err := s.outbox.Pending(ctx, limit)
	if err != nil {
		return res, err
	}

	for _, m := range pending {
		sendErr := s.sender.SendRaw(ctx, m.Token, m.Payload)
		switch {
		case sendErr == nil:
			res.Sent++
		case !isTransientSendError(sendErr):
			res.Abandoned++
			s.logger.Error().Err(sendErr).Str("message_id", m.MessageID).Msg("abandoning rejected status message")
		default:
			res.Failed++
			if err := s.outbox.MarkFailed(ctx, m.MessageID, sendErr); err != nil {
				return res, fmt.Errorf("failed to record delivery failure: %w", err)
			}
			return res, nil
		}
		if err := s.outbox.Remove(ctx, m.MessageID); err != nil {
			return res, fmt.Errorf("failed to remove spooled message: %w", err)
		}
	}
	return res, nil
}

func isTransientSendError(err error) bool {
	var statusErr *clients.StatusError
	if errors.As(err, &statusErr) {
		return !statusErr.Permanent()
	}
	return !errors.Is(err, context.Canceled)
}
