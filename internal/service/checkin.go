package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/broker"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/credential"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/logging"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/metrics"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/repository"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/validation"
)

// holder is the (event, user) pair a presented credential claims the ticket
// belongs to.
type holder struct {
	eventID string
	userID  string
}

// ValidateTicket checks a ticket in at the door. A confirmed registration
// moves to attended exactly once; every later scan of the same ticket is
// rejected with alreadyScanned. Rejections are reported in the result, not
// as errors. An error means the store could not be consulted.
func (s *EventService) ValidateTicket(ctx context.Context, ticketID string) (*model.ValidationResult, error) {
	return s.checkIn(ctx, strings.TrimSpace(ticketID), nil)
}

// ScanCredential verifies a signed ticket credential and checks in the
// ticket it names. A credential whose event or user does not match the
// stored ticket is rejected with credentialMismatch and changes nothing.
func (s *EventService) ScanCredential(ctx context.Context, req model.ScanRequest) (*model.ValidationResult, error) {
	req.Credential = strings.TrimSpace(req.Credential)
	if err := validation.Struct(&req); err != nil {
		return nil, fromValidation(err)
	}
	claims, err := s.signer.Verify(req.Credential)
	if err != nil {
		metrics.RecordCheckin("invalid_credential")
		logging.Ctx(ctx).Info().Err(err).Msg("ticket credential rejected")
		if errors.Is(err, credential.ErrInvalid) {
			return nil, ErrInvalidCredential
		}
		return nil, err
	}
	return s.checkIn(ctx, claims.TicketID, &holder{eventID: claims.EventID, userID: claims.UserID()})
}

func (s *EventService) checkIn(ctx context.Context, ticketID string, expect *holder) (*model.ValidationResult, error) {
	var (
		result model.ValidationResult
		reg    model.Registration
	)
	err := update(ctx, s.store, s.cfg.Attempts, func(tx repository.Tx) error {
		result = model.ValidationResult{TicketID: ticketID}

		ticket, err := tx.GetTicket(ctx, ticketID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				result.Reason = model.ReasonUnknownTicket
				return nil
			}
			return err
		}
		result.EventID = ticket.EventID

		if expect != nil && (expect.eventID != ticket.EventID || (ticket.Claimed && expect.userID != ticket.HolderID)) {
			result.Reason = model.ReasonCredentialMismatch
			return nil
		}
		if !ticket.Claimed {
			result.Reason = model.ReasonNotAssigned
			return nil
		}
		result.UserID = ticket.HolderID

		current, err := tx.RegistrationByTicket(ctx, ticketID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				result.Reason = model.ReasonNotAssigned
				return nil
			}
			return err
		}
		reg = *current
		result.RegistrationID = reg.ID

		switch reg.Status {
		case model.RegistrationAttended:
			result.Reason = model.ReasonAlreadyScanned
			result.Timestamp = reg.AttendedAt
			return nil
		case model.RegistrationCancelled:
			result.Reason = model.ReasonNotAssigned
			return nil
		}

		now := s.now()
		if err := tx.MarkAttended(ctx, reg.ID, now); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				// Another scan committed first.
				result.Reason = model.ReasonAlreadyScanned
				if again, rerr := tx.RegistrationByTicket(ctx, ticketID); rerr == nil {
					result.Timestamp = again.AttendedAt
				}
				return nil
			}
			return err
		}
		result.Valid = true
		result.Timestamp = &now
		return nil
	})
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("ticket_id", ticketID).Msg("check-in failed")
		return nil, storageError("validate ticket", err)
	}

	metrics.RecordCheckin(result.Reason)
	log := logging.Ctx(ctx).With().Str("ticket_id", ticketID).Logger()
	if !result.Valid {
		log.Info().Str("reason", result.Reason).Msg("ticket rejected")
		return &result, nil
	}

	log.Info().
		Str("event_id", result.EventID).
		Str("user_id", result.UserID).
		Msg("ticket checked in")
	s.publish(ctx, broker.TopicTicketCheckedIn, broker.TicketCheckedIn{
		RegistrationID: result.RegistrationID,
		EventID:        result.EventID,
		UserID:         result.UserID,
		TicketID:       ticketID,
		OccurredAt:     derefTime(result.Timestamp),
	})
	return &result, nil
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
