package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/broker"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/logging"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/metrics"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/repository"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/validation"
)

// Register claims one unclaimed ticket of the event for the user.
//
// Preconditions are checked in order, each with its own error: the event
// exists (NotFoundError{event}), the user exists (NotFoundError{user}), the
// user holds no active registration for the event (AlreadyRegisteredError,
// carrying the existing ticket), and a ticket is still free (ErrEventFull).
//
// The checks, the ticket claim and the registration insert run in one
// transaction. On PostgreSQL the event row lock serializes allocations per
// event; on Badger a competing claim of the same ticket or the same
// (event, user) pair fails at commit and the whole sequence is re-run. Either
// way the number of claimed tickets never exceeds the pool and no ticket is
// claimed twice.
func (s *EventService) Register(ctx context.Context, eventID string, req model.RegisterRequest) (*model.RegistrationResult, error) {
	start := time.Now()
	req.UserID = strings.TrimSpace(req.UserID)
	if err := validation.Struct(&req); err != nil {
		metrics.RecordRegistration("invalid", time.Since(start))
		return nil, fromValidation(err)
	}
	userID := req.UserID

	var (
		event    *model.Event
		reg      *model.Registration
		existing *model.Registration
	)
	err := update(ctx, s.store, s.cfg.Attempts, func(tx repository.Tx) error {
		event, reg, existing = nil, nil, nil

		// 1. Event exists; on PostgreSQL this also takes the event lock.
		var err error
		event, err = tx.LockEvent(ctx, eventID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return &NotFoundError{Kind: KindEvent, ID: eventID}
			}
			return err
		}

		// 2. User exists.
		if _, err := tx.GetUser(ctx, userID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return &NotFoundError{Kind: KindUser, ID: userID}
			}
			return err
		}

		// 3. No active registration for (event, user).
		active, err := tx.ActiveRegistration(ctx, eventID, userID)
		switch {
		case err == nil:
			existing = active
			return ErrAlreadyRegistered
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}

		// 4. Some ticket is still unclaimed.
		ticket, err := tx.NextUnclaimedTicket(ctx, eventID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrEventFull
			}
			return err
		}

		// 5. Claim it and record the registration, atomically.
		now := s.now()
		if err := tx.ClaimTicket(ctx, ticket.ID, userID, now); err != nil {
			return err
		}
		reg = &model.Registration{
			ID:           uuid.NewString(),
			EventID:      eventID,
			UserID:       userID,
			TicketID:     ticket.ID,
			Status:       model.RegistrationConfirmed,
			RegisteredAt: now,
		}
		if err := tx.InsertRegistration(ctx, reg); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				// A concurrent request for the same pair won. Re-run so
				// step 3 reports it.
				return repository.ErrConflict
			}
			return err
		}
		return nil
	})

	log := logging.Ctx(ctx).With().Str("event_id", eventID).Str("user_id", userID).Logger()
	switch {
	case errors.Is(err, ErrAlreadyRegistered) && existing != nil:
		metrics.RecordRegistration("already_registered", time.Since(start))
		log.Info().Str("ticket_id", existing.TicketID).Msg("registration rejected: already registered")
		return nil, s.alreadyRegistered(existing)
	case errors.Is(err, ErrEventFull):
		metrics.RecordRegistration("event_full", time.Since(start))
		log.Info().Msg("registration rejected: event full")
		return nil, err
	case errors.Is(err, ErrNotFound):
		metrics.RecordRegistration("not_found", time.Since(start))
		log.Info().Err(err).Msg("registration rejected")
		return nil, err
	case err != nil:
		metrics.RecordRegistration("error", time.Since(start))
		log.Error().Err(err).Msg("registration failed")
		return nil, storageError("register for event", err)
	}

	token, err := s.signer.Issue(reg.TicketID, eventID, userID)
	if err != nil {
		// The claim is committed; the holder can recover the credential by
		// registering again, which returns the existing ticket.
		log.Error().Err(err).Str("ticket_id", reg.TicketID).Msg("failed to sign ticket credential")
		return nil, storageError("sign credential", err)
	}

	metrics.RecordRegistration("confirmed", time.Since(start))
	log.Info().Str("ticket_id", reg.TicketID).Str("registration_id", reg.ID).Msg("registration confirmed")

	s.publish(ctx, broker.TopicRegistrationConfirmed, broker.RegistrationConfirmed{
		RegistrationID: reg.ID,
		EventID:        event.ID,
		EventTitle:     event.Title,
		EventDate:      event.Date,
		UserID:         userID,
		TicketID:       reg.TicketID,
		OccurredAt:     reg.RegisteredAt,
	})

	return &model.RegistrationResult{
		Registration: *reg,
		Event:        event.Summary(),
		Ticket:       model.TicketCredential{TicketID: reg.TicketID, Token: token},
	}, nil
}

// alreadyRegistered builds the conflict error, re-issuing the credential of
// the ticket the user already holds.
func (s *EventService) alreadyRegistered(existing *model.Registration) error {
	cred := model.TicketCredential{TicketID: existing.TicketID}
	if token, err := s.signer.Issue(existing.TicketID, existing.EventID, existing.UserID); err == nil {
		cred.Token = token
	}
	return &AlreadyRegisteredError{RegistrationID: existing.ID, Ticket: cred}
}
