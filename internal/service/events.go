package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/logging"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/metrics"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/repository"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/validation"
)

// eventDateLayouts are tried in order when parsing an event date.
var eventDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02",
}

func parseEventDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range eventDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// domainError reports whether err is one of the caller-facing outcomes the
// engine produces itself, as opposed to a store failure.
func domainError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAlreadyRegistered) ||
		errors.Is(err, ErrEventFull) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmailTaken)
}

func classify(op string, err error) error {
	if err == nil || domainError(err) {
		return err
	}
	return storageError(op, err)
}

// CreateEvent validates the draft, then persists the event together with a
// pool of exactly Capacity unclaimed tickets in one transaction. Either the
// event and its whole pool become visible, or nothing does.
func (s *EventService) CreateEvent(ctx context.Context, req model.CreateEventRequest) (*model.CreateEventResponse, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.OrganizerID = strings.TrimSpace(req.OrganizerID)
	if err := validation.Struct(&req); err != nil {
		return nil, fromValidation(err)
	}

	date, err := parseEventDate(req.Date)
	if err != nil {
		return nil, invalidInput("date", "date must be RFC 3339, YYYY-MM-DDTHH:MM or YYYY-MM-DD")
	}
	capacity := req.Capacity.Value
	if s.cfg.MaxCapacity > 0 && capacity > s.cfg.MaxCapacity {
		return nil, invalidInput("capacity", fmt.Sprintf("capacity cannot exceed %d", s.cfg.MaxCapacity))
	}

	now := s.now()
	event := &model.Event{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Description: strings.TrimSpace(req.Description),
		Date:        date,
		Location:    strings.TrimSpace(req.Location),
		OrganizerID: req.OrganizerID,
		Capacity:    capacity,
		Price:       float64(req.Price),
		IsPrivate:   bool(req.IsPrivate),
		Image:       strings.TrimSpace(req.Image),
		CreatedAt:   now,
	}

	// Ticket IDs are random v4 UUIDs: knowing the event ID and a position
	// in the pool says nothing about any ticket's ID.
	tickets := make([]model.Ticket, capacity)
	for i := range tickets {
		tickets[i] = model.Ticket{
			ID:        uuid.NewString(),
			EventID:   event.ID,
			CreatedAt: now,
		}
	}

	err = update(ctx, s.store, s.cfg.Attempts, func(tx repository.Tx) error {
		if _, err := tx.GetUser(ctx, event.OrganizerID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return invalidInput("organizer_id", "organizer does not exist")
			}
			return err
		}
		if err := tx.InsertEvent(ctx, event); err != nil {
			return err
		}
		return tx.InsertTickets(ctx, tickets)
	})
	if err != nil {
		return nil, classify("create event", err)
	}

	metrics.RecordTicketsGenerated(capacity)
	logging.Ctx(ctx).Info().
		Str("event_id", event.ID).
		Str("organizer_id", event.OrganizerID).
		Int("capacity", capacity).
		Msg("event created")

	return &model.CreateEventResponse{Event: *event, TicketsGenerated: capacity}, nil
}

// ListPublicEvents returns every event that is not private.
func (s *EventService) ListPublicEvents(ctx context.Context) ([]model.Event, error) {
	var events []model.Event
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		events, err = tx.ListPublicEvents(ctx)
		return err
	})
	if err != nil {
		return nil, storageError("list events", err)
	}
	return events, nil
}

// GetEventDetail returns the event with its live pool counts.
func (s *EventService) GetEventDetail(ctx context.Context, id string) (*model.EventDetail, error) {
	var detail model.EventDetail
	err := s.store.View(ctx, func(tx repository.Tx) error {
		event, err := tx.GetEvent(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return &NotFoundError{Kind: KindEvent, ID: id}
			}
			return err
		}
		total, available, err := tx.CountTickets(ctx, id)
		if err != nil {
			return err
		}
		detail = model.EventDetail{Event: *event, AvailableTickets: available, TotalTickets: total}
		return nil
	})
	if err != nil {
		return nil, classify("get event", err)
	}
	return &detail, nil
}

// ListEventRegistrations returns every registration for an event, oldest
// first.
func (s *EventService) ListEventRegistrations(ctx context.Context, eventID string) ([]model.Registration, error) {
	var regs []model.Registration
	err := s.store.View(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetEvent(ctx, eventID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return &NotFoundError{Kind: KindEvent, ID: eventID}
			}
			return err
		}
		var err error
		regs, err = tx.ListRegistrationsByEvent(ctx, eventID)
		return err
	})
	if err != nil {
		return nil, classify("list registrations", err)
	}
	return regs, nil
}
