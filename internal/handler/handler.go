// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/logging"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/service"
)

// Error codes carried in ErrorResponse.Code.
const (
	CodeInvalidBody       = "invalid_body"
	CodeInvalidInput      = "invalid_input"
	CodeNotFound          = "not_found"
	CodeAlreadyRegistered = "already_registered"
	CodeEventFull         = "event_full"
	CodeEmailTaken        = "email_taken"
	CodeInvalidCredential = "invalid_credential"
	CodeUnavailable       = "storage_unavailable"
	CodeInternal          = "internal"
)

const maxBodyBytes = 1 << 20

// EventHandler holds the HTTP handlers for events, registration and
// check-in.
type EventHandler struct {
	svc *service.EventService
}

// NewEventHandler constructs an EventHandler.
func NewEventHandler(svc *service.EventService) *EventHandler {
	return &EventHandler{svc: svc}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	writeJSON(w, status, model.ErrorResponse{Error: msg, Code: code, Details: details})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func badBody(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, CodeInvalidBody, "invalid request body (fields are snake_case, e.g. organizer_id): "+err.Error(), nil)
}

// writeServiceError maps a service error onto the HTTP error envelope.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		already  *service.AlreadyRegisteredError
		notFound *service.NotFoundError
		invalid  *service.InvalidInputError
	)
	switch {
	case errors.As(err, &already):
		writeError(w, http.StatusConflict, CodeAlreadyRegistered, already.Error(), map[string]any{
			"registration_id": already.RegistrationID,
			"ticket_id":       already.Ticket.TicketID,
			"credential":      already.Ticket.Token,
		})
	case errors.Is(err, service.ErrEventFull):
		writeError(w, http.StatusConflict, CodeEventFull, err.Error(), nil)
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, CodeNotFound, notFound.Error(), map[string]any{
			"kind": notFound.Kind,
			"id":   notFound.ID,
		})
	case errors.As(err, &invalid):
		details := map[string]any{"field": invalid.Field}
		if len(invalid.Fields) > 0 {
			fields := make(map[string]string, len(invalid.Fields))
			for _, f := range invalid.Fields {
				fields[f.Field] = f.Message
			}
			details["fields"] = fields
		}
		writeError(w, http.StatusBadRequest, CodeInvalidInput, invalid.Error(), details)
	case errors.Is(err, service.ErrEmailTaken):
		writeError(w, http.StatusConflict, CodeEmailTaken, err.Error(), nil)
	case errors.Is(err, service.ErrInvalidCredential):
		writeError(w, http.StatusBadRequest, CodeInvalidCredential, err.Error(), nil)
	case errors.Is(err, service.ErrStorage):
		logging.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("store unavailable")
		writeError(w, http.StatusServiceUnavailable, CodeUnavailable, "storage temporarily unavailable, retry later", nil)
	default:
		logging.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("unhandled error")
		writeError(w, http.StatusInternalServerError, CodeInternal, "internal error", nil)
	}
}

// ─── Handlers ─────────────────────────────────────────────────────────────────

// CreateEvent handles POST /events
// Creates an event and generates its ticket pool.
func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badBody(w, err)
		return
	}

	resp, err := h.svc.CreateEvent(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// ListEvents handles GET /events
// Returns a JSON array of all public events.
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.ListPublicEvents(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if events == nil {
		events = []model.Event{}
	}

	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /events/{id}
// Returns a single event with its live ticket availability.
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	detail, err := h.svc.GetEventDetail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, detail)
}

// Register handles POST /events/{id}/register
// Claims a ticket for the user named in the body.
func (h *EventHandler) Register(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req model.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badBody(w, err)
		return
	}

	res, err := h.svc.Register(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, res)
}

// ListRegistrations handles GET /events/{id}/registrations
// Returns all registrations for a given event.
func (h *EventHandler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	regs, err := h.svc.ListEventRegistrations(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if regs == nil {
		regs = []model.Registration{}
	}

	writeJSON(w, http.StatusOK, regs)
}

// ValidateTicket handles POST /tickets/{ticketId}/validate
// Checks a ticket in by its identifier.
func (h *EventHandler) ValidateTicket(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ValidateTicket(r.Context(), chi.URLParam(r, "ticketId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, validationStatus(res), res)
}

// ScanCredential handles POST /tickets/scan
// Checks a ticket in from the signed credential encoded in its QR code.
func (h *EventHandler) ScanCredential(w http.ResponseWriter, r *http.Request) {
	var req model.ScanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badBody(w, err)
		return
	}

	res, err := h.svc.ScanCredential(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, validationStatus(res), res)
}

// validationStatus picks the HTTP status for a check-in outcome. The body is
// the ValidationResult either way.
func validationStatus(res *model.ValidationResult) int {
	switch {
	case res.Valid:
		return http.StatusOK
	case res.Reason == model.ReasonUnknownTicket:
		return http.StatusNotFound
	default:
		return http.StatusConflict
	}
}
