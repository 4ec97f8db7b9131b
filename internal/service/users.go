package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/event-ticketing/internal/logging"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/repository"
	"github.com/Shivanand-hulikatti/event-ticketing/internal/validation"
)

// UserService manages the user directory.
type UserService struct {
	store    repository.Store
	attempts int
	now      func() time.Time
}

// NewUserService constructs a UserService backed by store.
func NewUserService(store repository.Store, attempts int) *UserService {
	if attempts < 1 {
		attempts = 1
	}
	return &UserService{
		store:    store,
		attempts: attempts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateUser adds a user. Emails are unique regardless of case.
func (s *UserService) CreateUser(ctx context.Context, req model.CreateUserRequest) (*model.User, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Role = strings.ToLower(strings.TrimSpace(req.Role))
	if err := validation.Struct(&req); err != nil {
		return nil, fromValidation(err)
	}
	if req.Role == "" {
		req.Role = model.RoleParticipant
	}

	user := &model.User{
		ID:        uuid.NewString(),
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      req.Role,
		CreatedAt: s.now(),
	}
	err := update(ctx, s.store, s.attempts, func(tx repository.Tx) error {
		return tx.InsertUser(ctx, user)
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, storageError("create user", err)
	}

	logging.Ctx(ctx).Info().Str("user_id", user.ID).Str("role", user.Role).Msg("user created")
	return user, nil
}

// GetUser returns the user with id, or a NotFoundError.
func (s *UserService) GetUser(ctx context.Context, id string) (*model.User, error) {
	var user *model.User
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		user, err = tx.GetUser(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return &NotFoundError{Kind: KindUser, ID: id}
		}
		return err
	})
	if err != nil {
		return nil, classify("get user", err)
	}
	return user, nil
}

// ListUserRegistrations returns the user's registrations, oldest first, each
// joined with a summary of its event.
func (s *UserService) ListUserRegistrations(ctx context.Context, userID string) ([]model.RegistrationView, error) {
	var views []model.RegistrationView
	err := s.store.View(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetUser(ctx, userID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return &NotFoundError{Kind: KindUser, ID: userID}
			}
			return err
		}
		regs, err := tx.ListRegistrationsByUser(ctx, userID)
		if err != nil {
			return err
		}

		events := make(map[string]*model.Event, len(regs))
		views = make([]model.RegistrationView, 0, len(regs))
		for _, reg := range regs {
			event, ok := events[reg.EventID]
			if !ok {
				event, err = tx.GetEvent(ctx, reg.EventID)
				if err != nil {
					return err
				}
				events[reg.EventID] = event
			}
			views = append(views, model.RegistrationView{Registration: reg, Event: event.Summary()})
		}
		return nil
	})
	if err != nil {
		return nil, classify("list user registrations", err)
	}
	return views, nil
}
