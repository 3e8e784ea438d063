package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	eventserrors "slotbook/internal/events/errors"
	"slotbook/internal/events/repository"
	"slotbook/internal/events/validator"
	"slotbook/pkg/config"
	apperrors "slotbook/pkg/errors"
	"slotbook/pkg/model"
)

const malformedTimestampMessage = "must be a valid RFC 3339 timestamp, e.g. 2025-07-01T09:00:00Z"

type EventService interface {
	Create(ctx context.Context, req *model.CreateEventRequest) (*model.Event, error)
	GetAll(ctx context.Context, limit int, offset int64) ([]*model.Event, int64, error)
	GetByID(ctx context.Context, id string) (*model.Event, error)
}

type eventService struct {
	repo      repository.EventRepository
	validator *validator.EventValidator
	cfg       *config.Config
}

func NewEventService(
	repo repository.EventRepository,
	eventValidator *validator.EventValidator,
	cfg *config.Config,
) EventService {
	return &eventService{
		repo:      repo,
		validator: eventValidator,
		cfg:       cfg,
	}
}

func (s *eventService) Create(ctx context.Context, req *model.CreateEventRequest) (*model.Event, error) {
	if err := s.validator.ValidateCreate(req); err != nil {
		s.cfg.Log.Warn("Event validation failed", "error", err)
		return nil, apperrors.Validation("Invalid event input", map[string]any{"error": err.Error()})
	}

	slots := make([]model.TimeSlot, 0, len(req.TimeSlots))
	seen := make(map[int64]bool, len(req.TimeSlots))
	for i, slotReq := range req.TimeSlots {
		start, err := parseSlotTime(slotReq.StartTime)
		if err != nil {
			return nil, apperrors.InvalidInput(fmt.Sprintf("timeSlots[%d].startTime %s", i, malformedTimestampMessage))
		}
		if seen[start.UnixMilli()] {
			return nil, apperrors.Validation("Duplicate time slots in event", map[string]any{
				"startTime": slotReq.StartTime,
			})
		}
		seen[start.UnixMilli()] = true

		slots = append(slots, model.TimeSlot{
			ID:          uuid.New().String(),
			StartTime:   start,
			MaxBookings: slotReq.MaxBookings,
			Bookings:    []model.Booking{},
		})
	}

	event := &model.Event{
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		TimeSlots:   slots,
	}

	if err := s.repo.Create(ctx, event); err != nil {
		s.cfg.Log.Error("Failed to create event", "error", err)
		return nil, apperrors.Internal("Failed to create event", err)
	}

	s.cfg.Log.Info("Event created successfully",
		"id", event.ID,
		"title", event.Title,
		"slots", len(event.TimeSlots),
	)
	return event, nil
}

func (s *eventService) GetAll(ctx context.Context, limit int, offset int64) ([]*model.Event, int64, error) {
	var count int64
	var events []*model.Event
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.repo.Count(ctx)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count events", "error", errCount)
			errCount = apperrors.Internal("Failed to count events", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		events, errFind = s.repo.FindAll(ctx, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list events", "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve events", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return events, count, nil
}

func (s *eventService) GetByID(ctx context.Context, id string) (*model.Event, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Event ID cannot be empty")
	}

	event, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, eventserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Event", id)
		}
		if errors.Is(err, eventserrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid event ID format")
		}
		return nil, apperrors.Internal("Failed to retrieve event", err)
	}

	return event, nil
}

// parseSlotTime parses an RFC 3339 timestamp and normalizes it to the
// canonical instant representation: UTC at millisecond precision. Two strings
// naming the same instant always normalize to the same value, regardless of
// offset notation.
func parseSlotTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC().Truncate(time.Millisecond), nil
}
