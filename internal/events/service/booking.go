package service

import (
	"context"
	"errors"
	"strings"
	"time"

	eventserrors "slotbook/internal/events/errors"
	"slotbook/internal/events/repository"
	"slotbook/internal/events/validator"
	"slotbook/pkg/config"
	apperrors "slotbook/pkg/errors"
	"slotbook/pkg/kafka"
	"slotbook/pkg/model"
)

const (
	sourceService        = "events"
	eventTypeBookingMade = "booking.confirmed"
	publishTimeout       = 5 * time.Second
	messageSlotFull      = "This time slot is fully booked."
	messageAlreadyBooked = "You have already booked this time slot."
)

// BookingPublisher emits booking lifecycle notifications. Publishing is
// best-effort: a broker outage never fails a committed booking.
type BookingPublisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

// BookingConfirmed is the notification payload for a committed booking.
type BookingConfirmed struct {
	EventID       string    `json:"event_id"`
	SlotID        string    `json:"slot_id"`
	SlotTime      time.Time `json:"slot_time"`
	AttendeeName  string    `json:"attendee_name"`
	AttendeeEmail string    `json:"attendee_email"`
	BookedAt      time.Time `json:"booked_at"`
}

type BookingService interface {
	AttemptBooking(ctx context.Context, eventID string, req *model.BookingRequest) (*model.Event, error)
}

type bookingService struct {
	repo      repository.EventRepository
	validator *validator.EventValidator
	publisher BookingPublisher
	cfg       *config.Config
}

// NewBookingService builds the booking engine. publisher may be nil when
// notifications are disabled.
func NewBookingService(
	repo repository.EventRepository,
	eventValidator *validator.EventValidator,
	publisher BookingPublisher,
	cfg *config.Config,
) BookingService {
	return &bookingService{
		repo:      repo,
		validator: eventValidator,
		publisher: publisher,
		cfg:       cfg,
	}
}

// AttemptBooking resolves the slot by instant and delegates the capacity and
// duplicate checks to the store's atomic append. Expected rejections come
// back as AppErrors with their terminal status; only store failures are
// internal errors.
func (s *bookingService) AttemptBooking(ctx context.Context, eventID string, req *model.BookingRequest) (*model.Event, error) {
	if eventID == "" {
		return nil, apperrors.InvalidInput("Event ID cannot be empty")
	}
	if err := s.validator.ValidateBooking(req); err != nil {
		s.cfg.Log.Warn("Booking validation failed", "event_id", eventID, "error", err)
		return nil, apperrors.Validation("Invalid booking input", map[string]any{"error": err.Error()})
	}

	slotTime, err := parseSlotTime(req.SlotTime)
	if err != nil {
		return nil, apperrors.InvalidInput("slotTime " + malformedTimestampMessage)
	}

	event, err := s.repo.FindByID(ctx, eventID)
	if err != nil {
		return nil, s.mapLookupError(err, eventID)
	}

	slot := findSlotByInstant(event, slotTime)
	if slot == nil {
		return nil, apperrors.NotFound("Time slot").WithDetails(map[string]any{
			"slotTime": req.SlotTime,
		})
	}

	booking := model.Booking{
		Name:      strings.TrimSpace(req.Name),
		Email:     NormalizeEmail(req.Email),
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	updated, rejection, err := s.repo.AppendBookingIfAllowed(ctx, event.ID, slot.ID, booking)
	if err != nil {
		if errors.Is(err, eventserrors.ErrSlotNotFound) {
			return nil, apperrors.NotFound("Time slot")
		}
		if errors.Is(err, eventserrors.ErrNotFound) || errors.Is(err, eventserrors.ErrInvalidID) {
			return nil, s.mapLookupError(err, eventID)
		}
		s.cfg.Log.Error("Failed to append booking",
			"event_id", eventID,
			"slot_id", slot.ID,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to save booking", err)
	}

	switch rejection {
	case repository.RejectionSlotFull:
		return nil, apperrors.BadRequest(messageSlotFull)
	case repository.RejectionDuplicateBooking:
		// Terminal and idempotent: retrying the same request re-surfaces the
		// same answer without appending anything.
		return nil, apperrors.Conflict(messageAlreadyBooked)
	}

	s.cfg.Log.Info("Booking committed",
		"event_id", event.ID,
		"slot_id", slot.ID,
		"slot_time", slot.StartTime,
		"email", booking.Email,
	)

	s.publishConfirmation(event.ID, slot, booking)

	return updated, nil
}

func (s *bookingService) mapLookupError(err error, eventID string) error {
	if errors.Is(err, eventserrors.ErrNotFound) {
		return apperrors.NotFoundWithID("Event", eventID)
	}
	if errors.Is(err, eventserrors.ErrInvalidID) {
		return apperrors.InvalidInput("Invalid event ID format")
	}
	return apperrors.Internal("Failed to retrieve event", err)
}

func (s *bookingService) publishConfirmation(eventID string, slot *model.TimeSlot, booking model.Booking) {
	if s.publisher == nil {
		return
	}

	payload := BookingConfirmed{
		EventID:       eventID,
		SlotID:        slot.ID,
		SlotTime:      slot.StartTime,
		AttendeeName:  booking.Name,
		AttendeeEmail: booking.Email,
		BookedAt:      booking.CreatedAt,
	}

	msg, err := kafka.NewMessage(eventID, payload, eventTypeBookingMade, sourceService)
	if err != nil {
		s.cfg.Log.Error("Failed to encode booking notification", "event_id", eventID, "error", err)
		return
	}

	// Fire-and-forget off the request path.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		if err := s.publisher.Publish(ctx, msg); err != nil {
			s.cfg.Log.Warn("Failed to publish booking notification",
				"event_id", eventID,
				"slot_id", slot.ID,
				"error", err,
			)
		}
	}()
}

// findSlotByInstant matches a slot by normalized instant equality, so the
// same moment written with a different offset or formatting still resolves.
func findSlotByInstant(event *model.Event, slotTime time.Time) *model.TimeSlot {
	want := slotTime.UnixMilli()
	for i := range event.TimeSlots {
		if event.TimeSlots[i].StartTime.UnixMilli() == want {
			return &event.TimeSlots[i]
		}
	}
	return nil
}

// NormalizeEmail produces the attendee identity key: trimmed and lower-cased.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
