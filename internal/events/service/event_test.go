package service

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"slotbook/internal/events/repository"
	"slotbook/internal/events/validator"
	apperrors "slotbook/pkg/errors"
	"slotbook/pkg/model"
)

func newEventService(repo repository.EventRepository) EventService {
	cfg := testConfig()
	return NewEventService(repo, validator.NewEventValidator(cfg.Log), cfg)
}

func createRequest() *model.CreateEventRequest {
	return &model.CreateEventRequest{
		Title:       "Go Meetup",
		Description: "Monthly community meetup",
		TimeSlots: []model.TimeSlotRequest{
			{StartTime: "2025-07-01T09:00:00Z", MaxBookings: 10},
			{StartTime: "2025-07-01T11:00:00+02:00", MaxBookings: 5},
		},
	}
}

func TestCreateEvent_Success(t *testing.T) {
	svc := newEventService(repository.NewMemoryEventRepository())

	event, err := svc.Create(context.Background(), createRequest())
	if err != nil {
		t.Fatalf("expected success, got: %v", err)
	}

	if event.ID == "" {
		t.Error("expected event ID to be assigned")
	}
	if len(event.TimeSlots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(event.TimeSlots))
	}
	for i, slot := range event.TimeSlots {
		if slot.ID == "" {
			t.Errorf("slot %d: expected generated id", i)
		}
		if slot.StartTime.Location() != time.UTC {
			t.Errorf("slot %d: expected UTC start time, got %v", i, slot.StartTime.Location())
		}
		if slot.Bookings == nil || len(slot.Bookings) != 0 {
			t.Errorf("slot %d: expected empty bookings list", i)
		}
	}

	want := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	if !event.TimeSlots[0].StartTime.Equal(want) {
		t.Errorf("expected first slot at %v, got %v", want, event.TimeSlots[0].StartTime)
	}
}

func TestCreateEvent_ValidationFailure(t *testing.T) {
	svc := newEventService(repository.NewMemoryEventRepository())

	req := createRequest()
	req.Title = ""
	_, err := svc.Create(context.Background(), req)
	assertAppError(t, err, http.StatusUnprocessableEntity)
}

func TestCreateEvent_MalformedSlotTime(t *testing.T) {
	svc := newEventService(repository.NewMemoryEventRepository())

	req := createRequest()
	req.TimeSlots[1].StartTime = "tomorrow morning"
	_, err := svc.Create(context.Background(), req)
	appErr := assertAppError(t, err, http.StatusBadRequest)
	if !strings.Contains(appErr.Message, "RFC 3339") {
		t.Errorf("expected fixed timestamp message, got %q", appErr.Message)
	}
	if !strings.Contains(appErr.Message, "timeSlots[1]") {
		t.Errorf("expected message to name the offending slot, got %q", appErr.Message)
	}
}

func TestCreateEvent_DuplicateSlotInstants(t *testing.T) {
	svc := newEventService(repository.NewMemoryEventRepository())

	req := createRequest()
	// Same instant in two notations.
	req.TimeSlots[1].StartTime = "2025-07-01T09:00:00+00:00"
	_, err := svc.Create(context.Background(), req)
	assertAppError(t, err, http.StatusUnprocessableEntity)
}

func TestCreateEvent_StoreFailure(t *testing.T) {
	repo := &mockEventRepository{
		createFunc: func(_ context.Context, _ *model.Event) error {
			return context.DeadlineExceeded
		},
	}
	svc := newEventService(repo)

	_, err := svc.Create(context.Background(), createRequest())
	assertAppError(t, err, http.StatusInternalServerError)
}

func TestGetByID(t *testing.T) {
	repo := repository.NewMemoryEventRepository()
	svc := newEventService(repo)

	created, err := svc.Create(context.Background(), createRequest())
	if err != nil {
		t.Fatalf("failed to create event: %v", err)
	}

	fetched, err := svc.GetByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("expected success, got: %v", err)
	}
	if fetched.Title != created.Title {
		t.Errorf("expected title %q, got %q", created.Title, fetched.Title)
	}

	_, err = svc.GetByID(context.Background(), "does-not-exist")
	assertAppError(t, err, http.StatusNotFound)

	_, err = svc.GetByID(context.Background(), "")
	assertAppError(t, err, http.StatusBadRequest)
}

func TestGetAll(t *testing.T) {
	repo := repository.NewMemoryEventRepository()
	svc := newEventService(repo)

	for i := 0; i < 3; i++ {
		if _, err := svc.Create(context.Background(), createRequest()); err != nil {
			t.Fatalf("failed to create event %d: %v", i, err)
		}
	}

	events, total, err := svc.GetAll(context.Background(), 2, 0)
	if err != nil {
		t.Fatalf("expected success, got: %v", err)
	}
	if total != 3 {
		t.Errorf("expected total 3, got %d", total)
	}
	if len(events) != 2 {
		t.Errorf("expected 2 events in page, got %d", len(events))
	}
}

func TestGetAll_CountFailure(t *testing.T) {
	repo := &mockEventRepository{
		countFunc: func(_ context.Context) (int64, error) {
			return 0, context.DeadlineExceeded
		},
	}
	svc := newEventService(repo)

	_, _, err := svc.GetAll(context.Background(), 10, 0)
	appErr := assertAppError(t, err, http.StatusInternalServerError)
	if appErr.Code != apperrors.CodeInternal {
		t.Errorf("expected code %s, got %s", apperrors.CodeInternal, appErr.Code)
	}
}

func TestParseSlotTime(t *testing.T) {
	base := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)

	equivalents := []string{
		"2025-07-01T09:00:00Z",
		"2025-07-01T09:00:00+00:00",
		"2025-07-01T12:00:00+03:00",
	}
	for _, s := range equivalents {
		got, err := parseSlotTime(s)
		if err != nil {
			t.Errorf("%s: unexpected error: %v", s, err)
			continue
		}
		if !got.Equal(base) {
			t.Errorf("%s: expected %v, got %v", s, base, got)
		}
		if got.Location() != time.UTC {
			t.Errorf("%s: expected UTC result", s)
		}
	}

	if _, err := parseSlotTime("2025-07-01 09:00"); err == nil {
		t.Error("expected error for non-RFC3339 input")
	}

	// Sub-millisecond precision is dropped so wire and store agree.
	got, err := parseSlotTime("2025-07-01T09:00:00.000123Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(base) {
		t.Errorf("expected sub-millisecond digits to be truncated, got %v", got)
	}
}
