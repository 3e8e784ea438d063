package integrationtests

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	eventserrors "slotbook/internal/events/errors"
	"slotbook/internal/events/repository"
	"slotbook/pkg/model"
	"slotbook/test/integration/testutil"
)

var (
	mongoHelper *testutil.MongoHelper
	repo        repository.EventRepository
)

// TestMain drives the suite against a live MongoDB, gated by TEST_MONGO_URI.
// The conditional-update append is the code under test here: the unit suite
// covers the in-memory store, this one exercises the real filter and push.
func TestMain(t *testing.T) {
	env := testutil.NewTestEnv(t)
	mongoHelper = testutil.NewMongoHelper(t, env.MongoURI, env.DatabaseName)
	defer mongoHelper.Close(t)

	repo = repository.NewMongoEventRepository(testutil.RepositoryConfig(mongoHelper))

	testCreateAndFindByID(t)
	testAppendBooking(t)
	testLastSeatRace(t)
	testCapacityUnderConcurrency(t)
	testDuplicateEmail(t)
	testFullSlotWinsOverDuplicate(t)
	testUnknownSlot(t)
}

func createEvent(t *testing.T, maxBookings, slotCount int) *model.Event {
	t.Helper()

	start := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	slots := make([]model.TimeSlot, 0, slotCount)
	for i := 0; i < slotCount; i++ {
		slots = append(slots, model.TimeSlot{
			ID:          uuid.New().String(),
			StartTime:   start.Add(time.Duration(i) * time.Hour),
			MaxBookings: maxBookings,
			Bookings:    []model.Booking{},
		})
	}

	event := &model.Event{
		Title:       "Go Meetup",
		Description: "Monthly meetup",
		TimeSlots:   slots,
	}
	if err := repo.Create(context.Background(), event); err != nil {
		t.Fatalf("failed to create event: %v", err)
	}
	if event.ID == "" {
		t.Fatal("expected a generated event ID")
	}
	return event
}

func booking(n int) model.Booking {
	return model.Booking{
		Name:      fmt.Sprintf("Attendee %d", n),
		Email:     fmt.Sprintf("attendee%d@example.com", n),
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

func testCreateAndFindByID(t *testing.T) {
	defer mongoHelper.CleanCollection(t, repository.CollectionName)

	event := createEvent(t, 2, 2)
	fetched, err := repo.FindByID(context.Background(), event.ID)
	if err != nil {
		t.Fatalf("failed to find event: %v", err)
	}
	if len(fetched.TimeSlots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(fetched.TimeSlots))
	}
	for i, slot := range fetched.TimeSlots {
		if slot.ID != event.TimeSlots[i].ID {
			t.Errorf("slot %d: expected ID %s, got %s", i, event.TimeSlots[i].ID, slot.ID)
		}
		if !slot.StartTime.Equal(event.TimeSlots[i].StartTime) {
			t.Errorf("slot %d: expected start %v, got %v", i, event.TimeSlots[i].StartTime, slot.StartTime)
		}
	}
}

func testAppendBooking(t *testing.T) {
	defer mongoHelper.CleanCollection(t, repository.CollectionName)

	event := createEvent(t, 2, 1)
	slotID := event.TimeSlots[0].ID

	updated, rejection, err := repo.AppendBookingIfAllowed(context.Background(), event.ID, slotID, booking(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rejection != repository.RejectionNone {
		t.Fatalf("expected acceptance, got %v", rejection)
	}
	if got := len(updated.TimeSlots[0].Bookings); got != 1 {
		t.Errorf("expected the returned document to carry 1 booking, got %d", got)
	}

	fetched, err := repo.FindByID(context.Background(), event.ID)
	if err != nil {
		t.Fatalf("failed to re-read event: %v", err)
	}
	if got := len(fetched.TimeSlots[0].Bookings); got != 1 {
		t.Errorf("expected 1 persisted booking, got %d", got)
	}
	if fetched.TimeSlots[0].Bookings[0].Email != "attendee1@example.com" {
		t.Errorf("unexpected persisted email %q", fetched.TimeSlots[0].Bookings[0].Email)
	}
}

func testLastSeatRace(t *testing.T) {
	defer mongoHelper.CleanCollection(t, repository.CollectionName)

	// Two concurrent attempts on a single remaining seat: exactly one wins.
	for i := 0; i < 10; i++ {
		event := createEvent(t, 1, 1)
		slotID := event.TimeSlots[0].ID

		var wg sync.WaitGroup
		outcomes := make([]repository.Rejection, 2)
		for n := 0; n < 2; n++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				_, rejection, err := repo.AppendBookingIfAllowed(context.Background(), event.ID, slotID, booking(n))
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				outcomes[n] = rejection
			}(n)
		}
		wg.Wait()

		successes := 0
		for _, o := range outcomes {
			if o == repository.RejectionNone {
				successes++
			} else if o != repository.RejectionSlotFull {
				t.Fatalf("iteration %d: unexpected rejection %v", i, o)
			}
		}
		if successes != 1 {
			t.Fatalf("iteration %d: expected exactly one winner, got %d", i, successes)
		}

		fetched, _ := repo.FindByID(context.Background(), event.ID)
		if got := len(fetched.TimeSlots[0].Bookings); got != 1 {
			t.Fatalf("iteration %d: capacity invariant violated, %d bookings persisted", i, got)
		}
	}
}

func testCapacityUnderConcurrency(t *testing.T) {
	defer mongoHelper.CleanCollection(t, repository.CollectionName)

	event := createEvent(t, 3, 1)
	slotID := event.TimeSlots[0].ID

	const attempts = 10
	var wg sync.WaitGroup
	results := make(chan repository.Rejection, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, rejection, err := repo.AppendBookingIfAllowed(context.Background(), event.ID, slotID, booking(n))
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			results <- rejection
		}(i)
	}
	wg.Wait()
	close(results)

	successes := 0
	for rejection := range results {
		if rejection == repository.RejectionNone {
			successes++
		}
	}
	if successes != 3 {
		t.Errorf("expected exactly 3 successful bookings, got %d", successes)
	}

	fetched, err := repo.FindByID(context.Background(), event.ID)
	if err != nil {
		t.Fatalf("failed to re-read event: %v", err)
	}
	if got := len(fetched.TimeSlots[0].Bookings); got != 3 {
		t.Errorf("capacity invariant violated: %d bookings persisted for capacity 3", got)
	}
}

func testDuplicateEmail(t *testing.T) {
	defer mongoHelper.CleanCollection(t, repository.CollectionName)

	event := createEvent(t, 2, 1)
	slotID := event.TimeSlots[0].ID
	alice := model.Booking{Name: "Alice", Email: "alice@example.com"}

	if _, rejection, err := repo.AppendBookingIfAllowed(context.Background(), event.ID, slotID, alice); err != nil || rejection != repository.RejectionNone {
		t.Fatalf("first booking failed: rejection=%v err=%v", rejection, err)
	}

	_, rejection, err := repo.AppendBookingIfAllowed(context.Background(), event.ID, slotID, alice)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rejection != repository.RejectionDuplicateBooking {
		t.Errorf("expected duplicate rejection, got %v", rejection)
	}

	fetched, _ := repo.FindByID(context.Background(), event.ID)
	if got := len(fetched.TimeSlots[0].Bookings); got != 1 {
		t.Errorf("duplicate invariant violated: %d bookings persisted", got)
	}
}

func testFullSlotWinsOverDuplicate(t *testing.T) {
	defer mongoHelper.CleanCollection(t, repository.CollectionName)

	// A returning attendee on a slot that has since filled up gets slot-full.
	event := createEvent(t, 1, 1)
	slotID := event.TimeSlots[0].ID
	alice := model.Booking{Name: "Alice", Email: "alice@example.com"}

	if _, rejection, err := repo.AppendBookingIfAllowed(context.Background(), event.ID, slotID, alice); err != nil || rejection != repository.RejectionNone {
		t.Fatalf("first booking failed: rejection=%v err=%v", rejection, err)
	}

	_, rejection, err := repo.AppendBookingIfAllowed(context.Background(), event.ID, slotID, alice)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rejection != repository.RejectionSlotFull {
		t.Errorf("expected slot-full for a retry on a full slot, got %v", rejection)
	}
}

func testUnknownSlot(t *testing.T) {
	defer mongoHelper.CleanCollection(t, repository.CollectionName)

	event := createEvent(t, 1, 1)
	_, _, err := repo.AppendBookingIfAllowed(context.Background(), event.ID, uuid.New().String(), booking(1))
	if !errors.Is(err, eventserrors.ErrSlotNotFound) {
		t.Errorf("expected ErrSlotNotFound, got %v", err)
	}
}
