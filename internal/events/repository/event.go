package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	eventserrors "slotbook/internal/events/errors"
	"slotbook/pkg/config"
	"slotbook/pkg/model"
)

const (
	CollectionName = "Events"
)

// Rejection is the outcome of the booking predicate. Rejections are regular
// values, not errors: a full slot or a duplicate attendee is a correct,
// terminal answer.
type Rejection int

const (
	RejectionNone Rejection = iota
	RejectionSlotFull
	RejectionDuplicateBooking
)

func (r Rejection) String() string {
	switch r {
	case RejectionSlotFull:
		return "slot_full"
	case RejectionDuplicateBooking:
		return "duplicate_booking"
	default:
		return "none"
	}
}

// EventRepository is the slot store. AppendBookingIfAllowed is the only
// mutating operation after Create: it evaluates the capacity and duplicate
// checks against the same snapshot the append commits against.
type EventRepository interface {
	Create(ctx context.Context, event *model.Event) error
	FindByID(ctx context.Context, id string) (*model.Event, error)
	FindAll(ctx context.Context, limit int, offset int64) ([]*model.Event, error)
	Count(ctx context.Context) (int64, error)
	AppendBookingIfAllowed(ctx context.Context, eventID, slotID string, booking model.Booking) (*model.Event, Rejection, error)
}

type mongoEventRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoEventRepository(cfg *config.Config) EventRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoEventRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
	}
}

func (r *mongoEventRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func (r *mongoEventRepository) Create(ctx context.Context, event *model.Event) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.StoreWriteTimeout)
	defer cancel()

	event.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	result, err := r.collection.InsertOne(ctx, event)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		event.ID = oid.Hex()
	}
	return nil
}

func (r *mongoEventRepository) FindByID(ctx context.Context, id string) (*model.Event, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.StoreReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", eventserrors.ErrInvalidID, id)
	}

	var event model.Event
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&event)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, eventserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find event: %w", err)
	}

	return &event, nil
}

func (r *mongoEventRepository) FindAll(ctx context.Context, limit int, offset int64) ([]*model.Event, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.StoreReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []*model.Event
	if err = cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}

	return events, nil
}

func (r *mongoEventRepository) Count(ctx context.Context) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.StoreReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}

	return count, nil
}

// AppendBookingIfAllowed performs the read-check-append as one conditional
// update so two concurrent callers can never both observe the same free seat.
// The filter pins the slot element and only matches while the slot still has
// capacity and no booking with this email; the push rides on the same filter.
// MaxBookings is immutable after creation, so reading it before the CAS is
// safe.
func (r *mongoEventRepository) AppendBookingIfAllowed(ctx context.Context, eventID, slotID string, booking model.Booking) (*model.Event, Rejection, error) {
	event, err := r.FindByID(ctx, eventID)
	if err != nil {
		return nil, RejectionNone, err
	}

	var slot *model.TimeSlot
	for i := range event.TimeSlots {
		if event.TimeSlots[i].ID == slotID {
			slot = &event.TimeSlots[i]
			break
		}
	}
	if slot == nil {
		return nil, RejectionNone, eventserrors.ErrSlotNotFound
	}

	ctx, cancel := r.withTimeout(ctx, r.cfg.StoreWriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(eventID)
	if err != nil {
		return nil, RejectionNone, fmt.Errorf("%w: %s", eventserrors.ErrInvalidID, eventID)
	}

	// bookings.<max-1> existing means the slot is already full; a matching
	// normalized email means this attendee already holds a seat.
	filter := bson.M{
		"_id": objectID,
		"time_slots": bson.M{"$elemMatch": bson.M{
			"_id": slotID,
			fmt.Sprintf("bookings.%d", slot.MaxBookings-1): bson.M{"$exists": false},
			"bookings.email": bson.M{"$ne": booking.Email},
		}},
	}
	update := bson.M{"$push": bson.M{"time_slots.$.bookings": booking}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated model.Event
	err = r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
	if err == nil {
		return &updated, RejectionNone, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, RejectionNone, fmt.Errorf("failed to append booking: %w", err)
	}

	// The predicate did not hold. Re-read to classify: bookings only grow, so
	// a full slot stays full and a duplicate stays a duplicate.
	return r.classifyRejection(ctx, eventID, slotID, booking.Email)
}

func (r *mongoEventRepository) classifyRejection(ctx context.Context, eventID, slotID, normalizedEmail string) (*model.Event, Rejection, error) {
	event, err := r.FindByID(ctx, eventID)
	if err != nil {
		return nil, RejectionNone, err
	}

	for i := range event.TimeSlots {
		slot := &event.TimeSlots[i]
		if slot.ID != slotID {
			continue
		}
		// Capacity is checked first: an attendee retrying a slot that has
		// since filled up is told the slot is full, even when they already
		// hold one of its seats.
		if len(slot.Bookings) >= slot.MaxBookings {
			return nil, RejectionSlotFull, nil
		}
		if slot.HasBookingFor(normalizedEmail) {
			return nil, RejectionDuplicateBooking, nil
		}
		return nil, RejectionNone, fmt.Errorf("booking predicate failed for slot %s with %d/%d seats taken", slotID, len(slot.Bookings), slot.MaxBookings)
	}

	return nil, RejectionNone, eventserrors.ErrSlotNotFound
}
