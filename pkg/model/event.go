package model

import (
	"time"
)

// Event is the aggregate document: slots are embedded, and each slot embeds
// its bookings. One event document is the unit Mongo mutates atomically.
type Event struct {
	ID          string     `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	Title       string     `json:"title" bson:"title" validate:"required,min=2,max=200"`
	Description string     `json:"description" bson:"description" validate:"max=2000"`
	TimeSlots   []TimeSlot `json:"timeSlots" bson:"time_slots" validate:"required,min=1,dive"`
	CreatedAt   time.Time  `json:"createdAt" bson:"created_at" validate:"omitempty"`
}

// TimeSlot is a bookable window inside an event. Slots are created together
// with the event and never change afterwards, except for the append-only
// bookings list.
type TimeSlot struct {
	ID          string    `json:"id" bson:"_id" validate:"required,uuid4"`
	StartTime   time.Time `json:"startTime" bson:"start_time" validate:"required"`
	MaxBookings int       `json:"maxBookings" bson:"max_bookings" validate:"required,min=1,max=1000"`
	Bookings    []Booking `json:"bookings" bson:"bookings" validate:"omitempty,dive"`
}

// Booking is one attendee's seat in a slot. Email is stored normalized
// (trimmed, lower-cased) and is the attendee identity key within the slot.
type Booking struct {
	Name      string    `json:"name" bson:"name" validate:"required,min=1,max=100"`
	Email     string    `json:"email" bson:"email" validate:"required,email"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at" validate:"omitempty"`
}

// SeatsLeft reports remaining capacity for display purposes.
func (s *TimeSlot) SeatsLeft() int {
	left := s.MaxBookings - len(s.Bookings)
	if left < 0 {
		return 0
	}
	return left
}

// HasBookingFor reports whether the slot already holds a booking for the
// given normalized email.
func (s *TimeSlot) HasBookingFor(normalizedEmail string) bool {
	for _, b := range s.Bookings {
		if b.Email == normalizedEmail {
			return true
		}
	}
	return false
}

// CreateEventRequest is the validated body of POST /events. Slot times arrive
// as RFC 3339 strings and are parsed before the event document is built.
type CreateEventRequest struct {
	Title       string            `json:"title" validate:"required,min=2,max=200"`
	Description string            `json:"description" validate:"max=2000"`
	TimeSlots   []TimeSlotRequest `json:"timeSlots" validate:"required,min=1,max=100,dive"`
}

type TimeSlotRequest struct {
	StartTime   string `json:"startTime" validate:"required"`
	MaxBookings int    `json:"maxBookings" validate:"required,min=1,max=1000"`
}

// BookingRequest is the validated body of POST /events/:id/book.
type BookingRequest struct {
	SlotTime string `json:"slotTime" validate:"required"`
	Name     string `json:"name" validate:"required,min=1,max=100"`
	Email    string `json:"email" validate:"required,email,max=254"`
}
