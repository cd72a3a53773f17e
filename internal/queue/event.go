// Package queue defines the activity events the service emits and the AMQP
// plumbing that moves them.
package queue

import (
    "context"
    "time"

    "github.com/google/uuid"
)

// ActivityQueue is the durable queue every event is routed to.
const ActivityQueue = "activity.events"

// Event types.
const (
    MeetingCreated      = "meeting.created"
    MeetingUpdated      = "meeting.updated"
    AvailabilityUpdated = "availability.updated"
    ShortLinkCreated    = "shortlink.created"
)

// Event is published after a successful write.  It carries enough context
// for a consumer to log or count activity without reading the store.
type Event struct {
    ID           string   `json:"id"`
    Type         string   `json:"type"`
    MeetingID    string   `json:"meeting_id,omitempty"`
    Participant  string   `json:"participant,omitempty"`
    Participants []string `json:"participants,omitempty"`
    DateCount    int      `json:"date_count,omitempty"`
    Code         string   `json:"code,omitempty"`
    OccurredAt   string   `json:"occurred_at"`
}

// NewEvent stamps an event with a fresh id and the given time.
func NewEvent(typ string, at time.Time) Event {
    return Event{ID: uuid.NewString(), Type: typ, OccurredAt: at.UTC().Format(time.RFC3339)}
}

// Publisher delivers events.  Failures are reported but callers treat
// publishing as best-effort.
type Publisher interface {
    Publish(ctx context.Context, ev Event) error
}

// NopPublisher drops every event.  It is used when EVENTS_ENABLED is off.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
