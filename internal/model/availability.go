package model

import "time"

// StatusUnavailable is the statusUpdate value that marks a date as
// explicitly unavailable.  Any other status clears the mark.
const StatusUnavailable = "unavailable"

// Availability is one participant's response to a meeting.
//
// Timestamp orders responses for display only; it is not a version number
// and two writers racing on the same participant can lose an update.
// IsLocked is stored and returned but the store never enforces it.
type Availability struct {
    ParticipantName  string    `json:"participantName"`
    AvailableDates   []string  `json:"availableDates"`
    UnavailableDates []string  `json:"unavailableDates"`
    Timestamp        time.Time `json:"timestamp"`
    IsLocked         bool      `json:"isLocked"`
}

// StatusUpdate flips a single date between unavailable and not.
type StatusUpdate struct {
    Date   string `json:"date"`
    Status string `json:"status"`
}

// AvailabilityUpdate is the merge input for an upsert.  Nil pointer fields
// leave the stored value untouched.
type AvailabilityUpdate struct {
    AvailableDates   []string
    UnavailableDates *[]string
    StatusUpdate     *StatusUpdate
    IsLocked         *bool
    Timestamp        *time.Time
}
