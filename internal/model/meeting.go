package model

import "time"

// Meeting is a shareable date poll.  Dates keep the order the creator chose;
// the store never sorts them.  Participants is a cache of the names that
// have an availability record and is used for quick existence checks.
type Meeting struct {
    ID           string    `json:"id"`
    Title        string    `json:"title"`
    Dates        []string  `json:"dates"`
    Participants []string  `json:"participants"`
    CreatedAt    time.Time `json:"createdAt"`
    ExpiresAt    time.Time `json:"expiresAt"`
    Locale       string    `json:"locale,omitempty"`
}

// HasParticipant reports whether name is in the cached participant list.
// Names match exactly; case matters.
func (m *Meeting) HasParticipant(name string) bool {
    for _, p := range m.Participants {
        if p == name {
            return true
        }
    }
    return false
}
