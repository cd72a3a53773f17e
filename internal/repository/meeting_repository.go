package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/iliyamo/datepoll/internal/kv"
	"github.com/iliyamo/datepoll/internal/model"
)

// MeetingRepo persists meeting records.
type MeetingRepo struct {
	store kv.Store
}

// NewMeetingRepo constructs a MeetingRepo over the given store.
func NewMeetingRepo(store kv.Store) *MeetingRepo { return &MeetingRepo{store: store} }

// Get loads a meeting.  It returns ErrNotFound when the key is missing.
func (r *MeetingRepo) Get(ctx context.Context, id string) (*model.Meeting, error) {
	key := meetingKey(id)
	raw, err := r.store.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr("get", key, err)
	}
	var m model.Meeting
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, storeErr("decode", key, err)
	}
	if m.ID == "" {
		m.ID = id
	}
	if m.Participants == nil {
		m.Participants = []string{}
	}
	return &m, nil
}

// Save writes the meeting with the given ttl, replacing any previous value.
func (r *MeetingRepo) Save(ctx context.Context, m *model.Meeting, ttl time.Duration) error {
	key := meetingKey(m.ID)
	raw, err := json.Marshal(m)
	if err != nil {
		return storeErr("encode", key, err)
	}
	return storeErr("set", key, r.store.Set(ctx, key, raw, ttl))
}

// Exists reports whether a meeting with id is stored.
func (r *MeetingRepo) Exists(ctx context.Context, id string) (bool, error) {
	key := meetingKey(id)
	ok, err := r.store.Exists(ctx, key)
	if err != nil {
		return false, storeErr("exists", key, err)
	}
	return ok, nil
}
