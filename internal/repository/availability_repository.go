package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/datepoll/internal/kv"
	"github.com/iliyamo/datepoll/internal/model"
)

// AvailabilityRepo persists per-participant availability records.
type AvailabilityRepo struct {
	store kv.Store
}

// NewAvailabilityRepo constructs an AvailabilityRepo over the given store.
func NewAvailabilityRepo(store kv.Store) *AvailabilityRepo { return &AvailabilityRepo{store: store} }

// Get loads one participant's record, or ErrNotFound.
func (r *AvailabilityRepo) Get(ctx context.Context, meetingID, participant string) (*model.Availability, error) {
	key := availabilityKey(meetingID, participant)
	raw, err := r.store.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr("get", key, err)
	}
	a, err := decodeAvailability(participant, raw)
	if err != nil {
		return nil, storeErr("decode", key, err)
	}
	return &a, nil
}

// Save writes a record under its participant name with the given ttl.
func (r *AvailabilityRepo) Save(ctx context.Context, meetingID string, a *model.Availability, ttl time.Duration) error {
	key := availabilityKey(meetingID, a.ParticipantName)
	raw, err := json.Marshal(a)
	if err != nil {
		return storeErr("encode", key, err)
	}
	return storeErr("set", key, r.store.Set(ctx, key, raw, ttl))
}

// Delete hard-deletes the records of the named participants.
func (r *AvailabilityRepo) Delete(ctx context.Context, meetingID string, participants ...string) error {
	if len(participants) == 0 {
		return nil
	}
	keys := make([]string, len(participants))
	for i, p := range participants {
		keys[i] = availabilityKey(meetingID, p)
	}
	return storeErr("delete", availabilityKeyPrefix(meetingID), r.store.Delete(ctx, keys...))
}

// Names returns the participant names that currently have a record.  This
// is the authoritative participant set of a meeting.
func (r *AvailabilityRepo) Names(ctx context.Context, meetingID string) ([]string, error) {
	prefix := availabilityKeyPrefix(meetingID)
	keys, err := r.store.Keys(ctx, prefix)
	if err != nil {
		return nil, storeErr("scan", prefix, err)
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = strings.TrimPrefix(k, prefix)
	}
	return names, nil
}

// ListByMeeting fetches every record of a meeting with one key scan and one
// bulk read, whatever the participant count.  Keys that expire between the
// scan and the read are skipped.
func (r *AvailabilityRepo) ListByMeeting(ctx context.Context, meetingID string) ([]model.Availability, error) {
	prefix := availabilityKeyPrefix(meetingID)
	keys, err := r.store.Keys(ctx, prefix)
	if err != nil {
		return nil, storeErr("scan", prefix, err)
	}
	if len(keys) == 0 {
		return []model.Availability{}, nil
	}
	vals, err := r.store.MGet(ctx, keys...)
	if err != nil {
		return nil, storeErr("mget", prefix, err)
	}
	out := make([]model.Availability, 0, len(keys))
	for i, raw := range vals {
		if raw == nil {
			continue
		}
		a, err := decodeAvailability(strings.TrimPrefix(keys[i], prefix), raw)
		if err != nil {
			return nil, storeErr("decode", keys[i], err)
		}
		out = append(out, a)
	}
	return out, nil
}

// decodeAvailability accepts both stored shapes: the current object and the
// legacy bare array of available dates written before records carried a
// timestamp.
func decodeAvailability(participant string, raw []byte) (model.Availability, error) {
	trimmed := bytes.TrimSpace(raw)
	var a model.Availability
	switch {
	case len(trimmed) == 0:
		return a, errors.New("empty payload")
	case trimmed[0] == '[':
		var dates []string
		if err := json.Unmarshal(trimmed, &dates); err != nil {
			return a, err
		}
		a.AvailableDates = dates
	case trimmed[0] == '{':
		if err := json.Unmarshal(trimmed, &a); err != nil {
			return a, err
		}
	default:
		return a, fmt.Errorf("unexpected payload starting with %q", trimmed[0])
	}
	if a.ParticipantName == "" {
		a.ParticipantName = participant
	}
	if a.AvailableDates == nil {
		a.AvailableDates = []string{}
	}
	if a.UnavailableDates == nil {
		a.UnavailableDates = []string{}
	}
	return a, nil
}
