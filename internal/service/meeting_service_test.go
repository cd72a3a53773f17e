package service

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/datepoll/internal/logging"
	"github.com/iliyamo/datepoll/internal/model"
	"github.com/iliyamo/datepoll/internal/queue"
	"github.com/iliyamo/datepoll/internal/repository"
	"github.com/iliyamo/datepoll/internal/session"
)

func boolPtr(b bool) *bool { return &b }

func mustCreate(t *testing.T, f *meetingFixture, in CreateMeetingInput) *model.Meeting {
	t.Helper()
	m, err := f.svc.CreateMeeting(context.Background(), in)
	if err != nil {
		t.Fatalf("CreateMeeting: %v", err)
	}
	return m
}

func TestCreateMeetingValidation(t *testing.T) {
	f := newMeetingFixture(false)
	cases := []struct {
		name  string
		in    CreateMeetingInput
		field string
	}{
		{"blank title", CreateMeetingInput{Title: "  ", Dates: []string{"2025-01-10"}}, "title"},
		{"long title", CreateMeetingInput{Title: strings.Repeat("x", MaxTitleLength+1), Dates: []string{"2025-01-10"}}, "title"},
		{"no dates", CreateMeetingInput{Title: "Lunch"}, "dates"},
		{"bad date", CreateMeetingInput{Title: "Lunch", Dates: []string{"2025-13-01"}}, "dates"},
		{"unsafe participant", CreateMeetingInput{Title: "Lunch", Dates: []string{"2025-01-10"}, Participants: []string{"a:b"}}, "participants"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateMeeting(context.Background(), tc.in)
			var v *ValidationError
			if !errors.As(err, &v) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if _, ok := v.FieldErrors[tc.field]; !ok {
				t.Fatalf("FieldErrors = %v, want key %q", v.FieldErrors, tc.field)
			}
		})
	}
}

func TestCreateMeetingStoresMeetingAndParticipants(t *testing.T) {
	f := newMeetingFixture(false)
	m := mustCreate(t, f, CreateMeetingInput{
		Title:        "  Team lunch ",
		Dates:        []string{"2025-01-11", "2025-01-10", "2025-01-11"},
		Participants: []string{"Ann", "Bo", "Ann"},
	})
	if len(m.ID) != MeetingIDLength {
		t.Fatalf("ID = %q", m.ID)
	}
	if m.Title != "Team lunch" || m.Locale != DefaultLocale {
		t.Fatalf("meeting = %+v", m)
	}
	if !reflect.DeepEqual(m.Dates, []string{"2025-01-11", "2025-01-10"}) {
		t.Fatalf("Dates = %v, want caller order without duplicates", m.Dates)
	}
	if want := f.clock.Now().AddDate(0, 18, 0); !m.ExpiresAt.Equal(want) {
		t.Fatalf("ExpiresAt = %v, want %v", m.ExpiresAt, want)
	}

	got, avs, err := f.svc.GetMeetingWithAvailabilities(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("GetMeetingWithAvailabilities: %v", err)
	}
	if !reflect.DeepEqual(got.Participants, []string{"Ann", "Bo"}) || len(avs) != 2 {
		t.Fatalf("participants = %v, availabilities = %+v", got.Participants, avs)
	}
	if !reflect.DeepEqual(f.events.types(), []string{queue.MeetingCreated}) {
		t.Fatalf("events = %v", f.events.types())
	}
}

func TestGetMeetingNotFound(t *testing.T) {
	f := newMeetingFixture(false)
	for _, id := range []string{"", "missing123", "bad:id"} {
		if _, _, err := f.svc.GetMeetingWithAvailabilities(context.Background(), id); !errors.Is(err, ErrNotFound) {
			t.Errorf("id %q: err = %v, want ErrNotFound", id, err)
		}
	}
}

func TestGetMeetingSortsByTimestampDescending(t *testing.T) {
	f := newMeetingFixture(false)
	ctx := context.Background()
	m := mustCreate(t, f, CreateMeetingInput{Title: "T", Dates: []string{"2025-01-10"}})
	for _, name := range []string{"first", "second", "third"} {
		f.clock.Advance(time.Minute)
		if _, err := f.svc.UpsertAvailability(ctx, m.ID, name, model.AvailabilityUpdate{AvailableDates: []string{}}); err != nil {
			t.Fatalf("UpsertAvailability(%s): %v", name, err)
		}
	}
	_, avs, err := f.svc.GetMeetingWithAvailabilities(ctx, m.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var order []string
	for _, a := range avs {
		order = append(order, a.ParticipantName)
	}
	if !reflect.DeepEqual(order, []string{"third", "second", "first"}) {
		t.Fatalf("order = %v", order)
	}
}

func TestUpsertAvailabilityAddsParticipantOnce(t *testing.T) {
	f := newMeetingFixture(false)
	ctx := context.Background()
	m := mustCreate(t, f, CreateMeetingInput{Title: "T", Dates: []string{"2025-01-10", "2025-01-11"}})

	upd := model.AvailabilityUpdate{AvailableDates: []string{"2025-01-10"}}
	for i := 0; i < 2; i++ {
		if _, err := f.svc.UpsertAvailability(ctx, m.ID, "Alice", upd); err != nil {
			t.Fatalf("UpsertAvailability #%d: %v", i, err)
		}
	}
	got, avs, err := f.svc.GetMeetingWithAvailabilities(ctx, m.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !reflect.DeepEqual(got.Participants, []string{"Alice"}) {
		t.Fatalf("Participants = %v", got.Participants)
	}
	if len(avs) != 1 || !reflect.DeepEqual(avs[0].AvailableDates, []string{"2025-01-10"}) {
		t.Fatalf("availabilities = %+v", avs)
	}
}

func TestUpsertAvailabilityStatusUpdate(t *testing.T) {
	f := newMeetingFixture(false)
	ctx := context.Background()
	m := mustCreate(t, f, CreateMeetingInput{Title: "T", Dates: []string{"2025-01-10", "2025-01-11"}})

	a, err := f.svc.UpsertAvailability(ctx, m.ID, "Alice", model.AvailabilityUpdate{
		AvailableDates: []string{"2025-01-10"},
		StatusUpdate:   &model.StatusUpdate{Date: "2025-01-11", Status: model.StatusUnavailable},
	})
	if err != nil {
		t.Fatalf("mark unavailable: %v", err)
	}
	if !reflect.DeepEqual(a.UnavailableDates, []string{"2025-01-11"}) {
		t.Fatalf("UnavailableDates = %v", a.UnavailableDates)
	}

	a, err = f.svc.UpsertAvailability(ctx, m.ID, "Alice", model.AvailabilityUpdate{
		AvailableDates: []string{"2025-01-10", "2025-01-11"},
		StatusUpdate:   &model.StatusUpdate{Date: "2025-01-11", Status: "available"},
	})
	if err != nil {
		t.Fatalf("clear unavailable: %v", err)
	}
	if len(a.UnavailableDates) != 0 {
		t.Fatalf("UnavailableDates = %v, want empty", a.UnavailableDates)
	}
	if !reflect.DeepEqual(a.AvailableDates, []string{"2025-01-10", "2025-01-11"}) {
		t.Fatalf("AvailableDates = %v", a.AvailableDates)
	}
}

func TestUpsertAvailabilityPreservesUnsetFields(t *testing.T) {
	f := newMeetingFixture(false)
	ctx := context.Background()
	m := mustCreate(t, f, CreateMeetingInput{Title: "T", Dates: []string{"2025-01-10", "2025-01-11"}})

	first, err := f.svc.UpsertAvailability(ctx, m.ID, "Alice", model.AvailabilityUpdate{
		AvailableDates: []string{"2025-01-10"},
		StatusUpdate:   &model.StatusUpdate{Date: "2025-01-11", Status: model.StatusUnavailable},
		IsLocked:       boolPtr(true),
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	f.clock.Advance(time.Hour)

	second, err := f.svc.UpsertAvailability(ctx, m.ID, "Alice", model.AvailabilityUpdate{AvailableDates: []string{}})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if !second.IsLocked || !reflect.DeepEqual(second.UnavailableDates, []string{"2025-01-11"}) {
		t.Fatalf("merge dropped fields: %+v", second)
	}
	if !second.Timestamp.Equal(first.Timestamp) {
		t.Fatalf("Timestamp = %v, want preserved %v", second.Timestamp, first.Timestamp)
	}
	if len(second.AvailableDates) != 0 {
		t.Fatalf("AvailableDates = %v, want replaced by update", second.AvailableDates)
	}
}

func TestUpsertAvailabilityErrors(t *testing.T) {
	f := newMeetingFixture(false)
	ctx := context.Background()
	m := mustCreate(t, f, CreateMeetingInput{Title: "T", Dates: []string{"2025-01-10"}})

	if _, err := f.svc.UpsertAvailability(ctx, "nosuchmeet", "Alice", model.AvailabilityUpdate{AvailableDates: []string{}}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing meeting: err = %v", err)
	}
	bad := []struct {
		name string
		upd  model.AvailabilityUpdate
	}{
		{"", model.AvailabilityUpdate{AvailableDates: []string{}}},
		{strings.Repeat("n", MaxParticipantLength+1), model.AvailabilityUpdate{AvailableDates: []string{}}},
		{"a/b", model.AvailabilityUpdate{AvailableDates: []string{}}},
		{"Alice", model.AvailabilityUpdate{}},
		{"Alice", model.AvailabilityUpdate{AvailableDates: []string{}, StatusUpdate: &model.StatusUpdate{Date: "tomorrow"}}},
	}
	for _, tc := range bad {
		var v *ValidationError
		if _, err := f.svc.UpsertAvailability(ctx, m.ID, tc.name, tc.upd); !errors.As(err, &v) {
			t.Errorf("name %q: err = %v, want ValidationError", tc.name, err)
		}
	}
}

func TestUpsertAvailabilityLockEnforcement(t *testing.T) {
	f := newMeetingFixture(true)
	ctx := context.Background()
	m := mustCreate(t, f, CreateMeetingInput{Title: "T", Dates: []string{"2025-01-10"}})

	if _, err := f.svc.UpsertAvailability(ctx, m.ID, "Alice", model.AvailabilityUpdate{AvailableDates: []string{}, IsLocked: boolPtr(true)}); err != nil {
		t.Fatalf("lock: %v", err)
	}
	upd := model.AvailabilityUpdate{AvailableDates: []string{"2025-01-10"}}
	if _, err := f.svc.UpsertAvailability(ctx, m.ID, "Alice", upd); !errors.Is(err, ErrLocked) {
		t.Fatalf("anonymous edit: err = %v, want ErrLocked", err)
	}
	other := session.WithIdentity(ctx, session.Identity{MeetingID: m.ID, Participant: "Bob"})
	if _, err := f.svc.UpsertAvailability(other, m.ID, "Alice", upd); !errors.Is(err, ErrLocked) {
		t.Fatalf("foreign session: err = %v, want ErrLocked", err)
	}
	own := session.WithIdentity(ctx, session.Identity{MeetingID: m.ID, Participant: "Alice"})
	if _, err := f.svc.UpsertAvailability(own, m.ID, "Alice", upd); err != nil {
		t.Fatalf("owner edit: %v", err)
	}
}

func TestLockedUpsertLeavesMeetingUntouched(t *testing.T) {
	f := newMeetingFixture(true)
	ctx := context.Background()
	m := mustCreate(t, f, CreateMeetingInput{Title: "T", Dates: []string{"2025-01-10"}})
	if _, err := f.svc.UpsertAvailability(ctx, m.ID, "Alice", model.AvailabilityUpdate{AvailableDates: []string{}, IsLocked: boolPtr(true)}); err != nil {
		t.Fatalf("lock: %v", err)
	}

	// Drop Alice from the cached list so a successful upsert would have to
	// rewrite the meeting.
	meetings := repository.NewMeetingRepo(f.store)
	stored, err := meetings.Get(ctx, m.ID)
	if err != nil {
		t.Fatalf("Get meeting: %v", err)
	}
	stored.Participants = []string{}
	if err := meetings.Save(ctx, stored, time.Hour); err != nil {
		t.Fatalf("Save meeting: %v", err)
	}
	before := stored.ExpiresAt

	f.clock.Advance(time.Hour)
	if _, err := f.svc.UpsertAvailability(ctx, m.ID, "Alice", model.AvailabilityUpdate{AvailableDates: []string{"2025-01-10"}}); !errors.Is(err, ErrLocked) {
		t.Fatalf("err = %v, want ErrLocked", err)
	}
	after, err := meetings.Get(ctx, m.ID)
	if err != nil {
		t.Fatalf("Get meeting: %v", err)
	}
	if len(after.Participants) != 0 || !after.ExpiresAt.Equal(before) {
		t.Fatalf("rejected upsert wrote the meeting: %+v", after)
	}
}

func TestUpsertIgnoresLocksWhenNotEnforced(t *testing.T) {
	f := newMeetingFixture(false)
	ctx := context.Background()
	m := mustCreate(t, f, CreateMeetingInput{Title: "T", Dates: []string{"2025-01-10"}})
	_, _ = f.svc.UpsertAvailability(ctx, m.ID, "Alice", model.AvailabilityUpdate{AvailableDates: []string{}, IsLocked: boolPtr(true)})
	if _, err := f.svc.UpsertAvailability(ctx, m.ID, "Alice", model.AvailabilityUpdate{AvailableDates: []string{"2025-01-10"}}); err != nil {
		t.Fatalf("err = %v, want store to ignore the lock", err)
	}
}

func TestUpdateMeetingRemovesParticipant(t *testing.T) {
	f := newMeetingFixture(false)
	ctx := context.Background()
	m := mustCreate(t, f, CreateMeetingInput{Title: "T", Dates: []string{"2025-01-10"}})
	for _, name := range []string{"Alice", "Bob"} {
		if _, err := f.svc.UpsertAvailability(ctx, m.ID, name, model.AvailabilityUpdate{AvailableDates: []string{"2025-01-10"}}); err != nil {
			t.Fatalf("upsert %s: %v", name, err)
		}
	}

	keep := []string{"Alice", "Carol"}
	updated, err := f.svc.UpdateMeeting(ctx, m.ID, UpdateMeetingInput{Dates: []string{"2025-01-10", "2025-01-12"}, Participants: &keep})
	if err != nil {
		t.Fatalf("UpdateMeeting: %v", err)
	}
	if !reflect.DeepEqual(updated.Participants, keep) || updated.Title != "T" {
		t.Fatalf("updated = %+v", updated)
	}

	_, avs, err := f.svc.GetMeetingWithAvailabilities(ctx, m.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	names := map[string]model.Availability{}
	for _, a := range avs {
		names[a.ParticipantName] = a
	}
	if _, ok := names["Bob"]; ok {
		t.Fatal("Bob's record survived removal")
	}
	if len(names["Alice"].AvailableDates) != 1 {
		t.Fatalf("Alice's record was not preserved: %+v", names["Alice"])
	}
	if c, ok := names["Carol"]; !ok || len(c.AvailableDates) != 0 {
		t.Fatalf("Carol should have an empty record: %+v", names)
	}
}

func TestUpdateMeetingValidation(t *testing.T) {
	f := newMeetingFixture(false)
	ctx := context.Background()
	m := mustCreate(t, f, CreateMeetingInput{Title: "T", Dates: []string{"2025-01-10"}})

	blank := "   "
	var v *ValidationError
	if _, err := f.svc.UpdateMeeting(ctx, m.ID, UpdateMeetingInput{Title: &blank, Dates: []string{"2025-01-10"}}); !errors.As(err, &v) {
		t.Fatalf("blank title: err = %v", err)
	}
	if _, err := f.svc.UpdateMeeting(ctx, m.ID, UpdateMeetingInput{Dates: []string{}}); !errors.As(err, &v) {
		t.Fatalf("empty dates: err = %v", err)
	}
	if _, err := f.svc.UpdateMeeting(ctx, "nosuchmeet", UpdateMeetingInput{Dates: []string{"2025-01-10"}}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing meeting: err = %v", err)
	}

	title := "Renamed"
	got, err := f.svc.UpdateMeeting(ctx, m.ID, UpdateMeetingInput{Title: &title, Dates: []string{"2025-02-01"}})
	if err != nil || got.Title != "Renamed" || !reflect.DeepEqual(got.Dates, []string{"2025-02-01"}) {
		t.Fatalf("UpdateMeeting = %+v, %v", got, err)
	}
}

func TestMeetingExpiresAfterTTL(t *testing.T) {
	f := newMeetingFixture(false)
	ctx := context.Background()
	m := mustCreate(t, f, CreateMeetingInput{Title: "T", Dates: []string{"2025-01-10"}})
	f.clock.Advance(19 * 31 * 24 * time.Hour)
	if _, _, err := f.svc.GetMeetingWithAvailabilities(ctx, m.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound after expiry", err)
	}
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	f := newMeetingFixture(false)
	f.events.err = errors.New("buffer full")
	var buf bytes.Buffer
	ctx := logging.ContextWithLogger(context.Background(), zerolog.New(&buf))
	if _, err := f.svc.CreateMeeting(ctx, CreateMeetingInput{Title: "T", Dates: []string{"2025-01-10"}}); err != nil {
		t.Fatalf("CreateMeeting: %v", err)
	}
	if n := strings.Count(buf.String(), "event not queued"); n != 1 {
		t.Fatalf("logged %d failures, want 1:\n%s", n, buf.String())
	}
}

func TestMergeAvailabilityLegacyRecordGetsTimestamp(t *testing.T) {
	now := time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)
	legacy := &model.Availability{ParticipantName: "Old", AvailableDates: []string{"2025-01-10"}, UnavailableDates: []string{}}
	got := MergeAvailability(legacy, "Old", model.AvailabilityUpdate{AvailableDates: []string{"2025-01-11"}}, now)
	if !got.Timestamp.Equal(now) {
		t.Fatalf("Timestamp = %v, want %v", got.Timestamp, now)
	}
}
