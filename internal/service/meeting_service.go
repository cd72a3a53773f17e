package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/datepoll/internal/logging"
	"github.com/iliyamo/datepoll/internal/model"
	"github.com/iliyamo/datepoll/internal/queue"
	"github.com/iliyamo/datepoll/internal/repository"
	"github.com/iliyamo/datepoll/internal/session"
	"github.com/iliyamo/datepoll/internal/utils"
)

// MeetingIDLength is the length of generated meeting ids.  At 62^10 the id
// space makes a collision negligible, so ids are not checked against the
// store.
const MeetingIDLength = 10

// DefaultLocale is stored when the creator sends none.
const DefaultLocale = "en"

// MeetingService implements the meeting and availability operations.
//
// Every write is a plain read-modify-write without isolation.  Two writers
// updating the same participant concurrently can lose one update, and a
// date-list edit racing an availability write can leave availability that
// references removed dates.  Both are accepted.
type MeetingService struct {
	meetings *repository.MeetingRepo
	avails   *repository.AvailabilityRepo
	events   queue.Publisher

	ttlMonths    int
	enforceLocks bool
	now          func() time.Time
	newID        func() (string, error)
}

// MeetingOptions configures a MeetingService.
type MeetingOptions struct {
	TTLMonths    int
	EnforceLocks bool
	Events       queue.Publisher
	Now          func() time.Time
}

// NewMeetingService wires the service to its repositories.
func NewMeetingService(meetings *repository.MeetingRepo, avails *repository.AvailabilityRepo, opts MeetingOptions) *MeetingService {
	if meetings == nil || avails == nil {
		panic("nil repository passed to NewMeetingService")
	}
	s := &MeetingService{
		meetings:     meetings,
		avails:       avails,
		events:       opts.Events,
		ttlMonths:    opts.TTLMonths,
		enforceLocks: opts.EnforceLocks,
		now:          opts.Now,
		newID:        func() (string, error) { return utils.RandomString(MeetingIDLength, utils.Base62) },
	}
	if s.events == nil {
		s.events = queue.NopPublisher{}
	}
	if s.ttlMonths < 1 {
		s.ttlMonths = 18
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// validMeetingID rejects ids that could never have been generated, so they
// never reach a key lookup.
func validMeetingID(id string) bool {
	return id != "" && len(id) <= 64 && utils.IsBase62(id, len(id))
}

// expiry returns the expiry instant and store TTL for a write made at now.
func (s *MeetingService) expiry(now time.Time) (time.Time, time.Duration) {
	exp := now.AddDate(0, s.ttlMonths, 0)
	return exp, exp.Sub(now)
}

// CreateMeetingInput is the payload of CreateMeeting.
type CreateMeetingInput struct {
	Title        string
	Dates        []string
	Participants []string
	Locale       string
}

// CreateMeeting validates the input, stores a new meeting and an empty
// availability record for each initial participant.
func (s *MeetingService) CreateMeeting(ctx context.Context, in CreateMeetingInput) (*model.Meeting, error) {
	var v ValidationError
	title := validateTitle(&v, in.Title)
	dates := validateDates(&v, in.Dates)
	participants := validateParticipants(&v, in.Participants)
	if err := v.orNil(); err != nil {
		return nil, err
	}

	id, err := s.newID()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	exp, ttl := s.expiry(now)
	locale := strings.TrimSpace(in.Locale)
	if locale == "" {
		locale = DefaultLocale
	}
	m := &model.Meeting{
		ID:           id,
		Title:        title,
		Dates:        dates,
		Participants: participants,
		CreatedAt:    now,
		ExpiresAt:    exp,
		Locale:       locale,
	}
	if err := s.meetings.Save(ctx, m, ttl); err != nil {
		return nil, err
	}
	for _, name := range participants {
		if err := s.avails.Save(ctx, id, emptyAvailability(name, now), ttl); err != nil {
			return nil, err
		}
	}

	ev := queue.NewEvent(queue.MeetingCreated, now)
	ev.MeetingID, ev.Participants, ev.DateCount = id, participants, len(dates)
	s.publish(ctx, ev)
	return m, nil
}

// GetMeetingWithAvailabilities returns the meeting and every availability
// record, newest first.  Records are fetched with one key scan and one bulk
// read.
func (s *MeetingService) GetMeetingWithAvailabilities(ctx context.Context, id string) (*model.Meeting, []model.Availability, error) {
	if !validMeetingID(id) {
		return nil, nil, ErrNotFound
	}
	m, err := s.meetings.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	avs, err := s.avails.ListByMeeting(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	sortByRecency(avs)
	return m, avs, nil
}

func sortByRecency(avs []model.Availability) {
	sort.SliceStable(avs, func(i, j int) bool {
		if !avs[i].Timestamp.Equal(avs[j].Timestamp) {
			return avs[i].Timestamp.After(avs[j].Timestamp)
		}
		return avs[i].ParticipantName < avs[j].ParticipantName
	})
}

// UpsertAvailability merges upd into the participant's record.  A first
// response also adds the name to the meeting's participant list.
func (s *MeetingService) UpsertAvailability(ctx context.Context, meetingID, participant string, upd model.AvailabilityUpdate) (*model.Availability, error) {
	participant = strings.TrimSpace(participant)
	var v ValidationError
	if msg := ValidateParticipantName(participant); msg != "" {
		v.add("participantName", msg)
	}
	if upd.AvailableDates == nil {
		v.add("availableDates", "availableDates is required")
	}
	if su := upd.StatusUpdate; su != nil && !ValidDate(su.Date) {
		v.add("statusUpdate", "statusUpdate.date must be YYYY-MM-DD")
	}
	if err := v.orNil(); err != nil {
		return nil, err
	}

	if !validMeetingID(meetingID) {
		return nil, ErrNotFound
	}
	m, err := s.meetings.Get(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	existing, err := s.avails.Get(ctx, meetingID, participant)
	if errors.Is(err, repository.ErrNotFound) {
		existing = nil
	} else if err != nil {
		return nil, err
	}
	if existing != nil && existing.IsLocked && s.enforceLocks {
		id, ok := session.FromContext(ctx)
		if !ok || !id.Matches(meetingID, participant) {
			return nil, ErrLocked
		}
	}

	now := s.now().UTC()
	exp, ttl := s.expiry(now)
	if !m.HasParticipant(participant) {
		m.Participants = append(m.Participants, participant)
		m.ExpiresAt = exp
		if err := s.meetings.Save(ctx, m, ttl); err != nil {
			return nil, err
		}
	}

	merged := MergeAvailability(existing, participant, upd, now)
	if err := s.avails.Save(ctx, meetingID, merged, ttl); err != nil {
		return nil, err
	}

	ev := queue.NewEvent(queue.AvailabilityUpdated, now)
	ev.MeetingID, ev.Participant = meetingID, participant
	s.publish(ctx, ev)
	return merged, nil
}

// MergeAvailability applies upd on top of existing (which may be nil).
// AvailableDates is replaced; Timestamp, UnavailableDates and IsLocked are
// carried over unless upd sets them.  A StatusUpdate then adds its date to
// UnavailableDates when the status is "unavailable" and removes it
// otherwise, independently of AvailableDates.
func MergeAvailability(existing *model.Availability, participant string, upd model.AvailabilityUpdate, now time.Time) *model.Availability {
	out := emptyAvailability(participant, now)
	out.AvailableDates = dedupe(upd.AvailableDates)
	if existing != nil {
		if !existing.Timestamp.IsZero() {
			out.Timestamp = existing.Timestamp
		}
		out.UnavailableDates = dedupe(existing.UnavailableDates)
		out.IsLocked = existing.IsLocked
	}
	if upd.Timestamp != nil {
		out.Timestamp = upd.Timestamp.UTC()
	}
	if upd.UnavailableDates != nil {
		out.UnavailableDates = dedupe(*upd.UnavailableDates)
	}
	if upd.IsLocked != nil {
		out.IsLocked = *upd.IsLocked
	}
	if su := upd.StatusUpdate; su != nil {
		out.UnavailableDates = removeString(out.UnavailableDates, su.Date)
		if su.Status == model.StatusUnavailable {
			out.UnavailableDates = append(out.UnavailableDates, su.Date)
		}
	}
	return out
}

// UpdateMeetingInput is the payload of UpdateMeeting.  Nil Title keeps the
// stored title; nil Participants leaves availability records alone.
type UpdateMeetingInput struct {
	Title        *string
	Dates        []string
	Participants *[]string
}

// UpdateMeeting edits title and dates and, when Participants is set,
// reconciles availability records with it: new names get empty records and
// missing names have their records deleted.
func (s *MeetingService) UpdateMeeting(ctx context.Context, id string, in UpdateMeetingInput) (*model.Meeting, error) {
	var v ValidationError
	var title string
	if in.Title != nil {
		title = validateTitle(&v, *in.Title)
	}
	dates := validateDates(&v, in.Dates)
	var participants []string
	if in.Participants != nil {
		participants = validateParticipants(&v, *in.Participants)
	}
	if err := v.orNil(); err != nil {
		return nil, err
	}

	if !validMeetingID(id) {
		return nil, ErrNotFound
	}
	m, err := s.meetings.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	exp, ttl := s.expiry(now)

	if in.Title != nil {
		m.Title = title
	}
	m.Dates = dates
	if in.Participants != nil {
		current, err := s.avails.Names(ctx, id)
		if err != nil {
			return nil, err
		}
		added, removed := diffNames(current, participants)
		for _, name := range added {
			if err := s.avails.Save(ctx, id, emptyAvailability(name, now), ttl); err != nil {
				return nil, err
			}
		}
		if err := s.avails.Delete(ctx, id, removed...); err != nil {
			return nil, err
		}
		m.Participants = participants
	}
	m.ExpiresAt = exp
	if err := s.meetings.Save(ctx, m, ttl); err != nil {
		return nil, err
	}

	ev := queue.NewEvent(queue.MeetingUpdated, now)
	ev.MeetingID, ev.Participants, ev.DateCount = id, m.Participants, len(m.Dates)
	s.publish(ctx, ev)
	return m, nil
}

// diffNames returns names in want but not in have, and names in have but
// not in want.
func diffNames(have, want []string) (added, removed []string) {
	haveSet := make(map[string]struct{}, len(have))
	for _, n := range have {
		haveSet[n] = struct{}{}
	}
	wantSet := make(map[string]struct{}, len(want))
	for _, n := range want {
		wantSet[n] = struct{}{}
		if _, ok := haveSet[n]; !ok {
			added = append(added, n)
		}
	}
	for _, n := range have {
		if _, ok := wantSet[n]; !ok {
			removed = append(removed, n)
		}
	}
	return added, removed
}

func emptyAvailability(name string, now time.Time) *model.Availability {
	return &model.Availability{
		ParticipantName:  name,
		AvailableDates:   []string{},
		UnavailableDates: []string{},
		Timestamp:        now,
	}
}

func removeString(in []string, s string) []string {
	out := in[:0]
	for _, x := range in {
		if x != s {
			out = append(out, x)
		}
	}
	return out
}

// publish hands ev to the publisher without failing the request.  Delivery
// failures are logged by the publisher; only a refused hand-off is logged
// here.
func (s *MeetingService) publish(ctx context.Context, ev queue.Event) {
	if err := s.events.Publish(ctx, ev); err != nil {
		logEventFailure(logging.FromContext(ctx), ev, err)
	}
}

func logEventFailure(log *zerolog.Logger, ev queue.Event, err error) {
	log.Warn().Err(err).Str("event", ev.Type).Str("event_id", ev.ID).Msg("event not queued")
}
