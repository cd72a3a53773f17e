package service

import (
	"context"
	"sync"
	"time"

	"github.com/iliyamo/datepoll/internal/kv"
	"github.com/iliyamo/datepoll/internal/queue"
	"github.com/iliyamo/datepoll/internal/repository"
)

type testClock struct {
	mu  sync.Mutex
	cur time.Time
}

func newTestClock() *testClock {
	return &testClock{cur: time.Date(2025, 1, 5, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.cur = c.cur.Add(d)
	c.mu.Unlock()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

type meetingFixture struct {
	svc    *MeetingService
	store  *kv.Memory
	clock  *testClock
	events *recordingPublisher
	avails *repository.AvailabilityRepo
}

func newMeetingFixture(enforceLocks bool) *meetingFixture {
	clock := newTestClock()
	store := kv.NewMemoryWithClock(clock.Now)
	events := &recordingPublisher{}
	avails := repository.NewAvailabilityRepo(store)
	svc := NewMeetingService(repository.NewMeetingRepo(store), avails, MeetingOptions{
		TTLMonths:    18,
		EnforceLocks: enforceLocks,
		Events:       events,
		Now:          clock.Now,
	})
	return &meetingFixture{svc: svc, store: store, clock: clock, events: events, avails: avails}
}
