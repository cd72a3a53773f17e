package service

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/datepoll/internal/logging"
	"github.com/iliyamo/datepoll/internal/model"
	"github.com/iliyamo/datepoll/internal/queue"
	"github.com/iliyamo/datepoll/internal/repository"
	"github.com/iliyamo/datepoll/internal/shortlink"
	"github.com/iliyamo/datepoll/internal/utils"
)

const (
	// ShortCodeLength is the length of generated short link codes.
	ShortCodeLength = 6
	// maxCodeAttempts bounds collision retries when picking a code.
	maxCodeAttempts = 5
)

// ErrCodeSpaceExhausted means every attempted code was already taken.
var ErrCodeSpaceExhausted = errors.New("could not allocate a unique short code")

// ShortLinkService creates and resolves short links.
type ShortLinkService struct {
	links   *repository.ShortLinkRepo
	events  queue.Publisher
	ttl     time.Duration
	baseURL string
	now     func() time.Time
	newCode func() (string, error)
}

// NewShortLinkService returns a service whose links expire ttl after their
// last access.  baseURL prefixes generated short URLs.
func NewShortLinkService(links *repository.ShortLinkRepo, ttl time.Duration, baseURL string, events queue.Publisher) *ShortLinkService {
	if events == nil {
		events = queue.NopPublisher{}
	}
	return &ShortLinkService{
		links:   links,
		events:  events,
		ttl:     ttl,
		baseURL: baseURL,
		now:     time.Now,
		newCode: func() (string, error) { return utils.RandomString(ShortCodeLength, utils.Base62) },
	}
}

// ShortURL returns the public URL for code.
func (s *ShortLinkService) ShortURL(code string) string { return s.baseURL + "/s/" + code }

// Create stores the template parameters of rawURL under a fresh code.
func (s *ShortLinkService) Create(ctx context.Context, rawURL string) (*model.ShortLink, error) {
	encoded, err := shortlink.CompressURLParams(rawURL)
	if err != nil {
		v := &ValidationError{}
		v.add("url", "url must be an absolute http(s) URL")
		return nil, v
	}

	code, err := s.freeCode(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	l := &model.ShortLink{Code: code, Original: encoded, Created: now, LastAccess: now}
	if err := s.links.Save(ctx, l, s.ttl); err != nil {
		return nil, err
	}

	ev := queue.NewEvent(queue.ShortLinkCreated, now)
	ev.Code = code
	if err := s.events.Publish(ctx, ev); err != nil {
		logEventFailure(logging.FromContext(ctx), ev, err)
	}
	return l, nil
}

func (s *ShortLinkService) freeCode(ctx context.Context) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := s.newCode()
		if err != nil {
			return "", err
		}
		taken, err := s.links.Exists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}

// Resolve returns the decoded template of code.  Each call records the
// access and slides the expiry window.  The counter update is a plain
// read-then-write, so concurrent resolves may undercount.
func (s *ShortLinkService) Resolve(ctx context.Context, code string) (model.TemplateParams, error) {
	if !utils.IsBase62(code, ShortCodeLength) {
		return model.TemplateParams{}, ErrNotFound
	}
	l, err := s.links.Get(ctx, code)
	if err != nil {
		return model.TemplateParams{}, err
	}
	params, err := shortlink.Decode(l.Original)
	if err != nil {
		return model.TemplateParams{}, &repository.StoreError{Op: "decode", Key: code, Err: err}
	}
	l.LastAccess = s.now().UTC()
	l.AccessCount++
	if err := s.links.Save(ctx, l, s.ttl); err != nil {
		return model.TemplateParams{}, err
	}
	return params, nil
}
