// Package session replaces browser-held "current participant" state with an
// explicit identity that travels with each request.  The identity is
// carried in a signed HS256 token issued after a participant first responds.
package session

import (
    "context"
    "errors"
    "time"

    "github.com/golang-jwt/jwt/v5"
)

// Identity names the participant acting within a meeting.
type Identity struct {
    MeetingID   string
    Participant string
}

// Matches reports whether the identity speaks for participant in meetingID.
func (i Identity) Matches(meetingID, participant string) bool {
    return i.MeetingID == meetingID && i.Participant == participant
}

// ErrInvalidToken is returned for malformed, expired or foreign tokens.
var ErrInvalidToken = errors.New("session: invalid token")

type claims struct {
    MeetingID string `json:"mid"`
    jwt.RegisteredClaims
}

// Issuer signs and verifies participant tokens.
type Issuer struct {
    secret []byte
    ttl    time.Duration
    now    func() time.Time
}

// NewIssuer returns an Issuer using secret as the HMAC key.
func NewIssuer(secret string, ttl time.Duration) *Issuer {
    return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue builds a token for id.  The subject is the participant name and the
// mid claim the meeting id.
func (s *Issuer) Issue(id Identity) (string, time.Time, error) {
    now := s.now().UTC()
    exp := now.Add(s.ttl)
    c := claims{
        MeetingID: id.MeetingID,
        RegisteredClaims: jwt.RegisteredClaims{
            Subject:   id.Participant,
            IssuedAt:  jwt.NewNumericDate(now),
            ExpiresAt: jwt.NewNumericDate(exp),
        },
    }
    signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
    if err != nil {
        return "", time.Time{}, err
    }
    return signed, exp, nil
}

// Parse verifies raw and returns the identity it carries.
func (s *Issuer) Parse(raw string) (Identity, error) {
    var c claims
    tok, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (interface{}, error) {
        return s.secret, nil
    },
        jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
        jwt.WithTimeFunc(s.now),
        jwt.WithExpirationRequired(),
    )
    if err != nil || !tok.Valid {
        return Identity{}, ErrInvalidToken
    }
    if c.MeetingID == "" || c.Subject == "" {
        return Identity{}, ErrInvalidToken
    }
    return Identity{MeetingID: c.MeetingID, Participant: c.Subject}, nil
}

type ctxKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
    return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity attached to ctx, if any.
func FromContext(ctx context.Context) (Identity, bool) {
    id, ok := ctx.Value(ctxKey{}).(Identity)
    return id, ok
}
