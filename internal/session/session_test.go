package session

import (
    "context"
    "errors"
    "testing"
    "time"
)

func TestIssueAndParse(t *testing.T) {
    iss := NewIssuer("secret", time.Hour)
    raw, exp, err := iss.Issue(Identity{MeetingID: "m1", Participant: "Alice"})
    if err != nil {
        t.Fatalf("Issue: %v", err)
    }
    if time.Until(exp) <= 0 {
        t.Fatalf("expiry %v is in the past", exp)
    }
    id, err := iss.Parse(raw)
    if err != nil {
        t.Fatalf("Parse: %v", err)
    }
    if !id.Matches("m1", "Alice") || id.Matches("m1", "alice") {
        t.Fatalf("identity = %+v", id)
    }
}

func TestParseRejectsForeignAndExpired(t *testing.T) {
    iss := NewIssuer("secret", time.Hour)
    raw, _, _ := iss.Issue(Identity{MeetingID: "m1", Participant: "Alice"})

    if _, err := NewIssuer("other", time.Hour).Parse(raw); !errors.Is(err, ErrInvalidToken) {
        t.Fatalf("foreign key: err = %v", err)
    }

    later := NewIssuer("secret", time.Hour)
    later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
    if _, err := later.Parse(raw); !errors.Is(err, ErrInvalidToken) {
        t.Fatalf("expired: err = %v", err)
    }

    if _, err := iss.Parse("not-a-token"); !errors.Is(err, ErrInvalidToken) {
        t.Fatalf("garbage: err = %v", err)
    }
}

func TestContextRoundTrip(t *testing.T) {
    if _, ok := FromContext(context.Background()); ok {
        t.Fatal("empty context reported an identity")
    }
    ctx := WithIdentity(context.Background(), Identity{MeetingID: "m1", Participant: "Bob"})
    id, ok := FromContext(ctx)
    if !ok || id.Participant != "Bob" {
        t.Fatalf("FromContext = %+v, %v", id, ok)
    }
}
