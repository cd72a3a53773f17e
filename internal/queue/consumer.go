package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "os"
    "path/filepath"
    "strings"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "github.com/rs/zerolog"
)

// ActivityLog appends one human-readable line per event to a file.
type ActivityLog struct {
    Path string
}

// Append writes ev to the log, creating the directory when needed.
func (l ActivityLog) Append(ev Event) error {
    if err := os.MkdirAll(filepath.Dir(l.Path), 0o755); err != nil {
        return fmt.Errorf("mkdir logs: %w", err)
    }
    f, err := os.OpenFile(l.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()
    return writeLine(f, ev)
}

func writeLine(w io.Writer, ev Event) error {
    var b strings.Builder
    fmt.Fprintf(&b, "[%s] %s | id=%s", ev.OccurredAt, ev.Type, ev.ID)
    if ev.MeetingID != "" {
        fmt.Fprintf(&b, " | meeting=%s", ev.MeetingID)
    }
    if ev.Participant != "" {
        fmt.Fprintf(&b, " | participant=%q", ev.Participant)
    }
    if len(ev.Participants) > 0 {
        fmt.Fprintf(&b, " | participants=[%s]", strings.Join(ev.Participants, ","))
    }
    if ev.DateCount > 0 {
        fmt.Fprintf(&b, " | dates=%d", ev.DateCount)
    }
    if ev.Code != "" {
        fmt.Fprintf(&b, " | code=%s", ev.Code)
    }
    b.WriteByte('\n')
    _, err := io.WriteString(w, b.String())
    return err
}

// HandleMessage decodes one delivery body and appends it to the log.
func (l ActivityLog) HandleMessage(body []byte) error {
    var ev Event
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if ev.Type == "" {
        return errors.New("event without type")
    }
    return l.Append(ev)
}

// StartActivityConsumer consumes ActivityQueue until ctx is cancelled,
// reconnecting with exponential backoff.  Messages that fail to process are
// rejected without requeue so a poison message cannot loop.
func StartActivityConsumer(ctx context.Context, url string, sink ActivityLog, log zerolog.Logger) error {
    backoff := time.Second
    for {
        if ctx.Err() != nil {
            return ctx.Err()
        }
        conn, err := amqp.Dial(url)
        if err != nil {
            log.Warn().Err(err).Dur("retry_in", backoff).Msg("consumer: dial failed")
            if !sleep(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second

        err = consumeLoop(ctx, conn, sink, log)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        log.Warn().Err(err).Msg("consumer: loop ended; reconnecting")
        if !sleep(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, sink ActivityLog, log zerolog.Logger) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        log.Warn().Err(err).Msg("consumer: set QoS failed")
    }
    if _, err := ch.QueueDeclare(ActivityQueue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.Consume(ActivityQueue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            if err := sink.HandleMessage(d.Body); err != nil {
                log.Error().Err(err).Str("message_id", d.MessageId).Msg("consumer: handle message failed")
                _ = d.Nack(false, false)
                continue
            }
            _ = d.Ack(false)
        }
    }
}

func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}
