package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "sync"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "github.com/rs/zerolog"
)

// Publisher defaults.
const (
    DefaultPublishBuffer = 256
    DefaultDialTimeout   = 3 * time.Second
    // redialBackoff is how long events are dropped after a failed dial
    // before the next attempt.
    redialBackoff = 5 * time.Second
)

var (
    // ErrPublishBufferFull is returned when the outgoing buffer is full and
    // the event was dropped.
    ErrPublishBufferFull = errors.New("queue: publish buffer full")
    // ErrPublisherClosed is returned after Close.
    ErrPublisherClosed = errors.New("queue: publisher closed")
)

// AMQPPublisher hands events to a background goroutine that owns the broker
// connection.  Publish never waits on the network: it enqueues or drops.
type AMQPPublisher struct {
    url         string
    log         zerolog.Logger
    dialTimeout time.Duration

    events    chan Event
    quit      chan struct{}
    done      chan struct{}
    closeOnce sync.Once

    // Owned by run.
    conn     *amqp.Connection
    ch       *amqp.Channel
    nextDial time.Time
}

// NewAMQPPublisher starts a publisher for url with default buffer size and
// dial timeout.  No connection is made until the first event arrives.
func NewAMQPPublisher(url string, log zerolog.Logger) *AMQPPublisher {
    return newAMQPPublisher(url, log, DefaultPublishBuffer, DefaultDialTimeout)
}

func newAMQPPublisher(url string, log zerolog.Logger, buffer int, dialTimeout time.Duration) *AMQPPublisher {
    if buffer < 1 {
        buffer = 1
    }
    p := &AMQPPublisher{
        url:         url,
        log:         log.With().Str("component", "publisher").Logger(),
        dialTimeout: dialTimeout,
        events:      make(chan Event, buffer),
        quit:        make(chan struct{}),
        done:        make(chan struct{}),
    }
    go p.run()
    return p
}

// Publish enqueues ev for delivery.  It returns ErrPublishBufferFull when
// the buffer is full; the event is then lost.
func (p *AMQPPublisher) Publish(_ context.Context, ev Event) error {
    select {
    case <-p.quit:
        return ErrPublisherClosed
    default:
    }
    select {
    case p.events <- ev:
        return nil
    default:
        return ErrPublishBufferFull
    }
}

func (p *AMQPPublisher) run() {
    defer close(p.done)
    for {
        select {
        case <-p.quit:
            p.disconnect()
            return
        case ev := <-p.events:
            p.send(ev)
        }
    }
}

// send delivers ev and logs the failure, if any.  This is the only place a
// failed delivery is logged.
func (p *AMQPPublisher) send(ev Event) {
    body, err := json.Marshal(ev)
    if err != nil {
        p.log.Error().Err(err).Str("event", ev.Type).Msg("marshal event")
        return
    }
    ch, err := p.channel()
    if err != nil {
        p.log.Warn().Err(err).Str("event", ev.Type).Str("event_id", ev.ID).Msg("event dropped")
        return
    }
    ctx, cancel := context.WithTimeout(context.Background(), p.dialTimeout)
    defer cancel()
    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        MessageId:    ev.ID,
        Type:         ev.Type,
        Timestamp:    time.Now().UTC(),
        Body:         body,
    }
    if err := ch.PublishWithContext(ctx, "", ActivityQueue, false, false, pub); err != nil {
        p.log.Warn().Err(err).Str("event", ev.Type).Str("event_id", ev.ID).Msg("event dropped")
        _ = ch.Close()
        p.ch = nil
    }
}

// channel returns an open channel, dialling when needed.  After a failed
// dial it refuses to retry until redialBackoff has passed so a dead broker
// does not cost a timeout per event.
func (p *AMQPPublisher) channel() (*amqp.Channel, error) {
    if p.ch != nil && !p.ch.IsClosed() {
        return p.ch, nil
    }
    if p.conn == nil || p.conn.IsClosed() {
        if now := time.Now(); now.Before(p.nextDial) {
            return nil, errors.New("broker unavailable, waiting to redial")
        }
        conn, err := amqp.DialConfig(p.url, amqp.Config{
            Heartbeat: 10 * time.Second,
            Locale:    "en_US",
            Dial:      amqp.DefaultDial(p.dialTimeout),
        })
        if err != nil {
            p.nextDial = time.Now().Add(redialBackoff)
            return nil, fmt.Errorf("dial broker: %w", err)
        }
        p.conn = conn
    }
    ch, err := p.conn.Channel()
    if err != nil {
        return nil, fmt.Errorf("open channel: %w", err)
    }
    // Durable so messages survive broker restarts.
    if _, err := ch.QueueDeclare(ActivityQueue, true, false, false, false, nil); err != nil {
        _ = ch.Close()
        return nil, fmt.Errorf("declare queue: %w", err)
    }
    p.ch = ch
    return ch, nil
}

func (p *AMQPPublisher) disconnect() {
    if p.ch != nil {
        _ = p.ch.Close()
        p.ch = nil
    }
    if p.conn != nil {
        _ = p.conn.Close()
        p.conn = nil
    }
}

// Close stops the background goroutine and releases the connection.  Events
// still buffered are discarded.
func (p *AMQPPublisher) Close() error {
    p.closeOnce.Do(func() { close(p.quit) })
    <-p.done
    return nil
}
