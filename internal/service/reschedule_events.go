package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/pace-go-api/internal/dto"
	"github.com/noah-isme/pace-go-api/internal/observability"
)

const rescheduleEventBufferSize = 16

// Reschedule lifecycle event types.
const (
	RescheduleEventCreated   = "reschedule.created"
	RescheduleEventCancelled = "reschedule.cancelled"
)

// RescheduleEvent is one lifecycle change of an assessment window,
// fanned out to in-process subscribers and across nodes.
type RescheduleEvent struct {
	Type       string                 `json:"type"`
	Reschedule dto.RescheduleResponse `json:"reschedule"`
	SentAt     time.Time              `json:"sent_at"`
}

type rescheduleEventEnvelope struct {
	Source string          `json:"source"`
	Event  RescheduleEvent `json:"event"`
}

// RescheduleEventPublisher fans reschedule lifecycle events out to
// subscribed dashboards, locally and across nodes via Redis and NATS.
type RescheduleEventPublisher interface {
	Publish(ctx context.Context, event RescheduleEvent)
	Subscribe(studentID uint) (<-chan RescheduleEvent, func())
	Start(ctx context.Context)
}

type rescheduleEventPublisher struct {
	redis       *redis.Client
	redisStream string
	nats        *nats.Conn
	natsSubject string
	logger      zerolog.Logger
	broker      *rescheduleEventBroker
	nodeID      string
}

type rescheduleEventBroker struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan RescheduleEvent]struct{}
}

// NewRescheduleEventPublisher constructs the publisher. Redis and NATS
// are both optional; with neither, events stay in-process.
func NewRescheduleEventPublisher(redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) RescheduleEventPublisher {
	stream := ""
	subject := ""
	if channelBase != "" {
		stream = channelBase + ":reschedules"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".reschedules"
	}

	return &rescheduleEventPublisher{
		redis:       redisClient,
		redisStream: stream,
		nats:        natsConn,
		natsSubject: subject,
		logger:      logger.With().Str("component", "reschedule_events").Logger(),
		broker: &rescheduleEventBroker{
			subscribers: make(map[string]map[chan RescheduleEvent]struct{}),
		},
		nodeID: uuid.NewString(),
	}
}

func (p *rescheduleEventPublisher) Start(ctx context.Context) {
	if p.redis != nil && p.redisStream != "" {
		go p.consumeRedis(ctx)
	}
	if p.nats != nil && p.natsSubject != "" {
		go p.consumeNATS(ctx)
	}
}

func (p *rescheduleEventPublisher) Publish(ctx context.Context, event RescheduleEvent) {
	if event.SentAt.IsZero() {
		event.SentAt = time.Now().UTC()
	}

	p.broadcast(event)
	observability.RescheduleEvents().WithLabelValues(event.Type).Inc()

	envelope := rescheduleEventEnvelope{Source: p.nodeID, Event: event}
	payload, err := json.Marshal(envelope)
	if err != nil {
		p.logger.Warn().Err(err).Msg("failed to encode reschedule event")
		return
	}

	if p.redis != nil && p.redisStream != "" {
		if err := p.redis.Publish(ctx, p.redisStream, payload).Err(); err != nil {
			p.logger.Warn().Err(err).Msg("failed to publish reschedule event to redis")
		}
	}

	if p.nats != nil && p.natsSubject != "" {
		if err := p.nats.Publish(p.natsSubject, payload); err != nil {
			p.logger.Warn().Err(err).Msg("failed to publish reschedule event to nats")
		}
	}
}

func (p *rescheduleEventPublisher) Subscribe(studentID uint) (<-chan RescheduleEvent, func()) {
	key := strconv.FormatUint(uint64(studentID), 10)
	channel := make(chan RescheduleEvent, rescheduleEventBufferSize)

	p.broker.subscribe(key, channel)

	cleanup := func() {
		p.broker.unsubscribe(key, channel)
	}

	return channel, cleanup
}

func (p *rescheduleEventPublisher) broadcast(event RescheduleEvent) {
	key := strconv.FormatUint(uint64(event.Reschedule.StudentID), 10)
	p.broker.broadcast(key, event)
}

func (p *rescheduleEventPublisher) consumeRedis(ctx context.Context) {
	pubsub := p.redis.Subscribe(ctx, p.redisStream)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			p.logger.Error().Err(err).Msg("reschedule redis subscription closed")
			return
		}
		p.handleEvent([]byte(msg.Payload))
	}
}

func (p *rescheduleEventPublisher) consumeNATS(ctx context.Context) {
	sub, err := p.nats.QueueSubscribe(p.natsSubject, "pace-reschedules", func(msg *nats.Msg) {
		p.handleEvent(msg.Data)
	})
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to subscribe to nats reschedules subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			p.logger.Warn().Err(err).Msg("failed to drain reschedule nats subscription")
		}
	}()
}

func (p *rescheduleEventPublisher) handleEvent(payload []byte) {
	var envelope rescheduleEventEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		p.logger.Warn().Err(err).Msg("invalid reschedule event payload")
		return
	}

	if envelope.Source == p.nodeID {
		return
	}

	observability.RescheduleEvents().WithLabelValues(envelope.Event.Type).Inc()
	p.broadcast(envelope.Event)
}

func (b *rescheduleEventBroker) subscribe(key string, ch chan RescheduleEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[key]; !exists {
		b.subscribers[key] = make(map[chan RescheduleEvent]struct{})
	}
	b.subscribers[key][ch] = struct{}{}
}

func (b *rescheduleEventBroker) unsubscribe(key string, ch chan RescheduleEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subscribers, ok := b.subscribers[key]; ok {
		delete(subscribers, ch)
		close(ch)
		if len(subscribers) == 0 {
			delete(b.subscribers, key)
		}
	}
}

func (b *rescheduleEventBroker) broadcast(key string, event RescheduleEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subscribers := b.subscribers[key]
	for ch := range subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}
