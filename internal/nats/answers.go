package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/capitalize-ai/shop-assistant/internal/model"
	"github.com/capitalize-ai/shop-assistant/pkg/logger"
)

const (
	// StreamName is the name of the answer audit stream.
	StreamName = "ANSWERS"

	// SubjectPrefix is the prefix for all answer subjects.
	SubjectPrefix = "rag"

	// AnonymousSession is the subject token for answers without a session.
	AnonymousSession = "anonymous"
)

// AnswerStream records answer events in JetStream and replays them per session.
type AnswerStream struct {
	client *Client
	logger *logger.Logger
}

// NewAnswerStream creates an answer stream.
func NewAnswerStream(client *Client, log *logger.Logger) *AnswerStream {
	return &AnswerStream{client: client, logger: log}
}

// EnsureStream creates the answer stream when it does not exist.
func (s *AnswerStream) EnsureStream(ctx context.Context) error {
	js := s.client.JetStream()

	if _, err := js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Answered questions and degraded responses",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	s.logger.Info("JetStream stream created", zap.String("stream", StreamName))
	return nil
}

// subjectToken makes id safe for use as one subject token.
func subjectToken(id string) string {
	if id == "" {
		return AnonymousSession
	}
	return strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(id)
}

// AnswerSubject returns the subject for an event.
func AnswerSubject(sessionID string, eventType model.EventType) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, subjectToken(sessionID), eventType)
}

// SessionFilter returns the filter subject for all events of a session.
func SessionFilter(sessionID string) string {
	return fmt.Sprintf("%s.%s.>", SubjectPrefix, subjectToken(sessionID))
}

// Record publishes event and implements rag.Recorder.
func (s *AnswerStream) Record(ctx context.Context, event *model.AnswerEvent) error {
	_, err := s.Publish(ctx, event)
	return err
}

// Publish publishes event and returns its stream sequence.
func (s *AnswerStream) Publish(ctx context.Context, event *model.AnswerEvent) (uint64, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event: %w", err)
	}

	ack, err := s.client.JetStream().Publish(ctx, AnswerSubject(event.SessionID, event.Type), data)
	if err != nil {
		return 0, fmt.Errorf("failed to publish event: %w", err)
	}
	return ack.Sequence, nil
}

// ListAnswers returns up to limit events of a session recorded after
// afterSequence, the last sequence read, and whether more may follow.
func (s *AnswerStream) ListAnswers(ctx context.Context, sessionID string, afterSequence uint64, limit int) ([]model.AnswerEvent, uint64, bool, error) {
	cfg := jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{SessionFilter(sessionID)},
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	}
	if afterSequence > 0 {
		cfg.DeliverPolicy = jetstream.DeliverByStartSequencePolicy
		cfg.OptStartSeq = afterSequence + 1
	}

	consumer, err := s.client.JetStream().OrderedConsumer(ctx, StreamName, cfg)
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to create consumer: %w", err)
	}

	batch, err := consumer.Fetch(limit, jetstream.FetchMaxWait(time.Second))
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to fetch events: %w", err)
	}

	var (
		events       []model.AnswerEvent
		lastSequence = afterSequence
	)
	for msg := range batch.Messages() {
		event, seq, ok := decode(msg)
		if !ok {
			s.logger.Warn("skipping malformed answer event", zap.String("subject", msg.Subject()))
			continue
		}
		events = append(events, event)
		lastSequence = seq
	}

	if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, jetstream.ErrNoMessages) {
		return nil, 0, false, fmt.Errorf("batch error: %w", err)
	}

	return events, lastSequence, len(events) == limit, nil
}

// Subscribe delivers events of a session recorded after afterSequence to fn
// until the returned stop function is called.
func (s *AnswerStream) Subscribe(ctx context.Context, sessionID string, afterSequence uint64, fn func(model.AnswerEvent)) (func(), error) {
	consumer, err := s.client.JetStream().OrderedConsumer(ctx, StreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{SessionFilter(sessionID)},
		DeliverPolicy:  jetstream.DeliverByStartSequencePolicy,
		OptStartSeq:    afterSequence + 1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		if event, _, ok := decode(msg); ok {
			fn(event)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to consume events: %w", err)
	}
	return cc.Stop, nil
}

func decode(msg jetstream.Msg) (model.AnswerEvent, uint64, bool) {
	var event model.AnswerEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		return event, 0, false
	}

	var seq uint64
	if meta, err := msg.Metadata(); err == nil {
		seq = meta.Sequence.Stream
		event.Sequence = seq
	}
	return event, seq, true
}
