package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/heatmyhome-form/internal/config"
	"github.com/couchcryptid/heatmyhome-form/internal/domain"
)

// Message headers of the request/reply exchange.
const (
	headerReplyTo   = "reply_to"
	headerSentAt    = "sent_at"
	headerStatus    = "status"
	headerError     = "error"
	headerPostcode  = "postcode"
	serviceName     = "kafka"
	defaultMaxBytes = 10 << 20
)

// Backend runs simulations by publishing requests to one topic and consuming
// replies from another. Replies are matched to requests by message key.
// It implements domain.SimulationBackend.
type Backend struct {
	writer     *kafkago.Writer
	reader     *kafkago.Reader
	replyTopic string
	logger     *slog.Logger

	mu      sync.Mutex
	pending map[string]chan reply
}

type reply struct {
	result json.RawMessage
	err    error
}

// NewBackend creates the request producer and reply consumer. Run must be
// started for replies to be delivered.
func NewBackend(cfg *config.Config, logger *slog.Logger) *Backend {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaRequestTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    cfg.KafkaReplyTopic,
		GroupID:  cfg.KafkaGroupID,
		MinBytes: 1,
		MaxBytes: defaultMaxBytes,
	})
	return newBackend(w, r, cfg.KafkaReplyTopic, logger)
}

func newBackend(w *kafkago.Writer, r *kafkago.Reader, replyTopic string, logger *slog.Logger) *Backend {
	return &Backend{
		writer:     w,
		reader:     r,
		replyTopic: replyTopic,
		logger:     logger,
		pending:    make(map[string]chan reply),
	}
}

// Name identifies the backend in logs and metrics.
func (b *Backend) Name() string { return serviceName }

// Submit publishes req and waits for the matching reply or ctx.
func (b *Backend) Submit(ctx context.Context, req domain.SimulationRequest) (json.RawMessage, error) {
	id := uuid.NewString()
	msg, err := serializeRequest(id, b.replyTopic, req)
	if err != nil {
		return nil, err
	}

	ch := make(chan reply, 1)
	b.mu.Lock()
	b.pending[id] = ch
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}()

	if err := b.writer.WriteMessages(ctx, msg); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: publish simulation request: %w", domain.ErrConnectivity, err)
	}
	b.logger.Debug("simulation request published", "correlation_id", id, "postcode", req.Postcode)

	select {
	case r := <-ch:
		return r.result, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run consumes the reply topic until ctx is done, handing each reply to the
// request waiting for it. Replies nobody waits for are committed and dropped.
func (b *Backend) Run(ctx context.Context) error {
	for {
		msg, err := b.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			b.logger.Error("fetch simulation reply", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		if !b.deliver(msg) {
			b.logger.Debug("dropping unmatched simulation reply", "correlation_id", string(msg.Key), "offset", msg.Offset)
		}
		if err := b.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			b.logger.Warn("commit simulation reply", "offset", msg.Offset, "error", err)
		}
	}
}

// deliver routes a reply to its waiting request.
func (b *Backend) deliver(msg kafkago.Message) bool {
	id := string(msg.Key)
	b.mu.Lock()
	ch, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
	}
	b.mu.Unlock()
	if !ok {
		return false
	}
	result, err := parseReply(msg)
	ch <- reply{result: result, err: err}
	return true
}

// Close stops the producer and consumer.
func (b *Backend) Close() error {
	return errors.Join(b.writer.Close(), b.reader.Close())
}

// serializeRequest marshals a simulation request into a Kafka message keyed
// by its correlation ID.
func serializeRequest(id, replyTopic string, req domain.SimulationRequest) (kafkago.Message, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize simulation request: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(id),
		Value: data,
		Headers: []kafkago.Header{
			{Key: headerReplyTo, Value: []byte(replyTopic)},
			{Key: headerSentAt, Value: []byte(domain.Clock().Now().UTC().Format(time.RFC3339))},
			{Key: headerPostcode, Value: []byte(req.Postcode)},
		},
	}, nil
}

// parseReply reads a reply message. A reply with an error header is a
// service error; an empty value is the simulator's failure sentinel.
func parseReply(msg kafkago.Message) (json.RawMessage, error) {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	if text, ok := headers[headerError]; ok {
		status, _ := strconv.Atoi(headers[headerStatus])
		return nil, &domain.ServiceError{Service: serviceName, Status: status, Message: text}
	}
	if len(msg.Value) == 0 {
		return nil, domain.ErrSimulationFailed
	}
	return json.RawMessage(msg.Value), nil
}
