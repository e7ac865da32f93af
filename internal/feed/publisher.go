package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/roach88/ledgerd/internal/ir"
)

// DefaultMaxLen bounds the stream when no limit is configured.
const DefaultMaxLen = 100_000

// Publisher writes committed transitions to Redis. It implements
// engine.Observer.
//
// Thread-safety: Publisher is safe for concurrent use, but the engine
// delivers from a single goroutine so events arrive in seq order.
type Publisher struct {
	rdb       *redis.Client
	namespace string
	maxLen    int64
	logger    *slog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithMaxLen caps the stream length. Older entries are trimmed.
// Zero disables trimming.
func WithMaxLen(n int64) Option {
	return func(p *Publisher) {
		p.maxLen = n
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = l
	}
}

// NewPublisher connects a publisher. namespace separates ledgers sharing
// one Redis server and must not be empty.
func NewPublisher(redisOpts *redis.Options, namespace string, opts ...Option) (*Publisher, error) {
	if namespace == "" {
		return nil, fmt.Errorf("feed: namespace cannot be empty")
	}
	p := &Publisher{
		rdb:       redis.NewClient(redisOpts),
		namespace: namespace,
		maxLen:    DefaultMaxLen,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Close closes the Redis connection.
func (p *Publisher) Close() error {
	return p.rdb.Close()
}

// Ping verifies Redis connectivity.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

// Name identifies the publisher in engine logs.
func (p *Publisher) Name() string {
	return "redis-feed"
}

// Observe publishes t. The stream entry is written first; a transition
// whose entry already exists is not published again.
func (p *Publisher) Observe(ctx context.Context, t ir.Transition) error {
	event := NewEvent(t)
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %d: %w", t.Seq, err)
	}

	args := &redis.XAddArgs{
		Stream: StreamKey(p.namespace),
		ID:     entryID(t.Seq),
		Values: map[string]any{
			"seq":   t.Seq,
			"id":    t.ID,
			"event": data,
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
	}
	if err := p.rdb.XAdd(ctx, args).Err(); err != nil {
		if isDuplicateEntry(err) {
			p.logger.Debug("feed entry exists", "seq", t.Seq)
			return nil
		}
		return fmt.Errorf("append seq %d to stream: %w", t.Seq, err)
	}

	for _, party := range audience(t) {
		view, err := json.Marshal(viewFor(event, t, party))
		if err != nil {
			return fmt.Errorf("marshal view of seq %d: %w", t.Seq, err)
		}
		channel := PartyChannel(p.namespace, string(party))
		if err := p.rdb.Publish(ctx, channel, view).Err(); err != nil {
			return fmt.Errorf("publish seq %d to %s: %w", t.Seq, party, err)
		}
	}
	return nil
}

// Read returns up to count events after seq, oldest first. count <= 0
// reads everything.
func (p *Publisher) Read(ctx context.Context, afterSeq int64, count int64) ([]Event, error) {
	stream := StreamKey(p.namespace)
	var (
		msgs []redis.XMessage
		err  error
	)
	if count > 0 {
		msgs, err = p.rdb.XRangeN(ctx, stream, afterID(afterSeq), "+", count).Result()
	} else {
		msgs, err = p.rdb.XRange(ctx, stream, afterID(afterSeq), "+").Result()
	}
	if err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}

	events := make([]Event, 0, len(msgs))
	for _, m := range msgs {
		e, err := decodeMessage(m)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

// LastSeq returns the newest seq in the stream, or 0 when it is empty.
func (p *Publisher) LastSeq(ctx context.Context) (int64, error) {
	msgs, err := p.rdb.XRevRangeN(ctx, StreamKey(p.namespace), "+", "-", 1).Result()
	if err != nil {
		return 0, fmt.Errorf("read stream tail: %w", err)
	}
	if len(msgs) == 0 {
		return 0, nil
	}
	return seqOf(msgs[0].ID)
}

// Subscribe listens to party's channel. The caller must Close the returned
// subscription.
func (p *Publisher) Subscribe(ctx context.Context, party ir.Party) (*redis.PubSub, error) {
	sub := p.rdb.Subscribe(ctx, PartyChannel(p.namespace, string(party)))
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", party, err)
	}
	return sub, nil
}

// DecodeView parses a message received on a party channel.
func DecodeView(payload string) (PartyView, error) {
	var v PartyView
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		return PartyView{}, fmt.Errorf("decode view: %w", err)
	}
	return v, nil
}

func decodeMessage(m redis.XMessage) (Event, error) {
	raw, ok := m.Values["event"].(string)
	if !ok {
		return Event{}, fmt.Errorf("stream entry %s has no event", m.ID)
	}
	var e Event
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return Event{}, fmt.Errorf("decode stream entry %s: %w", m.ID, err)
	}
	return e, nil
}

// isDuplicateEntry reports the XADD error for an id at or below the stream top.
func isDuplicateEntry(err error) bool {
	var rerr redis.Error
	return errors.As(err, &rerr) && strings.Contains(rerr.Error(), "equal or smaller")
}
