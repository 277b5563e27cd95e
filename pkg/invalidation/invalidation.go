// Package invalidation pushes cache invalidations between dashboard-api
// replicas over Redis Pub/Sub. Messages are plain strings:
//
//	descriptor:<tenant>  descriptor changed; drop the connection and mappings
//	mappings:<tenant>    tag table changed; drop the mappings
//	all                  drop everything
package invalidation

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"tenantdash/pkg/logger"
	"tenantdash/pkg/tenants"
)

type Kind string

const (
	KindDescriptor Kind = "descriptor"
	KindMappings   Kind = "mappings"
	KindAll        Kind = "all"
)

type Message struct {
	Kind      Kind
	TenantKey string
}

func (m Message) String() string {
	if m.Kind == KindAll {
		return string(KindAll)
	}
	return string(m.Kind) + ":" + m.TenantKey
}

func Descriptor(key string) Message { return Message{Kind: KindDescriptor, TenantKey: tenants.NormalizeKey(key)} }
func Mappings(key string) Message   { return Message{Kind: KindMappings, TenantKey: tenants.NormalizeKey(key)} }
func All() Message                  { return Message{Kind: KindAll} }

func Parse(s string) (Message, error) {
	s = strings.TrimSpace(s)
	if s == string(KindAll) {
		return All(), nil
	}
	kind, key, ok := strings.Cut(s, ":")
	key = tenants.NormalizeKey(key)
	if !ok || key == "" {
		return Message{}, fmt.Errorf("invalidation: malformed message %q", s)
	}
	switch Kind(kind) {
	case KindDescriptor, KindMappings:
		return Message{Kind: Kind(kind), TenantKey: key}, nil
	}
	return Message{}, fmt.Errorf("invalidation: unknown kind %q", kind)
}

// Target is a per-tenant cache; the registry and the tag resolver both are.
type Target interface {
	Invalidate(key string)
	Clear()
}

// Apply runs m against the local caches.
func Apply(m Message, conns, mappings Target) {
	switch m.Kind {
	case KindAll:
		conns.Clear()
		mappings.Clear()
	case KindDescriptor:
		conns.Invalidate(m.TenantKey)
		mappings.Invalidate(m.TenantKey)
	case KindMappings:
		mappings.Invalidate(m.TenantKey)
	}
}

type Publisher struct {
	rdb     *redis.Client
	channel string
}

func NewPublisher(rdb *redis.Client, channel string) *Publisher {
	return &Publisher{rdb: rdb, channel: channel}
}

// Publish returns the number of replicas that received m.
func (p *Publisher) Publish(ctx context.Context, m Message) (int64, error) {
	return p.rdb.Publish(ctx, p.channel, m.String()).Result()
}

type Listener struct {
	rdb      *redis.Client
	channel  string
	conns    Target
	mappings Target
	log      *zap.SugaredLogger

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

func NewListener(rdb *redis.Client, channel string, conns, mappings Target, log *zap.SugaredLogger) *Listener {
	return &Listener{rdb: rdb, channel: channel, conns: conns, mappings: mappings, log: logger.OrNop(log)}
}

// Start subscribes and returns once Redis has confirmed the subscription;
// messages are then applied on a background goroutine until ctx ends or
// Close is called.
func (l *Listener) Start(ctx context.Context) error {
	ps := l.rdb.Subscribe(ctx, l.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("subscribe %s: %w", l.channel, err)
	}
	done := make(chan struct{})
	l.mu.Lock()
	l.pubsub, l.done = ps, done
	l.mu.Unlock()

	go func() {
		defer close(done)
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = ps.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				l.handle(msg.Payload)
			}
		}
	}()
	l.log.Infow("listening for invalidations", "channel", l.channel)
	return nil
}

func (l *Listener) handle(payload string) {
	m, err := Parse(payload)
	if err != nil {
		l.log.Warnw("ignoring invalidation", "err", err)
		return
	}
	Apply(m, l.conns, l.mappings)
	l.log.Infow("invalidation applied", "kind", m.Kind, "tenant", m.TenantKey)
}

// Close unsubscribes and waits for the listener goroutine to exit.
func (l *Listener) Close() error {
	l.mu.Lock()
	ps, done := l.pubsub, l.done
	l.mu.Unlock()
	if ps == nil {
		return nil
	}
	err := ps.Close()
	<-done
	return err
}
