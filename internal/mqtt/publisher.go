package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/huraaa/Agent-one/internal/config"
	"github.com/huraaa/Agent-one/internal/tracing"
)

const (
	queueSize      = 256
	publishTimeout = 2 * time.Second
)

// conn is the part of autopaho.ConnectionManager used here.
type conn interface {
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
	AwaitConnection(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

// Publisher is a tracing.Sink backed by a broker connection.
type Publisher struct {
	cfg    config.MQTTConfig
	base   string
	logger *slog.Logger

	cm      conn
	queue   chan tracing.Event
	drained chan struct{}

	mu      sync.RWMutex // guards closed and sends on queue
	closed  bool
	dropped atomic.Int64
}

var _ tracing.Sink = (*Publisher)(nil)

// New returns an unconnected Publisher. Events emitted before Start are
// ignored.
func New(cfg config.MQTTConfig, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		cfg:    cfg,
		base:   strings.TrimRight(cfg.Topic, "/"),
		logger: logger.With("component", "mqtt"),
	}
}

// Start dials the broker and waits up to wait for the first connection.
// Not connecting in time is only logged; autopaho keeps trying.
func (p *Publisher) Start(ctx context.Context, wait time.Duration) error {
	broker, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker url: %w", err)
	}
	clientID := p.cfg.ClientID
	if clientID == "" {
		clientID = "agentone-" + tracing.NewRequestID()
	}

	cfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{broker},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   p.base + "/availability",
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("mqtt connected", "broker", broker.Host)
			p.availability(ctx, cm, "online")
		},
		OnConnectError: func(err error) {
			p.logger.Warn("mqtt connect failed", "error", err)
		},
		ClientConfig: paho.ClientConfig{ClientID: clientID},
	}
	if broker.Scheme == "mqtts" || broker.Scheme == "ssl" {
		cfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, cfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.attach(cm)

	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	if err := cm.AwaitConnection(waitCtx); err != nil {
		p.logger.Warn("mqtt not connected yet, retrying in background", "error", err)
	}
	return nil
}

// attach starts the publishing goroutine on cm.
func (p *Publisher) attach(cm conn) {
	p.cm = cm
	p.queue = make(chan tracing.Event, queueSize)
	p.drained = make(chan struct{})
	go func() {
		defer close(p.drained)
		for ev := range p.queue {
			p.publish(ev)
		}
	}()
}

// Emit queues ev without blocking.
func (p *Publisher) Emit(_ context.Context, ev tracing.Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.queue == nil || p.closed {
		return
	}
	select {
	case p.queue <- ev:
	default:
		p.dropped.Add(1)
	}
}

// Stop flushes queued events, marks the agent offline and disconnects.
func (p *Publisher) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.queue == nil || p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	select {
	case <-p.drained:
	case <-ctx.Done():
		p.logger.Warn("mqtt queue not flushed", "error", ctx.Err())
	}
	if n := p.dropped.Load(); n > 0 {
		p.logger.Warn("mqtt events dropped", "count", n)
	}
	p.availability(ctx, p.cm, "offline")
	return p.cm.Disconnect(ctx)
}

func (p *Publisher) publish(ev tracing.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Warn("mqtt encode event", "event", ev.Name, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if _, err := p.cm.Publish(ctx, &paho.Publish{Topic: p.topic(ev), Payload: payload}); err != nil {
		p.logger.Debug("mqtt publish failed", "event", ev.Name, "error", err)
	}
}

func (p *Publisher) availability(ctx context.Context, cm conn, state string) {
	_, err := cm.Publish(ctx, &paho.Publish{
		Topic:   p.base + "/availability",
		Payload: []byte(state),
		QoS:     1,
		Retain:  true,
	})
	if err != nil {
		p.logger.Warn("mqtt availability", "state", state, "error", err)
	}
}

var topicSafe = strings.NewReplacer(".", "/", "#", "_", "+", "_", "/", "_")

func (p *Publisher) topic(ev tracing.Event) string {
	name := ev.Span
	if name == "" {
		name = ev.Name
	}
	path := topicSafe.Replace(name)
	if ev.RequestID != "" {
		return p.base + "/run/" + topicSafe.Replace(ev.RequestID) + "/" + path
	}
	return p.base + "/event/" + path
}
