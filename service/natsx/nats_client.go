package natsx

import (
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"tripchat/logger"
)

type Config struct {
	Servers       []string
	Name          string
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// Bus is a thin core-NATS client: fire-and-forget publish plus push
// subscriptions. Room events need no persistence; a client that missed a
// broadcast catches up over REST.
type Bus struct {
	nc *nats.Conn

	mu   sync.Mutex
	subs []*nats.Subscription
}

func New(cfg Config) (*Bus, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("nats servers missing")
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 500 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warnf("[natsx] disconnected err=%v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Infof("[natsx] reconnected url=%s", nc.ConnectedUrl())
		}),
	}
	nc, err := nats.Connect(strings.Join(cfg.Servers, ","), opts...)
	if err != nil {
		return nil, errors.WithMessage(err, "nats connect")
	}
	return &Bus{nc: nc}, nil
}

func (b *Bus) Publish(subject string, data []byte) error {
	msg := nats.NewMsg(subject)
	msg.Data = data
	if err := b.nc.PublishMsg(msg); err != nil {
		return errors.WithMessage(err, "publish "+subject)
	}
	return nil
}

func (b *Bus) Subscribe(subject string, h func(subject string, data []byte)) error {
	sub, err := b.nc.Subscribe(subject, func(m *nats.Msg) {
		h(m.Subject, m.Data)
	})
	if err != nil {
		return errors.WithMessage(err, "subscribe "+subject)
	}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return nil
}

func (b *Bus) Close() {
	b.mu.Lock()
	for _, sub := range b.subs {
		_ = sub.Drain()
	}
	b.subs = nil
	b.mu.Unlock()
	_ = b.nc.Drain()
	b.nc.Close()
}
