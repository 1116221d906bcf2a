package integration

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/ir-server/ir-server/internal/config"
	"github.com/ir-server/ir-server/pkg/irproto"
)

// eventMessage is the JSON shape published for every broadcast event.
type eventMessage struct {
	Remote  string    `json:"remote"`
	Button  string    `json:"button"`
	Code    string    `json:"code"`
	Repeat  uint32    `json:"repeat"`
	Release bool      `json:"release"`
	Time    time.Time `json:"time"`
}

// NATSPublisher forwards decoded events to a NATS subject. It satisfies
// the server's event sink interface.
type NATSPublisher struct {
	nc      *nats.Conn
	subject string
}

// NewNATSPublisher connects to the broker and returns a publisher.
func NewNATSPublisher(cfg config.NATSConfig) (*NATSPublisher, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectInterval),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	log.Info().Str("url", cfg.URL).Str("subject", cfg.Subject).Msg("NATS publisher connected")
	return &NATSPublisher{nc: nc, subject: cfg.Subject}, nil
}

// Publish sends one event. Broker errors are logged, never propagated:
// a slow or absent broker must not stall the decode path.
func (p *NATSPublisher) Publish(ev irproto.Event) {
	msg := eventMessage{
		Remote:  ev.Remote,
		Button:  ev.Button,
		Code:    fmt.Sprintf("%016x", ev.Code),
		Repeat:  ev.Repeat,
		Release: ev.Release,
		Time:    time.Now().UTC(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal event")
		return
	}

	if err := p.nc.Publish(p.subject, data); err != nil {
		log.Error().Err(err).Str("subject", p.subject).Msg("Failed to publish event")
	}
}

// Close flushes pending messages and drops the connection.
func (p *NATSPublisher) Close() {
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
	}
}
