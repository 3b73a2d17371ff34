package chat

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/northlane/livechat-server/internal/metrics"
	"github.com/northlane/livechat-server/internal/model"
)

type Target string

const (
	TargetAdmins           Target = "admins"
	TargetSessionAndAdmins Target = "session_and_admins"
)

// Delivery is one fan-out of an encoded frame. It is what crosses instances
// when a Redis relay is configured.
type Delivery struct {
	Target        Target          `json:"target"`
	SessionID     string          `json:"sessionId,omitempty"`
	ExcludeConnID string          `json:"excludeConnId,omitempty"`
	Type          string          `json:"type"`
	Frame         json.RawMessage `json:"frame"`
}

// Relay moves deliveries to every instance's dispatcher, this one included.
type Relay interface {
	Publish(ctx context.Context, d Delivery) error
}

// Deliverer fans a delivery out to local connections.
type Deliverer interface {
	Deliver(d Delivery)
}

// LocalRelay delivers in-process. Used when Redis is not configured.
type LocalRelay struct {
	target Deliverer
}

func NewLocalRelay(target Deliverer) *LocalRelay {
	return &LocalRelay{target: target}
}

func (r *LocalRelay) Publish(_ context.Context, d Delivery) error {
	r.target.Deliver(d)
	return nil
}

// Dispatcher computes recipients from the registry and enqueues frames
// without blocking. A connection that cannot accept a frame is removed from
// the registry and closed; the caller is never told.
type Dispatcher struct {
	registry *Registry
	relay    Relay
}

func NewDispatcher(registry *Registry) *Dispatcher {
	d := &Dispatcher{registry: registry}
	d.relay = NewLocalRelay(d)
	return d
}

// SetRelay replaces the in-process relay. Call before serving connections.
func (d *Dispatcher) SetRelay(relay Relay) {
	d.relay = relay
}

// ToConn sends a direct reply to one connection.
func (d *Dispatcher) ToConn(conn *Conn, ev OutboundEvent) {
	frame, err := Encode(ev)
	if err != nil {
		log.Error().Err(err).Str("connId", conn.ID).Msg("failed to encode frame")
		return
	}
	d.send(conn, frame)
}

// Publish fans ev out to target. If the relay fails the delivery still
// reaches this instance's connections.
func (d *Dispatcher) Publish(ctx context.Context, target Target, sessionID, excludeConnID string, ev OutboundEvent) {
	frame, err := Encode(ev)
	if err != nil {
		log.Error().Err(err).Str("type", ev.OutboundType()).Msg("failed to encode frame")
		return
	}

	delivery := Delivery{
		Target:        target,
		SessionID:     sessionID,
		ExcludeConnID: excludeConnID,
		Type:          ev.OutboundType(),
		Frame:         frame,
	}

	if err := d.relay.Publish(ctx, delivery); err != nil {
		metrics.RelayErrors.WithLabelValues("publish").Inc()
		log.Warn().
			Err(err).
			Str("sessionId", sessionID).
			Str("type", delivery.Type).
			Msg("relay publish failed, delivering locally")
		d.Deliver(delivery)
	}
}

// SessionClosed broadcasts session_closed to the bound visitor and every
// admin.
func (d *Dispatcher) SessionClosed(ctx context.Context, session *model.ChatSession) {
	d.Publish(ctx, TargetSessionAndAdmins, session.ID, "", SessionClosed{Session: session})
}

func (d *Dispatcher) Deliver(delivery Delivery) {
	for _, conn := range d.recipients(delivery) {
		if conn.ID == delivery.ExcludeConnID {
			continue
		}
		d.send(conn, delivery.Frame)
	}
}

func (d *Dispatcher) recipients(delivery Delivery) []*Conn {
	var conns []*Conn

	if delivery.Target == TargetSessionAndAdmins {
		if conn, ok := d.registry.LookupBySession(delivery.SessionID); ok {
			conns = append(conns, conn)
		}
	}
	conns = append(conns, d.registry.Admins()...)
	return conns
}

func (d *Dispatcher) send(conn *Conn, frame []byte) {
	if conn.Enqueue(frame) {
		return
	}

	metrics.SlowConsumerEvictions.Inc()
	log.Warn().
		Str("connId", conn.ID).
		Str("role", string(conn.Role)).
		Msg("send queue full or closed, dropping connection")

	d.registry.Unregister(conn)
	conn.Close()
}
