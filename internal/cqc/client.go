package cqc

import (
	"context"
	"fmt"
	"time"

	"github.com/danmuck/cqc/internal/observability"
	"github.com/danmuck/cqc/internal/protocol"
	"github.com/danmuck/cqc/internal/protocol/builder"
	"github.com/danmuck/cqc/internal/protocol/hdr"
	"github.com/danmuck/cqc/internal/protocol/transport"
	"github.com/rs/zerolog/log"
)

const metricsRole = "client"

// Client is one application's session with its local node.
type Client struct {
	appID   uint16
	builder builder.Builder
	tr      *transport.Transport

	// broken holds the first fatal error; once set every call fails.
	broken error
}

// New connects to the node at host:port on behalf of appID.
func New(appID uint16, host string, port uint16, opts ...Option) (*Client, error) {
	cfg := Config{AppID: appID, Host: host, Port: port, Transport: transport.DefaultConfig()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return Dial(context.Background(), cfg)
}

func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tr, err := transport.Dial(ctx, cfg.Host, cfg.Port, cfg.Transport)
	if err != nil {
		return nil, err
	}
	log.Info().Uint16("app_id", cfg.AppID).Str("node", tr.RemoteAddr()).Msg("cqc client connected")
	return NewWithTransport(cfg.AppID, tr), nil
}

// NewWithTransport builds a client over an already established transport.
func NewWithTransport(appID uint16, tr *transport.Transport) *Client {
	return &Client{appID: appID, builder: builder.New(appID), tr: tr}
}

func (c *Client) AppID() uint16 { return c.appID }

// Builder returns the request builder bound to this client's app id.
func (c *Client) Builder() builder.Builder { return c.builder }

// SetReadTimeout bounds subsequent waits. Zero waits forever.
func (c *Client) SetReadTimeout(d time.Duration) { c.tr.SetReadTimeout(d) }

// Broken reports the error that made the client unusable, if any.
func (c *Client) Broken() error { return c.broken }

func (c *Client) Close() error {
	if c.broken == nil {
		c.broken = fmt.Errorf("%w: client closed", protocol.ErrConnection)
	}
	return c.tr.Close()
}

// EncodeAndSend writes req as is. It does not wait for any reply.
func (c *Client) EncodeAndSend(req builder.Request) error {
	if err := c.usable(); err != nil {
		return err
	}
	if req.AppID != c.appID {
		return fmt.Errorf("%w: request for app %d on client of app %d", protocol.ErrInvalidParameters, req.AppID, c.appID)
	}
	if err := c.tr.WriteMessage(req.Encode()); err != nil {
		return c.fatal(err)
	}
	observability.RecordMessage(metricsRole, observability.DirectionSent, req.Type)

	ev := log.Debug().Uint16("app_id", c.appID).Str("type", req.Type.String())
	if req.Cmd != nil {
		ev = ev.Str("instr", req.Cmd.Instr.String()).Uint16("qubit", uint16(req.Cmd.Qubit)).Str("opts", req.Cmd.Options.String())
	}
	ev.Msg("cqc request sent")
	return nil
}

func (c *Client) readNotification(until time.Time) (hdr.Notification, error) {
	msg, err := c.tr.ReadMessageBefore(until)
	if err != nil {
		// A failed read leaves the stream at an unknown offset.
		return hdr.Notification{}, c.fatal(err)
	}
	n, err := hdr.DecodeNotification(msg)
	if err != nil {
		return hdr.Notification{}, err
	}
	observability.RecordMessage(metricsRole, observability.DirectionReceived, n.Hdr.Type)
	log.Debug().
		Uint16("app_id", n.Hdr.AppID).
		Str("type", n.Hdr.Type.String()).
		Uint16("qubit", uint16(n.Qubit)).
		Msg("cqc notification received")
	return n, nil
}

// await feeds notifications to op until it reaches a terminal state. The read
// timeout bounds the whole wait, not each notification, so skipped HELLOs
// cannot extend it.
func (c *Client) await(op *pendingOp) ([]hdr.Notification, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}
	start := time.Now()
	until := c.tr.Deadline()
	state := op.sent()
	for !state.Terminal() {
		n, err := c.readNotification(until)
		if err != nil {
			state = op.abort(fmt.Errorf("cqc: %s: %w", op.name, err))
			break
		}
		state = op.observe(n)
	}
	observability.ObserveWait(op.name, time.Since(start), op.err)
	if op.err != nil {
		log.Warn().Err(op.err).Uint16("app_id", c.appID).Str("op", op.name).Msg("cqc operation failed")
	}
	return op.replies, op.err
}

func (c *Client) roundTrip(name string, req builder.Request, ack hdr.MsgType, acks int) ([]hdr.Notification, error) {
	if err := c.EncodeAndSend(req); err != nil {
		return nil, fmt.Errorf("cqc: %s: %w", name, err)
	}
	return c.await(newRoundTrip(name, c.appID, ack, acks, req.Notify()))
}

func (c *Client) usable() error {
	if c.broken != nil {
		return fmt.Errorf("%w: client unusable: %v", protocol.ErrConnection, c.broken)
	}
	return nil
}

func (c *Client) fatal(err error) error {
	if c.broken == nil {
		c.broken = err
		log.Error().Err(err).Uint16("app_id", c.appID).Msg("cqc client connection lost")
	}
	return err
}
