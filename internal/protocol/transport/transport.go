// Package transport owns the single TCP connection between an application and
// its local CQC node.
//
// Messages are framed strictly by the length field of the CQC header: a read
// takes the fixed header, decodes it, then takes exactly that many payload
// bytes. Every failure is mapped onto the protocol error taxonomy; nothing is
// retried once the connection is up.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/danmuck/cqc/internal/protocol"
	"github.com/danmuck/cqc/internal/protocol/hdr"
	"github.com/rs/zerolog/log"
)

// Transport is one connection. One reader and one writer may use it
// concurrently; reads must not overlap other reads, nor writes other writes.
type Transport struct {
	conn net.Conn
	cfg  Config

	closeOnce sync.Once
	closeErr  error
}

// Dial connects to host:port. With MaxDialAttempts above one, failed dials
// are retried with exponential backoff until ctx is done.
func Dial(ctx context.Context, host string, port uint16, cfg Config) (*Transport, error) {
	cfg = cfg.WithDefaults()
	addr := net.JoinHostPort(host, strconv.Itoa(int(port)))
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var attempt int
	for {
		attempt++
		dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			log.Debug().Str("addr", addr).Int("attempt", attempt).Msg("transport connected")
			return New(conn, cfg), nil
		}
		log.Warn().Err(err).Str("addr", addr).Int("attempt", attempt).Msg("transport dial failed")
		if attempt >= cfg.MaxDialAttempts {
			return nil, fmt.Errorf("%w: dial %s: %w", protocol.ErrConnection, addr, err)
		}
		timer := time.NewTimer(cfg.Backoff.Delay(attempt, rng))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: dial %s: %w", protocol.ErrConnection, addr, ctx.Err())
		case <-timer.C:
		}
	}
}

// New wraps an established connection. The Transport takes ownership of conn.
func New(conn net.Conn, cfg Config) *Transport {
	return &Transport{conn: conn, cfg: cfg.WithDefaults()}
}

// SetReadTimeout changes the deadline applied to each subsequent read.
func (t *Transport) SetReadTimeout(d time.Duration) {
	t.cfg.ReadTimeout = d
}

func (t *Transport) ReadTimeout() time.Duration { return t.cfg.ReadTimeout }

func (t *Transport) RemoteAddr() string { return t.conn.RemoteAddr().String() }

func (t *Transport) LocalAddr() string { return t.conn.LocalAddr().String() }

// WriteMessage blocks until every byte of msg is handed to the kernel.
func (t *Transport) WriteMessage(msg []byte) error {
	if err := t.conn.SetWriteDeadline(deadline(t.cfg.WriteTimeout)); err != nil {
		return classify("set write deadline", err)
	}
	n, err := t.conn.Write(msg)
	if err != nil {
		return classify(fmt.Sprintf("write (%d of %d bytes)", n, len(msg)), err)
	}
	if n != len(msg) {
		return fmt.Errorf("%w: short write %d of %d bytes", protocol.ErrConnection, n, len(msg))
	}
	return nil
}

// ReadMessage blocks until one complete message (header and payload) has
// arrived and returns its bytes. Each call gets a fresh ReadTimeout.
func (t *Transport) ReadMessage() ([]byte, error) {
	return t.ReadMessageBefore(t.Deadline())
}

// Deadline is the absolute time a read starting now may block until. The
// zero time means no deadline.
func (t *Transport) Deadline() time.Time { return deadline(t.cfg.ReadTimeout) }

// ReadMessageBefore reads one message that must complete by until. A zero
// until blocks without a deadline.
func (t *Transport) ReadMessageBefore(until time.Time) ([]byte, error) {
	if err := t.conn.SetReadDeadline(until); err != nil {
		return nil, classify("set read deadline", err)
	}
	head := make([]byte, hdr.CqcHdrLen)
	if _, err := io.ReadFull(t.conn, head); err != nil {
		return nil, classify("read header", err)
	}
	h, err := hdr.DecodeCqcHdr(head)
	if err != nil {
		return nil, err
	}
	if h.Length > t.cfg.MaxPayloadBytes {
		return nil, fmt.Errorf("%w: %s payload %d exceeds limit %d", protocol.ErrMalformedHeader, h.Type, h.Length, t.cfg.MaxPayloadBytes)
	}
	msg := make([]byte, hdr.CqcHdrLen+int(h.Length))
	copy(msg, head)
	if h.Length > 0 {
		if _, err := io.ReadFull(t.conn, msg[hdr.CqcHdrLen:]); err != nil {
			return nil, classify(fmt.Sprintf("read %s payload", h.Type), err)
		}
	}
	return msg, nil
}

// Close releases the connection. Only the first call closes.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}

func deadline(d time.Duration) time.Time {
	if d <= 0 {
		return time.Time{}
	}
	return time.Now().Add(d)
}

func classify(op string, err error) error {
	var ne net.Error
	if errors.Is(err, os.ErrDeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%w: %s: %w", protocol.ErrTimeout, op, err)
	}
	return fmt.Errorf("%w: %s: %w", protocol.ErrConnection, op, err)
}
