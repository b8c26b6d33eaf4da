package transport

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/danmuck/cqc/internal/protocol"
	"github.com/danmuck/cqc/internal/protocol/hdr"
	"github.com/danmuck/cqc/internal/testutil/testlog"
)

func pipe(t *testing.T, cfg Config) (*Transport, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	tr := New(client, cfg)
	t.Cleanup(func() {
		_ = tr.Close()
		_ = server.Close()
	})
	return tr, server
}

func TestReadMessageFramedByLength(t *testing.T) {
	testlog.Start(t)
	tr, server := pipe(t, DefaultConfig())

	first := hdr.Notification{Hdr: hdr.CqcHdr{Type: hdr.TpNewOK, AppID: 10}, Qubit: 7}.Encode()
	second := hdr.Notification{Hdr: hdr.CqcHdr{Type: hdr.TpDone, AppID: 10}}.Encode()
	go func() {
		// Both messages in one write: the reader must split them on the length field.
		_, _ = server.Write(append(append([]byte{}, first...), second...))
	}()

	got, err := tr.ReadMessage()
	if err != nil {
		t.Fatalf("read first: %v", err)
	}
	if !bytes.Equal(got, first) {
		t.Fatalf("first mismatch: got=%v want=%v", got, first)
	}
	got, err = tr.ReadMessage()
	if err != nil {
		t.Fatalf("read second: %v", err)
	}
	if !bytes.Equal(got, second) {
		t.Fatalf("second mismatch: got=%v want=%v", got, second)
	}
}

func TestWriteMessageDeliversAllBytes(t *testing.T) {
	testlog.Start(t)
	tr, server := pipe(t, DefaultConfig())

	msg := hdr.CqcHdr{Version: hdr.Version, Type: hdr.TpHello, AppID: 10}.Encode()
	done := make(chan []byte, 1)
	go func() {
		buf := make([]byte, len(msg))
		_, _ = server.Read(buf)
		done <- buf
	}()
	if err := tr.WriteMessage(msg); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := <-done; !bytes.Equal(got, msg) {
		t.Fatalf("peer got %v want %v", got, msg)
	}
}

func TestReadMessageTimeout(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	cfg.ReadTimeout = 30 * time.Millisecond
	tr, _ := pipe(t, cfg)

	start := time.Now()
	_, err := tr.ReadMessage()
	if !errors.Is(err, protocol.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if errors.Is(err, protocol.ErrConnection) {
		t.Fatalf("timeout must not also match ErrConnection: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("timeout took too long: %v", elapsed)
	}
}

func TestReadMessageBeforeKeepsAbsoluteDeadline(t *testing.T) {
	testlog.Start(t)
	tr, server := pipe(t, DefaultConfig())
	msg := hdr.CqcHdr{Version: hdr.Version, Type: hdr.TpHello, AppID: 1}.Encode()
	go func() {
		for {
			time.Sleep(10 * time.Millisecond)
			if _, err := server.Write(msg); err != nil {
				return
			}
		}
	}()

	until := time.Now().Add(60 * time.Millisecond)
	var err error
	for i := 0; i < 100 && err == nil; i++ {
		_, err = tr.ReadMessageBefore(until)
	}
	if !errors.Is(err, protocol.ErrTimeout) {
		t.Fatalf("expected ErrTimeout once the shared deadline passed, got %v", err)
	}
}

func TestDeadlineZeroWithoutReadTimeout(t *testing.T) {
	tr, _ := pipe(t, DefaultConfig())
	if !tr.Deadline().IsZero() {
		t.Fatalf("expected no deadline, got %v", tr.Deadline())
	}
	tr.SetReadTimeout(time.Second)
	if tr.Deadline().IsZero() {
		t.Fatalf("expected a deadline after SetReadTimeout")
	}
}

func TestReadMessagePeerClosed(t *testing.T) {
	testlog.Start(t)
	tr, server := pipe(t, DefaultConfig())

	go func() {
		// Half a header, then hang up.
		_, _ = server.Write([]byte{hdr.Version, byte(hdr.TpDone), 0, 10})
		_ = server.Close()
	}()
	_, err := tr.ReadMessage()
	if !errors.Is(err, protocol.ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
}

func TestReadMessageRejectsBadHeader(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	cfg.MaxPayloadBytes = 16
	tr, server := pipe(t, cfg)

	go func() {
		_, _ = server.Write(hdr.CqcHdr{Version: hdr.Version, Type: hdr.TpCommand, AppID: 10, Length: 1 << 20}.Encode())
	}()
	if _, err := tr.ReadMessage(); !errors.Is(err, protocol.ErrMalformedHeader) {
		t.Fatalf("oversize: expected ErrMalformedHeader, got %v", err)
	}

	tr2, server2 := pipe(t, cfg)
	go func() {
		_, _ = server2.Write([]byte{hdr.Version, 77, 0, 10, 0, 0, 0, 0})
	}()
	if _, err := tr2.ReadMessage(); !errors.Is(err, protocol.ErrMalformedHeader) {
		t.Fatalf("unknown type: expected ErrMalformedHeader, got %v", err)
	}
}

func TestWriteAfterCloseIsConnectionError(t *testing.T) {
	testlog.Start(t)
	tr, _ := pipe(t, DefaultConfig())
	if err := tr.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	err := tr.WriteMessage([]byte{1, 2, 3})
	if !errors.Is(err, protocol.ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
}

func TestDialConnectsAndFails(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	accepted := make(chan struct{})
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			_ = conn.Close()
		}
		close(accepted)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	tr, err := Dial(ctx, "127.0.0.1", uint16(port), DefaultConfig())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	<-accepted
	_ = tr.Close()
	_ = ln.Close()

	cfg := DefaultConfig()
	cfg.MaxDialAttempts = 2
	cfg.Backoff = BackoffConfig{InitialDelay: 5 * time.Millisecond, Multiplier: 1}
	_, err = Dial(ctx, "127.0.0.1", uint16(port), cfg)
	if !errors.Is(err, protocol.ErrConnection) {
		t.Fatalf("expected ErrConnection dialing closed port %d, got %v", port, err)
	}
}

func TestBackoffDelayDeterministicNoJitter(t *testing.T) {
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
	}
	if got := cfg.Delay(1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := cfg.Delay(2, nil); got != 500*time.Millisecond {
		t.Fatalf("attempt2 got=%v", got)
	}
	if got := cfg.Delay(3, nil); got != time.Second {
		t.Fatalf("attempt3 got=%v", got)
	}
	if got := cfg.Delay(6, nil); got != 5*time.Second {
		t.Fatalf("attempt6 got=%v", got)
	}
	cfg.Jitter = true
	if got := cfg.Delay(2, nil); got != 250*time.Millisecond {
		t.Fatalf("jitter midpoint got=%v", got)
	}
}
