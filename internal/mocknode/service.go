package mocknode

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/cqc/internal/protocol/hdr"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// arrival is a qubit in flight towards a port.
type arrival struct {
	// qubit keeps its node-wide id across the transfer. Zero for EPR halves,
	// which get a fresh id on receipt.
	qubit   hdr.QubitID
	created uint64
	ent     *hdr.EntInfoHdr
}

// mailbox holds what has been addressed to one port and not yet received.
type mailbox struct {
	qubits chan arrival
	pairs  chan arrival
}

// Service runs the mock node on one or more listeners.
type Service struct {
	cfg Config

	mu        sync.Mutex
	mailboxes map[uint16]*mailbox
	rng       *rand.Rand

	nextQubit atomic.Uint32
	nextPair  atomic.Uint32

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}
	active  atomic.Int64
}

func NewService(cfg Config) *Service {
	return &Service{
		cfg:       cfg.withDefaults(),
		mailboxes: make(map[uint16]*mailbox),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		conns:     make(map[net.Conn]struct{}),
	}
}

// Listen opens every configured address. The caller owns the listeners and
// passes them to Serve.
func (s *Service) Listen() ([]net.Listener, error) {
	lns := make([]net.Listener, 0, len(s.cfg.ListenAddrs))
	for _, addr := range s.cfg.ListenAddrs {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			for _, open := range lns {
				_ = open.Close()
			}
			return nil, fmt.Errorf("mocknode: listen %s: %w", addr, err)
		}
		lns = append(lns, ln)
	}
	return lns, nil
}

// Run listens on the configured addresses and serves until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	lns, err := s.Listen()
	if err != nil {
		return err
	}
	return s.ServeAll(ctx, lns)
}

// ServeAll serves every listener until ctx is done or one of them fails.
func (s *Service) ServeAll(ctx context.Context, lns []net.Listener) error {
	// Every port needs its mailbox before the first SEND can target it.
	for _, ln := range lns {
		if _, err := s.register(ln); err != nil {
			return err
		}
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, ln := range lns {
		ln := ln
		g.Go(func() error { return s.Serve(gctx, ln) })
	}
	return g.Wait()
}

// Serve accepts application connections on ln until ctx is done.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	port, err := s.register(ln)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	var handlers sync.WaitGroup
	defer handlers.Wait()
	defer ln.Close()
	defer cancel()
	go func() {
		<-ctx.Done()
		_ = ln.Close()
		s.closeAllConns()
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("mocknode listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.closeAllConns()
			return err
		}
		s.trackConn(conn)
		if ctx.Err() != nil {
			s.untrackConn(conn)
			_ = conn.Close()
			continue
		}
		handlers.Add(1)
		go func() {
			defer handlers.Done()
			s.handleConn(ctx, port, conn)
		}()
	}
}

// register creates the mailbox for ln's port. It is idempotent.
func (s *Service) register(ln net.Listener) (uint16, error) {
	ap, err := netip.ParseAddrPort(ln.Addr().String())
	if err != nil {
		return 0, fmt.Errorf("mocknode: listener address %s: %w", ln.Addr(), err)
	}
	port := ap.Port()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.mailboxes[port]; !ok {
		s.mailboxes[port] = &mailbox{
			qubits: make(chan arrival, s.cfg.MailboxSize),
			pairs:  make(chan arrival, s.cfg.MailboxSize),
		}
	}
	return port, nil
}

func (s *Service) mailbox(port uint16) (*mailbox, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mb, ok := s.mailboxes[port]
	return mb, ok
}

// ActiveConns reports the number of open application connections.
func (s *Service) ActiveConns() int64 { return s.active.Load() }

func (s *Service) allocQubit() hdr.QubitID {
	for {
		id := hdr.QubitID(s.nextQubit.Add(1))
		if id != 0 {
			return id
		}
	}
}

func (s *Service) coin() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint8(s.rng.Intn(2))
}

func (s *Service) trackConn(conn net.Conn) {
	s.connsMu.Lock()
	s.conns[conn] = struct{}{}
	s.connsMu.Unlock()
}

func (s *Service) untrackConn(conn net.Conn) {
	s.connsMu.Lock()
	delete(s.conns, conn)
	s.connsMu.Unlock()
}

func (s *Service) closeAllConns() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}

func now() uint64 { return uint64(time.Now().Unix()) }
