package mocknode

import (
	"context"
	"encoding/binary"
	"errors"
	"net"
	"net/netip"

	"github.com/danmuck/cqc/internal/observability"
	"github.com/danmuck/cqc/internal/protocol"
	"github.com/danmuck/cqc/internal/protocol/builder"
	"github.com/danmuck/cqc/internal/protocol/hdr"
	"github.com/danmuck/cqc/internal/protocol/transport"
	"github.com/rs/zerolog/log"
)

const metricsRole = "node"

// session is the node side of one application connection.
type session struct {
	svc    *Service
	port   uint16
	local  uint32
	qubits map[hdr.QubitID]uint64
}

func (s *Service) handleConn(ctx context.Context, port uint16, conn net.Conn) {
	defer s.untrackConn(conn)
	tr := transport.New(conn, s.cfg.Transport)
	defer tr.Close()

	remote := conn.RemoteAddr().String()
	active := s.active.Add(1)
	log.Info().Str("remote", remote).Uint16("port", port).Int64("active", active).Msg("mocknode client connected")
	defer func() {
		remaining := s.active.Add(-1)
		log.Info().Str("remote", remote).Uint16("port", port).Int64("active", remaining).Msg("mocknode client disconnected")
	}()

	// connCtx ends when the peer hangs up, which releases a parked receive.
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	requests := make(chan []byte)
	reader := make(chan struct{})
	go func() {
		defer close(reader)
		defer cancel()
		defer close(requests)
		for {
			msg, err := tr.ReadMessage()
			if err != nil {
				if errors.Is(err, protocol.ErrMalformedHeader) {
					log.Warn().Err(err).Str("remote", remote).Msg("mocknode dropping connection")
				}
				return
			}
			select {
			case requests <- msg:
			case <-connCtx.Done():
				return
			}
		}
	}()
	defer func() {
		cancel()
		_ = tr.Close()
		<-reader
	}()

	sess := &session{
		svc:    s,
		port:   port,
		local:  ipv4(conn.LocalAddr()),
		qubits: make(map[hdr.QubitID]uint64),
	}
	for msg := range requests {
		replies, err := sess.handle(connCtx, msg)
		if err != nil {
			return
		}
		for _, r := range replies {
			if err := tr.WriteMessage(r.Encode()); err != nil {
				log.Warn().Err(err).Str("remote", remote).Msg("mocknode write failed")
				return
			}
			observability.RecordMessage(metricsRole, observability.DirectionSent, r.Hdr.Type)
		}
	}
}

// handle answers one request. It only fails when ctx ends while a receive
// is parked.
func (s *session) handle(ctx context.Context, msg []byte) ([]hdr.Notification, error) {
	req, err := builder.Parse(msg)
	if err != nil {
		h, _ := hdr.DecodeCqcHdr(msg)
		observability.RecordMessage(metricsRole, observability.DirectionReceived, h.Type)
		log.Warn().Err(err).Uint16("app_id", h.AppID).Msg("mocknode rejecting request")
		return reply(h.AppID, hdr.ErrUnsupp), nil
	}
	observability.RecordMessage(metricsRole, observability.DirectionReceived, req.Type)
	log.Debug().Uint16("port", s.port).Str("request", req.String()).Msg("mocknode request")

	switch req.Type {
	case hdr.TpHello:
		return reply(req.AppID, hdr.TpHello), nil
	case hdr.TpGetTime:
		created, ok := s.qubits[req.Cmd.Qubit]
		if !ok {
			return reply(req.AppID, hdr.ErrUnknown), nil
		}
		return []hdr.Notification{{Hdr: hdr.CqcHdr{Type: hdr.TpInfTime, AppID: req.AppID}, Timestamp: created}}, nil
	case hdr.TpFactory:
		return s.factory(ctx, req)
	case hdr.TpCommand:
		out, err := s.command(ctx, req)
		if err != nil || failed(out) {
			return out, err
		}
		if req.Notify() {
			out = append(out, reply(req.AppID, hdr.TpDone)...)
		}
		return out, nil
	default:
		return reply(req.AppID, hdr.ErrUnsupp), nil
	}
}

// factory repeats the carried command and confirms the batch with one DONE.
func (s *session) factory(ctx context.Context, req builder.Request) ([]hdr.Notification, error) {
	var out []hdr.Notification
	for i := 0; i < int(req.Factory.Iterations); i++ {
		step, err := s.command(ctx, req)
		if err != nil {
			return nil, err
		}
		out = append(out, step...)
		if failed(step) {
			return out, nil
		}
	}
	if req.Notify() {
		out = append(out, reply(req.AppID, hdr.TpDone)...)
	}
	return out, nil
}

// command executes one command header and returns its replies without the
// trailing DONE.
func (s *session) command(ctx context.Context, req builder.Request) ([]hdr.Notification, error) {
	app := req.AppID
	cmd := *req.Cmd

	switch cmd.Instr {
	case hdr.CmdNew:
		id, ok := s.create(now())
		if !ok {
			return reply(app, hdr.ErrNoQubit), nil
		}
		return []hdr.Notification{qubitReply(app, hdr.TpNewOK, id)}, nil

	case hdr.CmdAllocate:
		count := int(cmd.Qubit)
		if limit := s.svc.cfg.MaxQubits; limit > 0 && len(s.qubits)+count > limit {
			return reply(app, hdr.ErrNoQubit), nil
		}
		out := make([]hdr.Notification, 0, count)
		for i := 0; i < count; i++ {
			id, _ := s.create(now())
			out = append(out, qubitReply(app, hdr.TpNewOK, id))
		}
		return out, nil

	case hdr.CmdMeasure, hdr.CmdMeasureInplace:
		if !s.owns(cmd.Qubit) {
			return reply(app, hdr.ErrUnknown), nil
		}
		if cmd.Instr == hdr.CmdMeasure {
			delete(s.qubits, cmd.Qubit)
		}
		return []hdr.Notification{{Hdr: hdr.CqcHdr{Type: hdr.TpMeasOut, AppID: app}, Outcome: s.svc.coin()}}, nil

	case hdr.CmdI, hdr.CmdX, hdr.CmdY, hdr.CmdZ, hdr.CmdT, hdr.CmdH, hdr.CmdK,
		hdr.CmdRotX, hdr.CmdRotY, hdr.CmdRotZ, hdr.CmdReset:
		if !s.owns(cmd.Qubit) {
			return reply(app, hdr.ErrUnknown), nil
		}
		return nil, nil

	case hdr.CmdCNOT, hdr.CmdCPhase:
		if !s.owns(cmd.Qubit) || !s.owns(req.Target.Qubit) {
			return reply(app, hdr.ErrUnknown), nil
		}
		return nil, nil

	case hdr.CmdRelease:
		if !s.owns(cmd.Qubit) {
			return reply(app, hdr.ErrUnknown), nil
		}
		delete(s.qubits, cmd.Qubit)
		return nil, nil

	case hdr.CmdSend:
		created, ok := s.qubits[cmd.Qubit]
		if !ok {
			return reply(app, hdr.ErrUnknown), nil
		}
		if t := s.deliver(*req.Remote, func(mb *mailbox) chan arrival { return mb.qubits }, arrival{qubit: cmd.Qubit, created: created}); t != hdr.TpDone {
			return reply(app, t), nil
		}
		delete(s.qubits, cmd.Qubit)
		return nil, nil

	case hdr.CmdRecv:
		a, err := s.await(ctx, func(mb *mailbox) chan arrival { return mb.qubits })
		if err != nil {
			return nil, err
		}
		if !s.adopt(a.qubit, a.created) {
			return reply(app, hdr.ErrNoQubit), nil
		}
		return []hdr.Notification{qubitReply(app, hdr.TpRecv, a.qubit)}, nil

	case hdr.CmdEPR:
		remote := *req.Remote
		created := now()
		ent := hdr.EntInfoHdr{
			NodeA:    s.local,
			PortA:    s.port,
			AppIDA:   app,
			NodeB:    remote.Node,
			PortB:    remote.Port,
			AppIDB:   remote.AppID,
			IDAB:     s.svc.nextPair.Add(1),
			Created:  created,
			Goodness: 1,
		}
		if s.svc.cfg.MaxQubits > 0 && len(s.qubits) >= s.svc.cfg.MaxQubits {
			return reply(app, hdr.ErrNoQubit), nil
		}
		if t := s.deliver(remote, func(mb *mailbox) chan arrival { return mb.pairs }, arrival{created: created, ent: &ent}); t != hdr.TpDone {
			return reply(app, t), nil
		}
		id, _ := s.create(created)
		return []hdr.Notification{{Hdr: hdr.CqcHdr{Type: hdr.TpEPROK, AppID: app}, Qubit: id, Ent: &ent}}, nil

	case hdr.CmdEPRRecv:
		a, err := s.await(ctx, func(mb *mailbox) chan arrival { return mb.pairs })
		if err != nil {
			return nil, err
		}
		id, ok := s.create(a.created)
		if !ok {
			return reply(app, hdr.ErrNoQubit), nil
		}
		return []hdr.Notification{{Hdr: hdr.CqcHdr{Type: hdr.TpEPROK, AppID: app}, Qubit: id, Ent: a.ent}}, nil
	}
	return reply(app, hdr.ErrUnsupp), nil
}

func (s *session) create(created uint64) (hdr.QubitID, bool) {
	if limit := s.svc.cfg.MaxQubits; limit > 0 && len(s.qubits) >= limit {
		return 0, false
	}
	id := s.svc.allocQubit()
	s.qubits[id] = created
	return id, true
}

// adopt registers a qubit that arrived from another session under its
// existing id.
func (s *session) adopt(id hdr.QubitID, created uint64) bool {
	if limit := s.svc.cfg.MaxQubits; limit > 0 && len(s.qubits) >= limit {
		return false
	}
	s.qubits[id] = created
	return true
}

func (s *session) owns(q hdr.QubitID) bool {
	_, ok := s.qubits[q]
	return ok
}

// deliver queues a onto the remote port's mailbox and returns DONE or the
// error reply type.
func (s *session) deliver(remote hdr.RemoteNode, queue func(*mailbox) chan arrival, a arrival) hdr.MsgType {
	mb, ok := s.svc.mailbox(remote.Port)
	if !ok {
		log.Warn().Str("remote", remote.String()).Msg("mocknode no endpoint on destination port")
		return hdr.ErrUnsupp
	}
	select {
	case queue(mb) <- a:
		return hdr.TpDone
	default:
		return hdr.ErrInUse
	}
}

// await parks until something arrives for this session's port.
func (s *session) await(ctx context.Context, queue func(*mailbox) chan arrival) (arrival, error) {
	mb, ok := s.svc.mailbox(s.port)
	if !ok {
		return arrival{}, errors.New("mocknode: port not registered")
	}
	select {
	case a := <-queue(mb):
		if err := ctx.Err(); err != nil {
			// The receiver left while the arrival was being taken.
			s.requeue(mb, queue, a)
			return arrival{}, err
		}
		return a, nil
	case <-ctx.Done():
		return arrival{}, ctx.Err()
	}
}

func (s *session) requeue(mb *mailbox, queue func(*mailbox) chan arrival, a arrival) {
	select {
	case queue(mb) <- a:
	default:
		log.Warn().Uint16("port", s.port).Uint16("qubit", uint16(a.qubit)).Msg("mocknode mailbox full, arrival dropped")
	}
}

func reply(app uint16, t hdr.MsgType) []hdr.Notification {
	return []hdr.Notification{{Hdr: hdr.CqcHdr{Type: t, AppID: app}}}
}

func qubitReply(app uint16, t hdr.MsgType, q hdr.QubitID) hdr.Notification {
	return hdr.Notification{Hdr: hdr.CqcHdr{Type: t, AppID: app}, Qubit: q}
}

func failed(out []hdr.Notification) bool {
	return len(out) > 0 && out[len(out)-1].Hdr.Type.IsError()
}

func ipv4(addr net.Addr) uint32 {
	ap, err := netip.ParseAddrPort(addr.String())
	if err != nil {
		return 0
	}
	a := ap.Addr().Unmap()
	if !a.Is4() {
		return 0
	}
	b := a.As4()
	return binary.BigEndian.Uint32(b[:])
}
