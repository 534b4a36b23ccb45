package netz

import (
	"context"
	"hash/crc32"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/netzcore/netzd/internal/log"
	"github.com/netzcore/netzd/internal/metrics"
	"github.com/netzcore/netzd/pkg/kerberos"
	"github.com/netzcore/netzd/pkg/prudp"
	"github.com/netzcore/netzd/pkg/rmc"
	"github.com/netzcore/netzd/pkg/wire"
)

// maxPayload is the largest RMC byte-string one PRUDP DATA fragment
// carries ("at most 1364 bytes payload after header").
const maxPayload = 1300

// Endpoint is one configured service (authentication, secure, or config):
// one UDP socket, one virtual-connection table, one RMC registry. It is the
// single-owner-task of its own socket — everything that touches its table
// or dispatchers runs on the goroutine inside Serve.
type Endpoint struct {
	Name             string
	ListenAddr       string
	AccessKey        []byte
	VPortServer      byte
	VPortClient      byte
	SecureServerAddr string // advertised to clients by handlers, not used by the endpoint itself

	Logger   zerolog.Logger
	Registry *rmc.Registry
	// Tickets validates a presented ticket during CONNECT. Nil means this
	// endpoint accepts CONNECT with no ticket (the authentication service,
	// S1: "CONNECT with empty session key").
	Tickets *kerberos.Service

	// WorkerConcurrency bounds how many RMC calls run concurrently. 0
	// means DefaultWorkerConcurrency.
	WorkerConcurrency int

	conn        *net.UDPConn
	table       *prudp.Table
	dispatchers map[prudp.Key]*rmc.Dispatcher
}

// DefaultWorkerConcurrency is how many RMC calls an endpoint runs
// concurrently when WorkerConcurrency is unset.
const DefaultWorkerConcurrency = 8

func (e *Endpoint) workerConcurrency() int {
	if e.WorkerConcurrency > 0 {
		return e.WorkerConcurrency
	}
	return DefaultWorkerConcurrency
}

type rawDatagram struct {
	addr *net.UDPAddr
	data []byte
}

type dispatchResult struct {
	key    prudp.Key
	callID uint32
	resp   rmc.Packet
}

// ListenAndServe binds addr and runs Serve until ctx is cancelled.
func (e *Endpoint) ListenAndServe(ctx context.Context, addr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return err
	}
	return e.Serve(ctx, conn)
}

// Serve runs the listener loop described in SPEC_FULL.md's §4.8 walkthrough:
// a dedicated reader goroutine feeds datagrams into a channel; this
// goroutine is the only one that mutates the connection table, draining
// completed RMC calls and ticking the idle/reassembly sweep every second.
func (e *Endpoint) Serve(ctx context.Context, conn *net.UDPConn) error {
	e.conn = conn
	e.table = prudp.NewTable()
	e.dispatchers = make(map[prudp.Key]*rmc.Dispatcher)
	defer conn.Close()

	rawCh := make(chan rawDatagram, 64)
	go e.readLoop(conn, rawCh)

	resultCh := make(chan dispatchResult, 64)
	sem := make(chan struct{}, e.workerConcurrency())

	sweep := time.NewTicker(time.Second)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case dg, ok := <-rawCh:
			if !ok {
				return net.ErrClosed
			}
			e.handleDatagram(ctx, dg, resultCh, sem)
		case res := <-resultCh:
			e.completeDispatch(res)
		case now := <-sweep.C:
			e.sweepIdle(now)
		}
	}
}

func (e *Endpoint) readLoop(conn *net.UDPConn, out chan<- rawDatagram) {
	buf := make([]byte, 1500)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			close(out)
			return
		}
		cp := make([]byte, n)
		copy(cp, buf[:n])
		out <- rawDatagram{addr: addr, data: cp}
	}
}

func (e *Endpoint) handleDatagram(ctx context.Context, dg rawDatagram, resultCh chan<- dispatchResult, sem chan struct{}) {
	now := time.Now()
	pkt, err := prudp.Parse(dg.data)
	if err != nil {
		metrics.M().RecordRxPacket("invalid", len(dg.data))
		e.Logger.Debug().Err(err).Str("remote_addr", dg.addr.String()).Msg("dropped malformed datagram")
		return
	}

	key := prudp.Key{RemoteAddr: dg.addr.String(), SourceVPort: pkt.SourceVPort, DestVPort: pkt.DestVPort}

	switch pkt.Type {
	case prudp.TypeSyn:
		metrics.M().RecordRxPacket("syn", len(dg.data))
		e.handleSyn(dg.addr, key, pkt, now)
	case prudp.TypeConnect:
		metrics.M().RecordRxPacket("connect", len(dg.data))
		e.handleConnect(dg.addr, key, pkt, now)
	case prudp.TypeData:
		metrics.M().RecordRxPacket("data", len(dg.data))
		e.handleData(ctx, dg.addr, key, pkt, now, resultCh, sem)
	case prudp.TypeDisconnect:
		metrics.M().RecordRxPacket("disconnect", len(dg.data))
		e.handleDisconnect(key)
	case prudp.TypePing:
		metrics.M().RecordRxPacket("ping", len(dg.data))
		e.handlePing(dg.addr, key, pkt, now)
	}
}

func (e *Endpoint) handleSyn(addr *net.UDPAddr, key prudp.Key, pkt prudp.Packet, now time.Time) {
	if !prudp.VerifySignature(pkt, e.AccessKey, nil) {
		metrics.M().RecordRxPacket("bad_sig", 0)
		log.SignatureMismatch(e.Logger, addr.String())
		return
	}
	conn := prudp.NewConnection(key.RemoteAddr, key.SourceVPort, key.DestVPort, e.AccessKey, now)
	e.table.Put(key, conn)
	e.dispatchers[key] = rmc.NewDispatcher(e.Registry)
	metrics.M().ConnectionOpened()

	ack := pkt
	ack.Flags |= prudp.FlagAck
	ack.Signature = prudp.Sign(ack, e.AccessKey, nil)
	e.send(addr, key, ack)
}

func (e *Endpoint) handleConnect(addr *net.UDPAddr, key prudp.Key, pkt prudp.Packet, now time.Time) {
	conn, ok := e.table.Get(key)
	if !ok || conn.State != prudp.StateSynReceived {
		return
	}
	if !prudp.VerifySignature(pkt, e.AccessKey, nil) {
		metrics.M().RecordRxPacket("bad_sig", 0)
		log.SignatureMismatch(e.Logger, addr.String())
		if conn.RecordSignatureFailure() {
			e.closeConnection(key, "bad_sig_limit")
		}
		return
	}
	conn.ResetSignatureFailures()
	conn.Touch(now)

	var sessionKey [16]byte
	var principalID uint32
	if e.Tickets != nil {
		if len(pkt.Payload) < 4 {
			return
		}
		r := wire.NewReader(pkt.Payload)
		requestingPID, err := r.Uint32()
		if err != nil {
			return
		}
		internal, err := e.Tickets.Validate(r.Rest(), requestingPID)
		if err != nil {
			metrics.M().RecordTicketValidate(ticketOutcome(err))
			return
		}
		metrics.M().RecordTicketValidate("success")
		sessionKey = [16]byte(internal.SessionKey)
		principalID = requestingPID
	}
	conn.Authenticate(sessionKey, principalID)

	ack := pkt
	ack.Flags |= prudp.FlagAck
	ack.Signature = prudp.Sign(ack, e.AccessKey, nil)
	e.send(addr, key, ack)
}

func ticketOutcome(err error) string {
	if err == kerberos.ErrExpiredTicket {
		return "expired"
	}
	return "denied"
}

func (e *Endpoint) handlePing(addr *net.UDPAddr, key prudp.Key, pkt prudp.Packet, now time.Time) {
	conn, ok := e.table.Get(key)
	if !ok {
		return
	}
	conn.Touch(now)
	ack := pkt
	ack.Flags |= prudp.FlagAck
	ack.Signature = prudp.Sign(ack, e.AccessKey, conn.SessionKey[:])
	e.send(addr, key, ack)
}

func (e *Endpoint) handleDisconnect(key prudp.Key) {
	e.closeConnection(key, "disconnect")
}

func (e *Endpoint) closeConnection(key prudp.Key, reason string) {
	if conn, ok := e.table.Get(key); ok {
		conn.Close()
		e.table.Delete(key)
		delete(e.dispatchers, key)
		metrics.M().ConnectionClosed(reason)
	}
}

func (e *Endpoint) handleData(ctx context.Context, addr *net.UDPAddr, key prudp.Key, pkt prudp.Packet, now time.Time, resultCh chan<- dispatchResult, sem chan struct{}) {
	conn, ok := e.table.Get(key)
	if !ok || conn.State < prudp.StateAuthenticated {
		return
	}
	if !prudp.VerifySignature(pkt, e.AccessKey, conn.SessionKey[:]) {
		metrics.M().RecordRxPacket("bad_sig", 0)
		log.SignatureMismatch(e.Logger, addr.String())
		if conn.RecordSignatureFailure() {
			e.closeConnection(key, "bad_sig_limit")
		}
		return
	}
	conn.ResetSignatureFailures()
	conn.Touch(now)
	conn.State = prudp.StateConnected

	ready, ok := conn.AcceptData(pkt.Sequence, pkt.ConnSigOrFragment, pkt.Payload)
	if !ok {
		return
	}

	dispatcher := e.dispatchers[key]
	client := rmc.ClientInfo{RemoteAddr: key.RemoteAddr, UserID: conn.PrincipalID}

	for _, frag := range ready {
		full, complete := conn.Feed(now, frag.FragmentIndex, frag.Payload)
		if !complete {
			continue
		}

		for len(full) > 0 {
			body, rest, err := rmc.SplitFrame(full)
			if err != nil {
				break
			}
			full = rest

			req, err := rmc.ParsePacket(body)
			if err != nil || !req.IsRequest {
				continue
			}

			if err := dispatcher.Begin(req.CallID); err != nil {
				metrics.M().RecordDispatch("duplicate_call", 0)
				e.sendRMCResponse(key, rmc.NewErrResponse(req, rmc.ErrDuplicateCall))
				continue
			}

			protocolName, methodName := "unknown", "unknown"
			if h, ok := e.Registry.Lookup(req.ProtocolID); ok {
				protocolName = h.Name()
				if n := h.MethodName(req.MethodID); n != "" {
					methodName = n
				}
			}

			sem <- struct{}{}
			go func() {
				defer func() { <-sem }()
				start := time.Now()
				resp := dispatcher.Invoke(ctx, client, req)
				elapsed := time.Since(start)
				metrics.M().RecordDispatch(dispatchOutcome(resp), elapsed.Seconds())
				log.Dispatch(e.Logger, protocolName, methodName, crc32.ChecksumIEEE(req.Parameters), resp.Success, float64(elapsed.Microseconds())/1000)
				resultCh <- dispatchResult{key: key, callID: req.CallID, resp: resp}
			}()
		}
	}
}

func dispatchOutcome(resp rmc.Packet) string {
	if resp.Success {
		return "success"
	}
	switch resp.Code {
	case rmc.ErrUnknownProtocol:
		return "unknown_protocol"
	case rmc.ErrUnknownMethod:
		return "unknown_method"
	case rmc.ErrAccessDenied:
		return "access_denied"
	default:
		return "handler_error"
	}
}

func (e *Endpoint) completeDispatch(res dispatchResult) {
	dispatcher, ok := e.dispatchers[res.key]
	if !ok {
		return
	}
	dispatcher.Complete(res.callID, res.resp)
	for _, resp := range dispatcher.Drain() {
		e.sendRMCResponse(res.key, resp)
	}
}

func (e *Endpoint) sendRMCResponse(key prudp.Key, resp rmc.Packet) {
	conn, ok := e.table.Get(key)
	if !ok {
		return
	}
	frame := rmc.EncodeFrame(resp)
	addr, err := net.ResolveUDPAddr("udp", key.RemoteAddr)
	if err != nil {
		return
	}

	for offset, first := 0, true; offset < len(frame) || first; first = false {
		end := offset + maxPayload
		last := end >= len(frame)
		if last {
			end = len(frame)
		}
		chunk := frame[offset:end]
		offset = end

		fragmentIndex := uint32(0)
		if !last {
			fragmentIndex = uint32((len(frame)-offset)/maxPayload) + 1
		}

		pkt := prudp.Packet{
			SourceVPort:       key.DestVPort,
			DestVPort:         key.SourceVPort,
			Type:              prudp.TypeData,
			Flags:             prudp.FlagReliable,
			SessionID:         conn.SessionID,
			Sequence:          conn.NextOutSeq(),
			ConnSigOrFragment: fragmentIndex,
			Payload:           conn.EncryptOut(append([]byte(nil), chunk...)),
		}
		pkt.Signature = prudp.Sign(pkt, e.AccessKey, conn.SessionKey[:])
		e.send(addr, key, pkt)
	}
}

func (e *Endpoint) send(addr *net.UDPAddr, key prudp.Key, pkt prudp.Packet) {
	buf := pkt.Encode(false)
	if _, err := e.conn.WriteToUDP(buf, addr); err != nil {
		e.Logger.Warn().Err(err).Str("remote_addr", addr.String()).Msg("send failed")
		return
	}
	metrics.M().RecordTxPacket(len(buf))
}

func (e *Endpoint) sweepIdle(now time.Time) {
	for _, key := range e.table.Sweep(now) {
		delete(e.dispatchers, key)
		metrics.M().ConnectionClosed("idle_timeout")
	}
}
