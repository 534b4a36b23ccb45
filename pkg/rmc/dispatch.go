package rmc

import "context"

// Dispatcher owns one virtual connection's call-id bookkeeping: duplicate
// rejection, handler invocation, and in-order response draining even when
// handlers complete out of order.
//
// A Dispatcher is not safe for concurrent use on its own — only the
// listener goroutine that owns the connection calls Begin/Complete/Drain.
// Handler bodies run elsewhere (a worker pool) and report back through
// Complete.
type Dispatcher struct {
	registry *Registry

	inFlight map[uint32]struct{}
	order    []uint32
	results  map[uint32]Packet

	nextCallID uint32
}

// NewDispatcher returns a Dispatcher that resolves calls against registry.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		inFlight: make(map[uint32]struct{}),
		results:  make(map[uint32]Packet),
	}
}

// NextCallID returns the next call id for a server-originated notification,
// starting at 1. Call id 0 is reserved (see Packet.IsNotify).
func (d *Dispatcher) NextCallID() uint32 {
	d.nextCallID++
	return d.nextCallID
}

// Begin admits req.CallID into the pending queue, or reports
// ErrDuplicateCall if that call id is already in flight.
func (d *Dispatcher) Begin(callID uint32) error {
	if _, ok := d.inFlight[callID]; ok {
		return NewHandlerError(ErrDuplicateCall)
	}
	d.inFlight[callID] = struct{}{}
	d.order = append(d.order, callID)
	return nil
}

// Invoke runs the registry lookup and handler call for req. It never
// returns an error: every outcome — missing protocol, missing method,
// access denial, handler failure — becomes an encoded response packet.
func (d *Dispatcher) Invoke(ctx context.Context, client ClientInfo, req Packet) Packet {
	handler, ok := d.registry.Lookup(req.ProtocolID)
	if !ok {
		return NewErrResponse(req, ErrUnknownProtocol)
	}

	if gate, ok := handler.(LoginRequired); ok && gate.RequiresLogin(req.MethodID) && !client.LoggedIn() {
		return NewErrResponse(req, ErrAccessDenied)
	}

	data, err := handler.Handle(ctx, client, req.MethodID, req.Parameters)
	if err != nil {
		if he, ok := err.(*HandlerError); ok {
			return NewErrResponse(req, he.Code)
		}
		return NewErrResponse(req, ErrUnimplementedMethod)
	}
	return NewOkResponse(req, data)
}

// Complete records the result for callID, making it eligible for Drain
// once every call id ahead of it in the queue has also completed.
func (d *Dispatcher) Complete(callID uint32, resp Packet) {
	d.results[callID] = resp
}

// Drain returns, in request order, every leading response whose call id
// has completed, removing them from the pending queue. It returns nil if
// the queue's head is still outstanding.
func (d *Dispatcher) Drain() []Packet {
	var out []Packet
	for len(d.order) > 0 {
		head := d.order[0]
		resp, ok := d.results[head]
		if !ok {
			break
		}
		out = append(out, resp)
		delete(d.results, head)
		delete(d.inFlight, head)
		d.order = d.order[1:]
	}
	return out
}

// Cancel discards a call id without producing a response, for DISCONNECT
// or idle-timeout cancellation of in-flight handlers.
func (d *Dispatcher) Cancel(callID uint32) {
	delete(d.inFlight, callID)
	delete(d.results, callID)
	for i, id := range d.order {
		if id == callID {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// DispatchSync runs Begin, Invoke and Complete back to back and returns
// whatever Drain then yields. It's the synchronous path used by tests and
// by any caller that doesn't need cross-call concurrency.
func (d *Dispatcher) DispatchSync(ctx context.Context, client ClientInfo, req Packet) []Packet {
	if err := d.Begin(req.CallID); err != nil {
		return []Packet{NewErrResponse(req, err.(*HandlerError).Code)}
	}
	d.Complete(req.CallID, d.Invoke(ctx, client, req))
	return d.Drain()
}
