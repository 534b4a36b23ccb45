package rmc

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

type stubHandler struct {
	id    uint8
	name  string
	login map[uint32]bool
	fn    func(methodID uint32, params []byte) ([]byte, error)
}

func (h *stubHandler) ID() uint8              { return h.id }
func (h *stubHandler) Name() string           { return h.name }
func (h *stubHandler) NumMethods() uint32     { return 8 }
func (h *stubHandler) MethodName(uint32) string { return "" }
func (h *stubHandler) RequiresLogin(methodID uint32) bool { return h.login[methodID] }

func (h *stubHandler) Handle(ctx context.Context, client ClientInfo, methodID uint32, params []byte) ([]byte, error) {
	return h.fn(methodID, params)
}

func TestFrameRoundTripRequest(t *testing.T) {
	req := NewRequest(3, 42, 7, []byte("params"))
	framed := EncodeFrame(req)

	body, rest, err := SplitFrame(framed)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 0 {
		t.Fatalf("unexpected leftover bytes: %v", rest)
	}
	got, err := ParsePacket(body)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsRequest || got.ProtocolID != 3 || got.CallID != 42 || got.MethodID != 7 || !bytes.Equal(got.Parameters, []byte("params")) {
		t.Fatalf("got %+v", got)
	}
}

func TestFrameRoundTripOkResponse(t *testing.T) {
	req := NewRequest(3, 42, 7, nil)
	resp := NewOkResponse(req, []byte("result"))
	framed := EncodeFrame(resp)

	body, _, err := SplitFrame(framed)
	if err != nil {
		t.Fatal(err)
	}
	got, err := ParsePacket(body)
	if err != nil {
		t.Fatal(err)
	}
	if got.IsRequest || !got.Success || got.CallID != 42 || got.MethodID != 7 || !bytes.Equal(got.Data, []byte("result")) {
		t.Fatalf("got %+v", got)
	}
}

func TestFrameRoundTripErrResponse(t *testing.T) {
	req := NewRequest(3, 42, 7, nil)
	resp := NewErrResponse(req, ErrAccessDenied)
	framed := EncodeFrame(resp)

	body, _, err := SplitFrame(framed)
	if err != nil {
		t.Fatal(err)
	}
	got, err := ParsePacket(body)
	if err != nil {
		t.Fatal(err)
	}
	if got.IsRequest || got.Success || got.Code != ErrAccessDenied {
		t.Fatalf("got %+v", got)
	}
}

func TestSplitFrameMultiplePackedFrames(t *testing.T) {
	a := EncodeFrame(NewRequest(1, 1, 1, []byte("a")))
	b := EncodeFrame(NewRequest(1, 2, 1, []byte("b")))
	stream := append(append([]byte(nil), a...), b...)

	body1, rest, err := SplitFrame(stream)
	if err != nil {
		t.Fatal(err)
	}
	p1, err := ParsePacket(body1)
	if err != nil || !bytes.Equal(p1.Parameters, []byte("a")) {
		t.Fatalf("p1 = %+v, err = %v", p1, err)
	}

	body2, rest2, err := SplitFrame(rest)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest2) != 0 {
		t.Fatalf("unexpected leftover: %v", rest2)
	}
	p2, err := ParsePacket(body2)
	if err != nil || !bytes.Equal(p2.Parameters, []byte("b")) {
		t.Fatalf("p2 = %+v, err = %v", p2, err)
	}
}

func TestParsePacketNeverPanics(t *testing.T) {
	for _, b := range [][]byte{nil, {}, {0x80}, {0x80, 1, 2}, {0, 0, 0, 0, 0, 0, 0, 0, 0}} {
		if _, err := ParsePacket(b); err == nil && len(b) < 9 {
			t.Fatalf("ParsePacket(%v) should have failed on short input", b)
		}
	}
}

func TestNotifyDetection(t *testing.T) {
	resp := Packet{IsRequest: false, CallID: 0, Success: true}
	if !resp.IsNotify() {
		t.Fatal("call id 0 response should be treated as Notify")
	}
	resp.CallID = 1
	if resp.IsNotify() {
		t.Fatal("nonzero call id should not be Notify")
	}
}

func TestDispatchUnknownProtocol(t *testing.T) {
	d := NewDispatcher(NewRegistry())
	req := NewRequest(0x12, 1, 1, nil)
	out := d.DispatchSync(context.Background(), ClientInfo{}, req)
	if len(out) != 1 || out[0].Success || out[0].Code != ErrUnknownProtocol {
		t.Fatalf("got %+v", out)
	}
}

func TestDispatchAccessDeniedBeforeLogin(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubHandler{
		id:    5,
		name:  "Privileges",
		login: map[uint32]bool{1: true},
		fn:    func(uint32, []byte) ([]byte, error) { return []byte("ok"), nil },
	})
	d := NewDispatcher(reg)
	req := NewRequest(5, 1, 1, nil)
	out := d.DispatchSync(context.Background(), ClientInfo{UserID: 0}, req)
	if len(out) != 1 || out[0].Success || out[0].Code != ErrAccessDenied {
		t.Fatalf("got %+v", out)
	}
}

func TestDispatchSucceedsWhenLoggedIn(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubHandler{
		id:    5,
		login: map[uint32]bool{1: true},
		fn:    func(uint32, []byte) ([]byte, error) { return []byte("ok"), nil },
	})
	d := NewDispatcher(reg)
	req := NewRequest(5, 1, 1, nil)
	out := d.DispatchSync(context.Background(), ClientInfo{UserID: 1001}, req)
	if len(out) != 1 || !out[0].Success || !bytes.Equal(out[0].Data, []byte("ok")) {
		t.Fatalf("got %+v", out)
	}
}

func TestDispatchUnknownMethodStaysRecoverable(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubHandler{
		id: 5,
		fn: func(uint32, []byte) ([]byte, error) { return nil, NewHandlerError(ErrUnknownMethod) },
	})
	d := NewDispatcher(reg)
	req := NewRequest(5, 1, 99, nil)
	out := d.DispatchSync(context.Background(), ClientInfo{}, req)
	if len(out) != 1 || out[0].Success || out[0].Code != ErrUnknownMethod {
		t.Fatalf("got %+v", out)
	}
	// the connection is still usable: a second call on the same
	// dispatcher with a fresh call id must not be rejected as duplicate.
	req2 := NewRequest(5, 2, 99, nil)
	out2 := d.DispatchSync(context.Background(), ClientInfo{}, req2)
	if len(out2) != 1 {
		t.Fatalf("got %+v", out2)
	}
}

func TestDispatchUnhandledErrorBecomesUnimplemented(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubHandler{
		id: 5,
		fn: func(uint32, []byte) ([]byte, error) { return nil, errors.New("boom") },
	})
	d := NewDispatcher(reg)
	out := d.DispatchSync(context.Background(), ClientInfo{}, NewRequest(5, 1, 1, nil))
	if len(out) != 1 || out[0].Success || out[0].Code != ErrUnimplementedMethod {
		t.Fatalf("got %+v", out)
	}
}

func TestDispatchDuplicateCallRejected(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&stubHandler{id: 5, fn: func(uint32, []byte) ([]byte, error) { return nil, nil }})
	d := NewDispatcher(reg)
	req := NewRequest(5, 1, 1, nil)

	if err := d.Begin(req.CallID); err != nil {
		t.Fatal(err)
	}
	if err := d.Begin(req.CallID); err == nil {
		t.Fatal("second Begin with the same call id should fail")
	}
}

func TestDrainPreservesRequestOrder(t *testing.T) {
	d := NewDispatcher(NewRegistry())
	if err := d.Begin(1); err != nil {
		t.Fatal(err)
	}
	if err := d.Begin(2); err != nil {
		t.Fatal(err)
	}
	if err := d.Begin(3); err != nil {
		t.Fatal(err)
	}

	// Complete out of order: 3, then 1. Nothing should drain until 1
	// (the head) completes.
	d.Complete(3, NewOkResponse(Packet{CallID: 3}, nil))
	if out := d.Drain(); len(out) != 0 {
		t.Fatalf("should not drain while call 1 is outstanding, got %+v", out)
	}

	d.Complete(1, NewOkResponse(Packet{CallID: 1}, nil))
	out := d.Drain()
	if len(out) != 1 || out[0].CallID != 1 {
		t.Fatalf("got %+v", out)
	}

	d.Complete(2, NewOkResponse(Packet{CallID: 2}, nil))
	out = d.Drain()
	if len(out) != 2 || out[0].CallID != 2 || out[1].CallID != 3 {
		t.Fatalf("got %+v, want call 2 then call 3 now that the head is clear", out)
	}
}

func TestNextCallIDMonotonicStartingAtOne(t *testing.T) {
	d := NewDispatcher(NewRegistry())
	if got := d.NextCallID(); got != 1 {
		t.Fatalf("got %d, want 1", got)
	}
	if got := d.NextCallID(); got != 2 {
		t.Fatalf("got %d, want 2", got)
	}
}
