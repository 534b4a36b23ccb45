package netz

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/netzcore/netzd/pkg/kerberos"
	"github.com/netzcore/netzd/pkg/qcrypto"
	"github.com/netzcore/netzd/pkg/rmc"
	"github.com/netzcore/netzd/pkg/wire"
)

var masterSecretInitOnce sync.Once

// initMasterSecret seeds qcrypto's master secret, which ticket issuance
// needs; InitMasterSecret panics on a second call, so it runs once.
func initMasterSecret() {
	masterSecretInitOnce.Do(func() {
		qcrypto.InitMasterSecret([]byte("test-seed"))
	})
}

func testStore() *PrincipalStore {
	return NewPrincipalStore(
		kerberos.Principal{PID: AuthServerPID, Name: "auth", Password: "authpw"},
		kerberos.Principal{PID: SecureServerPID, Name: "secure", Password: "securepw"},
		kerberos.Principal{PID: 1001, Name: "alice", Password: "alicepw"},
	)
}

func loginParams(username string) []byte {
	w := wire.NewWriter()
	w.String(username)
	return w.Bytes()
}

// S1: Login resolves a username to a ticket for the secure server, and a
// replayed Login yields a fresh (non-equal) session key.
func TestLoginIssuesTicketAndFreshSessionKeyOnReplay(t *testing.T) {
	initMasterSecret()
	tickets := &kerberos.Service{Store: testStore(), SelfPID: SecureServerPID}
	proto := NewTicketGrantingProtocol(tickets, "prudps:/address=127.0.0.1;port=21100")

	resp1, err := proto.Handle(context.Background(), rmc.ClientInfo{}, methodTGPLogin, loginParams("alice"))
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	resp2, err := proto.Handle(context.Background(), rmc.ClientInfo{}, methodTGPLogin, loginParams("alice"))
	if err != nil {
		t.Fatalf("second login: %v", err)
	}

	r1 := wire.NewReader(resp1)
	pid, err := r1.Uint32()
	if err != nil || pid != 1001 {
		t.Fatalf("pid = %d, %v, want 1001", pid, err)
	}
	key1, err := r1.Bytes(16)
	if err != nil {
		t.Fatalf("session key 1: %v", err)
	}

	r2 := wire.NewReader(resp2)
	if _, err := r2.Uint32(); err != nil {
		t.Fatalf("pid 2: %v", err)
	}
	key2, err := r2.Bytes(16)
	if err != nil {
		t.Fatalf("session key 2: %v", err)
	}

	if bytes.Equal(key1, key2) {
		t.Fatal("replayed Login produced the same session key")
	}

	ticket1, err := r1.QBuffer()
	if err != nil || len(ticket1) == 0 {
		t.Fatalf("ticket: %v", err)
	}
	rvc, err := r1.ReadStationURL()
	if err != nil || rvc.Address() != "127.0.0.1" {
		t.Fatalf("rvc = %+v, %v", rvc, err)
	}
}

func TestLoginUnknownUsernameIsAccessDenied(t *testing.T) {
	tickets := &kerberos.Service{Store: testStore(), SelfPID: SecureServerPID}
	proto := NewTicketGrantingProtocol(tickets, "prudps:/address=127.0.0.1;port=21100")

	_, err := proto.Handle(context.Background(), rmc.ClientInfo{}, methodTGPLogin, loginParams("nobody"))
	he, ok := err.(*rmc.HandlerError)
	if !ok || he.Code != rmc.ErrAccessDenied {
		t.Fatalf("err = %v, want AccessDenied", err)
	}
}

// S2: a secure-service ticket validated at CONNECT authenticates the
// connection, letting a subsequent call through the registry succeed.
func TestSecureHandoffLadderCallSucceedsAfterTicketValidation(t *testing.T) {
	initMasterSecret()
	store := testStore()
	issuer := &kerberos.Service{Store: store, SelfPID: SecureServerPID}
	ticket, sessionKey, err := issuer.Issue(1001, SecureServerPID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	_ = sessionKey

	validator := &kerberos.Service{Store: store, SelfPID: SecureServerPID}
	if _, err := validator.Validate(ticket, 1001); err != nil {
		t.Fatalf("validate: %v", err)
	}
	// The connection's PrincipalID is the requester's own pid carried
	// alongside the ticket in the CONNECT payload (see Endpoint.handleConnect),
	// not InternalTicket.PrincipalID, which names the ticket's target service.

	registry := rmc.NewRegistry()
	fixedNow := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	registry.Register(&LadderProtocol{Now: func() time.Time { return fixedNow }})
	dispatcher := rmc.NewDispatcher(registry)

	client := rmc.ClientInfo{RemoteAddr: "127.0.0.1:12345", UserID: 1001}
	req := rmc.NewRequest(protocolLadder, 1, methodLadderGetUnixUtc, nil)
	resps := dispatcher.DispatchSync(context.Background(), client, req)
	if len(resps) != 1 || !resps[0].Success {
		t.Fatalf("resps = %+v, want one success", resps)
	}

	r := wire.NewReader(resps[0].Data)
	got, err := r.Uint32()
	if err != nil || got != uint32(fixedNow.Unix()) {
		t.Fatalf("GetUnixUtc = %d, %v, want %d", got, err, fixedNow.Unix())
	}
}

// S3: before any login, Privileges.GetPrivileges is rejected with
// AccessDenied rather than reaching the handler.
func TestPrivilegesDeniedBeforeLogin(t *testing.T) {
	registry := rmc.NewRegistry()
	registry.Register(NewPrivilegesProtocol())
	dispatcher := rmc.NewDispatcher(registry)

	req := rmc.NewRequest(protocolPrivileges, 1, methodPrivilegesGet, nil)
	resps := dispatcher.DispatchSync(context.Background(), rmc.ClientInfo{}, req)
	if len(resps) != 1 || resps[0].Success || resps[0].Code != rmc.ErrAccessDenied {
		t.Fatalf("resps = %+v, want one AccessDenied", resps)
	}
}

func TestPrivilegesSucceedsAfterLogin(t *testing.T) {
	registry := rmc.NewRegistry()
	registry.Register(NewPrivilegesProtocol())
	dispatcher := rmc.NewDispatcher(registry)

	req := rmc.NewRequest(protocolPrivileges, 1, methodPrivilegesGet, nil)
	client := rmc.ClientInfo{UserID: 1001}
	resps := dispatcher.DispatchSync(context.Background(), client, req)
	if len(resps) != 1 || !resps[0].Success {
		t.Fatalf("resps = %+v, want one success", resps)
	}
}

// S4: an unregistered protocol id gets UnknownProtocol, not silence.
func TestUnknownProtocolDoesNotPanicOrHang(t *testing.T) {
	registry := rmc.NewRegistry()
	registry.Register(NewLadderProtocol())
	dispatcher := rmc.NewDispatcher(registry)

	req := rmc.NewRequest(0x12, 1, 1, nil)
	resps := dispatcher.DispatchSync(context.Background(), rmc.ClientInfo{}, req)
	if len(resps) != 1 || resps[0].Success || resps[0].Code != rmc.ErrUnknownProtocol {
		t.Fatalf("resps = %+v, want one UnknownProtocol", resps)
	}
}

func TestPrincipalStoreLookupByNameCaseInsensitive(t *testing.T) {
	store := testStore()
	p, ok, err := store.LookupByName("ALICE")
	if err != nil || !ok || p.PID != 1001 {
		t.Fatalf("lookup = %+v, %v, %v", p, ok, err)
	}
}
