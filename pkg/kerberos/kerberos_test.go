package kerberos

import (
	"sync"
	"testing"
	"time"

	"github.com/netzcore/netzd/pkg/qcrypto"
)

type memStore struct {
	mu   sync.RWMutex
	byID map[uint32]Principal
}

func newMemStore(principals ...Principal) *memStore {
	m := &memStore{byID: map[uint32]Principal{}}
	for _, p := range principals {
		m.byID[p.PID] = p
	}
	return m
}

func (m *memStore) LookupByPID(pid uint32) (Principal, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.byID[pid]
	return p, ok, nil
}

func (m *memStore) LookupByName(name string) (Principal, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.byID {
		if p.Name == name {
			return p, true, nil
		}
	}
	return Principal{}, false, nil
}

func initMasterSecretOnce(t *testing.T) {
	t.Helper()
	// qcrypto.MasterSecret panics until InitMasterSecret has run, and
	// InitMasterSecret panics on a second call, so this package's test
	// binary initializes the secret exactly once.
	masterSecretInitOnce.Do(func() {
		qcrypto.InitMasterSecret([]byte("test-seed"))
	})
}

var masterSecretInitOnce sync.Once

func TestIssueAndValidate(t *testing.T) {
	initMasterSecretOnce(t)

	store := newMemStore(
		Principal{PID: 1, Name: "auth"},
		Principal{PID: 2, Name: "secure", Password: "secure-pw"},
		Principal{PID: 1001, Name: "alice", Password: "hunter2"},
	)

	authSvc := &Service{Store: store, SelfPID: 1}
	external, sessionKey, err := authSvc.Issue(1001, 2)
	if err != nil {
		t.Fatal(err)
	}
	if sessionKey == (SessionKey{}) {
		t.Fatal("session key should not be zero")
	}

	secureSvc := &Service{Store: store, SelfPID: 2}
	internal, err := secureSvc.Validate(external, 1001)
	if err != nil {
		t.Fatal(err)
	}
	if internal.PrincipalID != 2 {
		t.Fatalf("PrincipalID = %d, want 2", internal.PrincipalID)
	}
	if internal.SessionKey != sessionKey {
		t.Fatal("internal session key does not match issued session key")
	}
}

func TestIssueReplayProducesFreshSessionKey(t *testing.T) {
	initMasterSecretOnce(t)

	store := newMemStore(
		Principal{PID: 2, Name: "secure", Password: "secure-pw"},
		Principal{PID: 1001, Name: "alice", Password: "hunter2"},
	)
	svc := &Service{Store: store, SelfPID: 1}

	_, key1, err := svc.Issue(1001, 2)
	if err != nil {
		t.Fatal(err)
	}
	_, key2, err := svc.Issue(1001, 2)
	if err != nil {
		t.Fatal(err)
	}
	if key1 == key2 {
		t.Fatal("replayed Issue should mint a fresh session key")
	}
}

func TestValidateTamperedTicketFails(t *testing.T) {
	initMasterSecretOnce(t)

	store := newMemStore(
		Principal{PID: 2, Name: "secure", Password: "secure-pw"},
		Principal{PID: 1001, Name: "alice", Password: "hunter2"},
	)
	issuer := &Service{Store: store, SelfPID: 1}
	external, _, err := issuer.Issue(1001, 2)
	if err != nil {
		t.Fatal(err)
	}

	validator := &Service{Store: store, SelfPID: 2}
	for i := range external {
		tampered := append([]byte(nil), external...)
		tampered[i] ^= 0xFF
		if _, err := validator.Validate(tampered, 1001); err != ErrInvalidCredentials {
			t.Fatalf("byte %d: Validate() = %v, want ErrInvalidCredentials", i, err)
		}
	}
}

func TestValidateExpiredTicketFails(t *testing.T) {
	initMasterSecretOnce(t)

	store := newMemStore(
		Principal{PID: 2, Name: "secure", Password: "secure-pw"},
		Principal{PID: 1001, Name: "alice", Password: "hunter2"},
	)
	past := time.Now().Add(-1 * time.Hour)
	issuer := &Service{Store: store, SelfPID: 1, Now: func() time.Time { return past }}
	external, _, err := issuer.Issue(1001, 2)
	if err != nil {
		t.Fatal(err)
	}

	validator := &Service{Store: store, SelfPID: 2}
	if _, err := validator.Validate(external, 1001); err != ErrExpiredTicket {
		t.Fatalf("Validate() = %v, want ErrExpiredTicket", err)
	}
}

func TestIssueUnknownPrincipal(t *testing.T) {
	initMasterSecretOnce(t)
	store := newMemStore(Principal{PID: 1001, Name: "alice"})
	svc := &Service{Store: store, SelfPID: 1}
	if _, _, err := svc.Issue(1001, 999); err != ErrInvalidCredentials {
		t.Fatalf("Issue() = %v, want ErrInvalidCredentials", err)
	}
}
