// Package netz wires the transport (pkg/prudp), call layer (pkg/rmc) and
// ticket service (pkg/kerberos) into runnable service endpoints.
package netz

import (
	"strings"
	"sync"

	"github.com/netzcore/netzd/pkg/kerberos"
)

// PrincipalStore is the default in-memory kerberos.Store, adapted from
// pkg/memstore.AccountStore's sync.Map-backed pattern: principals are
// read-mostly after startup, so a single sync.Map keyed by pid (names are
// found by a linear scan) beats anything fancier.
type PrincipalStore struct {
	byPID sync.Map // uint32 -> kerberos.Principal
}

// NewPrincipalStore returns an empty store seeded with principals.
func NewPrincipalStore(principals ...kerberos.Principal) *PrincipalStore {
	s := &PrincipalStore{}
	for _, p := range principals {
		s.Put(p)
	}
	return s
}

// Put inserts or replaces a principal.
func (s *PrincipalStore) Put(p kerberos.Principal) {
	s.byPID.Store(p.PID, p)
}

// Delete removes a principal by pid.
func (s *PrincipalStore) Delete(pid uint32) {
	s.byPID.Delete(pid)
}

// Replace swaps the whole principal set, used to reload the admin storage
// from a re-read config file on SIGHUP without restarting any listener. It
// stores the new principals one by one and then deletes the pids not among
// them; the swap is not atomic, so a lookup running concurrently may see a
// mix of old and new entries.
func (s *PrincipalStore) Replace(principals []kerberos.Principal) {
	keep := make(map[uint32]bool, len(principals))
	for _, p := range principals {
		keep[p.PID] = true
		s.Put(p)
	}
	s.byPID.Range(func(k, _ any) bool {
		if pid := k.(uint32); !keep[pid] {
			s.byPID.Delete(pid)
		}
		return true
	})
}

// LookupByPID implements kerberos.Store.
func (s *PrincipalStore) LookupByPID(pid uint32) (kerberos.Principal, bool, error) {
	v, ok := s.byPID.Load(pid)
	if !ok {
		return kerberos.Principal{}, false, nil
	}
	return v.(kerberos.Principal), true, nil
}

// LookupByName implements kerberos.Store. Names are matched
// case-insensitively, matching how the admin surface treats
// usernames.
func (s *PrincipalStore) LookupByName(name string) (kerberos.Principal, bool, error) {
	var found kerberos.Principal
	var ok bool
	s.byPID.Range(func(_, v any) bool {
		p := v.(kerberos.Principal)
		if strings.EqualFold(p.Name, name) {
			found, ok = p, true
			return false
		}
		return true
	})
	return found, ok, nil
}
