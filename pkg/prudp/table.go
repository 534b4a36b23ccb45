package prudp

import (
	"fmt"
	"time"
)

// Key identifies one virtual connection: a remote socket address paired
// with the virtual port numbers the PRUDP header carries, since a single
// UDP socket multiplexes many virtual connections by vport.
type Key struct {
	RemoteAddr  string
	SourceVPort byte
	DestVPort   byte
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%d->%d", k.RemoteAddr, k.SourceVPort, k.DestVPort)
}

// Table is a listener's virtual-connection table. It carries no internal
// locking: the single-owner-task model means exactly one
// goroutine — the listener loop — ever touches a Table, so synchronizing
// access here would be pure overhead. Callers that need to share
// connection state with worker goroutines must copy out what they need.
type Table struct {
	conns map[Key]*Connection
}

// NewTable returns an empty connection table.
func NewTable() *Table {
	return &Table{conns: make(map[Key]*Connection)}
}

// Get returns the connection for key, if any.
func (t *Table) Get(key Key) (*Connection, bool) {
	c, ok := t.conns[key]
	return c, ok
}

// Put inserts or replaces the connection for key.
func (t *Table) Put(key Key, c *Connection) {
	t.conns[key] = c
}

// Delete removes key from the table.
func (t *Table) Delete(key Key) {
	delete(t.conns, key)
}

// Len reports the number of tracked connections.
func (t *Table) Len() int { return len(t.conns) }

// Sweep evicts connections that are closed or idle past IdleTimeout, and
// discards any stale partial reassembly buffer of the connections it keeps
// (the connection itself stays). It returns the keys evicted for idle
// timeout (as opposed to an explicit close), so the caller can log or send
// a final DISCONNECT.
func (t *Table) Sweep(now time.Time) (idleEvicted []Key) {
	for key, c := range t.conns {
		if c.State == StateClosed {
			delete(t.conns, key)
			continue
		}
		if c.IdleSince(now) > IdleTimeout {
			c.Close()
			delete(t.conns, key)
			idleEvicted = append(idleEvicted, key)
			continue
		}
		c.reassembler.expireIfStale(now)
	}
	return idleEvicted
}

// All returns a snapshot of the table's keys, for callers that need to
// iterate without mutating (e.g. metrics collection).
func (t *Table) All() []Key {
	keys := make([]Key, 0, len(t.conns))
	for k := range t.conns {
		keys = append(keys, k)
	}
	return keys
}
