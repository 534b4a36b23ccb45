package prudp

import (
	"time"

	"github.com/netzcore/netzd/pkg/qcrypto"
)

// State is a virtual connection's position in the PRUDP handshake.
type State uint8

const (
	// StateNew exists only until the owning Table creates a Connection; no
	// Connection value is ever observed in this state.
	StateNew State = iota
	// StateSynReceived has seen a SYN and replied, waiting on CONNECT.
	StateSynReceived
	// StateAuthenticated has completed CONNECT and ticket validation but
	// has not yet exchanged a DATA packet.
	StateAuthenticated
	// StateConnected is steady-state: DATA packets flow both ways.
	StateConnected
	// StateClosed is terminal. The Table evicts closed connections on its
	// next sweep.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateSynReceived:
		return "syn-received"
	case StateAuthenticated:
		return "authenticated"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// IdleTimeout is how long a connection may go without any packet before the
// owning Table's sweep closes it.
const IdleTimeout = 30 * time.Second

// maxSignatureFailures is the number of consecutive signature mismatches at
// which RecordSignatureFailure reports that the connection must be torn down.
const maxSignatureFailures = 3

// Connection is one virtual connection's mutable state. It is owned by
// exactly one goroutine (the listener that created it via Table) and must
// not be accessed concurrently — see Table's doc comment.
type Connection struct {
	RemoteAddr  string
	SourceVPort byte
	DestVPort   byte
	SessionID   byte

	State State

	// AccessKey is the title-wide shared secret used to sign/verify
	// SYN and CONNECT packets.
	AccessKey []byte
	// SessionKey is negotiated during CONNECT (from a validated ticket)
	// and signs/verifies DATA packets and their RC4 stream.
	SessionKey [16]byte
	// PrincipalID is the authenticated caller's pid, set by Authenticate.
	// Zero until authenticated, which is also what rmc.ClientInfo.LoggedIn
	// tests against.
	PrincipalID uint32

	outSeq uint16

	// expectedSeq is the next inbound sequence number AcceptData is waiting on.
	// Zero means no DATA packet has been accepted yet, so the first one
	// received establishes the baseline rather than being held for a gap.
	expectedSeq uint16
	// pendingSeq buffers packets that arrived ahead of a gap, keyed by
	// their sequence number, until expectedSeq catches up to them.
	pendingSeq map[uint16]pendingFragment

	sigFailures int

	lastActivity time.Time

	rc4Out *qcrypto.RC4
	rc4In  *qcrypto.RC4

	reassembler reassembler
}

// reorderWindow bounds how many packets may sit buffered ahead of a gap
// before further out-of-order arrivals are dropped rather than held
// indefinitely.
const reorderWindow = 16

// pendingFragment is one DATA packet buffered by AcceptData while waiting
// for an earlier sequence number to arrive.
type pendingFragment struct {
	fragmentIndex uint32
	ciphertext    []byte
}

// DataFragment is one DATA packet's fragment index and decrypted payload,
// released by AcceptData in sequence order.
type DataFragment struct {
	FragmentIndex uint32
	Payload       []byte
}

// NewConnection creates a connection in StateSynReceived, the state every
// virtual connection starts its observable life in (a SYN has already been
// seen by the time the Table creates one).
func NewConnection(remoteAddr string, sourceVPort, destVPort byte, accessKey []byte, now time.Time) *Connection {
	return &Connection{
		RemoteAddr:   remoteAddr,
		SourceVPort:  sourceVPort,
		DestVPort:    destVPort,
		State:        StateSynReceived,
		AccessKey:    accessKey,
		lastActivity: now,
	}
}

// Touch records packet activity for idle-timeout purposes.
func (c *Connection) Touch(now time.Time) { c.lastActivity = now }

// IdleSince reports how long it has been since the last recorded activity.
func (c *Connection) IdleSince(now time.Time) time.Duration { return now.Sub(c.lastActivity) }

// NextOutSeq returns the next outbound sequence number and advances the
// counter.
func (c *Connection) NextOutSeq() uint16 {
	c.outSeq++
	return c.outSeq
}

// AcceptData records one inbound DATA packet's ciphertext and releases, in
// sequence order, the decrypted payload of every packet that is now
// contiguous with the last one released. A packet that duplicates or
// replays an already-released sequence number is rejected outright. A
// packet that arrives ahead of a gap is buffered (bounded by
// reorderWindow) rather than dropped, so that fragments within the
// reliable window reassemble regardless of UDP delivery order.
//
// Decryption happens here, at release time, rather than at arrival time:
// RC4 is a stateful stream cipher, so its keystream must be consumed in
// original send order or every packet after a reordering desyncs.
func (c *Connection) AcceptData(seq uint16, fragmentIndex uint32, ciphertext []byte) (ready []DataFragment, ok bool) {
	if c.expectedSeq != 0 && seq < c.expectedSeq {
		return nil, false
	}
	if _, duplicate := c.pendingSeq[seq]; duplicate {
		return nil, false
	}

	if c.expectedSeq == 0 {
		// First DATA packet on this connection establishes the baseline;
		// it is always accepted immediately regardless of its value.
		c.expectedSeq = seq
	}

	if seq != c.expectedSeq {
		if len(c.pendingSeq) >= reorderWindow {
			return nil, false
		}
		if c.pendingSeq == nil {
			c.pendingSeq = make(map[uint16]pendingFragment)
		}
		c.pendingSeq[seq] = pendingFragment{fragmentIndex: fragmentIndex, ciphertext: ciphertext}
		return nil, true
	}

	ready = append(ready, DataFragment{FragmentIndex: fragmentIndex, Payload: c.DecryptIn(ciphertext)})
	c.expectedSeq = seq + 1
	for {
		next, buffered := c.pendingSeq[c.expectedSeq]
		if !buffered {
			break
		}
		delete(c.pendingSeq, c.expectedSeq)
		ready = append(ready, DataFragment{FragmentIndex: next.fragmentIndex, Payload: c.DecryptIn(next.ciphertext)})
		c.expectedSeq++
	}
	return ready, true
}

// Authenticate binds a negotiated session key and moves the connection to
// StateAuthenticated, resetting both RC4 keystreams.
func (c *Connection) Authenticate(sessionKey [16]byte, principalID uint32) {
	c.SessionKey = sessionKey
	c.PrincipalID = principalID
	c.rc4Out = qcrypto.NewRC4(sessionKey[:])
	c.rc4In = qcrypto.NewRC4(sessionKey[:])
	c.State = StateAuthenticated
}

// EncryptOut applies this connection's outbound RC4 keystream in place,
// returning the same slice.
func (c *Connection) EncryptOut(b []byte) []byte {
	if c.rc4Out == nil {
		return b
	}
	return c.rc4Out.Apply(b)
}

// DecryptIn applies this connection's inbound RC4 keystream in place,
// returning the same slice. RC4 is symmetric; this exists as a distinct
// method so call sites read correctly.
func (c *Connection) DecryptIn(b []byte) []byte {
	if c.rc4In == nil {
		return b
	}
	return c.rc4In.Apply(b)
}

// RecordSignatureFailure tallies a signature mismatch and reports whether
// the connection has now exceeded its tolerance and must be torn down:
// three consecutive failures close the connection.
func (c *Connection) RecordSignatureFailure() (shouldClose bool) {
	c.sigFailures++
	return c.sigFailures >= maxSignatureFailures
}

// ResetSignatureFailures clears the consecutive-failure counter after a
// packet verifies successfully.
func (c *Connection) ResetSignatureFailures() { c.sigFailures = 0 }

// Close moves the connection to StateClosed and releases its reassembly
// buffer.
func (c *Connection) Close() {
	c.State = StateClosed
	c.reassembler.reset()
}

// Feed reassembles one DATA packet's payload, returning the complete
// message once its terminating fragment arrives.
func (c *Connection) Feed(now time.Time, fragmentIndex uint32, payload []byte) (full []byte, complete bool) {
	return c.reassembler.feed(now, fragmentIndex, payload)
}
