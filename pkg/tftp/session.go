package tftp

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/skycoin/skycoin/src/util/logging"
)

// Session errors.
var (
	ErrTimeout          = errors.New("timed out waiting for packet")
	ErrRetriesExhausted = errors.New("no acknowledgement after max attempts")
	ErrUnexpectedPacket = errors.New("unexpected packet kind")
	ErrFileUnavailable  = errors.New("file unavailable")
	ErrPeerError        = errors.New("peer reported an error")
)

var log = logging.MustGetLogger("tftp")

// State is the lifecycle state of a transfer session.
type State int32

// Session states.
const (
	StateIdle State = iota
	StateActive
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Role is the direction of a session.
type Role byte

// Session roles.
const (
	RoleSender Role = iota
	RoleReceiver
)

func (r Role) String() string {
	if r == RoleSender {
		return "sender"
	}
	return "receiver"
}

// Stats are the counters of a session.
type Stats struct {
	Blocks      int `json:"blocks"`      // Data packets written to the sink (receiver) or delivered (sender).
	Bytes       int `json:"bytes"`       // Payload bytes appended or sent.
	Retransmits int `json:"retransmits"` // Data packets sent again after an ack timeout.
	Duplicates  int `json:"duplicates"`  // Full blocks discarded as duplicates.
}

// session holds what the Sender and the Receiver share: one endpoint owned for
// the whole lifetime, the peer address and the lifecycle state.
type session struct {
	id   uuid.UUID
	role Role
	conn net.PacketConn
	peer net.Addr
	log  logrus.FieldLogger
	buf  []byte

	state    int32
	started  time.Time
	finished time.Time
	err      error
	stats    Stats
	mx       sync.Mutex

	done      chan struct{}
	doneOnce  sync.Once
	closeOnce sync.Once
}

func newSession(role Role, conn net.PacketConn, peer net.Addr, logger logrus.FieldLogger) *session {
	if logger == nil {
		logger = log
	}
	id := uuid.New()
	return &session{
		id:      id,
		role:    role,
		conn:    conn,
		peer:    peer,
		log:     logger.WithField("session", id).WithField("role", role),
		buf:     make([]byte, MaxDatagramSize),
		started: time.Now(),
		done:    make(chan struct{}),
	}
}

// ID returns the session id.
func (s *session) ID() uuid.UUID { return s.id }

// Role returns the session role.
func (s *session) Role() Role { return s.role }

// State returns the current lifecycle state.
func (s *session) State() State { return State(atomic.LoadInt32(&s.state)) }

func (s *session) setState(st State) { atomic.StoreInt32(&s.state, int32(st)) }

// Done is closed once the session reaches StateComplete or StateFailed.
func (s *session) Done() <-chan struct{} { return s.done }

// LocalAddr returns the address of the session endpoint.
func (s *session) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// Peer returns the correspondent address.
func (s *session) Peer() net.Addr {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.peer
}

func (s *session) setPeer(addr net.Addr) {
	s.mx.Lock()
	s.peer = addr
	s.mx.Unlock()
}

// Err returns the error the session ended with, if any.
func (s *session) Err() error {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.err
}

// Stats returns a snapshot of the session counters.
func (s *session) Stats() Stats {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.stats
}

// Duration returns how long the session ran, or has been running.
func (s *session) Duration() time.Duration {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.finished.IsZero() {
		return time.Since(s.started)
	}
	return s.finished.Sub(s.started)
}

// Started returns the session start time.
func (s *session) Started() time.Time { return s.started }

// Finished returns the time the session ended, zero while it is running.
func (s *session) Finished() time.Time {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.finished
}

func (s *session) updateStats(f func(st *Stats)) {
	s.mx.Lock()
	f(&s.stats)
	s.mx.Unlock()
}

func (s *session) send(p Packet) error {
	if _, err := s.conn.WriteTo(p.Encode(), s.Peer()); err != nil {
		return errors.Wrapf(err, "failed to send %s", p.Kind)
	}
	return nil
}

// recv blocks until a decodable datagram arrives or the deadline passes.
// Malformed datagrams are dropped without moving the deadline.
func (s *session) recv(ctx context.Context, deadline time.Time) (Packet, net.Addr, error) {
	if err := ctx.Err(); err != nil {
		return Packet{}, nil, err
	}
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return Packet{}, nil, errors.Wrap(err, "failed to set read deadline")
	}
	for {
		n, addr, err := s.conn.ReadFrom(s.buf)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Packet{}, nil, ctxErr
			}
			if nErr, ok := err.(net.Error); ok && nErr.Timeout() {
				return Packet{}, nil, ErrTimeout
			}
			return Packet{}, nil, err
		}
		p, err := Decode(s.buf[:n])
		if err != nil {
			s.log.WithField("from", addr).WithError(err).Debug("Dropping datagram.")
			continue
		}
		return p, addr, nil
	}
}

// watch closes the endpoint when ctx is cancelled, unblocking a pending recv.
func (s *session) watch(ctx context.Context) (stop func()) {
	stopCh := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.closeConn()
		case <-stopCh:
		case <-s.done:
		}
	}()
	return func() { close(stopCh) }
}

func (s *session) closeConn() {
	s.closeOnce.Do(func() {
		if err := s.conn.Close(); err != nil {
			s.log.WithError(err).Debug("Failed to close endpoint.")
		}
	})
}

// finish moves the session to its terminal state and releases the endpoint.
// A nil err means StateComplete. Only the first call has an effect; it returns err unchanged.
func (s *session) finish(err error) error {
	s.doneOnce.Do(func() {
		s.mx.Lock()
		s.err = err
		s.finished = time.Now()
		s.mx.Unlock()

		if err != nil {
			s.setState(StateFailed)
		} else {
			s.setState(StateComplete)
		}
		s.closeConn()
		close(s.done)
	})
	return err
}

func sameAddr(a, b net.Addr) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Network() == b.Network() && a.String() == b.String()
}
