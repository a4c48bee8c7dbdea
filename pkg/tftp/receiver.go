package tftp

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/skycoin/skytftp/pkg/fileio"
)

// DefaultReceiveTimeout is how long the Receiver waits for each packet.
const DefaultReceiveTimeout = 30 * time.Second

// ReceiverConfig configures a Receiver.
type ReceiverConfig struct {
	// Timeout bounds every wait for the next packet. There is no retry.
	Timeout time.Duration

	// StopOnError ends the session as soon as the peer sends an Error packet.
	// By default the diagnostic is recorded and the receive loop continues.
	StopOnError bool
}

func (c ReceiverConfig) withDefaults() ReceiverConfig {
	if c.Timeout <= 0 {
		c.Timeout = DefaultReceiveTimeout
	}
	return c
}

// Receiver is the client side of a transfer: it requests one file and
// appends the received blocks to a sink.
type Receiver struct {
	*session
	conf ReceiverConfig
	sink fileio.Sink

	bound       bool
	prev        uint8
	diagnostics []string
}

// NewReceiver creates a Receiver owning conn. The Request is sent to server;
// the address that answers first becomes the correspondent for the rest of the session.
func NewReceiver(conn net.PacketConn, server net.Addr, sink fileio.Sink, conf ReceiverConfig, logger logrus.FieldLogger) *Receiver {
	return &Receiver{
		session: newSession(RoleReceiver, conn, server, logger),
		conf:    conf.withDefaults(),
		sink:    sink,
	}
}

// Diagnostics returns the payloads of the Error packets received so far.
func (r *Receiver) Diagnostics() []string {
	r.mx.Lock()
	defer r.mx.Unlock()
	out := make([]string, len(r.diagnostics))
	copy(out, r.diagnostics)
	return out
}

// Fetch requests filename and receives it until the terminal block arrives.
func (r *Receiver) Fetch(ctx context.Context, filename string) error {
	stop := r.watch(ctx)
	defer stop()

	log := r.log.WithField("file", filename)
	if err := r.send(MakeRequest(filename)); err != nil {
		return r.finish(err)
	}
	log.WithField("server", r.Peer()).Info("Request sent.")

	deadline := time.Now().Add(r.conf.Timeout)
	for {
		p, addr, err := r.recv(ctx, deadline)
		if err != nil {
			if err == ErrTimeout {
				log.Warn("Server not responding, closing connection.")
			}
			return r.finish(err)
		}

		if !r.bound {
			r.setPeer(addr)
			r.bound = true
			r.setState(StateActive)
			log.WithField("peer", addr).Debug("Bound to transfer endpoint.")
		} else if !sameAddr(addr, r.Peer()) {
			log.WithField("from", addr).Debug("Ignoring packet from unknown address.")
			continue
		}
		deadline = time.Now().Add(r.conf.Timeout)

		switch p.Kind {
		case KindData:
		case KindError:
			msg := string(p.Payload)
			r.mx.Lock()
			r.diagnostics = append(r.diagnostics, msg)
			r.mx.Unlock()
			log.WithField("diagnostic", msg).Warn("Peer reported an error.")
			if r.conf.StopOnError {
				return r.finish(errors.Wrap(ErrPeerError, msg))
			}
			continue
		default:
			log.WithField("received", p).Debug("Ignoring unexpected packet.")
			continue
		}

		if isFinal(len(p.Payload)) {
			if err := r.accept(p); err != nil {
				return r.finish(err)
			}
			log.WithField("block", p.Block).Info("All blocks received.")
			return r.finish(nil)
		}

		if p.Block == r.prev+1 {
			if err := r.accept(p); err != nil {
				return r.finish(err)
			}
			r.prev = p.Block
		} else {
			r.updateStats(func(st *Stats) { st.Duplicates++ })
			log.WithField("block", p.Block).WithField("expected", r.prev+1).Info("Duplicate block received, not writing to file.")
		}

		// Acked whether or not the block was accepted.
		if err := r.send(MakeAck(p.Block)); err != nil {
			return r.finish(err)
		}
	}
}

func (r *Receiver) accept(p Packet) error {
	if err := r.sink.Append(p.Payload); err != nil {
		return errors.Wrapf(err, "failed to write block %d", p.Block)
	}
	r.updateStats(func(st *Stats) {
		st.Blocks++
		st.Bytes += len(p.Payload)
	})
	return nil
}
