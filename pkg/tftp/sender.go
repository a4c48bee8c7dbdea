package tftp

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/skycoin/skytftp/pkg/fileio"
)

const (
	// DefaultAckTimeout is how long the Sender waits for each Ack attempt.
	DefaultAckTimeout = 5 * time.Second

	// DefaultMaxAttempts is the number of Data sends allowed per block (1 initial + 5 retries).
	DefaultMaxAttempts = 6
)

// Diagnostics sent to the peer in Error packets.
const (
	msgFileNotFound = "File not found"
	msgReadError    = "Error reading file"
	msgIllegalOp    = "illegal operation"
)

// SenderConfig configures the retry discipline of a Sender.
type SenderConfig struct {
	AckTimeout  time.Duration
	MaxAttempts int
}

// DefaultSenderConfig returns the 5s / 6 attempts configuration.
func DefaultSenderConfig() SenderConfig {
	return SenderConfig{
		AckTimeout:  DefaultAckTimeout,
		MaxAttempts: DefaultMaxAttempts,
	}
}

func (c SenderConfig) withDefaults() SenderConfig {
	if c.AckTimeout <= 0 {
		c.AckTimeout = DefaultAckTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	return c
}

// Sender is the server side of a transfer: it delivers one file to one peer,
// lockstep with the peer's Acks.
type Sender struct {
	*session
	conf     SenderConfig
	filename string
}

// NewSender creates a Sender owning conn and talking to peer.
// The Sender closes conn when the transfer ends.
func NewSender(conn net.PacketConn, peer net.Addr, conf SenderConfig, logger logrus.FieldLogger) *Sender {
	return &Sender{
		session: newSession(RoleSender, conn, peer, logger),
		conf:    conf.withDefaults(),
	}
}

// Filename returns the requested filename, once ServeFile was called.
func (s *Sender) Filename() string { return s.filename }

// ServeFile reads name from src and sends it. When the file cannot be read an
// Error packet is sent to the peer and the session fails without retrying.
func (s *Sender) ServeFile(ctx context.Context, src fileio.Source, name string) error {
	s.filename = name

	content, err := src.ReadFile(name)
	if err != nil {
		msg := msgReadError
		if errors.Cause(err) == fileio.ErrNotFound {
			msg = msgFileNotFound
		}
		s.log.WithError(err).Warnf("Failed to read requested file %q.", name)
		if sErr := s.send(MakeError(msg)); sErr != nil {
			s.log.WithError(sErr).Warn("Failed to report read error to peer.")
		}
		return s.finish(errors.Wrap(ErrFileUnavailable, err.Error()))
	}

	return s.Send(ctx, content)
}

// Send delivers content as a sequence of Data packets.
func (s *Sender) Send(ctx context.Context, content []byte) error {
	stop := s.watch(ctx)
	defer stop()

	s.setState(StateActive)
	blocks := Partition(content)
	s.log.WithField("blocks", len(blocks)).WithField("size", len(content)).Info("Sending file.")

	for i := 0; i < len(blocks); i++ {
		block := blocks[i]
		pkt := MakeData(blockNumber(i), block)

		if err := s.send(pkt); err != nil {
			return s.finish(err)
		}
		s.updateStats(func(st *Stats) {
			st.Blocks++
			st.Bytes += len(block)
		})

		if isFinal(len(block)) {
			s.log.WithField("block", pkt.Block).Info("Last block sent.")
			return s.finish(nil)
		}

		ack, err := s.awaitAck(ctx, pkt)
		if err != nil {
			return s.finish(err)
		}
		if ack != pkt.Block {
			// The cursor follows the acknowledged number; the loop increment then
			// moves past it.
			s.log.WithField("sent", pkt.Block).WithField("acked", ack).Warn("Ack mismatch, moving block cursor.")
			i = int(ack)
		}
	}

	term := MakeData(blockNumber(len(blocks)), terminalPayload)
	if err := s.send(term); err != nil {
		return s.finish(err)
	}
	s.updateStats(func(st *Stats) {
		st.Blocks++
		st.Bytes += len(terminalPayload)
	})
	s.log.WithField("block", term.Block).Info("All blocks sent.")
	return s.finish(nil)
}

// awaitAck waits for the Ack of pkt, resending pkt on every timeout until
// MaxAttempts sends were made.
func (s *Sender) awaitAck(ctx context.Context, pkt Packet) (uint8, error) {
	attempts := 1
	deadline := time.Now().Add(s.conf.AckTimeout)

	for {
		p, addr, err := s.recv(ctx, deadline)
		switch {
		case err == ErrTimeout:
			if attempts >= s.conf.MaxAttempts {
				s.log.WithField("block", pkt.Block).WithField("attempts", attempts).Warn("No response, closing transfer.")
				return 0, ErrRetriesExhausted
			}
			s.log.WithField("block", pkt.Block).Info("No response, resending.")
			if err := s.send(pkt); err != nil {
				return 0, err
			}
			attempts++
			s.updateStats(func(st *Stats) { st.Retransmits++ })
			deadline = time.Now().Add(s.conf.AckTimeout)
			continue

		case err != nil:
			return 0, err
		}

		if !sameAddr(addr, s.Peer()) {
			s.log.WithField("from", addr).Debug("Ignoring packet from unknown address.")
			continue
		}
		if p.Kind != KindAck {
			s.log.WithField("received", p).Warn("Invalid ack.")
			return 0, errors.Wrap(ErrUnexpectedPacket, p.Kind.String())
		}
		return p.Block, nil
	}
}
