package tftp

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	th "github.com/skycoin/skytftp/internal/testhelpers"
	"github.com/skycoin/skytftp/pkg/fileio"
)

const readWait = 2 * time.Second

func readPacket(t *testing.T, conn net.PacketConn) (Packet, net.Addr) {
	b, addr := th.ReadDatagram(t, conn, readWait)
	p, err := Decode(b)
	require.NoError(t, err)
	return p, addr
}

func writePacket(t *testing.T, conn net.PacketConn, p Packet, to net.Addr) {
	_, err := conn.WriteTo(p.Encode(), to)
	require.NoError(t, err)
}

// newTestSender returns a Sender talking to the returned peer endpoint.
func newTestSender(t *testing.T, conf SenderConfig) (*Sender, net.PacketConn) {
	peer := th.PacketConn(t)
	s := NewSender(th.PacketConn(t), peer.LocalAddr(), conf, nil)
	return s, peer
}

func runSend(ctx context.Context, s *Sender, content []byte) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Send(ctx, content) }()
	return errCh
}

func TestSender_ExactMultiple(t *testing.T) {
	s, peer := newTestSender(t, DefaultSenderConfig())
	errCh := runSend(context.Background(), s, make([]byte, 1024))

	p, from := readPacket(t, peer)
	assert.Equal(t, KindData, p.Kind)
	assert.Equal(t, uint8(1), p.Block)
	assert.Len(t, p.Payload, BlockSize)
	writePacket(t, peer, MakeAck(1), from)

	p, from = readPacket(t, peer)
	assert.Equal(t, uint8(2), p.Block)
	assert.Len(t, p.Payload, BlockSize)
	writePacket(t, peer, MakeAck(2), from)

	// Terminal packet is sent without waiting for an Ack.
	p, _ = readPacket(t, peer)
	assert.Equal(t, MakeData(3, []byte{0}), p)

	require.NoError(t, th.WithinTimeout(errCh))
	assert.Equal(t, StateComplete, s.State())
	assert.Equal(t, Stats{Blocks: 3, Bytes: 1025}, s.Stats())
	th.NoDatagram(t, peer, 50*time.Millisecond)
}

func TestSender_EmptyContent(t *testing.T) {
	s, peer := newTestSender(t, DefaultSenderConfig())
	errCh := runSend(context.Background(), s, nil)

	p, _ := readPacket(t, peer)
	assert.Equal(t, MakeData(1, []byte{0}), p)

	require.NoError(t, th.WithinTimeout(errCh))
	assert.Equal(t, StateComplete, s.State())
}

func TestSender_ShortLastBlock(t *testing.T) {
	content := bytes.Repeat([]byte{'x'}, BlockSize+188)

	s, peer := newTestSender(t, DefaultSenderConfig())
	errCh := runSend(context.Background(), s, content)

	p, from := readPacket(t, peer)
	assert.Equal(t, uint8(1), p.Block)
	writePacket(t, peer, MakeAck(1), from)

	p, _ = readPacket(t, peer)
	assert.Equal(t, uint8(2), p.Block)
	assert.Len(t, p.Payload, 188)

	// No Ack for the short block: the session is already over.
	require.NoError(t, th.WithinTimeout(errCh))
	assert.Equal(t, StateComplete, s.State())
	th.NoDatagram(t, peer, 50*time.Millisecond)
}

func TestSender_RetryBound(t *testing.T) {
	conf := SenderConfig{AckTimeout: 20 * time.Millisecond, MaxAttempts: DefaultMaxAttempts}
	s, peer := newTestSender(t, conf)
	errCh := runSend(context.Background(), s, make([]byte, 3*BlockSize))

	err := th.WithinTimeout(errCh)
	require.Equal(t, ErrRetriesExhausted, err)
	assert.Equal(t, StateFailed, s.State())
	assert.Equal(t, 5, s.Stats().Retransmits)

	// Exactly 6 sends of block 1, and no 7th.
	for i := 0; i < DefaultMaxAttempts; i++ {
		p, _ := readPacket(t, peer)
		assert.Equal(t, KindData, p.Kind)
		assert.Equal(t, uint8(1), p.Block)
	}
	th.NoDatagram(t, peer, 100*time.Millisecond)
}

func TestSender_RetryThenAck(t *testing.T) {
	conf := SenderConfig{AckTimeout: 50 * time.Millisecond, MaxAttempts: DefaultMaxAttempts}
	s, peer := newTestSender(t, conf)
	errCh := runSend(context.Background(), s, make([]byte, BlockSize+1))

	readPacket(t, peer)
	p, from := readPacket(t, peer) // resent after the first timeout
	assert.Equal(t, uint8(1), p.Block)
	writePacket(t, peer, MakeAck(1), from)

	for {
		p, _ = readPacket(t, peer)
		if p.Block == 2 {
			break
		}
	}
	assert.Equal(t, []byte{0}, p.Payload)
	require.NoError(t, th.WithinTimeout(errCh))
	assert.True(t, s.Stats().Retransmits >= 1)
}

func TestSender_NonAckAbandons(t *testing.T) {
	s, peer := newTestSender(t, DefaultSenderConfig())
	errCh := runSend(context.Background(), s, make([]byte, 2*BlockSize))

	_, from := readPacket(t, peer)
	writePacket(t, peer, MakeData(1, []byte("nope")), from)

	err := th.WithinTimeout(errCh)
	require.Error(t, err)
	assert.Equal(t, ErrUnexpectedPacket, errors.Cause(err))
	assert.Equal(t, StateFailed, s.State())
	th.NoDatagram(t, peer, 50*time.Millisecond)
}

func TestSender_AckMismatchMovesCursor(t *testing.T) {
	content := make([]byte, 4*BlockSize+10)
	for i := range content {
		content[i] = byte(i / BlockSize)
	}

	s, peer := newTestSender(t, DefaultSenderConfig())
	errCh := runSend(context.Background(), s, content)

	p, from := readPacket(t, peer)
	require.Equal(t, uint8(1), p.Block)
	writePacket(t, peer, MakeAck(2), from)

	// Cursor is set to the acked value and then advanced: index 3, block 4.
	p, from = readPacket(t, peer)
	require.Equal(t, uint8(4), p.Block)
	assert.Equal(t, content[3*BlockSize:4*BlockSize], p.Payload)
	writePacket(t, peer, MakeAck(4), from)

	p, _ = readPacket(t, peer)
	require.Equal(t, uint8(5), p.Block)
	assert.Len(t, p.Payload, 10)

	require.NoError(t, th.WithinTimeout(errCh))
}

func TestSender_IgnoresUnknownAddress(t *testing.T) {
	s, peer := newTestSender(t, DefaultSenderConfig())
	stranger := th.PacketConn(t)
	errCh := runSend(context.Background(), s, make([]byte, BlockSize+3))

	_, from := readPacket(t, peer)
	writePacket(t, stranger, MakeData(9, nil), from)
	writePacket(t, peer, MakeAck(1), from)

	p, _ := readPacket(t, peer)
	assert.Equal(t, uint8(2), p.Block)
	require.NoError(t, th.WithinTimeout(errCh))
}

func TestSender_ContextCancel(t *testing.T) {
	s, peer := newTestSender(t, DefaultSenderConfig())
	ctx, cancel := context.WithCancel(context.Background())
	errCh := runSend(ctx, s, make([]byte, 2*BlockSize))

	readPacket(t, peer)
	cancel()

	require.Equal(t, context.Canceled, th.WithinTimeout(errCh))
	assert.Equal(t, StateFailed, s.State())
}

func TestSender_ServeFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/srv/hello.txt", []byte("hello"), 0644))
	src, err := fileio.NewSource(fs, "/srv")
	require.NoError(t, err)

	t.Run("ok", func(t *testing.T) {
		s, peer := newTestSender(t, DefaultSenderConfig())
		errCh := make(chan error, 1)
		go func() { errCh <- s.ServeFile(context.Background(), src, "hello.txt") }()

		p, _ := readPacket(t, peer)
		assert.Equal(t, MakeData(1, []byte("hello")), p)
		require.NoError(t, th.WithinTimeout(errCh))
		assert.Equal(t, "hello.txt", s.Filename())
	})

	t.Run("not found", func(t *testing.T) {
		s, peer := newTestSender(t, DefaultSenderConfig())
		errCh := make(chan error, 1)
		go func() { errCh <- s.ServeFile(context.Background(), src, "missing.txt") }()

		p, _ := readPacket(t, peer)
		assert.Equal(t, MakeError(msgFileNotFound), p)

		err := th.WithinTimeout(errCh)
		require.Error(t, err)
		assert.Equal(t, ErrFileUnavailable, errors.Cause(err))
		assert.Equal(t, StateFailed, s.State())
		th.NoDatagram(t, peer, 50*time.Millisecond)
	})
}
