// Package testhelpers provides helpers for testing.
package testhelpers

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/nettest"
)

const timeout = 5 * time.Second

// WithinTimeout tries to read an error from error channel within timeout and returns it.
// If timeout exceeds, nil value is returned.
func WithinTimeout(ch <-chan error) error {
	select {
	case err := <-ch:
		return err
	case <-time.After(timeout):
		return nil
	}
}

// NoErrorN performs require.NoError on multiple errors
func NoErrorN(t *testing.T, errs ...error) {
	for _, err := range errs {
		require.NoError(t, err)
	}
}

// PacketConn opens a local UDP endpoint and closes it when the test ends.
func PacketConn(t *testing.T) net.PacketConn {
	conn, err := nettest.NewLocalPacketListener("udp")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() }) // nolint
	return conn
}

// ReadDatagram reads one datagram from conn, failing the test if none arrives within d.
func ReadDatagram(t *testing.T, conn net.PacketConn, d time.Duration) ([]byte, net.Addr) {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(d)))
	buf := make([]byte, 2048)
	n, addr, err := conn.ReadFrom(buf)
	require.NoError(t, err)
	return buf[:n], addr
}

// NoDatagram fails the test if a datagram arrives on conn within d.
func NoDatagram(t *testing.T, conn net.PacketConn, d time.Duration) {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(d)))
	buf := make([]byte, 2048)
	n, _, err := conn.ReadFrom(buf)
	require.Error(t, err, "unexpected datagram: %v", buf[:n])
	nErr, ok := err.(net.Error)
	require.True(t, ok && nErr.Timeout(), "expected timeout, got %v", err)
}
