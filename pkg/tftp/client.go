package tftp

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/skycoin/skytftp/pkg/fileio"
)

// Client fetches files from a Server.
type Client struct {
	Logger *logging.Logger

	// ServerAddr is the well-known address of the server, host:port.
	ServerAddr  string
	Timeout     time.Duration
	StopOnError bool
}

// NewClient creates a Client for the server at host:port.
func NewClient(host string, port int) *Client {
	return &Client{
		Logger:     logging.MustGetLogger("tftp_client"),
		ServerAddr: net.JoinHostPort(host, strconv.Itoa(port)),
		Timeout:    DefaultReceiveTimeout,
	}
}

// Result summarizes a finished Get.
type Result struct {
	ID          uuid.UUID     `json:"id"`
	State       State         `json:"state"`
	Stats       Stats         `json:"stats"`
	Diagnostics []string      `json:"diagnostics,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// Get requests filename and appends its content to sink.
// The returned Result is non-nil whenever the session was started.
func (c *Client) Get(ctx context.Context, filename string, sink fileio.Sink) (*Result, error) {
	raddr, err := net.ResolveUDPAddr("udp", c.ServerAddr)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve %s", c.ServerAddr)
	}

	conn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open endpoint")
	}

	logger := c.Logger
	if logger == nil {
		logger = logging.MustGetLogger("tftp_client")
	}

	r := NewReceiver(conn, raddr, sink, ReceiverConfig{
		Timeout:     c.Timeout,
		StopOnError: c.StopOnError,
	}, logger)

	err = r.Fetch(ctx, filename)
	return &Result{
		ID:          r.ID(),
		State:       r.State(),
		Stats:       r.Stats(),
		Diagnostics: r.Diagnostics(),
		Duration:    r.Duration(),
	}, err
}
