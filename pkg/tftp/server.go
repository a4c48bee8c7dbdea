package tftp

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/skycoin/skytftp/internal/metrics"
	"github.com/skycoin/skytftp/pkg/fileio"
	"github.com/skycoin/skytftp/pkg/transferlog"
)

// Server errors.
var (
	ErrServerStarted = errors.New("server already started")
	ErrServerClosed  = errors.New("server closed")
)

// ServerOption configures a Server.
type ServerOption func(s *Server)

// SetLogger sets the server logger.
func SetLogger(l *logging.Logger) ServerOption {
	return func(s *Server) { s.Logger = l }
}

// SetMetrics sets the metrics recorder fed with every finished session.
func SetMetrics(m metrics.Recorder) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// SetTransferLog sets the store finished sessions are recorded to.
func SetTransferLog(tl transferlog.Store) ServerOption {
	return func(s *Server) { s.transfers = tl }
}

// Server accepts Requests on the well-known port and hands each of them to a
// Sender running on its own ephemeral endpoint.
type Server struct {
	Logger *logging.Logger

	conf      *Config
	files     fileio.Source
	metrics   metrics.Recorder
	transfers transferlog.Store
	sessions  *Registry

	conn   net.PacketConn
	closed bool
	mx     sync.Mutex

	wg sync.WaitGroup
}

// NewServer creates a Server sending files from the given source.
func NewServer(conf *Config, files fileio.Source, opts ...ServerOption) *Server {
	if conf == nil {
		conf = DefaultConfig()
	}
	s := &Server{
		Logger:    logging.MustGetLogger("tftp_server"),
		conf:      conf,
		files:     files,
		metrics:   metrics.NewDummy(),
		transfers: transferlog.InMemoryStore(),
		sessions:  NewRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sessions returns the registry of active sessions.
func (s *Server) Sessions() *Registry { return s.sessions }

// TransferLog returns the store finished sessions are recorded to.
func (s *Server) TransferLog() transferlog.Store { return s.transfers }

// Addr returns the well-known address, nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// ListenAndServe listens on the configured address and serves.
func (s *Server) ListenAndServe(ctx context.Context) error {
	conn, err := net.ListenPacket("udp", s.conf.Address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, conn)
}

// Serve reads Requests from conn until conn is closed or ctx is done.
// Running sessions are cancelled and waited for before it returns.
func (s *Server) Serve(ctx context.Context, conn net.PacketConn) error {
	s.mx.Lock()
	if s.closed {
		s.mx.Unlock()
		conn.Close() // nolint
		return ErrServerClosed
	}
	if s.conn != nil {
		s.mx.Unlock()
		return ErrServerStarted
	}
	s.conn = conn
	s.mx.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer s.wg.Wait()
	defer cancel()

	go func() {
		<-ctx.Done()
		s.closeConn()
	}()

	s.Logger.Infof("serving: addr(%s) root(%s)", conn.LocalAddr(), s.conf.Root)

	buf := make([]byte, MaxDatagramSize)
	for {
		if n := s.sessions.Prune(); n > 0 {
			s.Logger.Debugf("pruned %d finished sessions", n)
		}
		s.metrics.SetActive(s.sessions.Len())

		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if s.isClosed() {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
		s.handleDatagram(ctx, buf[:n], addr)
	}
}

// Close stops accepting Requests. Serve returns once running sessions end.
func (s *Server) Close() error {
	s.mx.Lock()
	s.closed = true
	s.mx.Unlock()
	return s.closeConn()
}

func (s *Server) isClosed() bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.closed
}

func (s *Server) closeConn() error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *Server) handleDatagram(ctx context.Context, b []byte, addr net.Addr) {
	p, err := Decode(b)
	if err != nil {
		s.Logger.WithField("from", addr).WithError(err).Debug("Dropping datagram.")
		return
	}

	switch p.Kind {
	case KindRequest:
		s.startSession(ctx, string(p.Payload), addr)

	case KindAck:
		s.Logger.WithField("from", addr).Info("ACK found, sending error to client.")
		if _, err := s.conn.WriteTo(MakeError(msgIllegalOp).Encode(), addr); err != nil {
			s.Logger.WithError(err).Warn("Failed to send error packet.")
		}

	default:
		s.Logger.WithField("from", addr).WithField("kind", p.Kind).Debug("Ignoring packet.")
	}
}

func (s *Server) startSession(ctx context.Context, filename string, addr net.Addr) {
	log := s.Logger.WithField("peer", addr).WithField("file", filename)

	ep, err := s.newEndpoint()
	if err != nil {
		log.WithError(err).Warn("Failed to open session endpoint.")
		return
	}

	sn := NewSender(ep, addr, s.conf.SenderConfig(), log)
	s.sessions.Add(sn)
	log.WithField("session", sn.ID()).WithField("local", ep.LocalAddr()).Info("Session started.")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		err := sn.ServeFile(ctx, s.files, filename)
		s.metrics.Record(sn.Duration(), sn.Stats().Bytes, err != nil)
		s.recordTransfer(sn)

		log := log.WithField("session", sn.ID()).WithField("duration", sn.Duration())
		if err != nil {
			log.WithError(err).Warn("Session failed.")
			return
		}
		log.Info("Session completed.")
	}()
}

// newEndpoint opens an ephemeral endpoint on the host of the well-known one.
func (s *Server) newEndpoint() (net.PacketConn, error) {
	laddr := s.conn.LocalAddr()
	host := ""
	if udpAddr, ok := laddr.(*net.UDPAddr); ok && !udpAddr.IP.IsUnspecified() {
		host = udpAddr.IP.String()
	}
	return net.ListenPacket(laddr.Network(), net.JoinHostPort(host, "0"))
}

func (s *Server) recordTransfer(sn *Sender) {
	st := sn.Stats()
	entry := &transferlog.Entry{
		ID:          sn.ID(),
		Role:        sn.Role().String(),
		Filename:    sn.Filename(),
		Peer:        sn.Peer().String(),
		State:       sn.State().String(),
		Blocks:      st.Blocks,
		Bytes:       st.Bytes,
		Retransmits: st.Retransmits,
		Started:     sn.Started(),
		Finished:    sn.Finished(),
	}
	if err := sn.Err(); err != nil {
		entry.Error = err.Error()
	}
	if err := s.transfers.Record(entry); err != nil {
		s.Logger.WithError(err).Warn("Failed to record transfer.")
	}
}
