package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"go_mini_ftp/auth"
	"go_mini_ftp/constants"
	"go_mini_ftp/fileio"
)

// MetricsCollector receives session events. Implementations must not block.
type MetricsCollector interface {
	SessionStarted()
	SessionEnded(outcome string)
	RecordAuthentication(success bool)
	RecordCommand(verb string)
	RecordTransfer(outcome string, bytes int64, duration time.Duration)
}

type Options struct {
	ServerName  string
	Version     string
	IdleTimeout time.Duration // Read/write deadline, zero disables
	MaxSessions int           // 1 serves connections strictly one after another
	DSCP        int
	Metrics     MetricsCollector
	Logger      zerolog.Logger
}

type Server struct {
	gate     *auth.Gate
	source   fileio.Source
	opts     Options
	logger   zerolog.Logger
	sessions sync.WaitGroup
}

// NewServer builds a server answering RETR from source for users the gate accepts
func NewServer(gate *auth.Gate, source fileio.Source, opts Options) *Server {
	if opts.ServerName == "" {
		opts.ServerName = constants.DEFAULT_SERVER_NAME
	}
	if opts.Version == "" {
		opts.Version = constants.DEFAULT_VERSION
	}
	if opts.MaxSessions < 1 {
		opts.MaxSessions = constants.DEFAULT_SESSIONS
	}
	return &Server{
		gate:   gate,
		source: source,
		opts:   opts,
		logger: opts.Logger,
	}
}

// ListenAndServe binds addr and serves until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	lc := new(net.ListenConfig)
	l, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("could not bind listening socket on %s: %w", addr, err)
	}
	s.logger.Info().Str("addr", l.Addr().String()).Msg("listening")
	return s.Serve(ctx, l)
}

// Serve accepts connections from l until ctx is cancelled. With
// MaxSessions of 1 each connection is served to completion before the
// next is accepted; otherwise up to MaxSessions run concurrently.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()
	defer s.sessions.Wait()
	defer l.Close()

	var slots chan struct{}
	if s.opts.MaxSessions > 1 {
		slots = make(chan struct{}, s.opts.MaxSessions)
	}

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.logger.Warn().Err(err).Msg("failed to establish incoming connection")
			// Avoid spinning on persistent failures such as EMFILE.
			time.Sleep(10 * time.Millisecond)
			continue
		}

		if slots == nil {
			s.ServeConn(ctx, conn)
			continue
		}

		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			conn.Close()
			return nil
		}
		s.sessions.Add(1)
		go func() {
			defer s.sessions.Done()
			defer func() { <-slots }()
			s.ServeConn(ctx, conn)
		}()
	}
}

// ServeConn runs one complete session on conn and closes it. Cancelling
// ctx closes the connection, ending the session at its next read or write.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	newSession(s, conn).serve()
}

func (s *Server) sessionStarted() {
	if s.opts.Metrics != nil {
		s.opts.Metrics.SessionStarted()
	}
}

func (s *Server) sessionEnded(outcome string) {
	if s.opts.Metrics != nil {
		s.opts.Metrics.SessionEnded(outcome)
	}
}

func (s *Server) recordAuthentication(success bool) {
	if s.opts.Metrics != nil {
		s.opts.Metrics.RecordAuthentication(success)
	}
}

func (s *Server) recordCommand(verb string) {
	if s.opts.Metrics != nil {
		s.opts.Metrics.RecordCommand(verb)
	}
}

func (s *Server) recordTransfer(outcome string, bytes int64, duration time.Duration) {
	if s.opts.Metrics != nil {
		s.opts.Metrics.RecordTransfer(outcome, bytes, duration)
	}
}
