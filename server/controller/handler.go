package server

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"go_mini_ftp/auth"
	"go_mini_ftp/constants"
	"go_mini_ftp/fileio"
	"go_mini_ftp/networking"
	"go_mini_ftp/networking/replycode"
)

// Session outcomes as reported to metrics and logs.
const (
	OUTCOME_QUIT      = "quit"
	OUTCOME_REJECTED  = "rejected"
	OUTCOME_CLOSED    = "closed"
	OUTCOME_INVALID   = "invalid_command"
	OUTCOME_TRANSPORT = "transport_error"
)

// Transfer outcomes.
const (
	TRANSFER_COMPLETE    = "complete"
	TRANSFER_NOT_FOUND   = "not_found"
	TRANSFER_READ_ERROR  = "read_error"
	TRANSFER_WRITE_ERROR = "write_error"
)

// session is the state of one client connection, from greeting to close
type session struct {
	server    *Server
	conn      net.Conn
	rw        io.ReadWriter
	decoder   *networking.Decoder
	user      string
	logger    zerolog.Logger
	closeOnce sync.Once
}

func newSession(s *Server, conn net.Conn) *session {
	rw := &networking.DeadlineConn{Conn: conn, Timeout: s.opts.IdleTimeout}
	return &session{
		server:  s,
		conn:    conn,
		rw:      rw,
		decoder: networking.NewDecoder(rw),
		logger: s.logger.With().
			Str("session", sessionID()).
			Str("remote", remoteAddr(conn)).
			Logger(),
	}
}

// close releases the transport. Safe to call more than once.
func (s *session) close() {
	s.closeOnce.Do(func() {
		s.conn.Close()
	})
}

// serve drives the session through greeting, authentication and the
// command loop. The transport is always closed on return.
func (s *session) serve() {
	begin := time.Now()
	outcome := OUTCOME_CLOSED

	s.server.sessionStarted()
	defer func() {
		s.close()
		s.server.sessionEnded(outcome)
		s.logger.Info().
			Str("outcome", outcome).
			Dur("duration", time.Since(begin)).
			Msg("client disconnected")
	}()

	if err := networking.SetDSCP(s.conn, s.server.opts.DSCP); err != nil {
		s.logger.Debug().Err(err).Int("dscp", s.server.opts.DSCP).Msg("could not mark connection")
	}
	s.logger.Info().Msg("new connection")

	if err := s.greet(); err != nil {
		outcome = outcomeOf(err)
		return
	}
	if err := s.authenticate(); err != nil {
		outcome = outcomeOf(err)
		return
	}
	outcome = outcomeOf(s.operate())
}

// greet sends the service banner
func (s *session) greet() error {
	return networking.WriteReply(s.rw, replycode.SERVICE_READY, s.server.opts.ServerName, s.server.opts.Version)
}

// authenticate handles the USER/PASS exchange. Any error ends the session.
func (s *session) authenticate() error {
	user, err := s.decoder.Expect(networking.USER)
	if err != nil {
		s.logCommandError(err, networking.USER)
		return err
	}
	s.server.recordCommand(user.Verb)

	if err := networking.WriteReply(s.rw, replycode.PASS_REQUIRED, user.Arg); err != nil {
		return err
	}

	pass, err := s.decoder.Expect(networking.PASS)
	if err != nil {
		s.logCommandError(err, networking.PASS)
		return err
	}
	s.server.recordCommand(pass.Verb)

	if err := s.server.gate.Authorize(user.Arg, pass.Arg); err != nil {
		s.server.recordAuthentication(false)
		s.logger.Warn().Str("user", user.Arg).Msg("incorrect user or password")
		if werr := networking.WriteReply(s.rw, replycode.LOGIN_INCORRECT); werr != nil {
			return errors.Join(err, werr)
		}
		s.close()
		return err
	}
	s.server.recordAuthentication(true)

	if err := networking.WriteReply(s.rw, replycode.LOGGED_IN, user.Arg); err != nil {
		return err
	}
	s.user = user.Arg
	s.logger = s.logger.With().Str("user", s.user).Logger()
	s.logger.Info().Msg("user logged in")
	return nil
}

// operate reads commands until QUIT or until the session must end.
// A nil return means the client quit cleanly.
func (s *session) operate() error {
	for {
		cmd, err := s.decoder.ReadCommand()
		if err != nil {
			s.logCommandError(err, "")
			return err
		}
		s.server.recordCommand(cmd.Verb)

		switch cmd.Verb {
		case networking.RETR:
			if err := s.retrieve(cmd.Arg); err != nil {
				return err
			}
		case networking.QUIT:
			s.logger.Debug().Msg("client quit")
			return networking.WriteReply(s.rw, replycode.GOODBYE)
		default:
			s.logger.Warn().Str("verb", cmd.Verb).Msg("invalid command")
			return fmt.Errorf("%w: %s", networking.ErrInvalidCommand, cmd.Verb)
		}
	}
}

// retrieve announces and streams one resource. Only transport failures are
// returned; a missing resource or a failed read leaves the session usable.
func (s *session) retrieve(path string) error {
	res, err := s.server.source.Open(path)
	if err != nil {
		s.logger.Info().Err(err).Str("path", path).Msg("open file error")
		s.server.recordTransfer(TRANSFER_NOT_FOUND, 0, 0)
		return networking.WriteReply(s.rw, replycode.NO_SUCH_FILE, path)
	}
	defer res.Close()

	size := res.Size()
	if err := (networking.Announcement{Path: path, Size: size}).Write(s.rw); err != nil {
		return err
	}

	begin := time.Now()
	var sent int64
	// Never send more than was announced, even if the file grows meanwhile.
	chunks := fileio.NewChunkReader(io.LimitReader(res, size), constants.FRAME_SIZE)
	for {
		chunk, err := chunks.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.logger.Error().Err(err).Str("path", path).Int64("sent", sent).Msg("read file error")
			s.server.recordTransfer(TRANSFER_READ_ERROR, sent, time.Since(begin))
			return nil
		}
		if err := networking.WriteChunk(s.rw, chunk); err != nil {
			s.logger.Error().Err(err).Str("path", path).Int64("sent", sent).Msg("send file error")
			s.server.recordTransfer(TRANSFER_WRITE_ERROR, sent, time.Since(begin))
			return err
		}
		sent += int64(len(chunk))
	}

	elapsed := time.Since(begin)
	if sent < size {
		// Resource shrank underneath us. The client cannot resynchronise.
		s.logger.Error().Str("path", path).Int64("sent", sent).Int64("size", size).Msg("file truncated during transfer")
		s.server.recordTransfer(TRANSFER_READ_ERROR, sent, elapsed)
		return fmt.Errorf("%w: %s truncated after %d of %d bytes", fileio.ErrResourceRead, path, sent, size)
	}

	s.server.recordTransfer(TRANSFER_COMPLETE, sent, elapsed)
	s.logger.Info().Str("path", path).Int64("bytes", sent).Dur("duration", elapsed).Msg("transfer complete")
	return networking.WriteReply(s.rw, replycode.TRANSFER_COMPLETE)
}

// logCommandError reports why command input ended the session
func (s *session) logCommandError(err error, expected string) {
	switch {
	case errors.Is(err, networking.ErrConnectionClosed):
		s.logger.Debug().Msg("client closed connection")
	case errors.Is(err, networking.ErrInvalidCommand), errors.Is(err, networking.ErrUnexpectedCommand):
		ev := s.logger.Warn().Err(err)
		if expected != "" {
			ev = ev.Str("expected", expected)
		}
		ev.Msg("incorrect command")
	default:
		s.logger.Error().Err(err).Msg("connection error")
	}
}

// outcomeOf classifies the error that ended a session
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OUTCOME_QUIT
	case errors.Is(err, auth.ErrAuthenticationRejected):
		return OUTCOME_REJECTED
	case errors.Is(err, networking.ErrConnectionClosed):
		return OUTCOME_CLOSED
	case errors.Is(err, networking.ErrInvalidCommand), errors.Is(err, networking.ErrUnexpectedCommand):
		return OUTCOME_INVALID
	default:
		return OUTCOME_TRANSPORT
	}
}

func sessionID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "00000000"
	}
	return hex.EncodeToString(b)
}

func remoteAddr(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}
