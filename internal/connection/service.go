package connection

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/adred-codev/natsd/internal/config"
	"github.com/adred-codev/natsd/internal/metrics"
	"github.com/adred-codev/natsd/internal/monitoring"
	"github.com/adred-codev/natsd/internal/protocol"
	"github.com/adred-codev/natsd/internal/ratelimit"
	"github.com/adred-codev/natsd/internal/router"
)

// Service owns one accepted connection end to end: it sends INFO, runs the
// read-decode-dispatch loop, and drives the periodic write-buffer flush.
type Service struct {
	conn   *Connection
	router *router.Router
	cfg    *config.ServerConfig
	logger zerolog.Logger
	limit  *ratelimit.Limiter
}

// NewService builds a Service for an accepted socket. clientID must be
// unique and monotonically assigned by the caller (the acceptor).
func NewService(clientID uint64, netConn net.Conn, r *router.Router, cfg *config.ServerConfig, logger zerolog.Logger, limit *ratelimit.Limiter) *Service {
	return &Service{
		conn:   New(clientID, netConn, cfg.WriteBufSize),
		router: r,
		cfg:    cfg,
		logger: logger.With().Uint64("client_id", clientID).Logger(),
		limit:  limit,
	}
}

// Run executes the connection's lifetime: INFO, then the decode/dispatch
// loop driven by a background reader and a periodic flush tick. It returns
// when the connection closes, for any reason.
func (s *Service) Run() {
	defer monitoring.RecoverPanic(s.logger, "connection.Service.Run", nil)

	metrics.RecordConnectionOpened()
	defer metrics.RecordConnectionClosed()

	connectedAt := time.Now()
	reason := "closed"

	defer func() {
		subCount := s.router.CountForOwner(s.conn)
		s.router.RemoveOwner(s.conn)
		s.conn.Close()
		s.logger.Info().
			Str("reason", reason).
			Dur("connection_duration", time.Since(connectedAt)).
			Int("subscriptions_count", subCount).
			Msg("connection disconnected")
	}()

	if err := s.sendInfo(); err != nil {
		reason = "info-send-error"
		s.logger.Debug().Err(err).Msg("failed to send INFO")
		return
	}

	type readResult struct {
		buf []byte
		err error
	}
	reads := make(chan readResult, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := s.conn.conn.Read(buf)
			var chunk []byte
			if n > 0 {
				chunk = append([]byte(nil), buf[:n]...)
			}
			select {
			case reads <- readResult{buf: chunk, err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	flushInterval := s.cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = time.Millisecond
	}
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	s.logger.Info().Str("remote_addr", s.conn.RemoteAddr().String()).Msg("connection accepted")

	for {
		select {
		case r := <-reads:
			if len(r.buf) > 0 {
				if !s.feedAndDispatch(r.buf) {
					reason = "decode-error"
					return
				}
			}
			if r.err != nil {
				if errors.Is(r.err, io.EOF) {
					reason = "eof"
				} else {
					reason = "read-error"
					s.logger.Debug().Err(r.err).Msg("read error")
				}
				return
			}

		case <-ticker.C:
			if err := s.conn.Flush(); err != nil {
				reason = "flush-error"
				s.logger.Debug().Err(err).Msg("flush error")
				return
			}
		}
	}
}

// feedAndDispatch feeds chunk to the decoder and drains it to exhaustion,
// dispatching each complete message. It returns false if the connection
// must be closed (decode error or dispatch-fatal condition).
func (s *Service) feedAndDispatch(chunk []byte) bool {
	s.conn.decoder.Feed(chunk)

	for {
		msg, err := s.conn.decoder.Decode()
		if err != nil {
			metrics.RecordDecodeError()
			s.logger.Debug().Err(err).Msg("decode error")
			s.conn.Deliver(protocol.ErrFrame(err.Error()))
			s.conn.Flush()
			return false
		}
		if msg == nil {
			return true
		}

		if !s.dispatch(msg) {
			return false
		}
		s.conn.decoder.Reset()
	}
}

// dispatch applies one decoded message's effect. It returns false if the
// connection must be closed as a result.
func (s *Service) dispatch(msg *protocol.Message) bool {
	switch msg.Kind {
	case protocol.KindConnect:
		if msg.Connect.HasSSLRequire {
			s.conn.SetSSLRequired(msg.Connect.SSLRequire)
		}
		if msg.Connect.HasVerbose {
			s.conn.SetVerbose(msg.Connect.Verbose)
		}
		if s.conn.Verbose() {
			s.conn.Deliver(protocol.OKFrame)
		}

	case protocol.KindSub:
		sub := router.NewSubscription(s.conn, msg.Subject, msg.Sid, msg.Queue)
		s.router.Subscribe(msg.Subject, sub)
		metrics.SetSubscriptionCount(s.router.Count())

	case protocol.KindUnsub:
		if msg.HasMaxMessages {
			s.router.SetMax(s.conn, msg.Sid, msg.MaxMessages)
		} else {
			s.router.UnsubscribeNow(s.conn, msg.Sid)
		}
		metrics.SetSubscriptionCount(s.router.Count())

	case protocol.KindPub:
		return s.dispatchPub(msg)

	case protocol.KindPing:
		s.conn.Deliver(protocol.PongFrame)

	case protocol.KindPong:
		// A received PONG is a liveness signal only; the core does not
		// reply with an unsolicited PING. See the idle-timeout TODO below.
		s.logger.Debug().Msg("pong received")
	}

	return true
}

// dispatchPub enforces max_payload, then publishes to the router.
func (s *Service) dispatchPub(msg *protocol.Message) bool {
	if int64(len(msg.Payload)) > s.cfg.MaxPayload {
		metrics.RecordPayloadRejected()
		s.conn.Deliver(protocol.ErrFrame("Maximum Payload Exceeded"))
		s.conn.Flush()
		return false
	}

	if s.limit != nil && !s.limit.Allow() {
		// Drop silently: the limiter is disabled by default, and when
		// enabled it bounds a connection's own fan-out work rather than
		// acting as a protocol-level rejection.
		return true
	}

	metrics.RecordPublish()
	delivered := s.router.Publish(msg.Subject, msg.ReplyTo, msg.Payload)
	metrics.RecordDeliveries(delivered)

	if s.conn.Verbose() {
		s.conn.Deliver(protocol.OKFrame)
	}
	return true
}

func (s *Service) sendInfo() error {
	frame, err := protocol.EncodeInfo(protocol.ServerInfo{
		ServerID:     s.cfg.ServerID,
		ServerName:   s.cfg.ServerName,
		Version:      s.cfg.Version,
		Host:         s.cfg.Host,
		Port:         s.cfg.Port,
		AuthRequired: s.cfg.AuthRequired,
		SSLRequired:  s.cfg.SSLRequired,
		MaxPayload:   s.cfg.MaxPayload,
		Proto:        s.cfg.Proto,
		ClientID:     s.conn.ID(),
		ClientIP:     clientIP(s.conn.RemoteAddr()),
	})
	if err != nil {
		return err
	}
	if err := s.conn.Deliver(frame); err != nil {
		return err
	}
	return s.conn.Flush()
}

func clientIP(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// TODO(idle-ping): an idle-timeout PING-then-disconnect policy (emit PING
// on a timer, expect PONG within a grace period, disconnect on miss) would
// fit here once the core needs to detect dead peers; not implemented since
// nothing in the current scope requires it.
