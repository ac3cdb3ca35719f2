// Package ingestion implements the TCP server that accepts long-lived
// sensor connections and decodes wire frames into logged telemetry records.
// Follows tunnel/server/server.go's accept-loop-plus-per-connection-
// goroutine shape, stripped of the websocket upgrade and endpoint-pairing
// logic that doesn't apply to a one-way sensor stream.
package ingestion

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync/atomic"

	"github.com/abe-bb/sensor-telemetry/crypto/ccm"
	"github.com/abe-bb/sensor-telemetry/crypto/epochkey"
	"github.com/abe-bb/sensor-telemetry/observability/prom"
	"github.com/abe-bb/sensor-telemetry/registry"
	"github.com/abe-bb/sensor-telemetry/wire"
)

// Server accepts TCP connections and decodes sensor frames against a shared
// registry.
type Server struct {
	Registry *registry.Registry
	Log      *slog.Logger
	Metrics  *prom.IngestionObserver
}

// NewServer constructs an ingestion Server.
func NewServer(reg *registry.Registry, log *slog.Logger, metrics *prom.IngestionObserver) *Server {
	return &Server{Registry: reg, Log: log, Metrics: metrics}
}

// Serve accepts connections from ln until ctx is canceled or Accept fails.
// Each connection runs its decoder loop on its own goroutine; a fault on one
// connection never affects another, since the only state they share is the
// read-mostly sensor registry and an atomic connection count for metrics.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	var connCount atomic.Int64
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		n := connCount.Add(1)
		if s.Metrics != nil {
			s.Metrics.Connections(int(n))
		}
		go func() {
			defer func() {
				n := connCount.Add(-1)
				if s.Metrics != nil {
					s.Metrics.Connections(int(n))
				}
			}()
			s.handleConn(conn)
		}()
	}
}

// handleConn runs the decoder state machine for one connection until it sees
// a clean EOF at a frame boundary, a truncated frame, or a frame naming a
// sensor absent from the registry.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	r := bufio.NewReader(conn)
	hooks := wire.Hooks{
		OnGarbage: func(n int) {
			s.Log.Info("discarded garbage while seeking frame start", "remote", remote, "bytes", n)
			if s.Metrics != nil {
				s.Metrics.GarbageBytes(n)
			}
		},
		OnInvalidName: func(raw []byte) {
			s.Log.Warn("discarding frame with non-UTF-8 name", "remote", remote, "len", len(raw))
		},
	}

	for {
		frame, err := wire.ReadFrame(r, hooks)
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.Log.Info("connection closed", "remote", remote)
				return
			}
			s.Log.Warn("connection closed after truncated frame", "remote", remote, "error", err)
			return
		}

		if !s.dispatch(remote, frame) {
			return
		}
	}
}

// dispatch resolves a frame's sensor, derives its nonce and epoch key, and
// decrypts it. It returns false when the connection must be closed (unknown
// sensor); a MIC failure is logged and returns true so the stream continues.
func (s *Server) dispatch(remote string, frame *wire.Frame) bool {
	rec, ok := s.Registry.Lookup(frame.Name)
	if !ok {
		s.Log.Warn("unknown sensor, closing connection", "remote", remote, "sensor", frame.Name)
		if s.Metrics != nil {
			s.Metrics.UnknownSensor()
		}
		return false
	}

	key := epochkey.Derive(frame.CounterLo, rec.Key, rec.Interval)
	nonce := wire.Nonce(frame.CounterLo, rec.IV)

	cipher, err := ccm.New(key)
	if err != nil {
		s.Log.Error("constructing CCM cipher", "remote", remote, "sensor", frame.Name, "error", err)
		return false
	}

	plaintext, err := cipher.Open(nonce, frame.Cipher, nil)
	if err != nil {
		s.Log.Warn("MIC verification failed, discarding frame", "remote", remote, "sensor", frame.Name)
		if s.Metrics != nil {
			s.Metrics.MICFailure()
		}
		return true
	}

	s.logRecord(remote, rec.Name, plaintext)
	if s.Metrics != nil {
		s.Metrics.FrameDecoded()
	}
	return true
}

// logRecord emits the decoded plaintext to the log sink. The JSON body is
// not validated against the sensor's declared field schema; it's logged as
// a raw message with best-effort structured attributes when it happens to
// parse as a flat JSON object.
func (s *Server) logRecord(remote, sensor string, plaintext []byte) {
	var fields map[string]any
	if err := json.Unmarshal(plaintext, &fields); err == nil {
		s.Log.Info("telemetry frame decoded", "remote", remote, "sensor", sensor, "fields", fields)
		return
	}
	s.Log.Info("telemetry frame decoded", "remote", remote, "sensor", sensor, "body", string(plaintext))
}
