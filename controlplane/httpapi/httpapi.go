// Package httpapi implements the control-plane HTTP server: the greeting,
// public-key, challenge, register and deregister routes, a /healthz probe,
// and an optional metrics endpoint. Grounded on
// cmd/flowersec-tunnel/http_server.go's http.Server timeout configuration
// and on tunnel/server/server.go's handleWS, which validates a request in a
// strict ordered pipeline before doing any real work.
package httpapi

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/abe-bb/sensor-telemetry/controlplane/auth"
	"github.com/abe-bb/sensor-telemetry/controlplane/challenges"
	"github.com/abe-bb/sensor-telemetry/internal/defaults"
	"github.com/abe-bb/sensor-telemetry/internal/fserrors"
	"github.com/abe-bb/sensor-telemetry/observability/prom"
	"github.com/abe-bb/sensor-telemetry/registry"
	"github.com/abe-bb/sensor-telemetry/users"
	promclient "github.com/prometheus/client_golang/prometheus"
)

const greeting = "Hello, World!\n"

// Server holds the dependencies the control-plane handlers need.
type Server struct {
	Registry   *registry.Registry
	Users      *users.Table
	Challenges *challenges.Table
	ServerKey  *rsa.PrivateKey
	Log        *slog.Logger
	Metrics    *prom.ControlPlaneObserver // nil disables metric recording

	auth auth.Pipeline
}

// NewServer wires a Server's dependencies together.
func NewServer(reg *registry.Registry, userTable *users.Table, chal *challenges.Table, serverKey *rsa.PrivateKey, log *slog.Logger, metrics *prom.ControlPlaneObserver) *Server {
	return &Server{
		Registry:   reg,
		Users:      userTable,
		Challenges: chal,
		ServerKey:  serverKey,
		Log:        log,
		Metrics:    metrics,
		auth:       auth.Pipeline{Users: userTable, Challenges: chal},
	}
}

// Mux builds the control-plane route table. When exposeMetrics is true, a
// Prometheus-backed /metrics endpoint is registered against promReg.
func (s *Server) Mux(exposeMetrics bool, promReg *promclient.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /server_public_key", s.handleServerPublicKey)
	mux.HandleFunc("GET /challenge/{user}", s.handleChallenge)
	mux.HandleFunc("POST /register_sensor", s.handleRegister)
	mux.HandleFunc("POST /deregister_sensor", s.handleDeregister)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	if exposeMetrics && promReg != nil {
		mux.Handle("GET /metrics", prom.Handler(promReg))
	}
	return mux
}

// NewHTTPServer builds an *http.Server with conservative timeout defaults.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: defaults.HTTPReadHeaderTimeout,
		ReadTimeout:       defaults.HTTPReadTimeout,
		WriteTimeout:      defaults.HTTPWriteTimeout,
		IdleTimeout:       defaults.HTTPIdleTimeout,
		MaxHeaderBytes:    defaults.HTTPMaxHeaderBytes,
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, greeting)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleServerPublicKey(w http.ResponseWriter, r *http.Request) {
	der := x509.MarshalPKCS1PublicKey(&s.ServerKey.PublicKey)
	block := &pem.Block{Type: "RSA PUBLIC KEY", Bytes: der}

	w.Header().Set("Content-Type", "application/x-pem-file")
	w.WriteHeader(http.StatusOK)
	_ = pem.Encode(w, block)
}

func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("user")

	if _, ok := s.Users.Lookup(username); !ok {
		c, err := challenges.Random()
		if err != nil {
			s.Log.Error("generating challenge for unknown user", "error", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		s.Log.Warn("issued challenge for unknown user", "username", username)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(c[:])
		return
	}

	c, err := s.Challenges.Issue(username)
	if err != nil {
		s.Log.Error("issuing challenge", "username", username, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	s.Log.Info("issued challenge", "username", username)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(c[:])
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	s.handleAuthenticatedMutation(w, r, "register", func(rec registry.SensorRecord) error {
		return s.Registry.Register(rec)
	})
}

func (s *Server) handleDeregister(w http.ResponseWriter, r *http.Request) {
	s.handleAuthenticatedMutation(w, r, "deregister", func(rec registry.SensorRecord) error {
		return s.Registry.Deregister(rec.Name)
	})
}

// handleAuthenticatedMutation implements the shared authentication pipeline
// plus the operation-specific registry mutation.
func (s *Server) handleAuthenticatedMutation(w http.ResponseWriter, r *http.Request, op string, mutate func(registry.SensorRecord) error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.respondError(w, fserrors.Wrap(fserrors.PathControlPlane, fserrors.StageIO, fserrors.CodeMalformedBody, err))
		return
	}

	username, err := s.auth.Authenticate(r.Header, body)
	if err != nil {
		s.recordAuthFailure(err)
		s.respondError(w, err)
		return
	}

	var rec registry.SensorRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		s.respondError(w, fserrors.Wrap(fserrors.PathControlPlane, fserrors.StageDecode, fserrors.CodeMalformedBody, err))
		return
	}

	if err := mutate(rec); err != nil {
		s.recordMutation(op, "failure")
		s.respondError(w, err)
		return
	}

	s.recordMutation(op, "success")
	s.Log.Info("sensor mutation succeeded", "op", op, "sensor", rec.Name, "user", username)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) recordMutation(op, result string) {
	if s.Metrics == nil {
		return
	}
	switch op {
	case "register":
		s.Metrics.Register(result)
	case "deregister":
		s.Metrics.Deregister(result)
	}
}

func (s *Server) recordAuthFailure(err error) {
	if s.Metrics == nil {
		return
	}
	var fe *fserrors.Error
	if errors.As(err, &fe) {
		s.Metrics.AuthFailure(string(fe.Code))
	}
}

// respondError maps a structured fserrors.Error to an HTTP status code.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	var fe *fserrors.Error
	if !errors.As(err, &fe) {
		s.Log.Error("unclassified control-plane error", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	status := statusFor(fe.Code)
	if status >= 500 {
		s.Log.Error("control-plane request failed", "code", fe.Code, "error", fe.Err)
	} else {
		s.Log.Warn("control-plane request rejected", "code", fe.Code)
	}
	w.WriteHeader(status)
}

func statusFor(code fserrors.Code) int {
	switch code {
	case fserrors.CodeMissingHeader, fserrors.CodeMalformedHeader, fserrors.CodeMalformedBody:
		return http.StatusBadRequest
	case fserrors.CodeUnknownUser, fserrors.CodeBadBodySig:
		return http.StatusUnauthorized
	case fserrors.CodeNoActiveChallenge, fserrors.CodeBadChallengeSig:
		return http.StatusForbidden
	case fserrors.CodeMissingSensor:
		return http.StatusNotFound
	case fserrors.CodeDuplicateSensor:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
