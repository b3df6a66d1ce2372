// SPDX-License-Identifier: GPL-3.0-or-later

package server

import (
	cryptorand "crypto/rand"
	"io"
	"math/rand/v2"
	"net/http"

	"github.com/quicmigrate/qmigrate/internal/obs"
	"github.com/quicmigrate/qmigrate/internal/reqsched"
)

// SessionController owns one HTTP/3 session for one transport,
// dispatching each incoming request by path. It is self-owning: callers
// construct it per accepted connection and discard it when the session
// detaches, so it never outlives its session and needs no explicit
// lifecycle type.
type SessionController struct {
	seed         uint32
	prng         *rand.Rand
	distribution *reqsched.Distribution
	logger       obs.SLogger
}

// NewSessionController returns a new [*SessionController] seeded with
// seed, the per-connection sub-seed allocated by the transport factory.
func NewSessionController(seed uint32, logger obs.SLogger) *SessionController {
	if logger == nil {
		logger = obs.DefaultSLogger()
	}
	return &SessionController{
		seed:         seed,
		prng:         rand.New(rand.NewPCG(uint64(seed), uint64(seed))),
		distribution: reqsched.ResponseBodyDistribution(),
		logger:       logger,
	}
}

// Handler returns the [http.Handler] this controller dispatches requests
// to: /echo and /distribution.
func (s *SessionController) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/echo", s.handleEcho)
	mux.HandleFunc("/distribution", s.handleDistribution)
	return mux
}

// handleEcho mirrors request headers and body.
func (s *SessionController) handleEcho(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("session.echo", "method", r.Method, "path", r.URL.Path)
	for key, values := range r.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(http.StatusOK)
	if r.Body != nil {
		_, _ = io.Copy(w, r.Body)
	}
}

// handleDistribution replies with a sampled body size for GET and an empty
// body for POST.
func (s *SessionController) handleDistribution(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodGet {
		s.logger.Debug("session.distribution", "method", r.Method, "bodySize", 0)
		return
	}

	size := s.distribution.Sample(s.prng.Float64())
	body := make([]byte, size)
	_, _ = cryptorand.Read(body)
	s.logger.Debug("session.distribution", "method", r.Method, "bodySize", size)
	_, _ = w.Write(body)
}
