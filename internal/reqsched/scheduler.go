// SPDX-License-Identifier: GPL-3.0-or-later

// Package reqsched produces synthetic HTTP/3 requests for the client
// experiment driver, deterministically from a seeded PRNG pair, optionally
// paced sporadically.
package reqsched

import (
	"context"
	crand "crypto/rand"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/quicmigrate/qmigrate/internal/obs"
)

// Pattern selects the pacing of successive requests.
type Pattern int

const (
	// Sporadic sleeps for SporadicInterval before every request after the
	// first.
	Sporadic Pattern = iota
	// BackToBack issues the next request with no pacing delay.
	BackToBack
)

// String implements [fmt.Stringer].
func (p Pattern) String() string {
	switch p {
	case Sporadic:
		return "sporadic"
	case BackToBack:
		return "back to back"
	default:
		return "unknown"
	}
}

// Body selects how a request's payload is produced.
type Body int

const (
	// Fixed yields POST /echo with a random body of [fixedBodySize] bytes.
	Fixed Body = iota
	// FromDistribution yields GET /distribution (probability 0.78) or
	// POST /distribution (probability 0.22) with a body sized by sampling
	// the empirical distribution.
	FromDistribution
)

// String implements [fmt.Stringer].
func (b Body) String() string {
	switch b {
	case Fixed:
		return "fixed"
	case FromDistribution:
		return "from distribution"
	default:
		return "unknown"
	}
}

// fixedBodySize is the body size, in bytes, used by [Fixed].
const fixedBodySize = 1024

// postProbability is the likelihood of drawing a POST when [FromDistribution]
// is in effect; GET has the complementary 0.78 probability.
const postProbability = 0.22

// Request is a single synthetic HTTP/3 request produced by [Scheduler.Next].
type Request struct {
	Path   string
	Method string
	Body   []byte
}

// Scheduler produces successive [Request] values deterministically from a
// pair of independently seeded PRNGs, one per dimension.
//
// A Scheduler is created once at client startup and lives until the
// experiment loop exits; its PRNGs are never reseeded.
type Scheduler struct {
	pattern          Pattern
	body             Body
	sporadicInterval time.Duration

	firstRequest bool

	requestTypePrng      *rand.Rand
	postBodyDimensPrng   *rand.Rand
	postBodyDistribution *Distribution

	logger obs.SLogger
}

// NewScheduler returns a new [*Scheduler].
//
// seedRequestType and seedPostBodyDimension seed the two independent PRNGs
// used for the FromDistribution dimension; they are typically fanned out
// from a single master seed (see package seed) so the sequence of requests
// is reproducible given identical configuration.
func NewScheduler(pattern Pattern, sporadicInterval time.Duration, body Body,
	seedRequestType, seedPostBodyDimension uint32, logger obs.SLogger) *Scheduler {
	if logger == nil {
		logger = obs.DefaultSLogger()
	}
	return &Scheduler{
		pattern:              pattern,
		body:                 body,
		sporadicInterval:     sporadicInterval,
		firstRequest:         true,
		requestTypePrng:      rand.New(rand.NewPCG(uint64(seedRequestType), uint64(seedRequestType))),
		postBodyDimensPrng:   rand.New(rand.NewPCG(uint64(seedPostBodyDimension), uint64(seedPostBodyDimension))),
		postBodyDistribution: PostBodyDistribution(),
		logger:               logger,
	}
}

// Next produces the next [Request], blocking for [Scheduler.sporadicInterval]
// first if pattern is [Sporadic] and this is not the first request.
//
// ctx governs the pacing sleep only: if ctx is cancelled while waiting, Next
// returns ctx.Err().
func (s *Scheduler) Next(ctx context.Context) (Request, error) {
	if s.pattern == Sporadic && !s.firstRequest {
		s.logger.Debug("requestScheduler.pacing", "intervalSeconds", s.sporadicInterval.Seconds())
		timer := time.NewTimer(s.sporadicInterval)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return Request{}, ctx.Err()
		}
	}
	s.firstRequest = false

	switch s.body {
	case Fixed:
		return s.nextFixed()
	case FromDistribution:
		return s.nextFromDistribution()
	default:
		return Request{}, obs.NewError("reqsched.Next", obs.KindInternalError, nil)
	}
}

func (s *Scheduler) nextFixed() (Request, error) {
	body, err := randomBody(fixedBodySize)
	if err != nil {
		return Request{}, err
	}
	s.logger.Debug("requestScheduler.generated", "path", "/echo", "method", http.MethodPost, "bodySize", len(body))
	return Request{Path: "/echo", Method: http.MethodPost, Body: body}, nil
}

func (s *Scheduler) nextFromDistribution() (Request, error) {
	draw := s.requestTypePrng.Float64()
	if draw >= postProbability {
		s.logger.Debug("requestScheduler.generated", "path", "/distribution", "method", http.MethodGet, "bodySize", 0)
		return Request{Path: "/distribution", Method: http.MethodGet}, nil
	}

	size := s.postBodyDistribution.Sample(s.postBodyDimensPrng.Float64())
	body, err := randomBody(int(size))
	if err != nil {
		return Request{}, err
	}
	s.logger.Debug("requestScheduler.generated", "path", "/distribution", "method", http.MethodPost, "bodySize", len(body))
	return Request{Path: "/distribution", Method: http.MethodPost, Body: body}, nil
}

// randomBody fills size bytes from a cryptographic source: payload contents
// need not be predictable, only the size is scheduler-controlled.
func randomBody(size int) ([]byte, error) {
	buf := make([]byte, size)
	if _, err := crand.Read(buf); err != nil {
		return nil, obs.NewError("reqsched.randomBody", obs.KindInternalError, err)
	}
	return buf, nil
}
