// SPDX-License-Identifier: GPL-3.0-or-later

package reqsched

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerFixedBody(t *testing.T) {
	s := NewScheduler(BackToBack, 0, Fixed, 1, 2, nil)

	req, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/echo", req.Path)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Len(t, req.Body, fixedBodySize)
}

func TestSchedulerFromDistributionMix(t *testing.T) {
	s := NewScheduler(BackToBack, 0, FromDistribution, 42, 43, nil)

	var gets, posts int
	for range 500 {
		req, err := s.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "/distribution", req.Path)
		switch req.Method {
		case http.MethodGet:
			gets++
			assert.Empty(t, req.Body)
		case http.MethodPost:
			posts++
			assert.NotEmpty(t, req.Body)
		default:
			t.Fatalf("unexpected method %q", req.Method)
		}
	}

	// Roughly 0.78/0.22 split; assert it is not degenerate.
	assert.Greater(t, gets, posts)
	assert.Greater(t, posts, 0)
}

func TestSchedulerDeterminism(t *testing.T) {
	a := NewScheduler(BackToBack, 0, FromDistribution, 7, 8, nil)
	b := NewScheduler(BackToBack, 0, FromDistribution, 7, 8, nil)

	for range 20 {
		ra, err := a.Next(context.Background())
		require.NoError(t, err)
		rb, err := b.Next(context.Background())
		require.NoError(t, err)
		// Bodies are filled from crypto/rand, so only the seeded draws
		// (request type and body size) are compared.
		assert.Equal(t, ra.Method, rb.Method)
		assert.Equal(t, ra.Path, rb.Path)
		assert.Equal(t, len(ra.Body), len(rb.Body))
	}
}

func TestSchedulerSporadicPacingRespectsContext(t *testing.T) {
	s := NewScheduler(Sporadic, 10*time.Second, Fixed, 1, 2, nil)

	// first request never paces
	_, err := s.Next(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = s.Next(ctx)
	require.Error(t, err)
}
