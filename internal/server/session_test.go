// SPDX-License-Identifier: GPL-3.0-or-later

package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionControllerEchoMirrorsBody(t *testing.T) {
	sc := NewSessionController(1, nil)

	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("hello"))
	req.Header.Set("X-Test", "value")
	rec := httptest.NewRecorder()

	sc.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "value", rec.Header().Get("X-Test"))
	assert.Equal(t, "hello", rec.Body.String())
}

func TestSessionControllerDistributionGETHasBody(t *testing.T) {
	sc := NewSessionController(1, nil)

	req := httptest.NewRequest(http.MethodGet, "/distribution", nil)
	rec := httptest.NewRecorder()

	sc.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Body.Bytes())
}

func TestSessionControllerDistributionPOSTEmptyBody(t *testing.T) {
	sc := NewSessionController(1, nil)

	req := httptest.NewRequest(http.MethodPost, "/distribution", strings.NewReader("ignored"))
	rec := httptest.NewRecorder()

	sc.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
}

func TestSessionControllerDeterministicDistribution(t *testing.T) {
	a := NewSessionController(7, nil)
	b := NewSessionController(7, nil)

	reqA := httptest.NewRequest(http.MethodGet, "/distribution", nil)
	recA := httptest.NewRecorder()
	a.Handler().ServeHTTP(recA, reqA)

	reqB := httptest.NewRequest(http.MethodGet, "/distribution", nil)
	recB := httptest.NewRecorder()
	b.Handler().ServeHTTP(recB, reqB)

	assert.Len(t, recA.Body.Bytes(), recB.Body.Len())
}
