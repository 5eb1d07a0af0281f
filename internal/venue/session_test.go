package venue

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionVerifyResolvesOnce(t *testing.T) {
	var probes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		probes.Add(1)
		w.Write([]byte("1"))
	}))
	defer srv.Close()

	s := NewSession(New(srv.URL, "02", nil), slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.Error(t, s.Err(), "unresolved before Verify")

	s.Verify(context.Background())
	s.Verify(context.Background())

	<-s.Ready()
	assert.NoError(t, s.Err())
	assert.Equal(t, int32(1), probes.Load(), "probe runs exactly once")
}

func TestSessionVerifyRejectedCookie(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0"))
	}))
	defer srv.Close()

	s := NewSession(New(srv.URL, "02", nil), slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Verify(context.Background())

	<-s.Ready()
	assert.ErrorIs(t, s.Err(), ErrNotAuthenticated)
}
