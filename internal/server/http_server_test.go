package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestServerLifecycle(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	})
	srv := New(0, handler, zaptest.NewLogger(t))
	require.NoError(t, srv.Start())

	resp, err := http.Get("http://" + srv.Addr() + "/ping")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "pong", string(body))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	_, err = http.Get("http://" + srv.Addr() + "/ping")
	assert.Error(t, err)
}

func TestStartFailsOnBusyPort(t *testing.T) {
	first := New(0, http.NotFoundHandler(), zaptest.NewLogger(t))
	require.NoError(t, first.Start())
	defer first.Shutdown(context.Background())

	_, portStr, err := net.SplitHostPort(first.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	second := New(port, http.NotFoundHandler(), zaptest.NewLogger(t))
	assert.Error(t, second.Start())
}
