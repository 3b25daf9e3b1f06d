package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsHealthyTrueOn200OK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))
	defer server.Close()

	m := New(server.URL, time.Second, time.Second, time.Second)
	assert.True(t, m.IsHealthy(context.Background()))
}

func TestIsHealthyFalseOnNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	m := New(server.URL, time.Second, time.Second, time.Second)
	assert.False(t, m.IsHealthy(context.Background()))
}

func TestIsHealthyFalseOnUnexpectedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("DEGRADED"))
	}))
	defer server.Close()

	m := New(server.URL, time.Second, time.Second, time.Second)
	assert.False(t, m.IsHealthy(context.Background()))
}

func TestIsHealthyFalseOnUnreachable(t *testing.T) {
	m := New("http://127.0.0.1:1", time.Millisecond*50, time.Second, time.Second)
	assert.False(t, m.IsHealthy(context.Background()))
}

func TestWaitForRecoveryReturnsTrueOnceHealthy(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))
	defer server.Close()

	m := New(server.URL, time.Second, 10*time.Millisecond, time.Second)
	assert.True(t, m.WaitForRecovery(context.Background()))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&hits), int32(3))
}

func TestWaitForRecoveryTimesOutWhenNeverHealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	m := New(server.URL, time.Second, 10*time.Millisecond, 60*time.Millisecond)
	start := time.Now()
	assert.False(t, m.WaitForRecovery(context.Background()))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestWaitForRecoveryRespectsContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	m := New(server.URL, time.Second, 10*time.Millisecond, 10*time.Second)

	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	assert.False(t, m.WaitForRecovery(ctx))
	assert.Less(t, time.Since(start), time.Second)
}
