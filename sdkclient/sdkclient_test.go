package sdkclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		BaseURL:    srv.URL,
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestPutGetDeleteAgainstFakeServer(t *testing.T) {
	store := map[string][]byte{}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get("key")
		switch r.Method {
		case http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			store[key] = body
			w.WriteHeader(http.StatusOK)
		case http.MethodGet:
			if v, ok := store[key]; ok {
				w.Write(v)
			} else {
				w.WriteHeader(http.StatusNotFound)
			}
		case http.MethodDelete:
			if _, ok := store[key]; ok {
				delete(store, key)
				w.WriteHeader(http.StatusNoContent)
			} else {
				w.WriteHeader(http.StatusNotFound)
			}
		}
	})

	c := newTestClient(t, handler)
	ctx := context.Background()

	if err := c.Put(ctx, "k1", []byte("v1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	data, found, err := c.Get(ctx, "k1")
	if err != nil || !found || string(data) != "v1" {
		t.Fatalf("Get = (%q, %v, %v), want (v1, true, nil)", data, found, err)
	}

	removed, err := c.Delete(ctx, "k1")
	if err != nil || !removed {
		t.Fatalf("Delete = (%v, %v), want (true, nil)", removed, err)
	}
	_, found, err = c.Get(ctx, "k1")
	if err != nil || found {
		t.Fatalf("Get after delete = (%v, %v), want (false, nil)", found, err)
	}
}

func TestRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	c := newTestClient(t, handler)
	if err := c.Put(context.Background(), "k", []byte("v")); err != nil {
		t.Fatalf("Put should succeed on the third attempt: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server saw %d calls, want 3", got)
	}
}

func TestGivesUpAfterMaxRetries(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	c := newTestClient(t, handler)
	if err := c.Put(context.Background(), "k", []byte("v")); err == nil {
		t.Fatalf("expected an error once retries are exhausted")
	}
}

func TestHealthCheck(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			w.Write([]byte("OK"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	c := newTestClient(t, handler)
	healthy, err := c.HealthCheck(context.Background())
	if err != nil || !healthy {
		t.Fatalf("HealthCheck = (%v, %v), want (true, nil)", healthy, err)
	}
}
