package pprof

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNormalizePrefix(t *testing.T) {
	cases := map[string]string{
		"":              "/debug/pprof/",
		"/debug/pprof/": "/debug/pprof/",
		"debug/pprof":   "/debug/pprof/",
		"/prof":         "/prof/",
	}
	for in, want := range cases {
		if got := normalizePrefix(in); got != want {
			t.Errorf("normalizePrefix(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:6060": true,
		"localhost:6060": true,
		"[::1]:6060":     true,
		"0.0.0.0:6060":   false,
		":6060":          false,
		"10.0.0.5:6060":  false,
		"bogus":          false,
	}
	for in, want := range cases {
		if got := isLoopbackAddr(in); got != want {
			t.Errorf("isLoopbackAddr(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestWithAuth(t *testing.T) {
	s := &Service{}
	ok := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

	t.Run("no token passes through", func(t *testing.T) {
		h := s.withAuth("", ok)
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %d", rec.Code)
		}
	})

	t.Run("wrong bearer rejected", func(t *testing.T) {
		h := s.withAuth("secret", ok)
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rec := httptest.NewRecorder()
		h(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("code = %d", rec.Code)
		}
	})

	t.Run("matching bearer accepted", func(t *testing.T) {
		h := s.withAuth("secret", ok)
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set("Authorization", "Bearer secret")
		rec := httptest.NewRecorder()
		h(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %d", rec.Code)
		}
	})

	t.Run("query token accepted", func(t *testing.T) {
		h := s.withAuth("secret", ok)
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/healthz?token=secret", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %d", rec.Code)
		}
	})
}
