package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"
)

func TestTrustedRealIP(t *testing.T) {
	tests := []struct {
		name       string
		trusted    []string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "no trusted proxies ignores headers",
			remoteAddr: "203.0.113.7:5555",
			headers:    map[string]string{"X-Real-IP": "10.1.1.1"},
			want:       "203.0.113.7",
		},
		{
			name:       "trusted proxy with X-Real-IP",
			trusted:    []string{"10.0.0.0/8"},
			remoteAddr: "10.0.0.2:443",
			headers:    map[string]string{"X-Real-IP": "198.51.100.4"},
			want:       "198.51.100.4",
		},
		{
			name:       "trusted proxy with forwarded chain",
			trusted:    []string{"10.0.0.2"},
			remoteAddr: "10.0.0.2:443",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.9, 10.0.0.5"},
			want:       "198.51.100.9",
		},
		{
			name:       "untrusted source",
			trusted:    []string{"10.0.0.0/8"},
			remoteAddr: "192.0.2.1:1000",
			headers:    map[string]string{"X-Real-IP": "198.51.100.4"},
			want:       "192.0.2.1",
		},
		{
			name:       "malformed header kept out",
			trusted:    []string{"10.0.0.0/8"},
			remoteAddr: "10.0.0.2:443",
			headers:    map[string]string{"X-Real-IP": "not-an-ip"},
			want:       "10.0.0.2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := TrustedRealIP(tt.trusted)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = ClientIP(r)
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)

			if got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	h := chimw.RequestID(Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("missing"))
	})))

	req := httptest.NewRequest(http.MethodGet, "/download/x", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	for _, want := range []string{"level=WARN", "status=404", "bytes=7", "path=/download/x", "request_id="} {
		if !strings.Contains(out, want) {
			t.Errorf("log line missing %s: %q", want, out)
		}
	}
}
