package request

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"

	"legitify/pkg/requestcontext"
)

func TestClientIP(t *testing.T) {
	proxies := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}

	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		trusted    []netip.Prefix
		expected   string
	}{
		{
			name:       "ignores forwarding headers from untrusted peers",
			remoteAddr: "192.168.1.1:12345",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.1"},
			expected:   "192.168.1.1",
		},
		{
			name:       "takes the first forwarded address from a trusted proxy",
			remoteAddr: "10.0.0.1:12345",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.1, 10.0.0.2"},
			trusted:    proxies,
			expected:   "203.0.113.1",
		},
		{
			name:       "falls back to X-Real-IP",
			remoteAddr: "10.0.0.1:12345",
			headers:    map[string]string{"X-Real-IP": "198.51.100.4"},
			trusted:    proxies,
			expected:   "198.51.100.4",
		},
		{
			name:       "rejects a malformed forwarded address",
			remoteAddr: "10.0.0.1:12345",
			headers:    map[string]string{"X-Forwarded-For": "<script>"},
			trusted:    proxies,
			expected:   "10.0.0.1",
		},
		{
			name:       "rejects an oversized forwarded header",
			remoteAddr: "10.0.0.1:12345",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.1," + string(bytes.Repeat([]byte("1"), MaxForwardedLength))},
			trusted:    proxies,
			expected:   "10.0.0.1",
		},
		{
			name:       "strips brackets from ipv6 peers",
			remoteAddr: "[2001:db8::1]:443",
			expected:   "2001:db8::1",
		},
		{
			name:       "unparseable peer",
			remoteAddr: "pipe",
			expected:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			handler := ClientIP(tt.trusted)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				got = requestcontext.ClientIP(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)

			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestLoggerAnonymizesClient(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	handler := ClientIP(nil)(Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	req := httptest.NewRequest(http.MethodGet, "/credentials/abc", nil)
	req.RemoteAddr = "203.0.113.77:5000"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Contains(t, buf.String(), `"client":"203.0.113.0"`)
	assert.NotContains(t, buf.String(), "203.0.113.77")
}
