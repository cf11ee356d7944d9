package clientip

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{
			name:   "direct public peer ignores headers",
			remote: "187.10.20.30:5123",
			headers: map[string]string{
				"X-Forwarded-For": "8.8.8.8",
			},
			want: "187.10.20.30",
		},
		{
			name:   "proxy forwards public client",
			remote: "10.0.0.5:443",
			headers: map[string]string{
				"X-Forwarded-For": "187.10.20.30, 10.0.0.7",
			},
			want: "187.10.20.30",
		},
		{
			name:   "client supplied entries left of the proxy hop are ignored",
			remote: "10.0.0.2:443",
			headers: map[string]string{
				"X-Forwarded-For": "1.1.1.1, 187.10.20.30",
			},
			want: "187.10.20.30",
		},
		{
			name:   "rotating a spoofed prefix keeps the same address",
			remote: "10.0.0.2:443",
			headers: map[string]string{
				"X-Forwarded-For": "9.9.9.9, 187.10.20.30, 10.0.0.7",
			},
			want: "187.10.20.30",
		},
		{
			name:   "non-public nearest hop falls back to the peer",
			remote: "10.0.0.5:443",
			headers: map[string]string{
				"X-Forwarded-For": "187.10.20.30, 203.0.113.9",
			},
			want: "10.0.0.5",
		},
		{
			name:   "private entries are skipped",
			remote: "127.0.0.1:8080",
			headers: map[string]string{
				"X-Forwarded-For": "192.168.1.10, 172.16.0.2, 200.160.2.3",
			},
			want: "200.160.2.3",
		},
		{
			name:   "documentation ranges are reserved",
			remote: "10.0.0.5:443",
			headers: map[string]string{
				"X-Forwarded-For": "203.0.113.9",
			},
			want: "10.0.0.5",
		},
		{
			name:   "falls back to x-real-ip",
			remote: "10.0.0.5:443",
			headers: map[string]string{
				"X-Forwarded-For": "garbage",
				"X-Real-IP":       "177.55.1.2",
			},
			want: "177.55.1.2",
		},
		{
			name:   "ipv6 peer",
			remote: "[2804:14c::1]:443",
			want:   "2804:14c::1",
		},
		{
			name:   "unparseable remote",
			remote: "not-an-address",
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, FromRequest(req))
		})
	}
}
