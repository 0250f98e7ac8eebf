package clientip_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/restohub/ingest/pkg/clientip"
)

func TestFromRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{
			name:       "remote addr fallback",
			remoteAddr: "203.0.113.5:4421",
			want:       "203.0.113.5",
		},
		{
			name:       "cloudflare header wins",
			remoteAddr: "10.0.0.1:1234",
			headers: map[string]string{
				"CF-Connecting-IP": "198.51.100.7",
				"X-Forwarded-For":  "192.0.2.1",
			},
			want: "198.51.100.7",
		},
		{
			name:       "first forwarded address",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Forwarded-For": "192.0.2.1, 10.0.0.2, 10.0.0.3"},
			want:       "192.0.2.1",
		},
		{
			name:       "invalid forwarded entries skipped",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Forwarded-For": "garbage, 192.0.2.9"},
			want:       "192.0.2.9",
		},
		{
			name:       "real ip header",
			remoteAddr: "10.0.0.1:1234",
			headers:    map[string]string{"X-Real-IP": "192.0.2.33"},
			want:       "192.0.2.33",
		},
		{
			name:       "invalid headers fall through to remote addr",
			remoteAddr: "203.0.113.9:80",
			headers: map[string]string{
				"CF-Connecting-IP": "not-an-ip",
				"X-Forwarded-For":  "also bad",
				"X-Real-IP":        "nope",
			},
			want: "203.0.113.9",
		},
		{
			name:       "ipv6 remote addr",
			remoteAddr: "[2001:db8::1]:443",
			want:       "2001:db8::1",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodPost, "/webhooks/careem", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			assert.Equal(t, tt.want, clientip.FromRequest(req))
		})
	}
}
