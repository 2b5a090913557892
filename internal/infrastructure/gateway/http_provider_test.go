package gateway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/clearvet/screening-backend/internal/infrastructure/config"
	"github.com/clearvet/screening-backend/internal/infrastructure/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHTTPProvider(t *testing.T, handler http.HandlerFunc) *gateway.HTTPProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return gateway.NewHTTPProvider("acme", config.ProviderLimit{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Checks:  []string{"sanctions"},
		Timeout: 2 * time.Second,
	})
}

func TestHTTPProviderCall(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]interface{}
	p := newHTTPProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"records":[]}`))
	})

	result, err := p.Call(context.Background(), gateway.Request{
		CheckType:    screening.InfoSanctions,
		Params:       map[string]string{"name": "dana whitfield", "ssn": "secret"},
		RedactFields: []string{"ssn"},
		Lookback:     7 * 24 * time.Hour,
	})
	require.NoError(t, err)

	assert.Equal(t, "/checks/sanctions", gotPath)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "acme", result.ProviderID)
	assert.JSONEq(t, `{"records":[]}`, string(result.Payload))

	params := gotBody["params"].(map[string]interface{})
	assert.Equal(t, "dana whitfield", params["name"])
	// redacted fields never leave the process
	assert.NotContains(t, params, "ssn")
	assert.EqualValues(t, 7, gotBody["lookback_days"])
}

func TestHTTPProviderSupports(t *testing.T) {
	p := gateway.NewHTTPProvider("acme", config.ProviderLimit{Checks: []string{"sanctions", "criminal"}})
	assert.True(t, p.Supports(screening.InfoSanctions))
	assert.True(t, p.Supports(screening.InfoCriminal))
	assert.False(t, p.Supports(screening.InfoEmployment))
}

func TestHTTPProviderErrorKinds(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		headers    map[string]string
		wantKind   gateway.ErrorKind
		wantRetry  time.Duration
	}{
		{name: "rate limited", status: http.StatusTooManyRequests,
			headers: map[string]string{"Retry-After": "30"},
			wantKind: gateway.ErrKindRateLimited, wantRetry: 30 * time.Second},
		{name: "auth", status: http.StatusForbidden, wantKind: gateway.ErrKindAuth},
		{name: "invalid request", status: http.StatusUnprocessableEntity, wantKind: gateway.ErrKindInvalidRequest},
		{name: "unavailable", status: http.StatusServiceUnavailable, wantKind: gateway.ErrKindServiceUnavailable},
		{name: "gateway timeout", status: http.StatusGatewayTimeout, wantKind: gateway.ErrKindTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newHTTPProvider(t, func(w http.ResponseWriter, _ *http.Request) {
				for k, v := range tt.headers {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
			})

			_, err := p.Call(context.Background(), gateway.Request{CheckType: screening.InfoSanctions})
			require.Error(t, err)
			perr, ok := err.(*gateway.ProviderError)
			require.True(t, ok)
			assert.Equal(t, tt.wantKind, perr.Kind)
			assert.Equal(t, tt.wantRetry, perr.RetryAfter)
		})
	}
}
