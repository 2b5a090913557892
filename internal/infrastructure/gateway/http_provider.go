package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/clearvet/screening-backend/internal/infrastructure/config"
)

// HTTPProvider adapts a configured HTTP data provider to the Provider
// interface. Queries POST to {base_url}/checks/{check_type}; non-2xx
// responses map onto the provider error kinds.
type HTTPProvider struct {
	id       string
	baseURL  string
	apiKey   string
	client   *http.Client
	supports map[screening.InformationType]bool
}

// NewHTTPProvider builds a provider adapter from its configuration entry
func NewHTTPProvider(id string, limit config.ProviderLimit) *HTTPProvider {
	supports := make(map[screening.InformationType]bool, len(limit.Checks))
	for _, c := range limit.Checks {
		supports[screening.InformationType(c)] = true
	}
	timeout := limit.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPProvider{
		id:       id,
		baseURL:  limit.BaseURL,
		apiKey:   limit.APIKey,
		client:   &http.Client{Timeout: timeout},
		supports: supports,
	}
}

func (p *HTTPProvider) ID() string { return p.id }

func (p *HTTPProvider) Supports(checkType screening.InformationType) bool {
	return p.supports[checkType]
}

// Call issues the provider query. Redaction happens before the request
// leaves: redacted fields are never sent.
func (p *HTTPProvider) Call(ctx context.Context, req Request) (*Result, error) {
	params := make(map[string]string, len(req.Params))
	for k, v := range req.Params {
		params[k] = v
	}
	for _, f := range req.RedactFields {
		delete(params, f)
	}

	body, err := json.Marshal(map[string]interface{}{
		"params":        params,
		"lookback_days": int(req.Lookback.Hours() / 24),
	})
	if err != nil {
		return nil, &ProviderError{ProviderID: p.id, Kind: ErrKindInvalidRequest, Detail: err.Error()}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/checks/"+string(req.CheckType), bytes.NewReader(body))
	if err != nil {
		return nil, &ProviderError{ProviderID: p.id, Kind: ErrKindInvalidRequest, Detail: err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		kind := ErrKindServiceUnavailable
		if ctx.Err() == context.DeadlineExceeded {
			kind = ErrKindTimeout
		}
		return nil, &ProviderError{ProviderID: p.id, Kind: kind, Detail: err.Error()}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{ProviderID: p.id, Kind: ErrKindData, Detail: err.Error()}
	}
	if perr := p.classifyStatus(resp, payload); perr != nil {
		return nil, perr
	}

	return &Result{
		ProviderID:  p.id,
		CheckType:   req.CheckType,
		Payload:     payload,
		RetrievedAt: time.Now().UTC(),
	}, nil
}

func (p *HTTPProvider) classifyStatus(resp *http.Response, payload []byte) *ProviderError {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		perr := &ProviderError{ProviderID: p.id, Kind: ErrKindRateLimited, Detail: string(payload)}
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			perr.RetryAfter = time.Duration(secs) * time.Second
		}
		return perr
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &ProviderError{ProviderID: p.id, Kind: ErrKindAuth, Detail: resp.Status}
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		return &ProviderError{ProviderID: p.id, Kind: ErrKindTimeout, Detail: resp.Status}
	case resp.StatusCode >= 500:
		return &ProviderError{ProviderID: p.id, Kind: ErrKindServiceUnavailable, Detail: resp.Status}
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return &ProviderError{ProviderID: p.id, Kind: ErrKindInvalidRequest, Detail: string(payload)}
	default:
		return &ProviderError{ProviderID: p.id, Kind: ErrKindData, Detail: resp.Status}
	}
}
