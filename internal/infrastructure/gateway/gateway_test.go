package gateway_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/clearvet/screening-backend/internal/domain/audit"
	domainerrors "github.com/clearvet/screening-backend/internal/domain/errors"
	"github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/clearvet/screening-backend/internal/domain/values"
	"github.com/clearvet/screening-backend/internal/infrastructure/cache"
	"github.com/clearvet/screening-backend/internal/infrastructure/config"
	"github.com/clearvet/screening-backend/internal/infrastructure/gateway"
	"github.com/clearvet/screening-backend/internal/infrastructure/metrics"
	"github.com/clearvet/screening-backend/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Retry.MaxAttempts = 1
	cfg.Retry.InitialDelay = time.Millisecond
	cfg.Breaker.FailureThreshold = 2
	cfg.Breaker.RecoveryTimeout = 50 * time.Millisecond
	return cfg
}

func newTestGateway(t *testing.T, cfg *config.Config, store cache.Store, providers ...gateway.Provider) (*gateway.Gateway, *testutil.MemoryAuditStore) {
	t.Helper()
	auditLog, auditStore := testutil.NewAuditLogger()
	gw := gateway.New(cfg, providers, store, nil, auditLog, zap.NewNop(), metrics.NewNop())
	return gw, auditStore
}

func testRequestContext(t *testing.T) values.RequestContext {
	t.Helper()
	rctx, err := values.NewRequestContext(uuid.New(), "US-CA")
	require.NoError(t, err)
	return rctx
}

func criminalRequest(tenantID uuid.UUID) gateway.Request {
	return gateway.Request{
		CheckType: screening.InfoCriminal,
		Params:    map[string]string{"name": "John Smith", "dob": "1985-03-12"},
		TenantID:  tenantID,
	}
}

func TestCall_ComplianceGateBlocksOutboundCall(t *testing.T) {
	provider := testutil.NewFakeProvider("county-records", screening.InfoCriminal)
	gw, auditStore := newTestGateway(t, testConfig(), cache.NewMemoryStore(), provider)
	rctx := testRequestContext(t)
	rules := testutil.DenyAllRuleset(t, "US-CA", screening.RoleOther)

	result, err := gw.Call(context.Background(), rctx, screening.TierStandard, rules, "county-records", criminalRequest(rctx.TenantID()))

	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, domainerrors.IsType(err, domainerrors.ErrorTypeCompliance))
	assert.Equal(t, 0, provider.Calls(), "blocked check must never reach the provider")
	assert.Len(t, auditStore.EventsOfType(audit.EventComplianceBlocked), 1)
}

func TestCall_FreshResultServedFromCache(t *testing.T) {
	provider := testutil.NewFakeProvider("county-records", screening.InfoCriminal)
	gw, _ := newTestGateway(t, testConfig(), cache.NewMemoryStore(), provider)
	rctx := testRequestContext(t)
	rules := testutil.PermissiveRuleset(t, "US-CA", screening.RoleOther, screening.InfoCriminal)
	req := criminalRequest(rctx.TenantID())

	first, err := gw.Call(context.Background(), rctx, screening.TierStandard, rules, "county-records", req)
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := gw.Call(context.Background(), rctx, screening.TierStandard, rules, "county-records", req)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.False(t, second.Stale)
	assert.Equal(t, 1, provider.Calls(), "fresh cache hit must not re-call the provider")
}

func TestCall_StaleWindowDependsOnTier(t *testing.T) {
	// Criminal results are fresh for 7 days and stale until 30 for Standard;
	// Enhanced halves the fresh window and refreshes inside the stale band.
	provider := testutil.NewFakeProvider("county-records", screening.InfoCriminal)
	store := cache.NewMemoryStore()
	gw, _ := newTestGateway(t, testConfig(), store, provider)
	rctx := testRequestContext(t)
	rules := testutil.PermissiveRuleset(t, "US-CA", screening.RoleOther, screening.InfoCriminal)
	req := criminalRequest(rctx.TenantID())

	fp, err := values.ComputeFingerprint("county-records", string(screening.InfoCriminal), req.Params)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), &cache.Entry{
		Fingerprint: fp,
		ProviderID:  "county-records",
		CheckType:   screening.InfoCriminal,
		Payload:     []byte(`{"records":["old"]}`),
		CachedAt:    time.Now().Add(-10 * 24 * time.Hour),
	}))

	standard, err := gw.Call(context.Background(), rctx, screening.TierStandard, rules, "county-records", req)
	require.NoError(t, err)
	assert.True(t, standard.FromCache)
	assert.True(t, standard.Stale)
	assert.Equal(t, 0, provider.Calls())

	enhanced, err := gw.Call(context.Background(), rctx, screening.TierEnhanced, rules, "county-records", req)
	require.NoError(t, err)
	assert.False(t, enhanced.FromCache)
	assert.Equal(t, 1, provider.Calls(), "enhanced tier refreshes stale entries")
}

func TestCall_SanctionsNeverCached(t *testing.T) {
	provider := testutil.NewFakeProvider("watchlist", screening.InfoSanctions)
	gw, _ := newTestGateway(t, testConfig(), cache.NewMemoryStore(), provider)
	rctx := testRequestContext(t)
	rules := testutil.PermissiveRuleset(t, "US-CA", screening.RoleOther, screening.InfoSanctions)
	req := gateway.Request{
		CheckType: screening.InfoSanctions,
		Params:    map[string]string{"name": "John Smith"},
		TenantID:  rctx.TenantID(),
	}

	for i := 0; i < 3; i++ {
		result, err := gw.Call(context.Background(), rctx, screening.TierStandard, rules, "watchlist", req)
		require.NoError(t, err)
		assert.False(t, result.FromCache)
	}
	assert.Equal(t, 3, provider.Calls(), "sanctions checks always go to the provider")
}

func TestCallWithFallback_MovesToNextProvider(t *testing.T) {
	primary := testutil.NewFakeProvider("primary", screening.InfoCriminal)
	primary.FailWith(&gateway.ProviderError{ProviderID: "primary", Kind: gateway.ErrKindData, Detail: "malformed response"}, 1)
	secondary := testutil.NewFakeProvider("secondary", screening.InfoCriminal)

	gw, auditStore := newTestGateway(t, testConfig(), cache.NewMemoryStore(), primary, secondary)
	rctx := testRequestContext(t)
	rules := testutil.PermissiveRuleset(t, "US-CA", screening.RoleOther, screening.InfoCriminal)

	result, err := gw.CallWithFallback(context.Background(), rctx, screening.TierStandard, rules,
		[]string{"primary", "secondary"}, criminalRequest(rctx.TenantID()))

	require.NoError(t, err)
	assert.Equal(t, "secondary", result.ProviderID)
	assert.Equal(t, 1, primary.Calls())
	assert.Equal(t, 1, secondary.Calls())
	assert.Len(t, auditStore.EventsOfType(audit.EventProviderFallback), 1)
}

func TestCallWithFallback_AllProvidersExhausted(t *testing.T) {
	failure := &gateway.ProviderError{Kind: gateway.ErrKindServiceUnavailable, Detail: "down"}
	primary := testutil.NewFakeProvider("primary", screening.InfoCriminal).FailWith(failure, 5)
	secondary := testutil.NewFakeProvider("secondary", screening.InfoCriminal).FailWith(failure, 5)

	gw, _ := newTestGateway(t, testConfig(), cache.NewMemoryStore(), primary, secondary)
	rctx := testRequestContext(t)
	rules := testutil.PermissiveRuleset(t, "US-CA", screening.RoleOther, screening.InfoCriminal)

	result, err := gw.CallWithFallback(context.Background(), rctx, screening.TierStandard, rules,
		[]string{"primary", "secondary"}, criminalRequest(rctx.TenantID()))

	require.Error(t, err)
	assert.Nil(t, result)
	var appErr *domainerrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, gateway.CodeProvidersExhausted, appErr.Code)
}

func TestCall_CircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	failure := &gateway.ProviderError{ProviderID: "flaky", Kind: gateway.ErrKindServiceUnavailable, Detail: "down"}
	provider := testutil.NewFakeProvider("flaky", screening.InfoSanctions).FailWith(failure, 10)

	cfg := testConfig() // threshold 2, retry disabled
	gw, _ := newTestGateway(t, cfg, cache.NewMemoryStore(), provider)
	rctx := testRequestContext(t)
	rules := testutil.PermissiveRuleset(t, "US-CA", screening.RoleOther, screening.InfoSanctions)
	req := gateway.Request{
		CheckType: screening.InfoSanctions,
		Params:    map[string]string{"name": "Jane Doe"},
		TenantID:  rctx.TenantID(),
	}

	for i := 0; i < 2; i++ {
		_, err := gw.Call(context.Background(), rctx, screening.TierStandard, rules, "flaky", req)
		require.Error(t, err)
	}
	assert.Equal(t, 2, provider.Calls())

	// Third call short-circuits without reaching the provider.
	_, err := gw.Call(context.Background(), rctx, screening.TierStandard, rules, "flaky", req)
	require.Error(t, err)
	var provErr *gateway.ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, gateway.ErrKindServiceUnavailable, provErr.Kind)
	assert.Equal(t, 2, provider.Calls(), "open circuit must not issue raw calls")
}

func TestCall_BreakerRecoversThroughHalfOpenProbe(t *testing.T) {
	failure := &gateway.ProviderError{ProviderID: "flaky", Kind: gateway.ErrKindServiceUnavailable, Detail: "down"}
	provider := testutil.NewFakeProvider("flaky", screening.InfoSanctions).FailWith(failure, 2)

	cfg := testConfig()
	gw, _ := newTestGateway(t, cfg, cache.NewMemoryStore(), provider)
	rctx := testRequestContext(t)
	rules := testutil.PermissiveRuleset(t, "US-CA", screening.RoleOther, screening.InfoSanctions)
	req := gateway.Request{
		CheckType: screening.InfoSanctions,
		Params:    map[string]string{"name": "Jane Doe"},
		TenantID:  rctx.TenantID(),
	}

	for i := 0; i < 2; i++ {
		_, err := gw.Call(context.Background(), rctx, screening.TierStandard, rules, "flaky", req)
		require.Error(t, err)
	}

	time.Sleep(cfg.Breaker.RecoveryTimeout + 20*time.Millisecond)

	// The half-open probe succeeds and closes the circuit.
	result, err := gw.Call(context.Background(), rctx, screening.TierStandard, rules, "flaky", req)
	require.NoError(t, err)
	assert.Equal(t, "flaky", result.ProviderID)
}

func TestCall_UnknownProvider(t *testing.T) {
	gw, _ := newTestGateway(t, testConfig(), cache.NewMemoryStore())
	rctx := testRequestContext(t)
	rules := testutil.PermissiveRuleset(t, "US-CA", screening.RoleOther, screening.InfoCriminal)

	_, err := gw.Call(context.Background(), rctx, screening.TierStandard, rules, "missing", criminalRequest(rctx.TenantID()))
	require.Error(t, err)
	assert.True(t, domainerrors.IsType(err, domainerrors.ErrorTypeNotFound))
}

// blockingProvider holds its first raw call open until released so
// concurrent gateway calls overlap.
type blockingProvider struct {
	*testutil.FakeProvider
	entered chan struct{}
	release chan struct{}
}

func (p *blockingProvider) Call(ctx context.Context, req gateway.Request) (*gateway.Result, error) {
	p.entered <- struct{}{}
	<-p.release
	return p.FakeProvider.Call(ctx, req)
}

func TestCall_ConcurrentIdenticalRequestsCoalesce(t *testing.T) {
	const callers = 4
	provider := &blockingProvider{
		FakeProvider: testutil.NewFakeProvider("watchlist", screening.InfoSanctions),
		entered:      make(chan struct{}, callers),
		release:      make(chan struct{}),
	}
	gw, _ := newTestGateway(t, testConfig(), cache.NewMemoryStore(), provider)
	rctx := testRequestContext(t)
	rules := testutil.PermissiveRuleset(t, "US-CA", screening.RoleOther, screening.InfoSanctions)
	req := gateway.Request{
		CheckType: screening.InfoSanctions,
		Params:    map[string]string{"name": "John Smith"},
		TenantID:  rctx.TenantID(),
	}

	var wg sync.WaitGroup
	errs := make([]error, callers)
	results := make([]*gateway.Result, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = gw.Call(context.Background(), rctx, screening.TierStandard, rules, "watchlist", req)
		}(i)
	}

	<-provider.entered
	time.Sleep(50 * time.Millisecond) // let the remaining callers reach the in-flight fetch
	close(provider.release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "watchlist", results[i].ProviderID)
		assert.False(t, results[i].FromCache)
	}
	assert.Equal(t, 1, provider.Calls(), "identical concurrent requests must share one raw call")
}

func TestCall_TenantScopedFingerprintsDoNotShareCache(t *testing.T) {
	provider := testutil.NewFakeProvider("hr-verify", screening.InfoEmployment)
	gw, _ := newTestGateway(t, testConfig(), cache.NewMemoryStore(), provider)
	rules := testutil.PermissiveRuleset(t, "US-CA", screening.RoleOther, screening.InfoEmployment)

	call := func(tenantID uuid.UUID) {
		rctx, err := values.NewRequestContext(tenantID, "US-CA")
		require.NoError(t, err)
		req := gateway.Request{
			CheckType:    screening.InfoEmployment,
			Params:       map[string]string{"name": "John Smith", "employer": "Acme"},
			TenantID:     tenantID,
			TenantScoped: true,
		}
		_, err = gw.Call(context.Background(), rctx, screening.TierStandard, rules, "hr-verify", req)
		require.NoError(t, err)
	}

	call(uuid.New())
	call(uuid.New())
	assert.Equal(t, 2, provider.Calls(), "tenant-scoped entries must not be shared across tenants")
}
