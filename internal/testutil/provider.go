package testutil

import (
	"context"
	"sync"

	"github.com/clearvet/screening-backend/internal/domain/screening"
	"github.com/clearvet/screening-backend/internal/infrastructure/gateway"
)

// FakeProvider is a scripted gateway.Provider. Each Call pops the next
// scripted outcome; when the script is exhausted the default payload is
// returned. Calls are counted per check type.
type FakeProvider struct {
	ProviderID string
	Supported  map[screening.InformationType]bool

	mu      sync.Mutex
	script  []Outcome
	calls   int
	byCheck map[screening.InformationType]int
}

// Outcome is one scripted call result
type Outcome struct {
	Payload []byte
	Err     error
}

// NewFakeProvider builds a provider supporting the given check types
func NewFakeProvider(id string, types ...screening.InformationType) *FakeProvider {
	supported := make(map[screening.InformationType]bool, len(types))
	for _, t := range types {
		supported[t] = true
	}
	return &FakeProvider{
		ProviderID: id,
		Supported:  supported,
		byCheck:    make(map[screening.InformationType]int),
	}
}

// Script appends outcomes to the provider's response script
func (p *FakeProvider) Script(outcomes ...Outcome) *FakeProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.script = append(p.script, outcomes...)
	return p
}

// FailWith scripts n consecutive failures with the given error
func (p *FakeProvider) FailWith(err error, n int) *FakeProvider {
	outcomes := make([]Outcome, n)
	for i := range outcomes {
		outcomes[i] = Outcome{Err: err}
	}
	return p.Script(outcomes...)
}

func (p *FakeProvider) ID() string { return p.ProviderID }

func (p *FakeProvider) Supports(checkType screening.InformationType) bool {
	return p.Supported[checkType]
}

func (p *FakeProvider) Call(_ context.Context, req gateway.Request) (*gateway.Result, error) {
	p.mu.Lock()
	p.calls++
	p.byCheck[req.CheckType]++
	var outcome Outcome
	if len(p.script) > 0 {
		outcome = p.script[0]
		p.script = p.script[1:]
	} else {
		outcome = Outcome{Payload: []byte(`{"records":[]}`)}
	}
	p.mu.Unlock()

	if outcome.Err != nil {
		return nil, outcome.Err
	}
	return &gateway.Result{
		ProviderID: p.ProviderID,
		CheckType:  req.CheckType,
		Payload:    outcome.Payload,
	}, nil
}

// Calls returns the total number of raw calls made
func (p *FakeProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// CallsFor returns the number of raw calls made for one check type
func (p *FakeProvider) CallsFor(checkType screening.InformationType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.byCheck[checkType]
}
