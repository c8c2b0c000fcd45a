// ABOUTME: Persistent throttle and backoff policy for extension reload requests
// ABOUTME: The OS rate-limits directory reloads, so requests are gated and failures back off exponentially
package reload

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/harperreed/callsign/kv"
)

// Defaults. The minimum interval matches how often the platform tolerates
// reload requests without penalizing the app.
const (
	DefaultMinInterval = 5 * time.Minute
	DefaultBaseBackoff = 1 * time.Minute
	DefaultMaxBackoff  = 4 * time.Hour
)

const stateKey = "reload_policy_state"

// KV is the durable storage the policy persists through. Satisfied by
// kv.Store; missing keys must be reported as kv.ErrNotFound.
type KV interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
}

// State is the persisted policy state. BackoffUntil only ever moves forward
// and is cleared only by a successful reload.
type State struct {
	LastSyncAt          time.Time `json:"last_sync_at"`
	LastReloadAt        time.Time `json:"last_reload_at"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	BackoffUntil        time.Time `json:"backoff_until"`
}

// Decision is the outcome of ShouldReloadNow. A disallowed reload is not an
// error; NextAllowedAt says when to try again.
type Decision struct {
	Allowed       bool
	NextAllowedAt time.Time
	Reason        string
}

// Policy gates reload requests. All reads and writes go through the KV so
// the state survives process restarts.
type Policy struct {
	kv          KV
	minInterval time.Duration
	baseBackoff time.Duration
	maxBackoff  time.Duration
	now         func() time.Time
}

// Option adjusts policy construction, mainly for tests.
type Option func(*Policy)

func WithIntervals(minInterval, baseBackoff, maxBackoff time.Duration) Option {
	return func(p *Policy) {
		p.minInterval = minInterval
		p.baseBackoff = baseBackoff
		p.maxBackoff = maxBackoff
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Policy) {
		p.now = now
	}
}

// NewPolicy creates a policy over the given durable KV.
func NewPolicy(store KV, opts ...Option) *Policy {
	p := &Policy{
		kv:          store,
		minInterval: DefaultMinInterval,
		baseBackoff: DefaultBaseBackoff,
		maxBackoff:  DefaultMaxBackoff,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ShouldReloadNow reports whether a reload request is currently allowed.
// Backoff takes precedence over the minimum-interval window.
func (p *Policy) ShouldReloadNow() (Decision, error) {
	state, err := p.load()
	if err != nil {
		return Decision{}, err
	}
	now := p.now()

	if now.Before(state.BackoffUntil) {
		return Decision{
			Allowed:       false,
			NextAllowedAt: state.BackoffUntil,
			Reason:        "in backoff window",
		}, nil
	}
	if !state.LastReloadAt.IsZero() {
		next := state.LastReloadAt.Add(p.minInterval)
		if now.Before(next) {
			return Decision{
				Allowed:       false,
				NextAllowedAt: next,
				Reason:        "minimum reload interval not elapsed",
			}, nil
		}
	}
	return Decision{Allowed: true, NextAllowedAt: now}, nil
}

// RecordSync stamps the last successful sync time.
func (p *Policy) RecordSync() error {
	state, err := p.load()
	if err != nil {
		return err
	}
	state.LastSyncAt = p.now()
	return p.save(state)
}

// RecordReloadSuccess clears the failure counter and backoff window.
func (p *Policy) RecordReloadSuccess() error {
	state, err := p.load()
	if err != nil {
		return err
	}
	state.LastReloadAt = p.now()
	state.ConsecutiveFailures = 0
	state.BackoffUntil = time.Time{}
	return p.save(state)
}

// RecordReloadFailure bumps the failure counter and advances the backoff
// window exponentially, capped at maxBackoff.
func (p *Policy) RecordReloadFailure() error {
	state, err := p.load()
	if err != nil {
		return err
	}
	now := p.now()
	state.LastReloadAt = now
	state.ConsecutiveFailures++

	backoff := p.baseBackoff
	for i := 1; i < state.ConsecutiveFailures; i++ {
		backoff *= 2
		if backoff >= p.maxBackoff {
			backoff = p.maxBackoff
			break
		}
	}
	if backoff > p.maxBackoff {
		backoff = p.maxBackoff
	}

	until := now.Add(backoff)
	// BackoffUntil is monotonic: never pulled backwards by a shorter window.
	if until.After(state.BackoffUntil) {
		state.BackoffUntil = until
	}
	return p.save(state)
}

// CurrentState returns a copy of the persisted state.
func (p *Policy) CurrentState() (State, error) {
	return p.load()
}

func (p *Policy) load() (State, error) {
	data, err := p.kv.Get([]byte(stateKey))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return State{}, nil
		}
		return State{}, fmt.Errorf("failed to load reload state: %w", err)
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		// Undecodable state is discarded rather than wedging reloads forever.
		return State{}, nil
	}
	return state, nil
}

func (p *Policy) save(state State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode reload state: %w", err)
	}
	if err := p.kv.Set([]byte(stateKey), data); err != nil {
		return fmt.Errorf("failed to persist reload state: %w", err)
	}
	return nil
}
