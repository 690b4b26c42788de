package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Health levels, ordered from best to worst.
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
	HealthFailing  = "fail"
)

var healthRank = map[string]int{HealthOK: 0, HealthDegraded: 1, HealthFailing: 2}

// Breaker exposes the circuit breaker of a monitored adapter.
type Breaker interface {
	CircuitBreakerState() gobreaker.State
	CircuitBreakerCounts() gobreaker.Counts
}

// ProviderHealth is a point-in-time view of one adapter.
// Zero times mean the event has not happened since startup.
type ProviderHealth struct {
	Name          string
	CircuitState  gobreaker.State
	Counts        gobreaker.Counts
	LastSuccessAt time.Time
	LastFailureAt time.Time
	LastError     string
}

// Level maps the circuit state to a health level: an open circuit fails,
// a half-open one is degraded.
func (h ProviderHealth) Level() string {
	switch h.CircuitState {
	case gobreaker.StateOpen:
		return HealthFailing
	case gobreaker.StateHalfOpen:
		return HealthDegraded
	default:
		return HealthOK
	}
}

// Worst returns the worst level among health, or HealthOK when empty.
func Worst(health []ProviderHealth) string {
	worst := HealthOK
	for _, h := range health {
		if l := h.Level(); healthRank[l] > healthRank[worst] {
			worst = l
		}
	}
	return worst
}

// Registry tracks the external adapters of one process: routing, weather
// and the remote model. Adapters register themselves on construction.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]*entry
	now       func() time.Time
}

type entry struct {
	breaker   Breaker
	successAt time.Time
	failureAt time.Time
	lastError string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]*entry),
		now:       time.Now,
	}
}

// Register adds or replaces the adapter called name.
func (r *Registry) Register(name string, b Breaker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = &entry{breaker: b}
}

// RecordSuccess notes a successful call. Unknown names are ignored.
func (r *Registry) RecordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.providers[name]; ok {
		e.successAt = r.now()
	}
}

// RecordFailure notes a failed call and keeps its message.
func (r *Registry) RecordFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.providers[name]; ok {
		e.failureAt = r.now()
		if err != nil {
			e.lastError = err.Error()
		}
	}
}

// Health returns the view of one adapter.
func (r *Registry) Health(name string) (ProviderHealth, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.providers[name]
	if !ok {
		return ProviderHealth{}, false
	}
	return e.health(name), true
}

// AllHealth returns every adapter's view, sorted by name.
func (r *Registry) AllHealth() []ProviderHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ProviderHealth, 0, len(r.providers))
	for name, e := range r.providers {
		out = append(out, e.health(name))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the registered adapter names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *entry) health(name string) ProviderHealth {
	return ProviderHealth{
		Name:          name,
		CircuitState:  e.breaker.CircuitBreakerState(),
		Counts:        e.breaker.CircuitBreakerCounts(),
		LastSuccessAt: e.successAt,
		LastFailureAt: e.failureAt,
		LastError:     e.lastError,
	}
}
