package mcphub

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// resourceGuard owns the resources acquired for one endpoint and releases
// them in reverse acquisition order. Release errors and panics are logged and
// discarded; every remaining step still runs unless a later step's Close
// already released it.
type resourceGuard struct {
	endpointID string
	logger     *slog.Logger

	mu    sync.Mutex
	steps []guardStep
}

type guardStep struct {
	name   string
	closer io.Closer
	// covers names earlier steps whose resources closer also releases.
	covers []string
}

func newResourceGuard(endpointID string, logger *slog.Logger) *resourceGuard {
	return &resourceGuard{endpointID: endpointID, logger: logger}
}

// acquire records a resource. Resources acquired after release has begun are
// closed by the next release call.
func (g *resourceGuard) acquire(name string, closer io.Closer) {
	if closer == nil {
		return
	}
	g.mu.Lock()
	g.steps = append(g.steps, guardStep{name: name, closer: closer})
	g.mu.Unlock()
}

// acquireCovering records a resource whose Close also releases the named
// earlier resources. Once its Close returns, with or without an error, those
// steps are skipped; if it panics they still run.
func (g *resourceGuard) acquireCovering(name string, closer io.Closer, covers ...string) {
	if closer == nil {
		return
	}
	g.mu.Lock()
	g.steps = append(g.steps, guardStep{name: name, closer: closer, covers: covers})
	g.mu.Unlock()
}

// held returns the names of the recorded resources in acquisition order.
func (g *resourceGuard) held() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	names := make([]string, 0, len(g.steps))
	for _, step := range g.steps {
		names = append(names, step.name)
	}
	return names
}

// release unwinds every recorded resource, newest first. It reports how many
// steps failed. A second call only sees resources acquired since the first.
func (g *resourceGuard) release() int {
	g.mu.Lock()
	steps := g.steps
	g.steps = nil
	g.mu.Unlock()

	failed := 0
	released := make(map[string]bool)
	for i := len(steps) - 1; i >= 0; i-- {
		step := steps[i]
		if released[step.name] {
			continue
		}
		panicked, err := closeStep(step)
		if !panicked {
			for _, covered := range step.covers {
				released[covered] = true
			}
		}
		if err != nil {
			failed++
			if g.logger != nil {
				g.logger.Warn("release failed", "endpoint", g.endpointID, "resource", step.name, "error", err)
			}
		}
	}
	return failed
}

func closeStep(step guardStep) (panicked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mcphub: closing %s panicked: %v", step.name, r)
			panicked = true
		}
	}()
	return false, step.closer.Close()
}
