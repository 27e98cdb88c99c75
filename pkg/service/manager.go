// Package service starts and stops the components of a running instance in dependency order.
package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/small-frappuccino/discordstate/pkg/log"
)

// State is the lifecycle state of a registered service.
type State string

const (
	StateRegistered State = "registered"
	StateStarting   State = "starting"
	StateRunning    State = "running"
	StateStopping   State = "stopping"
	StateStopped    State = "stopped"
	StateError      State = "error"
)

// Service is a component with a start/stop lifecycle.
type Service interface {
	Name() string
	// Dependencies names the services that must be running before this one starts.
	Dependencies() []string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Info describes a registered service.
type Info struct {
	Name         string     `json:"name"`
	Dependencies []string   `json:"dependencies,omitempty"`
	State        State      `json:"state"`
	StartTime    *time.Time `json:"start_time,omitempty"`
	StopTime     *time.Time `json:"stop_time,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
}

type entry struct {
	svc  Service
	info Info
}

// Manager coordinates the lifecycle of registered services.
type Manager struct {
	mu       sync.RWMutex
	services map[string]*entry

	startTimeout time.Duration
	stopTimeout  time.Duration
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{
		services:     make(map[string]*entry),
		startTimeout: 30 * time.Second,
		stopTimeout:  30 * time.Second,
	}
}

// Register adds svc. Names must be unique.
func (m *Manager) Register(svc Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := svc.Name()
	if _, exists := m.services[name]; exists {
		return fmt.Errorf("service %q is already registered", name)
	}
	m.services[name] = &entry{
		svc: svc,
		info: Info{
			Name:         name,
			Dependencies: slices.Clone(svc.Dependencies()),
			State:        StateRegistered,
		},
	}
	log.ApplicationLogger().Debug("Service registered", "service", name, "dependencies", svc.Dependencies())
	return nil
}

// StartAll starts every service after its dependencies. On the first failure the services
// already started are stopped again and the error is returned.
func (m *Manager) StartAll(ctx context.Context) error {
	order, err := m.startOrder()
	if err != nil {
		return fmt.Errorf("calculate start order: %w", err)
	}

	for i, name := range order {
		if err := m.start(ctx, name); err != nil {
			m.stopNames(reversed(order[:i]))
			return fmt.Errorf("start service %s: %w", name, err)
		}
	}
	log.ApplicationLogger().Info("All services started", "services", len(order))
	return nil
}

// StopAll stops running services in reverse dependency order. Every service is asked to
// stop even if an earlier one fails; the failures are joined.
func (m *Manager) StopAll() error {
	order, err := m.startOrder()
	if err != nil {
		return fmt.Errorf("calculate stop order: %w", err)
	}
	if err := m.stopNames(reversed(order)); err != nil {
		log.ErrorLoggerRaw().Error("Some services failed to stop cleanly", "err", err)
		return err
	}
	log.ApplicationLogger().Info("All services stopped")
	return nil
}

// Services returns the state of every registered service, sorted by name.
func (m *Manager) Services() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Info, 0, len(m.services))
	for _, e := range m.services {
		out = append(out, e.info)
	}
	slices.SortFunc(out, func(a, b Info) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return out
}

func (m *Manager) start(parent context.Context, name string) error {
	m.mu.Lock()
	e := m.services[name]
	if e.info.State == StateRunning {
		m.mu.Unlock()
		return nil
	}
	e.info.State = StateStarting
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(parent, m.startTimeout)
	defer cancel()

	log.ApplicationLogger().Info("Starting service", "service", name)
	err := e.svc.Start(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		e.info.State = StateError
		e.info.LastError = err.Error()
		return err
	}
	now := time.Now()
	e.info.StartTime = &now
	e.info.StopTime = nil
	e.info.State = StateRunning
	return nil
}

func (m *Manager) stopNames(names []string) error {
	var errs []error
	for _, name := range names {
		if err := m.stop(name); err != nil {
			errs = append(errs, fmt.Errorf("stop service %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) stop(name string) error {
	m.mu.Lock()
	e := m.services[name]
	if e.info.State != StateRunning {
		m.mu.Unlock()
		return nil
	}
	e.info.State = StateStopping
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.stopTimeout)
	defer cancel()

	log.ApplicationLogger().Info("Stopping service", "service", name)
	err := e.svc.Stop(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	e.info.StopTime = &now
	e.info.State = StateStopped
	if err != nil {
		e.info.LastError = err.Error()
	}
	return err
}

// startOrder is a topological sort of the services. Ties are broken by name so the order
// is stable across runs.
func (m *Manager) startOrder() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.services))
	for name := range m.services {
		names = append(names, name)
	}
	slices.Sort(names)

	visited := make(map[string]bool, len(names))
	visiting := make(map[string]bool)
	order := make([]string, 0, len(names))

	var visit func(string) error
	visit = func(name string) error {
		if visiting[name] {
			return fmt.Errorf("circular dependency involving service %q", name)
		}
		if visited[name] {
			return nil
		}
		visiting[name] = true
		for _, dep := range m.services[name].info.Dependencies {
			if _, ok := m.services[dep]; !ok {
				return fmt.Errorf("service %q depends on unknown service %q", name, dep)
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		visiting[name] = false
		visited[name] = true
		order = append(order, name)
		return nil
	}

	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func reversed(in []string) []string {
	out := slices.Clone(in)
	slices.Reverse(out)
	return out
}
