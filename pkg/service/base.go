package service

import "context"

// Wrapper adapts plain start and stop functions to Service.
type Wrapper struct {
	name  string
	deps  []string
	start func(ctx context.Context) error
	stop  func(ctx context.Context) error
}

// NewWrapper returns a Service named name. Either func may be nil.
func NewWrapper(name string, deps []string, start, stop func(ctx context.Context) error) *Wrapper {
	return &Wrapper{name: name, deps: deps, start: start, stop: stop}
}

func (w *Wrapper) Name() string           { return w.name }
func (w *Wrapper) Dependencies() []string { return w.deps }

func (w *Wrapper) Start(ctx context.Context) error {
	if w.start == nil {
		return nil
	}
	return w.start(ctx)
}

func (w *Wrapper) Stop(ctx context.Context) error {
	if w.stop == nil {
		return nil
	}
	return w.stop(ctx)
}
