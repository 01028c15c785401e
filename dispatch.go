package relay

import (
	"context"
	"fmt"
	"log/slog"
)

// Dispatcher resolves a routing decision to its registered provider and
// invokes it. Provider panics are recovered and converted to
// ErrProviderInvocation so a single misbehaving capability cannot take down
// the turn.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
	tracer   Tracer
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// DispatcherLogger sets the structured logger.
func DispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// DispatcherTracer sets the tracer for dispatch spans.
func DispatcherTracer(t Tracer) DispatcherOption {
	return func(d *Dispatcher) { d.tracer = t }
}

// NewDispatcher creates a Dispatcher over the registry.
func NewDispatcher(registry *Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{registry: registry, logger: nopLogger}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Dispatch invokes the provider named by decision. An unregistered name
// returns ErrNotFound without any invocation. Provider errors and panics
// come back as ErrProviderInvocation.
func (d *Dispatcher) Dispatch(ctx context.Context, decision RoutingDecision, inv Invocation) (ProviderResult, error) {
	provider, ok := d.registry.Provider(decision.Provider)
	if !ok {
		return ProviderResult{}, &ErrNotFound{Provider: decision.Provider}
	}

	if d.tracer != nil {
		var span Span
		ctx, span = d.tracer.Start(ctx, "route.dispatch",
			StringAttr("provider", decision.Provider))
		defer span.End()
	}

	inv.Confidence = decision.Confidence
	d.logger.Info("dispatching",
		"provider", decision.Provider,
		"confidence", decision.Confidence)

	result, err := d.safeInvoke(ctx, provider, inv)
	if err != nil {
		d.logger.Error("provider invocation failed",
			"provider", decision.Provider,
			"error", err)
		return ProviderResult{}, err
	}
	return result, nil
}

// safeInvoke shields the caller from provider panics.
func (d *Dispatcher) safeInvoke(ctx context.Context, p CapabilityProvider, inv Invocation) (result ProviderResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ErrProviderInvocation{
				Provider: p.Name(),
				Message:  fmt.Sprintf("panic: %v", r),
			}
		}
	}()
	result, invokeErr := p.Invoke(ctx, inv)
	if invokeErr != nil {
		return ProviderResult{}, &ErrProviderInvocation{
			Provider: p.Name(),
			Message:  invokeErr.Error(),
		}
	}
	return result, nil
}
