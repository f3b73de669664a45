package core

import (
	"fmt"
	"sync"
)

// SourceRunnerRegistry dispatches by Source.Type, mirroring the export
// framework's RowSourceRegistry pattern.
type SourceRunnerRegistry struct {
	mu      sync.RWMutex
	runners map[SourceType]SourceRunner
}

// NewSourceRunnerRegistry creates an empty registry.
func NewSourceRunnerRegistry() *SourceRunnerRegistry {
	return &SourceRunnerRegistry{runners: make(map[SourceType]SourceRunner)}
}

// Register adds a runner for a source type.
func (r *SourceRunnerRegistry) Register(kind SourceType, runner SourceRunner) error {
	if kind == "" {
		return NewError(KindValidation, "source type is required", nil)
	}
	if runner == nil {
		return NewError(KindValidation, "source runner is required", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runners[kind]; exists {
		return NewError(KindValidation, fmt.Sprintf("source runner %q already registered", kind), nil)
	}
	r.runners[kind] = runner
	return nil
}

// Resolve finds a runner by source type.
func (r *SourceRunnerRegistry) Resolve(kind SourceType) (SourceRunner, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	runner, ok := r.runners[kind]
	return runner, ok
}

// ExportHandlerRegistry dispatches by Export.Type.
type ExportHandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[ExportType]ExportHandler
}

// NewExportHandlerRegistry creates an empty registry.
func NewExportHandlerRegistry() *ExportHandlerRegistry {
	return &ExportHandlerRegistry{handlers: make(map[ExportType]ExportHandler)}
}

// Register adds a handler for an export type.
func (r *ExportHandlerRegistry) Register(kind ExportType, handler ExportHandler) error {
	if kind == "" {
		return NewError(KindValidation, "export type is required", nil)
	}
	if handler == nil {
		return NewError(KindValidation, "export handler is required", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[kind]; exists {
		return NewError(KindValidation, fmt.Sprintf("export handler %q already registered", kind), nil)
	}
	r.handlers[kind] = handler
	return nil
}

// Resolve finds a handler by export type.
func (r *ExportHandlerRegistry) Resolve(kind ExportType) (ExportHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[kind]
	return handler, ok
}
