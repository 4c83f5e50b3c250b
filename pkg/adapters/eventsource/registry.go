package eventsource

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/codigix/nobal-casting-sub004/pkg/apperrors"
)

// AdapterInfo describes a registered event source adapter.
type AdapterInfo struct {
	Type        string `json:"type"`         // "postgres", "mssql", "mysql"
	DisplayName string `json:"display_name"` // "PostgreSQL", "Microsoft SQL Server"
}

// Registration contains info + factory for creating an event source.
type Registration struct {
	Info    AdapterInfo
	Factory func(ctx context.Context, cfg *Config) (EventSource, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Registration)
)

// Register is called by each adapter's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg Registration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// RegisteredAdapters returns info for all registered adapters, sorted by type.
func RegisteredAdapters() []AdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]AdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}

// IsRegistered checks if an adapter type is available.
func IsRegistered(sourceType string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[sourceType]
	return ok
}

// New opens the event source registered for cfg.Type.
func New(ctx context.Context, cfg *Config) (EventSource, error) {
	registryMu.RLock()
	reg, ok := registry[cfg.Type]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnsupportedEventSource, cfg.Type)
	}
	return reg.Factory(ctx, cfg)
}
