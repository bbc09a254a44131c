// Package hooks provides the default Hooks implementation.
package hooks

import (
	"context"

	"github.com/arloliu/changefeed/types"
)

// NopHooks implements Hooks with no-op callbacks.
//
// This is the default implementation used when no custom hooks are provided,
// eliminating the need for nil checks throughout the host.
type NopHooks struct{}

// NewNop creates a new no-op hooks implementation.
//
// Returns:
//   - types.Hooks: Hooks with no-op implementations
func NewNop() types.Hooks {
	h := &NopHooks{}
	return types.Hooks{
		OnLeaseAcquired: h.OnLeaseAcquired,
		OnLeaseReleased: h.OnLeaseReleased,
		OnProcessorExit: h.OnProcessorExit,
	}
}

// Fill returns a copy of hooks where every nil callback is replaced by a no-op.
func Fill(h *types.Hooks) types.Hooks {
	nop := NewNop()
	if h == nil {
		return nop
	}

	out := *h
	if out.OnLeaseAcquired == nil {
		out.OnLeaseAcquired = nop.OnLeaseAcquired
	}
	if out.OnLeaseReleased == nil {
		out.OnLeaseReleased = nop.OnLeaseReleased
	}
	if out.OnProcessorExit == nil {
		out.OnProcessorExit = nop.OnProcessorExit
	}

	return out
}

// OnLeaseAcquired is a no-op implementation.
func (h *NopHooks) OnLeaseAcquired(_ context.Context, _ string) error {
	return nil
}

// OnLeaseReleased is a no-op implementation.
func (h *NopHooks) OnLeaseReleased(_ context.Context, _ string) error {
	return nil
}

// OnProcessorExit is a no-op implementation.
func (h *NopHooks) OnProcessorExit(_ context.Context, _, _ string, _ error) error {
	return nil
}
