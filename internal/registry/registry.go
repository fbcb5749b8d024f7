// Package registry implements the builder registry (E): it maps a DEX
// program identifier to a protocol-specific swap-instruction builder and a
// market tag, and is the whitelist consumed by the trade validator (C) and
// the extractor's decoder.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aman-zulfiqar/solana-swap-indexer/internal/models"
	"github.com/gagliardetto/solana-go"
)

// BuildParams are the uniform build parameters across protocols.
type BuildParams struct {
	Mint         string
	Signer       solana.PublicKey
	Type         models.SwapRequestType
	InputAmount  uint64
	OutputAmount uint64
	SlippageBps  uint16
	Observation  models.Observation
}

// Builder assembles protocol-specific instructions for a swap. Individual
// builders may consult the chain for pool state, derived addresses and
// reserves through their own injected collaborators; those mechanics are
// deliberately out of scope for the registry itself.
type Builder interface {
	Build(ctx context.Context, params BuildParams) ([]solana.Instruction, error)
}

type entry struct {
	market  string
	builder Builder
}

// Registry is the construction-time-enumerated map from program id to
// builder. Builders may additionally be disabled at runtime (e.g. via a
// feature flag) without being unregistered.
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]entry
	disabled map[string]bool
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[string]entry), disabled: make(map[string]bool)}
}

// Register adds a builder for programID under the given market tag.
func (r *Registry) Register(programID, market string, b Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[programID] = entry{market: market, builder: b}
}

// SetDisabled toggles runtime availability of a registered builder without
// removing it; a disabled builder is treated as absent by HasBuilder.
func (r *Registry) SetDisabled(programID string, disabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if disabled {
		r.disabled[programID] = true
	} else {
		delete(r.disabled, programID)
	}
}

// HasBuilder reports whether programID has an enabled, registered builder.
func (r *Registry) HasBuilder(programID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[programID]
	return ok && !r.disabled[programID]
}

// GetMarketForProgramID returns the market tag registered for programID.
func (r *Registry) GetMarketForProgramID(programID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[programID]
	if !ok || r.disabled[programID] {
		return "", false
	}
	return e.market, true
}

// SupportedProgramIDs returns every enabled program id, sorted for stable
// output (used verbatim in the unsupported-protocol error response).
func (r *Registry) SupportedProgramIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for id := range r.entries {
		if r.disabled[id] {
			continue
		}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Build dispatches to the registered builder for programID.
func (r *Registry) Build(ctx context.Context, programID string, params BuildParams) ([]solana.Instruction, error) {
	r.mu.RLock()
	e, ok := r.entries[programID]
	disabled := r.disabled[programID]
	r.mu.RUnlock()

	if !ok || disabled {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProtocol, programID)
	}
	return e.builder.Build(ctx, params)
}

// ErrUnsupportedProtocol is returned by Build (and should be matched with
// errors.Is) when programID has no enabled builder.
var ErrUnsupportedProtocol = fmt.Errorf("unsupported protocol")
