package dispute

import (
	"context"
	"errors"
)

// PartiesReader abstracts repository operations for the registry.
type PartiesReader interface {
	GetByID(ctx context.Context, disputeID uint64) (Parties, error)
}

// Registry answers party questions for the resolution engine.
type Registry struct {
	repo PartiesReader
}

func NewRegistry(repo PartiesReader) *Registry {
	return &Registry{repo: repo}
}

// Lookup returns the parties of disputeID. A missing dispute is reported as
// ok == false, not as an error.
func (r *Registry) Lookup(ctx context.Context, disputeID uint64) (Parties, bool, error) {
	p, err := r.repo.GetByID(ctx, disputeID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Parties{}, false, nil
		}
		return Parties{}, false, err
	}
	return p, true, nil
}

// IsParty reports whether identity is the landlord or tenant of disputeID.
func (r *Registry) IsParty(ctx context.Context, disputeID uint64, identity string) (bool, error) {
	p, ok, err := r.Lookup(ctx, disputeID)
	if err != nil || !ok {
		return false, err
	}
	return p.Has(identity), nil
}
