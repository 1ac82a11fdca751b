package syncclient

import (
	"context"

	"planner/api/internal/plandoc"
)

// StaticIdentity resolves to a fixed identity. A blank id resolves to nil,
// which callers treat as signed out.
type StaticIdentity struct {
	ID    string
	Email string
}

func (s StaticIdentity) ResolveIdentity(context.Context) (*plandoc.Identity, error) {
	identity := plandoc.Identity{ID: s.ID, Email: s.Email}
	if !identity.Valid() {
		return nil, nil
	}
	return &identity, nil
}
