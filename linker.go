package authlink

import (
	"context"
	"fmt"
)

// LinkDecision is the outcome of reconciling an identifier against existing links
type LinkDecision int

const (
	// Linkable means nobody else owns the identifier; token issuance may proceed
	Linkable LinkDecision = iota

	// AlreadyLinked means the identifier is already linked to the principal
	AlreadyLinked

	// LinkedToOther means a different user owns the identifier
	LinkedToOther
)

func (d LinkDecision) String() string {
	switch d {
	case Linkable:
		return "linkable"
	case AlreadyLinked:
		return "already_linked"
	case LinkedToOther:
		return "linked_to_other"
	}
	return fmt.Sprintf("LinkDecision(%d)", int(d))
}

// AccountLinker decides whether an identifier may be linked to a principal.
// It only reads from the store.
//
// Two concurrent sign-ins may both see Linkable; the store's uniqueness
// constraint on (provider, providerAccountId) is what rejects the second link.
type AccountLinker struct {
	Store interface {
		UserStore
		AccountStore
	}
}

func NewAccountLinker(store Store) *AccountLinker {
	return &AccountLinker{Store: store}
}

// Reconcile checks, in order: an existing link for (providerID, identifier),
// then any other user already owning the identifier as contact email.
func (l *AccountLinker) Reconcile(ctx context.Context, principal *Principal, identifier, providerID string) (LinkDecision, error) {
	if principal == nil {
		return LinkedToOther, fmt.Errorf("no principal to link %s to", identifier)
	}

	owner, err := l.Store.GetUserByAccount(ctx, AccountRef{Provider: providerID, ProviderAccountID: identifier})
	if err != nil && !IsNotFound(err) {
		return LinkedToOther, fmt.Errorf("looking up account: %w", err)
	}
	if owner != nil {
		if owner.ID == principal.ID {
			return AlreadyLinked, nil
		}
		return LinkedToOther, nil
	}

	// Someone may already have this address through another provider
	sameEmail, err := l.Store.GetUserByEmail(ctx, identifier)
	if err != nil && !IsNotFound(err) {
		return LinkedToOther, fmt.Errorf("looking up user by email: %w", err)
	}
	if sameEmail != nil && sameEmail.ID != principal.ID {
		return LinkedToOther, nil
	}
	return Linkable, nil
}
