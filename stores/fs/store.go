// Package fs provides a file based implementation of authlink.Store,
// suitable for development and small deployments.
package fs

import (
	al "github.com/panyam/authlink"
)

// FSStore combines the file stores into an authlink.Store
type FSStore struct {
	*FSUserStore
	*FSAccountStore
	*FSSessionStore
	*FSTokenStore
}

var _ al.Store = (*FSStore)(nil)

func NewFSStore(storagePath string) *FSStore {
	users := NewFSUserStore(storagePath)
	return &FSStore{
		FSUserStore:    users,
		FSAccountStore: NewFSAccountStore(storagePath, users),
		FSSessionStore: NewFSSessionStore(storagePath, users),
		FSTokenStore:   NewFSTokenStore(storagePath),
	}
}
