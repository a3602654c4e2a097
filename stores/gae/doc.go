//go:build !wasm
// +build !wasm

// Package gae provides a Google Cloud Datastore implementation of authlink.Store.
// It is designed for deployment on Google Cloud Platform and supports multi-tenancy
// through Datastore namespaces.
//
// # Datastore Kinds
//
// The package uses the following Datastore kinds:
//   - User: User accounts
//   - Account: Provider identities linked to users, keyed by provider:providerAccountId
//   - Session: Store backed sessions, keyed by handle
//   - VerificationToken: Digests of one-time email tokens, keyed by identifier:digest
//
// Account links and token consumption run in transactions on these
// deterministic keys, which gives the one-owner-per-identity and single-use
// guarantees.
//
// # Usage
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	store := gae.NewStore(client, "") // default namespace
package gae
