//go:build !wasm
// +build !wasm

// Package gorm provides a GORM-based implementation of authlink.Store.
// It supports any database that GORM supports (PostgreSQL, MySQL, SQLite, etc.)
// and is suitable for production deployments requiring relational database storage.
//
// # Database Schema
//
// The package auto-migrates the following tables:
//   - users: User accounts
//   - accounts: Provider identities linked to users, keyed by (provider, provider_account_id)
//   - sessions: Store backed sessions
//   - verification_tokens: Digests of one-time email tokens
//
// Open the database with TranslateError so a concurrent duplicate link is
// reported as authlink.ErrAccountLinked.
//
// # Usage
//
//	db, _ := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
//	gormstore.AutoMigrate(db)
//	store := gormstore.NewStore(db)
package gorm
