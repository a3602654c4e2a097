// Package authlink orchestrates sign-in for web applications: OAuth provider
// round trips and passwordless email links, account linking, and sessions.
//
// A user can own several provider accounts. Each account is identified by the
// pair (provider id, provider account id) and belongs to at most one user. For
// the email provider the account id is the normalized address.
//
// # Components
//
// StateProtector issues a per-attempt nonce carried in a signed, short lived
// cookie and checks it on the OAuth callback.
//
// SessionResolver turns a session handle (cookie or bearer token) into a
// Principal. A missing or broken session is not an error; it resolves to nil.
//
// AccountLinker decides whether an email address may be linked to the signed
// in user, already belongs to them, or is taken by someone else.
//
// VerificationTokenIssuer creates one-time email tokens. Only a keyed digest
// of the token is stored; the raw value only ever appears in the delivered link.
//
// SigninDispatcher and CallbackHandler sequence the two legs of a sign-in and
// reduce every outcome to one ResponseDirective: a redirect or a terminal
// status. Failures redirect to {BaseURL}/error?error=<code>[&reason=<reason>].
//
// # Basic Usage
//
//	import (
//	    "github.com/panyam/authlink"
//	    "github.com/panyam/authlink/oauth2"
//	    "github.com/panyam/authlink/stores/fs"
//	)
//
//	cfg, err := authlink.LoadConfigFromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	auth := authlink.New(cfg, fs.NewFSStore(cfg.StoragePath))
//	auth.OAuth = oauth2.NewClient(cfg.BaseURL)
//	auth.AddProvider(oauth2.GitHub("", ""))
//	auth.AddProvider(authlink.NewEmailProvider("email", &authlink.ConsoleSender{}))
//
//	router := mux.NewRouter()
//	if err := auth.RegisterRoutes(router.PathPrefix("/auth").Subrouter()); err != nil {
//	    log.Fatal(err)
//	}
//	router.Handle("/me", auth.Middleware.EnsurePrincipal(meHandler))
//
// Configuration errors (a missing secret, a provider without a type or a
// sender) are reported by Init, before any route is served.
//
// # Store Implementations
//
// stores/fs keeps everything in JSON files and is suited to development and
// small deployments. stores/gorm and stores/gae back the same interfaces with
// a SQL database or Cloud Datastore. Every store enforces the account
// uniqueness constraint itself, which is what settles two concurrent attempts
// to claim the same address.
//
// # Sessions
//
// Sessions are either self-contained JWTs ("jwt"), rows in the store
// ("database"), or scs sessions ("scs"). The grpc subpackage resolves the same
// handles for gRPC services.
package authlink
