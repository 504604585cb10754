// Package server provides HTTP routing, middleware, and the API handlers for
// the streaming backend.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with
// method-qualified patterns, so handlers read path wildcards through
// [http.Request.PathValue].
//
// # Handlers
//
// Endpoint groups implement the [Handler] interface, which wraps the stdlib
// handler interface and adds Routes, so each group encapsulates its own
// route definitions:
//   - [TrackHandler] : search, stream acquisition, cache checks, library
//   - [IdentityHandler] : optional accounts, login/logout, session lookup
//   - [PlaylistHandler] : playlist CRUD and track membership
//   - [FailedTrackHandler] : the failure ledger consumed by the recovery tool
//
// # Authentication
//
// Sessions are JWTs carried in the Authorization header (Bearer) or the
// peerless_token cookie. Most read endpoints are public; playlist mutations
// on owned playlists and the identity surface require a valid session.
// Anonymous playlists are capability-addressed: the ID is the credential.
package server
