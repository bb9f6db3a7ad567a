// Package transport posts telemetry and configuration packages to the
// remote monitoring endpoint.
//
// OAuthClient obtains a bearer credential with the OAuth 2.0
// client-credentials grant and caches it for 99% of its advertised
// lifetime. Send re-authenticates lazily once that has elapsed, so callers
// only need Authenticate to surface credential problems early.
//
// Every package is a JSON object of the form {"items":[...]}. Responses are
// returned for any HTTP status; deciding which statuses are acceptable is
// left to the caller. Errors are typed: *AuthError for rejected token
// requests and *NetworkError when no response was received at all.
package transport
