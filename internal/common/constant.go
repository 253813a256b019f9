// Package common contains shared constants and sentinel errors used across
// DataKeeper components.
package common

// AccessTokenHeaderName is the gRPC metadata / HTTP header key used to carry the
// access token when the Authorization header is not used.
const AccessTokenHeaderName = "access_token"

// AccessTokenQueryParam carries the access token for read-style HTTP requests
// that have no body.
const AccessTokenQueryParam = "token"
