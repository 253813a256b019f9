package auth

import (
	"context"
	"slices"
)

// Credential is the verified caller identity. It is passed explicitly to
// every service operation.
type Credential struct {
	// Token is the raw bearer token, forwarded to the job platform.
	Token         string
	UserID        string
	OrgID         string
	Scopes        []string
	DocumentTypes []string
}

// HasAnyScope reports whether the credential holds at least one of required.
// An empty required list grants nothing.
func (c *Credential) HasAnyScope(required []string) bool {
	if c == nil {
		return false
	}
	for _, s := range required {
		if slices.Contains(c.Scopes, s) {
			return true
		}
	}
	return false
}

// PermitsDocumentType reports whether tag is in the caller's permitted set.
func (c *Credential) PermitsDocumentType(tag string) bool {
	return c != nil && slices.Contains(c.DocumentTypes, tag)
}

type ctxKey struct{}

// WithCredential attaches c to ctx for the transport layer. Services take the
// credential as an argument instead of reading it from ctx.
func WithCredential(ctx context.Context, c *Credential) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// CredentialFrom returns the credential stored by WithCredential.
func CredentialFrom(ctx context.Context) (*Credential, bool) {
	c, ok := ctx.Value(ctxKey{}).(*Credential)
	return c, ok && c != nil
}
