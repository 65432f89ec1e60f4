package testutil

import (
	"net/http"

	"intake/pkg/requestcontext"
)

// WithActor adds a caller identity to the request context.
// This simulates what the identity middleware would do for authenticated requests.
func WithActor(req *http.Request, subject string, role requestcontext.Role) *http.Request {
	ctx := requestcontext.WithActor(req.Context(), requestcontext.Identity{
		Subject:     subject,
		DisplayName: subject,
		Role:        role,
	})
	return req.WithContext(ctx)
}

// AsReviewer adds a reviewer identity to the request context.
func AsReviewer(req *http.Request, subject string) *http.Request {
	return WithActor(req, subject, requestcontext.RoleReviewer)
}

// AsApplicant adds an applicant identity to the request context.
func AsApplicant(req *http.Request, subject string) *http.Request {
	return WithActor(req, subject, requestcontext.RoleApplicant)
}
