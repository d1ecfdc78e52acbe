package testutil

import (
	"net/http"

	id "dropin/pkg/domain"
	"dropin/pkg/requestcontext"
)

// WithIdentity attaches an authenticated identity to the request context.
// This simulates what the auth middleware does after resolving a token.
func WithIdentity(req *http.Request, userID id.UserID, role id.Role) *http.Request {
	ctx := requestcontext.WithIdentity(req.Context(), id.Identity{UserID: userID, Role: role})
	return req.WithContext(ctx)
}

// AsMember is WithIdentity with the member role.
func AsMember(req *http.Request, userID id.UserID) *http.Request {
	return WithIdentity(req, userID, id.RoleMember)
}

// AsOrganizer is WithIdentity with the organizer role.
func AsOrganizer(req *http.Request, userID id.UserID) *http.Request {
	return WithIdentity(req, userID, id.RoleOrganizer)
}

// WithBearer sets the Authorization header.
func WithBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}
