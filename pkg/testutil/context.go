package testutil

import (
	"net/http"

	id "reyu/pkg/domain"
	"reyu/pkg/requestcontext"
)

// AsTrader puts a trader actor on the request context, as the auth middleware would.
func AsTrader(req *http.Request, userID id.UserID) *http.Request {
	return req.WithContext(requestcontext.WithActor(req.Context(), userID, requestcontext.RoleTrader))
}

// AsAdmin puts an admin actor on the request context.
func AsAdmin(req *http.Request, userID id.UserID) *http.Request {
	return req.WithContext(requestcontext.WithActor(req.Context(), userID, requestcontext.RoleAdmin))
}
