package handler

import (
	"net/http"

	"github.com/sandeepkv93/weapp-session-service/internal/http/middleware"
	"github.com/sandeepkv93/weapp-session-service/internal/http/response"
)

type SessionHandler struct{}

func NewSessionHandler() *SessionHandler { return &SessionHandler{} }

// Current returns the identity the session middleware attached.
func (h *SessionHandler) Current(w http.ResponseWriter, r *http.Request) {
	rec, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "SESSION_REQUIRED", "no session for request", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, rec)
}
