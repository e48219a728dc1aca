package handlers

import (
	"net/http"

	"github.com/carechat/server/internal/auth"
	"github.com/carechat/server/internal/middleware"
)

// AccountHandler serves the signed-in caller's own account.
type AccountHandler struct {
	authService *auth.AuthService
}

func NewAccountHandler(authService *auth.AuthService) *AccountHandler {
	return &AccountHandler{authService: authService}
}

type currentAccountResponse struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Avatar   string `json:"avatar"`
}

// HandleMe handles GET /accounts/me (protected)
func (h *AccountHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		respondWithError(w, r, http.StatusUnauthorized, "token invalid")
		return
	}

	me, err := h.authService.CurrentAccount(r.Context(), principal.AccountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, "ok", currentAccountResponse{
		UserID:   me.AccountID.String(),
		Username: me.Username,
		Email:    me.Email,
		Role:     string(me.Role),
		Avatar:   me.Avatar,
	})
}
