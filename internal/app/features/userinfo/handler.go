// internal/app/features/userinfo/handler.go
package userinfo

import (
	"context"
	"net/http"

	"github.com/dalemusser/teamhub/internal/app/features/shared/respond"
	"github.com/dalemusser/teamhub/internal/app/system/authz"
	"github.com/dalemusser/teamhub/internal/domain/models"
	"go.uber.org/zap"
)

// UnreadCounter reports the principal's unread notifications.
type UnreadCounter interface {
	CountUnread(ctx context.Context, p models.Principal) (int64, error)
}

// Handler serves the signed-in user's identity.
type Handler struct {
	Notifications UnreadCounter
	Log           *zap.Logger
}

// NewHandler creates a new userinfo handler. notes may be nil.
func NewHandler(notes UnreadCounter, logger *zap.Logger) *Handler {
	return &Handler{Notifications: notes, Log: logger}
}

type meResponse struct {
	IsAuthenticated bool   `json:"is_authenticated"`
	UID             string `json:"uid,omitempty"`
	Name            string `json:"name,omitempty"`
	Email           string `json:"email,omitempty"`
	Role            string `json:"role,omitempty"`
	Department      string `json:"department,omitempty"`
	Unread          *int64 `json:"unread,omitempty"`
}

// ServeMe handles GET /me.
//
//	{ "is_authenticated": true, "uid": "...", "role": "admin", "unread": 3 }
//
// The unread count is omitted when it cannot be read; the identity still is.
func (h *Handler) ServeMe(w http.ResponseWriter, r *http.Request) {
	p := authz.PrincipalFrom(r)
	if !p.Authenticated() {
		respond.JSON(w, http.StatusOK, meResponse{})
		return
	}

	resp := meResponse{
		IsAuthenticated: true,
		UID:             p.UID,
		Name:            p.Name,
		Email:           p.Email,
		Role:            p.Role,
		Department:      p.Department,
	}
	if h.Notifications != nil {
		n, err := h.Notifications.CountUnread(r.Context(), p)
		if err != nil {
			h.Log.Warn("me: unread count", zap.String("uid", p.UID), zap.Error(err))
		} else {
			resp.Unread = &n
		}
	}
	respond.JSON(w, http.StatusOK, resp)
}
