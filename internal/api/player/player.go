// Package player implements the account endpoints used by the game launcher:
//
//	POST /v1/players      register a nickname and receive a bearer token
//	POST /v1/player/auth  exchange a bearer token for the player identity
package player

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/digitalpulse/tsom-api/internal/apierror"
	"github.com/digitalpulse/tsom-api/internal/db/models"
	"github.com/digitalpulse/tsom-api/internal/players"
)

// Service is the part of *players.Service the handlers use.
type Service interface {
	Create(ctx context.Context, nickname string) (*players.Created, error)
	Authenticate(ctx context.Context, token string) (*models.Player, error)
}

// Handler serves the player endpoints.
type Handler struct {
	service Service
}

// NewHandler creates a new Handler.
func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// CreateRequest is the body of POST /v1/players.
type CreateRequest struct {
	Nickname *string `json:"nickname" binding:"required"`
}

// CreateResponse carries the new player's identity. The token is only ever
// returned here.
type CreateResponse struct {
	UUID  string `json:"uuid"`
	Token string `json:"token"`
}

// AuthRequest is the body of POST /v1/player/auth.
type AuthRequest struct {
	Token *string `json:"token" binding:"required"`
}

// AuthResponse identifies an authenticated player.
type AuthResponse struct {
	UUID     string `json:"uuid"`
	Nickname string `json:"nickname"`
}

// Create registers a new player.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Respond(c, apierror.InvalidRequest(apierror.CodeInvalidRequest, "Request body must be a JSON object with a nickname"))
		return
	}

	created, err := h.service.Create(c.Request.Context(), *req.Nickname)
	if err != nil {
		apierror.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, CreateResponse{
		UUID:  created.UUID.String(),
		Token: created.Token,
	})
}

// Authenticate resolves a bearer token to its player.
func (h *Handler) Authenticate(c *gin.Context) {
	var req AuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Respond(c, apierror.InvalidRequest(apierror.CodeInvalidRequest, "Request body must be a JSON object with a token"))
		return
	}

	p, err := h.service.Authenticate(c.Request.Context(), *req.Token)
	if err != nil {
		apierror.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, AuthResponse{
		UUID:     p.UUID.String(),
		Nickname: p.Nickname,
	})
}
