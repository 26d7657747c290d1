// Package game implements the endpoints the launcher and the game client call
// before joining a server.
package game

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/digitalpulse/tsom-api/internal/apierror"
	"github.com/digitalpulse/tsom-api/internal/connection"
	"github.com/digitalpulse/tsom-api/internal/db/models"
	"github.com/digitalpulse/tsom-api/internal/releases"
)

// PlayerLookup resolves a bearer token to its player; *players.Service
// implements it.
type PlayerLookup interface {
	Lookup(ctx context.Context, token string) (*models.Player, error)
}

// TokenIssuer issues connection tokens; *connection.Issuer implements it.
type TokenIssuer interface {
	Generate(ctx context.Context, privateToken connection.PrivateToken) (*connection.Token, error)
}

// ReleaseSource serves the latest releases; *releases.Cache implements it.
type ReleaseSource interface {
	LatestGameRelease(ctx context.Context) (*releases.GameRelease, error)
	LatestUpdaterRelease(ctx context.Context) (releases.Assets, error)
}

// Config is what the handlers need from the game configuration.
type Config struct {
	// APIURL and APIToken are forwarded to the game server inside the
	// private part of every connection token.
	APIURL   string
	APIToken string
	// UpdaterFilename is the suffix of updater platform keys.
	UpdaterFilename string
}

// Handler serves the game endpoints.
type Handler struct {
	players  PlayerLookup
	issuer   TokenIssuer
	releases ReleaseSource
	config   Config
}

// NewHandler creates a new Handler.
func NewHandler(players PlayerLookup, issuer TokenIssuer, source ReleaseSource, config Config) *Handler {
	return &Handler{
		players:  players,
		issuer:   issuer,
		releases: source,
		config:   config,
	}
}

// ConnectRequest is the body of POST /v1/game/connect.
type ConnectRequest struct {
	Token *string `json:"token" binding:"required"`
}

// Connect issues a connection token for the player owning the bearer token.
//
//	POST /v1/game/connect
func (h *Handler) Connect(c *gin.Context) {
	var req ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Respond(c, apierror.InvalidRequest(apierror.CodeInvalidRequest, "Request body must be a JSON object with a token"))
		return
	}

	ctx := c.Request.Context()
	p, err := h.players.Lookup(ctx, *req.Token)
	if err != nil {
		apierror.Respond(c, err)
		return
	}

	token, err := h.issuer.Generate(ctx, connection.PrivateToken{
		APIToken: h.config.APIToken,
		APIURL:   h.config.APIURL,
		PlayerData: connection.PlayerData{
			UUID:     p.UUID,
			Nickname: p.Nickname,
		},
	})
	if err != nil {
		apierror.Respond(c, apierror.Server(apierror.CauseInternal, apierror.CodeTokenGenerationFailed, err))
		return
	}

	c.JSON(http.StatusOK, token)
}

// VersionResponse describes what a launcher on one platform must download.
type VersionResponse struct {
	Assets        releases.Asset `json:"assets"`
	AssetsVersion string         `json:"assets_version"`
	Binaries      releases.Asset `json:"binaries"`
	Updater       releases.Asset `json:"updater"`
	Version       string         `json:"version"`
}

// Version returns the latest game build, assets bundle and updater for the
// platform named by the platform query parameter.
//
//	GET /game_version?platform=linux_x86_64
func (h *Handler) Version(c *gin.Context) {
	ctx := c.Request.Context()
	platform := c.Query("platform")

	updater, err := h.releases.LatestUpdaterRelease(ctx)
	if err != nil {
		apierror.Respond(c, apierror.Server(apierror.CauseInternal, apierror.CodeFetchUpdaterRelease, err))
		return
	}

	game, err := h.releases.LatestGameRelease(ctx)
	if err != nil {
		apierror.Respond(c, apierror.Server(apierror.CauseInternal, apierror.CodeFetchGameRelease, err))
		return
	}

	updaterAsset, hasUpdater := updater[platform+"_"+h.config.UpdaterFilename]
	binary, hasBinary := game.Binaries[platform]
	if platform == "" || !hasUpdater || !hasBinary {
		apierror.Respond(c, apierror.PlatformNotFound(
			fmt.Sprintf("no updater or game binary release found for platform %s", platform)))
		return
	}

	c.JSON(http.StatusOK, VersionResponse{
		Assets:        game.Assets,
		AssetsVersion: game.AssetsVersion.String(),
		Binaries:      binary,
		Updater:       updaterAsset,
		Version:       game.Version.String(),
	})
}
