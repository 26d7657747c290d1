// Package players creates player accounts and authenticates them by bearer
// token.
package players

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/digitalpulse/tsom-api/internal/apierror"
	"github.com/digitalpulse/tsom-api/internal/db/models"
	"github.com/digitalpulse/tsom-api/internal/safego"
	"github.com/digitalpulse/tsom-api/internal/telemetry"
)

const (
	// MaxTokenLength is the longest bearer token looked up in the store.
	MaxTokenLength = 64

	tokenSize = 32

	// lastConnectionTimeout bounds the detached last connection update.
	lastConnectionTimeout = 5 * time.Second
)

// Store is the persistence the service needs; *repositories.PlayerRepository
// implements it.
type Store interface {
	CreatePlayer(ctx context.Context, id uuid.UUID, nickname, token string) (int32, error)
	GetPlayerToken(ctx context.Context, token string) (*models.PlayerToken, error)
	GetPlayerByID(ctx context.Context, id int32) (*models.Player, error)
	UpdateLastConnection(ctx context.Context, id int32) error
}

// Service implements player creation and authentication.
type Service struct {
	store  Store
	policy NicknamePolicy
	random io.Reader
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithRandom replaces the entropy source used for UUIDs and tokens.
func WithRandom(r io.Reader) Option {
	return func(s *Service) {
		s.random = r
	}
}

// WithLogger sets the logger used for background failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates a Service backed by store.
func NewService(store Store, policy NicknamePolicy, opts ...Option) *Service {
	s := &Service{
		store:  store,
		policy: policy,
		random: rand.Reader,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Created is the result of a successful account creation. Token is shown to
// the player once.
type Created struct {
	UUID  uuid.UUID
	Token string
}

// GenerateToken returns a new bearer token: 32 random bytes, base64 encoded.
func GenerateToken(r io.Reader) (string, error) {
	buf := make([]byte, tokenSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("failed to generate player token: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// Create registers a player under nickname and issues its first token.
func (s *Service) Create(ctx context.Context, nickname string) (*Created, error) {
	nickname, err := ValidateNickname(nickname, s.policy)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewRandomFromReader(s.random)
	if err != nil {
		return nil, apierror.FromInternal(fmt.Errorf("failed to generate player uuid: %w", err))
	}

	token, err := GenerateToken(s.random)
	if err != nil {
		return nil, apierror.FromInternal(err)
	}

	if _, err := s.store.CreatePlayer(ctx, id, nickname, token); err != nil {
		return nil, apierror.FromDatabase(err)
	}
	telemetry.PlayersCreatedTotal.Inc()

	return &Created{UUID: id, Token: token}, nil
}

// ValidateToken returns the id of the player owning token.
func (s *Service) ValidateToken(ctx context.Context, token string) (int32, error) {
	if token == "" {
		return 0, apierror.InvalidRequest(apierror.CodeEmptyToken, "The token is empty.")
	}
	if len(token) > MaxTokenLength {
		return 0, apierror.InvalidRequest(apierror.CodeAuthenticationInvalidToken, "The given token is invalid (too long).")
	}

	pt, err := s.store.GetPlayerToken(ctx, token)
	if err != nil {
		return 0, apierror.FromDatabase(err)
	}
	if pt == nil {
		return 0, apierror.InvalidRequest(apierror.CodeAuthenticationInvalidToken, "No player has the given token.")
	}
	return pt.PlayerID, nil
}

// Lookup returns the player owning token without recording a connection.
func (s *Service) Lookup(ctx context.Context, token string) (*models.Player, error) {
	playerID, err := s.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}

	player, err := s.store.GetPlayerByID(ctx, playerID)
	if err != nil {
		return nil, apierror.FromDatabase(err)
	}
	if player == nil {
		return nil, apierror.InvalidRequest(apierror.CodeAuthenticationInvalidToken,
			fmt.Sprintf("No player has the id '%d'.", playerID))
	}
	return player, nil
}

// Authenticate returns the player owning token and records the connection
// time in the background. A failure to record it is logged and does not
// affect the result.
func (s *Service) Authenticate(ctx context.Context, token string) (*models.Player, error) {
	player, err := s.Lookup(ctx, token)
	if err != nil {
		return nil, err
	}

	playerID := player.ID
	safego.Go("update-last-connection", func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lastConnectionTimeout)
		defer cancel()
		if err := s.store.UpdateLastConnection(ctx, playerID); err != nil {
			s.logger.Error("failed to update player connection time", "player_id", playerID, "error", err)
		}
	})

	return player, nil
}
