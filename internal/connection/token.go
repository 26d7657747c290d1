// Package connection issues the tokens a game client presents to a game server.
//
// A token has a cleartext part (version, expiry, both session keys) that is
// bound as AEAD additional data, and a private part (game API credentials and
// player identity) sealed under the key shared with the game server.
package connection

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/digitalpulse/tsom-api/internal/binenc"
	"github.com/digitalpulse/tsom-api/internal/crypto"
	"github.com/digitalpulse/tsom-api/internal/telemetry"
)

// TokenVersion is the protocol version written in every token.
const TokenVersion uint32 = 1

var (
	// ErrTokenGeneration hides every cipher or random-source failure from callers.
	ErrTokenGeneration = errors.New("connection: token generation failed")
	// ErrSystemTime is returned when the wall clock reads before the Unix epoch.
	ErrSystemTime = errors.New("connection: system time is before the unix epoch")
)

// EncryptionKeys are the two session keys handed to the client in the clear.
type EncryptionKeys struct {
	ClientToServer []byte `json:"client_to_server"`
	ServerToClient []byte `json:"server_to_client"`
}

// ServerAddress is the game server the client should connect to.
type ServerAddress struct {
	Address string `json:"address"`
	Port    uint16 `json:"port"`
}

// Token is the JSON envelope returned to the client. Byte slices marshal as
// standard base64.
type Token struct {
	TokenVersion      uint32         `json:"token_version"`
	TokenNonce        []byte         `json:"token_nonce"`
	CreationTimestamp uint64         `json:"creation_timestamp"`
	ExpireTimestamp   uint64         `json:"expire_timestamp"`
	EncryptionKeys    EncryptionKeys `json:"encryption_keys"`
	GameServer        ServerAddress  `json:"game_server"`
	PrivateTokenData  []byte         `json:"private_token_data"`
}

// PlayerData identifies the player inside the private token.
type PlayerData struct {
	UUID     uuid.UUID
	Nickname string
}

// PrivateToken is the payload only the game server can read.
type PrivateToken struct {
	APIToken   string
	APIURL     string
	PlayerData PlayerData
}

// Encode serializes the private token in the game server's wire layout.
func (p PrivateToken) Encode() []byte {
	w := binenc.NewWriter(4 + len(p.APIToken) + 4 + len(p.APIURL) + 16 + 4 + len(p.PlayerData.Nickname))
	w.PutString(p.APIToken)
	w.PutString(p.APIURL)
	w.PutUUID(p.PlayerData.UUID)
	w.PutString(p.PlayerData.Nickname)
	return w.Bytes()
}

// AdditionalData is the authenticated cleartext header.
type AdditionalData struct {
	TokenVersion      uint32
	ExpireTimestamp   uint64
	ClientToServerKey []byte
	ServerToClientKey []byte
}

// Encode serializes the header: u32 version, u64 expiry, then both 32-byte keys.
func (a AdditionalData) Encode() []byte {
	w := binenc.NewWriter(4 + 8 + len(a.ClientToServerKey) + len(a.ServerToClientKey))
	w.PutUint32(a.TokenVersion)
	w.PutUint64(a.ExpireTimestamp)
	w.PutBytes(a.ClientToServerKey)
	w.PutBytes(a.ServerToClientKey)
	return w.Bytes()
}

// AdditionalData rebuilds the header a game server authenticates this token with.
func (t *Token) AdditionalData() AdditionalData {
	return AdditionalData{
		TokenVersion:      t.TokenVersion,
		ExpireTimestamp:   t.ExpireTimestamp,
		ClientToServerKey: t.EncryptionKeys.ClientToServer,
		ServerToClientKey: t.EncryptionKeys.ServerToClient,
	}
}

// Issuer builds tokens. It holds no mutable state and is safe for concurrent use.
type Issuer struct {
	cipher   *crypto.TokenCipher
	duration time.Duration
	server   ServerAddress
	now      func() time.Time
	random   io.Reader
}

// Option customises an Issuer.
type Option func(*Issuer)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// WithRandom replaces crypto/rand as the source of keys and nonces.
func WithRandom(r io.Reader) Option {
	return func(i *Issuer) { i.random = r }
}

// NewIssuer creates an Issuer sealing with tokenKey (32 bytes).
func NewIssuer(tokenKey []byte, duration time.Duration, server ServerAddress, opts ...Option) (*Issuer, error) {
	c, err := crypto.NewTokenCipher(tokenKey)
	if err != nil {
		return nil, fmt.Errorf("connection token key: %w", err)
	}
	i := &Issuer{
		cipher:   c,
		duration: duration,
		server:   server,
		now:      time.Now,
		random:   rand.Reader,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Generate issues a fresh token for privateToken.
func (i *Issuer) Generate(_ context.Context, privateToken PrivateToken) (*Token, error) {
	token, err := i.generate(privateToken)
	result := "success"
	if err != nil {
		result = "error"
	}
	telemetry.ConnectionTokensIssuedTotal.WithLabelValues(result).Inc()
	return token, err
}

func (i *Issuer) generate(privateToken PrivateToken) (*Token, error) {
	now := i.now()
	if now.Before(time.Unix(0, 0)) {
		return nil, ErrSystemTime
	}
	created := uint64(now.Unix())
	expire := uint64(now.Add(i.duration).Unix())

	c2s, err := crypto.ReadKey(i.random)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenGeneration, err)
	}
	s2c, err := crypto.ReadKey(i.random)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenGeneration, err)
	}

	additional := AdditionalData{
		TokenVersion:      TokenVersion,
		ExpireTimestamp:   expire,
		ClientToServerKey: c2s,
		ServerToClientKey: s2c,
	}

	nonce, err := crypto.ReadNonce(i.random)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenGeneration, err)
	}

	sealed, err := i.cipher.Seal(nonce, privateToken.Encode(), additional.Encode())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenGeneration, err)
	}

	return &Token{
		TokenVersion:      TokenVersion,
		TokenNonce:        nonce,
		CreationTimestamp: created,
		ExpireTimestamp:   expire,
		EncryptionKeys: EncryptionKeys{
			ClientToServer: c2s,
			ServerToClient: s2c,
		},
		GameServer:       i.server,
		PrivateTokenData: sealed,
	}, nil
}
