// Package authsrv is the concrete credential hook spec section 4.4 calls
// "host-supplied auth": a JWT bearer-token manager whose Authenticate
// method is handed to node.Options.Auth. Grounded on the teacher pack's
// internal/auth package (knirvcorp-knirvbase), trimmed to the single
// node-identity claim this domain needs instead of a permission list.
package authsrv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type claims struct {
	NodeID string `json:"node_id"`
	jwt.RegisteredClaims
}

// credentialPayload is the shape node Options.Credentials/opts.credentials
// carries on the wire: {"token": "<jwt>"}.
type credentialPayload struct {
	Token string `json:"token"`
}

// TokenManager issues and verifies the bearer tokens nodes present as
// handshake credentials.
type TokenManager struct {
	secretKey []byte
	ttl       time.Duration
}

// NewTokenManager builds a TokenManager signing with secretKey and
// issuing tokens valid for ttl.
func NewTokenManager(secretKey string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenManager{secretKey: []byte(secretKey), ttl: ttl}
}

// IssueToken returns a signed JWT asserting nodeID's identity, suitable
// for node.Options.Token or as the "token" field of Options.Credentials.
func (tm *TokenManager) IssueToken(nodeID string) (string, error) {
	now := time.Now()
	c := claims{
		NodeID: nodeID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   nodeID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString(tm.secretKey)
}

// Verify parses and validates a token, returning the node id it asserts.
func (tm *TokenManager) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("authsrv: unexpected signing method %v", t.Header["alg"])
		}
		return tm.secretKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("authsrv: parse token: %w", err)
	}
	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", errors.New("authsrv: invalid token")
	}
	return c.NodeID, nil
}

// Authenticate is a node.Auth-shaped hook: it decodes credentials as
// either a bare JSON string token (node.Options.Token's wire shape) or
// {"token": "..."}, verifies the token, and checks the asserted node id
// matches the one the peer announced in its "connect" message.
func (tm *TokenManager) Authenticate(_ context.Context, nodeID string, credentials json.RawMessage) (bool, error) {
	if len(credentials) == 0 {
		return false, nil
	}

	var token string
	if err := json.Unmarshal(credentials, &token); err != nil {
		var payload credentialPayload
		if err := json.Unmarshal(credentials, &payload); err != nil {
			return false, nil
		}
		token = payload.Token
	}

	asserted, err := tm.Verify(token)
	if err != nil {
		return false, nil
	}
	return asserted == nodeID, nil
}
