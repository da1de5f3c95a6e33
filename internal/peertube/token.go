package peertube

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// expiryMargin keeps us from presenting a token that expires mid-request.
const expiryMargin = 30 * time.Second

// Token is the persisted OAuth token. Expiry times are absolute
// milliseconds since the Unix epoch.
type Token struct {
	TokenType        string `json:"token_type"`
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresAt        int64  `json:"expires_at"`
	RefreshExpiresAt int64  `json:"refresh_expires_at"`
}

// Valid reports whether the access token is still usable at now.
func (t Token) Valid(now time.Time) bool {
	if t.AccessToken == "" {
		return false
	}
	return now.Add(expiryMargin).UnixMilli() < t.ExpiresAt
}

// RefreshValid reports whether the refresh token is still usable at now.
func (t Token) RefreshValid(now time.Time) bool {
	if t.RefreshToken == "" {
		return false
	}
	return now.Add(expiryMargin).UnixMilli() < t.RefreshExpiresAt
}

// LoadToken reads a persisted token. A missing file is not an error; the
// second return value reports whether a token was found.
func LoadToken(path string) (Token, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Token{}, false, nil
		}
		return Token{}, false, fmt.Errorf("read token file: %w", err)
	}
	var token Token
	if err := json.Unmarshal(data, &token); err != nil {
		return Token{}, false, fmt.Errorf("parse token file: %w", err)
	}
	return token, true, nil
}

// SaveToken persists the token with owner-only permissions.
func SaveToken(path string, token Token) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}
