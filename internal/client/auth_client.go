package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrTokenRejected is returned when the auth service recognizes the
// token and explicitly refuses it, as opposed to being unreachable.
var ErrTokenRejected = errors.New("token rejected by auth service")

// AuthClient validates bearer tokens against the central auth service
type AuthClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

type tokenValidationResponse struct {
	Valid  bool   `json:"valid"`
	UserID string `json:"userId"`
}

// NewAuthClient creates a new AuthClient
func NewAuthClient(baseURL string, timeout time.Duration, logger *zap.Logger) *AuthClient {
	return &AuthClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// ValidateToken asks the auth service whether the token is valid and
// returns the authenticated user's id
func (c *AuthClient) ValidateToken(ctx context.Context, token string) (uuid.UUID, error) {
	url := c.baseURL + "/api/auth/validate"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Auth service unreachable", zap.Error(err))
		return uuid.Nil, fmt.Errorf("auth service unreachable: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return uuid.Nil, ErrTokenRejected
	case resp.StatusCode != http.StatusOK:
		return uuid.Nil, fmt.Errorf("auth service returned status %d", resp.StatusCode)
	}

	var result tokenValidationResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return uuid.Nil, fmt.Errorf("failed to decode auth response: %w", err)
	}
	if !result.Valid {
		return uuid.Nil, ErrTokenRejected
	}

	userID, err := uuid.Parse(result.UserID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("auth service returned malformed user id: %w", err)
	}
	return userID, nil
}
