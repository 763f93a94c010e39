package auth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// expiryWarning is how close to expiry a credential starts to warn.
const expiryWarning = 5 * time.Minute

// Claims is the payload of the backend's access token.
type Claims struct {
	UserID   int64  `json:"user_id"`
	LegacyID int64  `json:"id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// User returns the account id, whichever claim carries it.
func (c *Claims) User() int64 {
	switch {
	case c.UserID != 0:
		return c.UserID
	case c.LegacyID != 0:
		return c.LegacyID
	}
	if id, err := strconv.ParseInt(c.Subject, 10, 64); err == nil {
		return id
	}
	return 0
}

// Inspect decodes the claims of token without checking its signature. The
// client never holds the signing key; the backend verifies every request.
func Inspect(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("decode credential: %w", err)
	}
	return claims, nil
}

// ExpiryProblem describes why token is about to stop working, or returns ""
// when it is fine or carries no expiry.
func ExpiryProblem(claims *Claims, now time.Time) string {
	if claims == nil || claims.ExpiresAt == nil {
		return ""
	}
	left := claims.ExpiresAt.Sub(now)
	switch {
	case left <= 0:
		return fmt.Sprintf("credential expired %s ago", (-left).Round(time.Second))
	case left < expiryWarning:
		return fmt.Sprintf("credential expires in %s", left.Round(time.Second))
	}
	return ""
}
