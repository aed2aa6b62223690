package jwt

import (
	"errors"
	"slices"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrNotAdmin     = errors.New("token does not carry an admin role")
)

// Claims represents the claims of a Supabase access token.
type Claims struct {
	jwt.RegisteredClaims
	Email       string         `json:"email"`
	Role        string         `json:"role"`
	AppMetadata map[string]any `json:"app_metadata,omitempty"`
}

// Roles returns the token role followed by app_metadata.role when present.
func (c *Claims) Roles() []string {
	roles := make([]string, 0, 2)
	if c.Role != "" {
		roles = append(roles, c.Role)
	}
	if r, ok := c.AppMetadata["role"].(string); ok && r != "" {
		roles = append(roles, r)
	}
	return roles
}

// Verifier validates HS256 tokens signed with the project secret.
type Verifier struct {
	secret     []byte
	adminRoles []string
}

// NewVerifier creates a verifier. adminRoles lists the roles accepted by VerifyAdmin.
func NewVerifier(secret string, adminRoles []string) *Verifier {
	return &Verifier{
		secret:     []byte(secret),
		adminRoles: adminRoles,
	}
}

// ValidateToken validates a token and returns claims.
func (v *Verifier) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// VerifyAdmin validates the token and checks it carries one of the admin roles.
func (v *Verifier) VerifyAdmin(tokenString string) (*Claims, error) {
	claims, err := v.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}

	for _, role := range claims.Roles() {
		if slices.Contains(v.adminRoles, role) {
			return claims, nil
		}
	}
	return nil, ErrNotAdmin
}
