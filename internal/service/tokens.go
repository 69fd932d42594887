package service

import (
	"fmt"
	"time"

	"github.com/enersol/gd-portal-bfa-go/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// AuthService issues and validates the short-lived bearer tokens that the
// dashboard sends on every request. Only operator access tokens exist; there
// is no refresh token because the dashboard re-authenticates through the
// identity provider when a token expires.
type AuthService struct {
	jwtSecret []byte
	accessTTL time.Duration
}

func NewAuthService(jwtSecret string, accessTTL time.Duration) *AuthService {
	return &AuthService{
		jwtSecret: []byte(jwtSecret),
		accessTTL: accessTTL,
	}
}

// OperatorClaims is the payload carried by an operator access token.
type OperatorClaims struct {
	Sub  string `json:"sub"`
	CPF  string `json:"cpf"`
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// GenerateAccessToken issues a signed operator token.
func (s *AuthService) GenerateAccessToken(operatorID, cpf string) (string, error) {
	now := time.Now()
	claims := OperatorClaims{
		Sub:  operatorID,
		CPF:  cpf,
		Type: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			Issuer:    "gd-portal-bfa",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateAccessToken parses and validates a bearer token, returning its
// claims when the signature and expiry check out.
func (s *AuthService) ValidateAccessToken(tokenString string) (*OperatorClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &OperatorClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "Token inválido ou expirado"}
	}

	claims, ok := token.Claims.(*OperatorClaims)
	if !ok || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "Token inválido ou expirado"}
	}
	if claims.Type != "access" {
		return nil, &domain.ErrUnauthorized{Message: "Token inválido ou expirado"}
	}
	return claims, nil
}
