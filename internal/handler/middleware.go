package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/enersol/gd-portal-bfa-go/internal/service"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type contextKey string

const (
	operatorIDKey  contextKey = "operatorID"
	operatorCPFKey contextKey = "operatorCPF"
)

// JWTAuthMiddleware validates Bearer tokens and injects the operator
// identity into context.
func JWTAuthMiddleware(authSvc *service.AuthService, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("auth: missing token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "Token de autenticação não fornecido")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				logger.Warn("auth: invalid token format",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "Formato de token inválido")
				return
			}

			claims, err := authSvc.ValidateAccessToken(parts[1])
			if err != nil {
				logger.Warn("auth: invalid or expired token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err),
				)
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), operatorIDKey, claims.Sub)
			ctx = context.WithValue(ctx, operatorCPFKey, claims.CPF)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OperatorIDFromContext extracts the authenticated operator ID from context.
func OperatorIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(operatorIDKey).(string)
	return v
}

// OperatorCPFFromContext extracts the authenticated operator's CPF.
func OperatorCPFFromContext(ctx context.Context) string {
	v, _ := ctx.Value(operatorCPFKey).(string)
	return v
}

// AdminKeyMiddleware protects the back-office routes with a shared key,
// compared against its stored bcrypt hash. An empty configured hash
// disables the back-office entirely.
func AdminKeyMiddleware(adminKeyHash string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if adminKeyHash == "" {
				writeError(w, http.StatusForbidden, "Área administrativa desabilitada")
				return
			}

			key := r.Header.Get("X-Admin-Key")
			if key == "" {
				writeError(w, http.StatusUnauthorized, "Chave administrativa não fornecida")
				return
			}
			if err := bcrypt.CompareHashAndPassword([]byte(adminKeyHash), []byte(key)); err != nil {
				logger.Warn("admin: invalid key",
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "Chave administrativa inválida")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
