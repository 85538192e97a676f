package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/nerrad567/defuse-core/internal/auth"
)

const ctxKeyClaims contextKey = "claims"

// TokenRequest is the body of POST /auth/token.
type TokenRequest struct {
	PIN string `json:"pin"`
}

// TokenResponse carries an operator token.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Auth.Enabled {
		writeNotFound(w, "authentication is disabled")
		return
	}
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PIN == "" {
		writeBadRequest(w, "pin is required")
		return
	}

	ok, err := auth.VerifyPIN(req.PIN, s.cfg.Auth.PINHash)
	if err != nil {
		s.logger.Error("operator PIN hash unusable", "error", err)
		writeInternalError(w, "authentication misconfigured")
		return
	}
	if !ok {
		s.logger.Warn("operator login failed", "remote", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, auth.ErrInvalidCredentials.Error())
		return
	}

	token, expires, err := auth.IssueToken("operator", auth.RoleOperator, s.cfg.Auth.JWTSecret, s.cfg.Auth.TokenTTLDuration(), time.Now())
	if err != nil {
		writeInternalError(w, "failed to issue token")
		return
	}
	s.logger.Info("operator token issued", "remote", r.RemoteAddr, "expires_at", expires)
	writeJSON(w, http.StatusOK, TokenResponse{Token: token, ExpiresAt: expires})
}

// requireOperator rejects requests without an operator bearer token. It
// passes everything through when auth is disabled.
func (s *Server) requireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.Auth.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		raw, found := strings.CutPrefix(header, "Bearer ")
		if !found || raw == "" {
			writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "bearer token required")
			return
		}
		claims, err := auth.ParseToken(raw, s.cfg.Auth.JWTSecret)
		if err != nil {
			writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid or expired token")
			return
		}
		if err := claims.Require(auth.RoleOperator); err != nil {
			writeError(w, http.StatusForbidden, ErrCodeForbidden, err.Error())
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyClaims, claims)))
	})
}

// operatorFrom returns the token subject attached by requireOperator.
func operatorFrom(ctx context.Context) string {
	if claims, ok := ctx.Value(ctxKeyClaims).(*auth.Claims); ok {
		return claims.Subject
	}
	return ""
}
