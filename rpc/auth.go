package rpc

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// requireAuth admits a request to a mutating method. When a JWT secret is
// configured, the bearer token must be a valid HS256 JWT; otherwise the token
// is compared in constant time against the static credential.
func (s *Server) requireAuth(r *http.Request) *RPCError {
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if secret := strings.TrimSpace(s.cfg.JWTSecret); secret != "" {
		return s.validateJWT(token, []byte(secret))
	}
	if s.cfg.AuthToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication not configured"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

func (s *Server) validateJWT(tokenString string, secret []byte) *RPCError {
	parsed, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithLeeway(2*time.Minute))
	if err != nil || !parsed.Valid {
		return &RPCError{Code: codeUnauthorized, Message: "invalid bearer token"}
	}
	return nil
}
