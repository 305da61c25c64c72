// Package auth validates the HS256 bearer tokens issued by the account
// system and extracts the scanner identity claims.
package auth

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"ignition-scanner/internal/model"
)

// Verifier checks token signatures against the shared secret. Identity
// claims: user_id (number), email, is_staff.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Decode validates tokenStr and returns the identity.
func (v *Verifier) Decode(tokenStr string) (model.User, error) {
	token, err := jwtlib.Parse(tokenStr, func(token *jwtlib.Token) (any, error) {
		if _, ok := token.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return model.User{}, fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok || !token.Valid {
		return model.User{}, fmt.Errorf("invalid token claims")
	}

	var user model.User
	switch id := claims["user_id"].(type) {
	case float64:
		user.ID = int64(id)
	case string:
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return model.User{}, fmt.Errorf("non-numeric user_id claim")
		}
		user.ID = n
	}
	if user.ID <= 0 {
		return model.User{}, fmt.Errorf("token missing user_id claim")
	}
	if email, ok := claims["email"].(string); ok {
		user.Email = email
	}
	if staff, ok := claims["is_staff"].(bool); ok {
		user.IsStaff = staff
	}
	return user, nil
}

// FromRequest pulls the token from the Authorization header, falling back
// to the token query parameter for websocket clients that cannot set
// headers.
func (v *Verifier) FromRequest(r *http.Request) (model.User, error) {
	tokenStr := ""
	if h := r.Header.Get("Authorization"); h != "" {
		tokenStr = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if tokenStr == "" {
		tokenStr = r.URL.Query().Get("token")
	}
	if tokenStr == "" {
		return model.User{}, fmt.Errorf("missing bearer token")
	}
	return v.Decode(tokenStr)
}
