package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters-long"

func mintToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestDecodeValidToken(t *testing.T) {
	v := NewVerifier(testSecret)
	tok := mintToken(t, testSecret, jwt.MapClaims{
		"user_id":  float64(42),
		"email":    "trader@example.com",
		"is_staff": true,
		"exp":      time.Now().Add(time.Hour).Unix(),
	})

	user, err := v.Decode(tok)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if user.ID != 42 || user.Email != "trader@example.com" || !user.IsStaff {
		t.Fatalf("bad identity: %+v", user)
	}
}

func TestDecodeStringUserID(t *testing.T) {
	v := NewVerifier(testSecret)
	tok := mintToken(t, testSecret, jwt.MapClaims{
		"user_id": "7",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	user, err := v.Decode(tok)
	if err != nil || user.ID != 7 {
		t.Fatalf("Decode = %+v, %v", user, err)
	}
}

func TestDecodeRejections(t *testing.T) {
	v := NewVerifier(testSecret)

	cases := []struct {
		name string
		tok  string
	}{
		{"wrong secret", mintToken(t, "another-secret-that-is-long-enough-0000", jwt.MapClaims{
			"user_id": float64(1), "exp": time.Now().Add(time.Hour).Unix(),
		})},
		{"expired", mintToken(t, testSecret, jwt.MapClaims{
			"user_id": float64(1), "exp": time.Now().Add(-time.Hour).Unix(),
		})},
		{"missing user id", mintToken(t, testSecret, jwt.MapClaims{
			"exp": time.Now().Add(time.Hour).Unix(),
		})},
		{"garbage", "not-a-token"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := v.Decode(c.tok); err == nil {
				t.Fatal("expected rejection")
			}
		})
	}
}

func TestFromRequestHeaderAndQuery(t *testing.T) {
	v := NewVerifier(testSecret)
	tok := mintToken(t, testSecret, jwt.MapClaims{
		"user_id": float64(5),
		"exp":     time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest("GET", "/scanner/triggers/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	user, err := v.FromRequest(req)
	if err != nil || user.ID != 5 {
		t.Fatalf("header auth = %+v, %v", user, err)
	}

	req = httptest.NewRequest("GET", "/ws/scanner/triggers/?token="+tok, nil)
	user, err = v.FromRequest(req)
	if err != nil || user.ID != 5 {
		t.Fatalf("query auth = %+v, %v", user, err)
	}

	req = httptest.NewRequest("GET", "/scanner/triggers/", nil)
	if _, err := v.FromRequest(req); err == nil {
		t.Fatal("missing token must be rejected")
	}
}
