// Package token signs and verifies the compact HS256 access tokens issued by
// the identity collaborator. Claims carry the actor id (sub) and role.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var b64 = base64.RawURLEncoding

// Claims is the verified payload of an access token.
type Claims struct {
	Subject string
	Role    string
}

// Sign creates a compact HS256 token for the given actor. Used by tests and
// local tooling; production tokens come from the identity service.
func Sign(subject, role string, ttl time.Duration, secret []byte) (string, error) {
	claims := map[string]any{
		"sub":  subject,
		"role": role,
		"exp":  time.Now().Add(ttl).Unix(),
	}
	header := map[string]string{"alg": "HS256", "typ": "JWT"}
	h, err := json.Marshal(header)
	if err != nil {
		return "", err
	}
	c, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	unsigned := b64.EncodeToString(h) + "." + b64.EncodeToString(c)
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(unsigned))
	return unsigned + "." + b64.EncodeToString(mac.Sum(nil)), nil
}

// Verify checks the token signature and expiry and returns its claims.
func Verify(tok string, secret []byte) (Claims, error) {
	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		return Claims{}, errors.New("invalid token format")
	}
	unsigned := parts[0] + "." + parts[1]
	sig, err := b64.DecodeString(parts[2])
	if err != nil {
		return Claims{}, errors.New("invalid signature encoding")
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(unsigned))
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return Claims{}, errors.New("signature mismatch")
	}

	payload, err := b64.DecodeString(parts[1])
	if err != nil {
		return Claims{}, errors.New("invalid payload encoding")
	}
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Claims{}, errors.New("invalid claims json")
	}

	if exp, ok := raw["exp"].(float64); ok && time.Now().Unix() >= int64(exp) {
		return Claims{}, fmt.Errorf("token expired")
	}

	claims := Claims{}
	claims.Subject, _ = raw["sub"].(string)
	claims.Role, _ = raw["role"].(string)
	if claims.Subject == "" {
		return Claims{}, errors.New("missing subject claim")
	}
	return claims, nil
}
