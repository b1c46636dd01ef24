// Package auth provides bearer token verification for the API.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"darpm/internal/config"
)

// Roles recognised by the API.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrBadSignature = errors.New("bad signature")
	ErrExpired      = errors.New("token expired")
)

// Verifier validates bearer tokens and extracts subject/role claims.
// Supports modes: dev (no verify, "subject:role" tokens) and hmac (HS256 JWT).
type Verifier struct {
	Mode         string
	HMACSecret   []byte
	RoleClaim    string
	SubjectClaim string
	now          func() time.Time
}

type Principal struct {
	Subject string
	Role    string
}

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

func NewVerifier(cfg config.AuthConfig) *Verifier {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "dev"
	}
	role := cfg.RoleClaim
	if role == "" {
		role = "role"
	}
	return &Verifier{
		Mode:         mode,
		HMACSecret:   []byte(cfg.HMACSecret),
		RoleClaim:    role,
		SubjectClaim: "sub",
		now:          time.Now,
	}
}

func (v *Verifier) Verify(token string) (Principal, error) {
	if v.Mode == "dev" {
		parts := strings.SplitN(token, ":", 2)
		if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
			return Principal{Subject: parts[0], Role: strings.ToLower(parts[1])}, nil
		}
		return Principal{}, errors.New("invalid dev token; expected subject:role")
	}
	if v.Mode != "hmac" {
		return Principal{}, errors.New("unsupported auth mode")
	}
	segs := strings.Split(token, ".")
	if len(segs) != 3 {
		return Principal{}, ErrInvalidToken
	}
	headerJSON, err := b64urlDecode(segs[0])
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	payloadJSON, err := b64urlDecode(segs[1])
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	sig, err := b64urlDecode(segs[2])
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	var hdr map[string]any
	if err := json.Unmarshal(headerJSON, &hdr); err != nil {
		return Principal{}, ErrInvalidToken
	}
	if alg, _ := hdr["alg"].(string); alg != "HS256" {
		return Principal{}, errors.New("unsupported alg for hmac")
	}
	mac := hmac.New(sha256.New, v.HMACSecret)
	mac.Write([]byte(segs[0] + "." + segs[1]))
	if !hmac.Equal(mac.Sum(nil), sig) {
		return Principal{}, ErrBadSignature
	}
	var claims map[string]any
	if err := json.Unmarshal(payloadJSON, &claims); err != nil {
		return Principal{}, ErrInvalidToken
	}
	if exp, ok := claims["exp"].(float64); ok && v.now().Unix() >= int64(exp) {
		return Principal{}, ErrExpired
	}
	sub, _ := claims[v.SubjectClaim].(string)
	role, _ := claims[v.RoleClaim].(string)
	if role == "" {
		role = RoleUser
	}
	return Principal{Subject: sub, Role: strings.ToLower(role)}, nil
}

// SignHS256 issues a token the hmac mode accepts. Used by tooling and tests.
func SignHS256(secret []byte, claims map[string]any) (string, error) {
	hdr, _ := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	body, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	input := b64urlEncode(hdr) + "." + b64urlEncode(body)
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(input))
	return input + "." + b64urlEncode(mac.Sum(nil)), nil
}

func b64urlDecode(s string) ([]byte, error) { return base64.RawURLEncoding.DecodeString(s) }
func b64urlEncode(b []byte) string          { return base64.RawURLEncoding.EncodeToString(b) }
