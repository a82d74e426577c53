package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// TokenValidator validates structural and contextual properties of admin JWT
// tokens.
type TokenValidator struct {
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	Algorithm jwa.SignatureAlgorithm
}

// Validate ensures the supplied token satisfies issuer, audience, expiry, and
// algorithm requirements.
func (v TokenValidator) Validate(tok jwt.Token, algorithm jwa.SignatureAlgorithm, now time.Time) error {
	if tok == nil {
		return errors.New("auth: token is nil")
	}
	if algorithm == "" {
		return errors.New("auth: token missing algorithm")
	}
	if v.Algorithm != "" && algorithm != v.Algorithm {
		return fmt.Errorf("auth: unexpected token algorithm %s", algorithm)
	}

	options := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })),
	}
	if v.ClockSkew > 0 {
		options = append(options, jwt.WithAcceptableSkew(v.ClockSkew))
	}
	if v.Issuer != "" {
		options = append(options, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		options = append(options, jwt.WithAudience(v.Audience))
	}

	return jwt.Validate(tok, options...)
}

// Service parses and verifies admin access tokens signed with a shared HMAC
// secret.
type Service struct {
	Secret    []byte
	Validator TokenValidator
}

// ParseAccessToken verifies the signature and claims of a compact token and
// returns its subject.
func (s *Service) ParseAccessToken(raw string) (string, error) {
	if len(s.Secret) == 0 {
		return "", errors.New("auth: secret not configured")
	}
	alg := s.Validator.Algorithm
	if alg == "" {
		alg = jwa.HS256
	}
	tok, err := jwt.Parse([]byte(raw), jwt.WithKey(alg, s.Secret), jwt.WithValidate(false))
	if err != nil {
		return "", fmt.Errorf("auth: parse token: %w", err)
	}
	if err := s.Validator.Validate(tok, tokenAlgorithm(raw, alg), time.Now()); err != nil {
		return "", err
	}
	if tok.Subject() == "" {
		return "", errors.New("auth: token missing subject")
	}
	return tok.Subject(), nil
}

func tokenAlgorithm(raw string, fallback jwa.SignatureAlgorithm) jwa.SignatureAlgorithm {
	msg, err := jws.ParseString(raw)
	if err != nil || len(msg.Signatures()) == 0 {
		return fallback
	}
	return msg.Signatures()[0].ProtectedHeaders().Algorithm()
}
