package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cuemby/infractl/pkg/errs"
)

// Issuer is the fixed JWT issuer claim infractl tokens carry and require.
const Issuer = "infractl"

// Claims identifies who a validated token was issued for.
type Claims struct {
	Subject string
	Issuer  string
	Expiry  time.Time
}

// Service issues and validates bearer tokens under a single symmetric
// secret.
type Service struct {
	secret []byte
}

// NewService builds a token Service from the configured auth secret.
func NewService(secret string) *Service {
	return &Service{secret: []byte(secret)}
}

// Generate returns a signed token for subject, valid for ttl from now.
func (s *Service) Generate(subject string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", errs.Wrap(errs.Admission, err, "sign token")
	}
	return signed, nil
}

// Validate parses raw and checks signature, issuer, and expiry. The
// returned error's message is suitable for the "invalid_jwt:<detail>"
// suspicious-request reason.
func (s *Service) Validate(raw string) (Claims, error) {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Method.Alg())
		}
		return s.secret, nil
	})
	if err != nil {
		return Claims{}, errs.Wrap(errs.Admission, err, "parse token")
	}
	if !parsed.Valid {
		return Claims{}, errs.New(errs.Admission, "token not valid")
	}
	if claims.Issuer != Issuer {
		return Claims{}, errs.New(errs.Admission, fmt.Sprintf("unexpected issuer %q", claims.Issuer))
	}
	if claims.ExpiresAt == nil || claims.ExpiresAt.Before(time.Now()) {
		return Claims{}, errs.New(errs.Admission, "expired")
	}
	return Claims{
		Subject: claims.Subject,
		Issuer:  claims.Issuer,
		Expiry:  claims.ExpiresAt.Time,
	}, nil
}
