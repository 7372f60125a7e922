package transport

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/louisbranch/questmaster/internal/platform/errors"
)

// operatorGrantEnv holds raw env values before post-parse validation.
type operatorGrantEnv struct {
	Issuer    string `env:"QUESTMASTER_OPERATOR_GRANT_ISSUER"`
	Audience  string `env:"QUESTMASTER_OPERATOR_GRANT_AUDIENCE"`
	PublicKey string `env:"QUESTMASTER_OPERATOR_GRANT_PUBLIC_KEY"`
}

// OperatorGrantConfig defines how operator grants are verified.
type OperatorGrantConfig struct {
	Issuer   string
	Audience string
	Key      ed25519.PublicKey
	Now      func() time.Time
}

// OperatorClaims captures validated operator grant claims.
type OperatorClaims struct {
	Issuer     string
	Audience   []string
	ExpiresAt  time.Time
	NotBefore  time.Time
	IssuedAt   time.Time
	JWTID      string
	OperatorID string
}

// operatorClaims is the internal claims type used for JWT parsing.
type operatorClaims struct {
	jwt.RegisteredClaims
	OperatorID string `json:"operator_id"`
}

// LoadOperatorGrantConfigFromEnv reads operator grant verification
// configuration. The public key is base64-encoded raw ed25519 bytes.
func LoadOperatorGrantConfigFromEnv(now func() time.Time) (OperatorGrantConfig, error) {
	var raw operatorGrantEnv
	if err := env.Parse(&raw); err != nil {
		return OperatorGrantConfig{}, fmt.Errorf("parse operator grant env: %w", err)
	}
	issuer := strings.TrimSpace(raw.Issuer)
	audience := strings.TrimSpace(raw.Audience)
	publicKey := strings.TrimSpace(raw.PublicKey)
	if issuer == "" {
		return OperatorGrantConfig{}, fmt.Errorf("QUESTMASTER_OPERATOR_GRANT_ISSUER is required")
	}
	if audience == "" {
		return OperatorGrantConfig{}, fmt.Errorf("QUESTMASTER_OPERATOR_GRANT_AUDIENCE is required")
	}
	if publicKey == "" {
		return OperatorGrantConfig{}, fmt.Errorf("QUESTMASTER_OPERATOR_GRANT_PUBLIC_KEY is required")
	}
	keyBytes, err := decodeBase64(publicKey)
	if err != nil {
		return OperatorGrantConfig{}, fmt.Errorf("decode operator grant public key: %w", err)
	}
	if len(keyBytes) != ed25519.PublicKeySize {
		return OperatorGrantConfig{}, fmt.Errorf("operator grant public key must be %d bytes", ed25519.PublicKeySize)
	}
	if now == nil {
		now = time.Now
	}
	return OperatorGrantConfig{
		Issuer:   issuer,
		Audience: audience,
		Key:      ed25519.PublicKey(keyBytes),
		Now:      now,
	}, nil
}

// ValidateOperatorGrant verifies an operator grant token.
func ValidateOperatorGrant(grant string, cfg OperatorGrantConfig) (OperatorClaims, error) {
	grant = strings.TrimSpace(grant)
	if grant == "" {
		return OperatorClaims{}, apperrors.New(apperrors.CodeOperatorGrantInvalid, "operator grant is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Issuer == "" || cfg.Audience == "" || len(cfg.Key) != ed25519.PublicKeySize {
		return OperatorClaims{}, errors.New("operator grant verifier is not configured")
	}

	var parsed operatorClaims
	_, err := jwt.ParseWithClaims(grant, &parsed, func(token *jwt.Token) (any, error) {
		return cfg.Key, nil
	},
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return OperatorClaims{}, mapJWTError(err)
	}

	if parsed.Issuer == "" || parsed.Issuer != cfg.Issuer {
		return OperatorClaims{}, apperrors.WithMetadata(
			apperrors.CodeOperatorGrantInvalid,
			"operator grant issuer mismatch",
			map[string]string{"Field": "issuer"},
		)
	}
	if !audienceContains(parsed.Audience, cfg.Audience) {
		return OperatorClaims{}, apperrors.WithMetadata(
			apperrors.CodeOperatorGrantInvalid,
			"operator grant audience mismatch",
			map[string]string{"Field": "audience"},
		)
	}

	if parsed.ID == "" {
		return OperatorClaims{}, apperrors.New(apperrors.CodeOperatorGrantInvalid, "operator grant jti is required")
	}
	if parsed.ExpiresAt == nil {
		return OperatorClaims{}, apperrors.New(apperrors.CodeOperatorGrantInvalid, "operator grant exp is required")
	}

	now := cfg.Now().UTC()
	exp := parsed.ExpiresAt.Time.UTC()
	if !exp.After(now) {
		return OperatorClaims{}, apperrors.New(apperrors.CodeOperatorGrantExpired, "operator grant is expired")
	}
	if parsed.NotBefore != nil {
		nbf := parsed.NotBefore.Time.UTC()
		if now.Before(nbf) {
			return OperatorClaims{}, apperrors.New(apperrors.CodeOperatorGrantInvalid, "operator grant not active yet")
		}
	}

	if strings.TrimSpace(parsed.OperatorID) == "" {
		return OperatorClaims{}, apperrors.New(apperrors.CodeOperatorGrantInvalid, "operator grant operator_id is required")
	}

	claims := OperatorClaims{
		Issuer:     parsed.Issuer,
		Audience:   []string(parsed.Audience),
		ExpiresAt:  exp,
		JWTID:      parsed.ID,
		OperatorID: parsed.OperatorID,
	}
	if parsed.NotBefore != nil {
		claims.NotBefore = parsed.NotBefore.Time.UTC()
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	return claims, nil
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrEd25519Verification) {
		return apperrors.New(apperrors.CodeOperatorGrantInvalid, "operator grant signature is invalid")
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		return apperrors.New(apperrors.CodeOperatorGrantInvalid, "operator grant alg is invalid")
	}
	return apperrors.New(apperrors.CodeOperatorGrantInvalid, "operator grant is invalid")
}

// audienceContains reports whether the audience list contains the value.
func audienceContains(aud jwt.ClaimStrings, value string) bool {
	for _, item := range aud {
		if item == value {
			return true
		}
	}
	return false
}

func decodeBase64(value string) ([]byte, error) {
	if value == "" {
		return nil, errors.New("empty base64 value")
	}
	decoded, err := base64.RawStdEncoding.DecodeString(value)
	if err == nil {
		return decoded, nil
	}
	return base64.StdEncoding.DecodeString(value)
}
