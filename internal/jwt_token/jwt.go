package jwttoken

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "legitify/pkg/domain-errors"
	"legitify/pkg/requestcontext"
)

// AccessTokenClaims are the claims carried by bearer tokens. Tokens are minted
// elsewhere; this service validates them and mints dev tokens for tooling.
type AccessTokenClaims struct {
	Email         string `json:"email"`
	Role          string `json:"role"`
	Organization  string `json:"org"`
	IdentityLabel string `json:"label"`
	jwt.RegisteredClaims
}

// JWTService validates and issues HS256 access tokens.
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
	tokenTTL   time.Duration
}

func NewJWTService(signingKey string, issuer string, audience string, tokenTTL time.Duration) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
		tokenTTL:   tokenTTL,
	}
}

// TokenSubject describes the caller a token is minted for.
type TokenSubject struct {
	UserID        uuid.UUID
	Email         string
	Role          string
	Organization  string
	IdentityLabel string
}

// GenerateAccessToken signs a token for subject that expires after the configured TTL.
func (s *JWTService) GenerateAccessToken(ctx context.Context, subject TokenSubject) (string, error) {
	if subject.UserID == uuid.Nil {
		return "", dErrors.New(dErrors.CodeBadRequest, "subject id is required")
	}
	if subject.Role == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "role is required")
	}
	now := requestcontext.Now(ctx)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessTokenClaims{
		Email:         subject.Email,
		Role:          subject.Role,
		Organization:  subject.Organization,
		IdentityLabel: subject.IdentityLabel,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.UserID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(s.signingKey)
}

// ValidateToken checks signature, algorithm, expiry, issuer and audience.
func (s *JWTService) ValidateToken(tokenString string) (*AccessTokenClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &AccessTokenClaims{}, func(*jwt.Token) (any, error) {
		return s.signingKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*AccessTokenClaims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token subject missing")
	}
	return claims, nil
}
