package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// MinSigningKeyLength is the shortest accepted HS256 key, in bytes
const MinSigningKeyLength = 32

// TokenService issues and validates HS256 bearer tokens
type TokenService struct {
	signingKey      []byte
	tokenExpiration time.Duration
	issuer          string
	audience        jwt.ClaimStrings
	logger          Logger
	now             func() time.Time
}

// TokenServiceOption configures a TokenService
type TokenServiceOption func(*TokenService)

func WithTokenLogger(logger Logger) TokenServiceOption {
	return func(ts *TokenService) {
		if logger != nil {
			ts.logger = logger
		}
	}
}

// WithClock replaces time.Now, used for expiry
func WithClock(now func() time.Time) TokenServiceOption {
	return func(ts *TokenService) {
		if now != nil {
			ts.now = now
		}
	}
}

// NewTokenService creates a new TokenService. The key, issuer, audience
// and expiry all come from cfg; there are no implicit defaults.
func NewTokenService(cfg TokenConfig, opts ...TokenServiceOption) (*TokenService, error) {
	if cfg == nil {
		return nil, errors.New("token config is required", errors.CategoryBadInput)
	}

	fields := map[string]string{}
	if len(cfg.GetSigningKey()) < MinSigningKeyLength {
		fields["signing_key"] = fmt.Sprintf("must be at least %d bytes", MinSigningKeyLength)
	}
	if cfg.GetTokenExpiration() <= 0 {
		fields["token_expiration"] = "must be a positive duration"
	}
	if cfg.GetIssuer() == "" {
		fields["issuer"] = "cannot be blank"
	}
	if len(cfg.GetAudience()) == 0 {
		fields["audience"] = "cannot be blank"
	}
	if len(fields) > 0 {
		return nil, errors.NewValidationFromMap("invalid token configuration", fields).
			WithCode(errors.CodeBadRequest).
			WithTextCode(TextCodeValidationFailed)
	}

	ts := &TokenService{
		signingKey:      []byte(cfg.GetSigningKey()),
		tokenExpiration: cfg.GetTokenExpiration(),
		issuer:          cfg.GetIssuer(),
		audience:        jwt.ClaimStrings(cfg.GetAudience()),
		logger:          defLogger{},
		now:             time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}

	return ts, nil
}

// Issue signs a token for the identity. The payload carries the email and
// the role snapshot plus the registered claims.
func (ts *TokenService) Issue(identity *Identity) (string, error) {
	if identity == nil || identity.User == nil {
		return "", errors.New("identity is required", errors.CategoryBadInput)
	}

	now := ts.now()
	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ts.issuer,
			Subject:   identity.User.ID.String(),
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.tokenExpiration)),
		},
		Email: identity.Email(),
	}

	if len(identity.Roles) > 0 {
		claims.Roles = make([]string, len(identity.Roles))
		copy(claims.Roles, identity.Roles)
	}

	return ts.SignClaims(claims)
}

// SignClaims signs arbitrary JWT claims using the configured signing key.
func (ts *TokenService) SignClaims(claims *JWTClaims) (string, error) {
	if claims == nil {
		return "", errors.New("claims must not be nil", errors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

// Validate parses and validates a token string, returning structured claims
func (ts *TokenService) Validate(tokenString string) (*JWTClaims, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithIssuer(ts.issuer),
		jwt.WithAudience(ts.audience...),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ts.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("TokenService validate encountered unexpected signing method: %v", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, errors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithCode(ErrTokenMalformed.Code).
			WithTextCode(ErrTokenMalformed.TextCode)
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}

	ts.logger.Error("TokenService validate could not decode or validate claims")
	return nil, ErrTokenMalformed
}
