package session

import (
	"errors"
	"printflow/bizerror"
	"time"

	"github.com/fundwit/go-commons/types"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

const DefaultTokenExpiration = 24 * time.Hour

var (
	tokenSecret     = []byte(uuid.New().String())
	tokenIssuer     = "printflow"
	TokenExpiration = DefaultTokenExpiration

	// revoked tokens are remembered until they would have expired anyway
	RevokedTokens = cache.New(DefaultTokenExpiration, 1*time.Minute)

	IssueTokenFunc = IssueToken
)

func ConfigureTokens(secret, issuer string, expiry time.Duration) {
	tokenSecret = []byte(secret)
	if issuer != "" {
		tokenIssuer = issuer
	}
	if expiry > 0 {
		TokenExpiration = expiry
	}
}

type tokenClaims struct {
	Name      string `json:"name"`
	Nickname  string `json:"nickname,omitempty"`
	Superuser bool   `json:"su,omitempty"`
	Staff     bool   `json:"staff,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs a HS256 token for the identity and returns the session it represents.
func IssueToken(identity Identity, superuser, staff bool) (*Session, error) {
	now := time.Now()
	expiresAt := now.Add(TokenExpiration)
	claims := tokenClaims{
		Name:      identity.Name,
		Nickname:  identity.Nickname,
		Superuser: superuser,
		Staff:     staff,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   identity.ID.String(),
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tokenSecret)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, Identity: identity, IsSuperuser: superuser, IsStaff: staff,
		SigningTime: now, ExpiresAt: expiresAt}, nil
}

// ParseToken verifies signature, issuer and expiry, then rejects revoked tokens.
func ParseToken(token string) (*Session, error) {
	if token == "" {
		return nil, bizerror.ErrTokenMissing
	}
	claims := tokenClaims{}
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return tokenSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(tokenIssuer), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, bizerror.ErrTokenExpired
		}
		return nil, bizerror.ErrTokenInvalid
	}
	if _, revoked := RevokedTokens.Get(token); revoked {
		return nil, bizerror.ErrTokenInvalid
	}

	id, err := types.ParseID(claims.Subject)
	if err != nil || id == 0 {
		return nil, bizerror.ErrTokenInvalid
	}
	s := &Session{
		Token:       token,
		Identity:    Identity{ID: id, Name: claims.Name, Nickname: claims.Nickname},
		IsSuperuser: claims.Superuser,
		IsStaff:     claims.Staff,
	}
	if claims.IssuedAt != nil {
		s.SigningTime = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}

func RevokeToken(token string) {
	s, err := ParseToken(token)
	if err != nil {
		return
	}
	if ttl := time.Until(s.ExpiresAt); ttl > 0 {
		RevokedTokens.Set(token, true, ttl)
	}
}
