package identity

import (
	"errors"
	"time"

	"unity/contexts/identity-access/auth-service/domain/entities"
	domainerrors "unity/contexts/identity-access/auth-service/domain/errors"

	"github.com/golang-jwt/jwt/v5"
)

const defaultIssuer = "unity-auth"

// JWTIssuer signs HS256 session tokens. The session id travels as jti and
// the user id as sub.
type JWTIssuer struct {
	Secret []byte
	Issuer string
	Now    func() time.Time
}

func (i JWTIssuer) Issue(session entities.Session) (string, error) {
	if len(i.Secret) == 0 {
		return "", errors.New("jwt secret is required")
	}
	claims := jwt.RegisteredClaims{
		ID:        session.SessionID,
		Subject:   session.UserID,
		Issuer:    i.issuer(),
		IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
		ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.Secret)
}

func (i JWTIssuer) Parse(token string) (entities.Session, error) {
	claims := &jwt.RegisteredClaims{}
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer()),
		jwt.WithExpirationRequired(),
	}
	if i.Now != nil {
		options = append(options, jwt.WithTimeFunc(i.Now))
	}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return i.Secret, nil
	}, options...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return entities.Session{}, domainerrors.ErrSessionExpired
		}
		return entities.Session{}, domainerrors.ErrInvalidToken
	}
	if claims.ID == "" || claims.Subject == "" {
		return entities.Session{}, domainerrors.ErrInvalidToken
	}

	session := entities.Session{
		SessionID: claims.ID,
		UserID:    claims.Subject,
	}
	if claims.IssuedAt != nil {
		session.IssuedAt = claims.IssuedAt.UTC()
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.UTC()
	}
	return session, nil
}

func (i JWTIssuer) issuer() string {
	if i.Issuer == "" {
		return defaultIssuer
	}
	return i.Issuer
}
