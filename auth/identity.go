// Package auth resolves the session identity from the access token handed
// to the client at login. The client never issues or refreshes tokens.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims defines the structure of the data stored inside the access token.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Identity is the authenticated sender every pipeline stamps on its writes.
type Identity struct {
	UserID    string
	ExpiresAt time.Time
}

func (i Identity) IsZero() bool {
	return i.UserID == ""
}

// ParseIdentity validates the signature and expiration of the access token
// and extracts the user id. The signing secret comes from configuration.
func ParseIdentity(tokenString string, secret []byte) (Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return Identity{}, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Identity{}, jwt.ErrSignatureInvalid
	}

	identity := Identity{UserID: claims.UserID}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}
	return identity, nil
}

// SignToken creates a signed access token. Test and tooling helper; the
// production token is minted by the backend.
func SignToken(userID string, secret []byte, lifetime time.Duration) (string, error) {
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(lifetime)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "chat-sync",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}
