package ws

import (
	"net/http"

	"github.com/golang-jwt/jwt/v5"

	"github.com/teemates/realtime/errors"
)

// Authenticator validates bearer tokens presented at connect time
type Authenticator struct {
	secret []byte
}

// NewAuthenticator creates an authenticator with the shared HMAC secret
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Authenticate extracts the bearer token from the request query string
// and returns the authenticated user ID. Browsers cannot set headers on
// WebSocket upgrades, so the token rides in ?token=.
func (a *Authenticator) Authenticate(r *http.Request) (string, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		return "", errors.Wrap(errors.ErrUnauthorized, "missing token")
	}
	return a.userID(token)
}

func (a *Authenticator) userID(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Newf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return "", errors.Wrap(errors.ErrUnauthorized, err.Error())
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", errors.Wrap(errors.ErrUnauthorized, "invalid token")
	}
	return claims.Subject, nil
}

// Token mints a signed token for a user. Used by tests and the local
// development command.
func (a *Authenticator) Token(userID string, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = userID
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token")
	}
	return signed, nil
}
