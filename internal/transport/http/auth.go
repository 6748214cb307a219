package http

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"duel-trivia-service/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the caller identity issued by the identity provider.
type Claims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 bearer tokens. The identity inside a valid token is trusted as is.
type Authenticator struct {
	secret []byte
	now    func() time.Time
}

func NewAuthenticator(secret []byte) *Authenticator {
	return &Authenticator{secret: secret, now: time.Now}
}

// Issue signs a token for player, valid for ttl.
func (a *Authenticator) Issue(player domain.Player, ttl time.Duration) (string, error) {
	now := a.now()
	claims := Claims{
		Name: player.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   player.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Parse validates raw and returns the player it identifies.
func (a *Authenticator) Parse(raw string) (domain.Player, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return domain.Player{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if claims.Subject == "" {
		return domain.Player{}, fmt.Errorf("%w: token has no subject", domain.ErrUnauthorized)
	}
	name := claims.Name
	if name == "" {
		name = claims.Subject
	}
	return domain.Player{ID: claims.Subject, Name: name}, nil
}

// Authenticate reads the token from the Authorization header, or from the
// token query parameter for websocket upgrades that cannot set headers.
func (a *Authenticator) Authenticate(r *http.Request) (domain.Player, error) {
	raw := ""
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return domain.Player{}, fmt.Errorf("%w: malformed authorization header", domain.ErrUnauthorized)
		}
		raw = strings.TrimSpace(token)
	} else {
		raw = r.URL.Query().Get("token")
	}
	if raw == "" {
		return domain.Player{}, fmt.Errorf("%w: missing token", domain.ErrUnauthorized)
	}
	return a.Parse(raw)
}
