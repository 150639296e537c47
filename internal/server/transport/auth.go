// internal/server/transport/auth.go
package transport

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrAuthDisabled = errors.New("authentication disabled")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims porte l'identité du joueur ; Subject contient l'identifiant numérique
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// Authenticator vérifie les jetons HS256 de la poignée de main
type Authenticator struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewAuthenticator crée un vérificateur ; un secret vide désactive l'authentification
func NewAuthenticator(secret, issuer string) *Authenticator {
	return &Authenticator{
		secret: []byte(secret),
		issuer: issuer,
		now:    time.Now,
	}
}

// Enabled indique si un secret est configuré
func (a *Authenticator) Enabled() bool {
	return a != nil && len(a.secret) > 0
}

// Issue signe un jeton pour un joueur
func (a *Authenticator) Issue(userID int64, username string, ttl time.Duration) (string, error) {
	if !a.Enabled() {
		return "", ErrAuthDisabled
	}
	now := a.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Username: username,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Parse vérifie un jeton et retourne l'identité qu'il porte
func (a *Authenticator) Parse(token string) (int64, string, error) {
	if !a.Enabled() {
		return 0, "", ErrAuthDisabled
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, "", fmt.Errorf("token required: %w", ErrInvalidToken)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, "", fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	username := strings.TrimSpace(claims.Username)
	if username == "" {
		return 0, "", fmt.Errorf("%w: missing username", ErrInvalidToken)
	}
	return userID, username, nil
}
