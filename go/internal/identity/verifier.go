// Package identity turns bearer tokens into verified users.
package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/gambit/go/internal/apperr"
	"github.com/mcdev12/gambit/go/internal/models"
)

const cookieName = "gambit_token"

var (
	ErrMissingToken = apperr.Validation("missing_token", "no credentials supplied")
	ErrInvalidToken = apperr.Validation("invalid_token", "credentials are not valid")
)

// Claims are the token fields the server reads.
type Claims struct {
	Name            string  `json:"name"`
	Rating          int     `json:"rating,omitempty"`
	RatingDeviation float64 `json:"rd,omitempty"`
	Takebacks       *bool   `json:"takebacks,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 tokens signed with a shared secret.
type Verifier struct {
	secret []byte
	issuer string
	clk    clockwork.Clock
}

// NewVerifier creates a verifier. An empty issuer accepts any issuer.
func NewVerifier(secret, issuer string, clk clockwork.Clock) *Verifier {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Verifier{secret: []byte(secret), issuer: issuer, clk: clk}
}

// Verify parses token and returns the user it names.
func (v *Verifier) Verify(token string) (models.User, error) {
	if token == "" {
		return models.User{}, ErrMissingToken
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.clk.Now),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims Claims
	tok, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !tok.Valid {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return models.User{}, apperr.Wrap(ErrInvalidToken, fmt.Errorf("token expired: %w", err))
		}
		return models.User{}, apperr.Wrap(ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return models.User{}, apperr.Wrap(ErrInvalidToken, errors.New("token has no subject"))
	}

	user := models.User{
		ID:              claims.Subject,
		DisplayName:     claims.Name,
		Rating:          claims.Rating,
		RatingDeviation: claims.RatingDeviation,
		AllowTakebacks:  true,
	}
	if user.DisplayName == "" {
		user.DisplayName = claims.Subject
	}
	if user.Rating <= 0 {
		user.Rating = models.DefaultRating
	}
	if claims.Takebacks != nil {
		user.AllowTakebacks = *claims.Takebacks
	}
	return user, nil
}

// Authenticate verifies the credentials carried by r.
func (v *Verifier) Authenticate(r *http.Request) (models.User, error) {
	return v.Verify(TokenFromRequest(r))
}

// Issue signs a token for user, valid for ttl.
func (v *Verifier) Issue(user models.User, ttl time.Duration) (string, error) {
	now := v.clk.Now()
	takebacks := user.AllowTakebacks
	claims := Claims{
		Name:            user.DisplayName,
		Rating:          user.Rating,
		RatingDeviation: user.RatingDeviation,
		Takebacks:       &takebacks,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// TokenFromRequest reads a bearer header, a token query parameter (browsers
// cannot set headers on WebSocket upgrades) or the session cookie.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	return ""
}
