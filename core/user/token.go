package user

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

const tokenAudience = "Academia"

var signingMethod = jwt.SigningMethodHS256

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	Email string `json:"email,omitempty"`
	Role  Role   `json:"role"`
}

// TokenIssuer signs and verifies session tokens.
type TokenIssuer struct {
	issuer string
	key    []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(conf *core.Config) *TokenIssuer {
	return &TokenIssuer{
		issuer: conf.AppName,
		key:    []byte(conf.SecretKey),
		ttl:    conf.Server.JWTExpirationDelta,
		now:    time.Now,
	}
}

func (ti *TokenIssuer) Claims(usr User) *Claims {
	now := ti.now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    ti.issuer,
			Subject:   usr.ID,
			Audience:  tokenAudience,
			ExpiresAt: now.Add(ti.ttl).Unix(),
			IssuedAt:  now.Unix(),
		},
		Email: usr.Email,
		Role:  usr.Role,
	}
}

// Sign generates a signed JWT token string representing the claims.
func (ti *TokenIssuer) Sign(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(signingMethod, claims)
	ss, err := token.SignedString(ti.key)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func (ti *TokenIssuer) Issue(usr User) (string, error) {
	return ti.Sign(ti.Claims(usr))
}

// Verify parses the token and checks its signature, expiry, audience and role.
func (ti *TokenIssuer) Verify(tokenStr string) (Principal, error) {
	claims := new(Claims)
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != signingMethod.Alg() {
			return nil, errors.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return ti.key, nil
	})
	if err != nil || !token.Valid {
		return Principal{}, ErrInvalidToken
	}
	if !claims.VerifyAudience(tokenAudience, true) || claims.Subject == "" {
		return Principal{}, ErrInvalidToken
	}
	if _, ok := ParseRole(string(claims.Role)); !ok {
		return Principal{}, ErrInvalidToken
	}
	return Principal{UserID: claims.Subject, Role: claims.Role}, nil
}
