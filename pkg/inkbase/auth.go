package inkbase

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/dgrijalva/jwt-go"
	"golang.org/x/crypto/bcrypt"

	"github.com/inkbase/inkbase/pkg/models"
)

// Authenticator turns a bearer credential into a verified user
// identity. It is injected into the App so tests can substitute a
// stub for the token verifier.
type Authenticator func(credential string) (models.UserID, error)

// userClaims is the JWT payload issued at register and login.
type userClaims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.StandardClaims
}

// TokenIssuer mints and verifies signed bearer tokens (HS256).
type TokenIssuer struct {
	signingKey []byte
	ttl        time.Duration
}

func NewTokenIssuer(signingKey []byte, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{signingKey: signingKey, ttl: ttl}
}

// Issue returns a signed token identifying the user.
func (t *TokenIssuer) Issue(user *models.User) (string, error) {
	now := time.Now()
	claims := userClaims{
		UserID:   user.ID.String(),
		Username: user.Username,
		StandardClaims: jwt.StandardClaims{
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(t.ttl).Unix(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Authenticate verifies a credential and extracts the user identity.
// It satisfies the Authenticator contract.
func (t *TokenIssuer) Authenticate(credential string) (models.UserID, error) {
	token, err := jwt.ParseWithClaims(credential, &userClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.signingKey, nil
	})
	if err != nil {
		return models.UserID{}, errors.New("invalid or expired token")
	}
	claims, ok := token.Claims.(*userClaims)
	if !ok || !token.Valid {
		return models.UserID{}, errors.New("invalid or expired token")
	}
	id, err := models.ParseUserID(claims.UserID)
	if err != nil {
		return models.UserID{}, errors.New("invalid or expired token")
	}
	return id, nil
}

// hashPassword produces a bcrypt digest for storage.
func hashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// checkPassword reports whether plain matches the stored digest.
func checkPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
