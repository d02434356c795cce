package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/frahmantamala/employee-management/internal/access"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Credential is what a sign-in is checked against.
type Credential struct {
	UserID       int64
	Email        string
	PasswordHash string
	Status       string
}

// Claims carry the session id as the token id (jti) and the user id as subject.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidToken
	}
	return id, nil
}

// TokenGenerator signs and verifies session tokens.
type TokenGenerator interface {
	Generate(userID int64, email, sessionID string, issuedAt, expiresAt time.Time) (string, error)
	Validate(token string, now time.Time) (*Claims, error)
}

type JWTTokenGenerator struct {
	Secret []byte
	Issuer string
}

func NewJWTTokenGenerator(secret string) *JWTTokenGenerator {
	return &JWTTokenGenerator{
		Secret: []byte(secret),
		Issuer: "employee-management",
	}
}

func (j *JWTTokenGenerator) Generate(userID int64, email, sessionID string, issuedAt, expiresAt time.Time) (string, error) {
	claims := &Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    j.Issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.Secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate checks signature, algorithm and expiry against now.
func (j *JWTTokenGenerator) Validate(tokenString string, now time.Time) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// LoginResult is returned by a successful sign-in.
type LoginResult struct {
	Message string            `json:"message"`
	Token   string            `json:"token"`
	User    *access.Principal `json:"user"`
	// ExpiresAt is the hard end of the session; SessionExpiresAt moves with activity.
	ExpiresAt        time.Time `json:"expiresAt"`
	SessionExpiresAt time.Time `json:"sessionExpiresAt"`
}

// SessionInfo describes the caller's current session.
type SessionInfo struct {
	User           *access.Principal `json:"user"`
	LastActivity   time.Time         `json:"lastActivity"`
	ExpiresAt      time.Time         `json:"expiresAt"`
	AbsoluteExpiry time.Time         `json:"absoluteExpiry"`
	TimeoutSeconds int64             `json:"timeoutSeconds"`
}
