package jwt

import (
	"context"
	"errors"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// RoleManager may review overtime, leave deductions and attendance corrections.
const RoleManager = "manager"

var ErrMissingSubject = errors.New("token has no subject")

type Service interface {
	GenerateAccessToken(subject string, role string, ttl time.Duration) (token string, expiresAt int64, err error)
	JWTAuth() *jwtauth.JWTAuth
}

type JWTService struct {
	tokenAuth *jwtauth.JWTAuth
	now       func() time.Time
}

func NewJWTService(secretKey string) Service {
	return &JWTService{
		tokenAuth: jwtauth.New("HS256", []byte(secretKey), nil, jwt.WithAcceptableSkew(30*time.Second)),
		now:       time.Now,
	}
}

func (j *JWTService) JWTAuth() *jwtauth.JWTAuth {
	return j.tokenAuth
}

func (j *JWTService) GenerateAccessToken(subject string, role string, ttl time.Duration) (token string, expiresAt int64, err error) {
	expiresAt = j.now().Add(ttl).Unix()
	_, tokenString, err := j.tokenAuth.Encode(map[string]interface{}{
		"sub":  subject,
		"role": role,
		"type": "access",
		"exp":  expiresAt,
	})
	return tokenString, expiresAt, err
}

// Actor returns the subject and role of the verified token carried by ctx.
func Actor(ctx context.Context) (subject string, role string, err error) {
	token, claims, err := jwtauth.FromContext(ctx)
	if err != nil {
		return "", "", err
	}
	if token == nil || token.Subject() == "" {
		return "", "", ErrMissingSubject
	}
	role, _ = claims["role"].(string)
	return token.Subject(), role, nil
}
