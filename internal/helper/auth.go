package helper

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const AdminRole = "admin"

// AdminSession is the verified admin identity put into the request context.
type AdminSession struct {
	ID        string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type Auth struct {
	Secret  string
	keyHash []byte
	ttl     time.Duration
	now     func() time.Time
}

// SetupAuth hashes the shared admin access key once at startup.
func SetupAuth(secret, accessKey string, ttl time.Duration) (Auth, error) {
	if secret == "" {
		return Auth{}, errors.New("access secret is required")
	}
	if accessKey == "" {
		return Auth{}, errors.New("admin access key is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(accessKey), bcrypt.DefaultCost)
	if err != nil {
		return Auth{}, err
	}
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return Auth{Secret: secret, keyHash: hash, ttl: ttl, now: time.Now}, nil
}

func (a Auth) TTL() time.Duration {
	return a.ttl
}

func (a Auth) CheckAccessKey(key string) error {
	if err := bcrypt.CompareHashAndPassword(a.keyHash, []byte(key)); err != nil {
		return errors.New("invalid access key")
	}
	return nil
}

func (a Auth) GenerateToken() (string, AdminSession, error) {
	now := a.now()
	session := AdminSession{
		ID:        uuid.NewString(),
		Role:      AdminRole,
		IssuedAt:  now,
		ExpiresAt: now.Add(a.ttl),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        session.ID,
		Subject:   session.Role,
		IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
		ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
	})

	tokenStr, err := token.SignedString([]byte(a.Secret))
	if err != nil {
		return "", AdminSession{}, errors.New("unable to sign the token")
	}
	return tokenStr, session, nil
}

func (a Auth) VerifyToken(tokenString string) (AdminSession, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return AdminSession{}, errors.New("missing token")
	}

	// support both "Bearer <token>" and "<token>"
	if strings.HasPrefix(strings.ToLower(tokenString), "bearer ") {
		tokenString = strings.TrimSpace(tokenString[len("bearer "):])
		if tokenString == "" {
			return AdminSession{}, errors.New("invalid token format")
		}
	}

	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(a.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return AdminSession{}, errors.New("token expired")
		}
		return AdminSession{}, errors.New("token parse error")
	}
	if !token.Valid || claims.Subject != AdminRole || claims.ID == "" {
		return AdminSession{}, errors.New("invalid token claims")
	}

	session := AdminSession{ID: claims.ID, Role: claims.Subject}
	if claims.IssuedAt != nil {
		session.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}

func (a Auth) GetCurrentAdmin(ctx *fiber.Ctx) (AdminSession, error) {
	session, ok := ctx.Locals("admin").(AdminSession)
	if !ok {
		return AdminSession{}, errors.New("missing admin session in context")
	}
	return session, nil
}
