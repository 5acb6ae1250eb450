package api

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"papertrade/pkg/db"
)

const (
	userContextKey = "UserID"
	tokenIssuer    = "papertrade"
	tokenTTL       = 72 * time.Hour
	minPasswordLen = 8
)

// UserClaims is the JWT body. The subject doubles as the ledger user id.
type UserClaims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// bindCredentials writes the error response itself and reports whether the handler may go on.
func bindCredentials(c *gin.Context) (credentials, bool) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_PAYLOAD", "invalid request payload")
		return req, false
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		respondError(c, http.StatusBadRequest, "MISSING_CREDENTIALS", "email and password are required")
		return req, false
	}
	return req, true
}

func issueToken(userID, secret string, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(tokenTTL)
	claims := UserClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    tokenIssuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	return signed, expiresAt, err
}

func verifyToken(raw, secret string) (string, error) {
	var claims UserClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", err
	}
	if claims.UserID == "" || claims.UserID != claims.Subject {
		return "", errors.New("token subject mismatch")
	}
	return claims.UserID, nil
}

func abortWith(c *gin.Context, status int, code, msg string) {
	respondError(c, status, code, msg)
	c.Abort()
}

// AuthMiddleware requires "Authorization: Bearer <jwt>" and stores the user id for handlers.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortWith(c, http.StatusUnauthorized, "MISSING_TOKEN", "missing Authorization header")
			return
		}
		scheme, raw, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
			abortWith(c, http.StatusUnauthorized, "INVALID_AUTH_HEADER", "invalid Authorization header")
			return
		}
		userID, err := verifyToken(strings.TrimSpace(raw), secret)
		if err != nil {
			abortWith(c, http.StatusUnauthorized, "INVALID_TOKEN", "invalid or expired token")
			return
		}
		c.Set(userContextKey, userID)
		c.Next()
	}
}

// CurrentUserID returns the authenticated user ID from context.
func CurrentUserID(c *gin.Context) string {
	return c.GetString(userContextKey)
}

// AdminOnly checks the stored flag on every request so a demotion takes effect without a new token.
func (s *Server) AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.DB == nil {
			abortWith(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "user store not available")
			return
		}
		user, err := s.DB.GetUserByID(c.Request.Context(), CurrentUserID(c))
		switch {
		case err != nil:
			abortWith(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		case user == nil || !user.IsAdmin:
			abortWith(c, http.StatusForbidden, "FORBIDDEN", "admin privileges required")
		default:
			c.Next()
		}
	}
}

// registerUser creates an account. The first account becomes the admin.
func (s *Server) registerUser(c *gin.Context) {
	req, ok := bindCredentials(c)
	if !ok {
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_EMAIL", "invalid email format")
		return
	}
	if len(req.Password) < minPasswordLen {
		respondError(c, http.StatusBadRequest, "WEAK_PASSWORD", "password must be at least 8 characters")
		return
	}

	ctx := c.Request.Context()
	existing, err := s.DB.GetUserByEmail(ctx, req.Email)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	if existing != nil {
		respondError(c, http.StatusConflict, "EMAIL_ALREADY_REGISTERED", "email already registered")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to hash password")
		return
	}
	count, err := s.DB.CountUsers(ctx)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}

	now := time.Now()
	user := db.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: string(hash),
		IsAdmin:      count == 0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.DB.CreateUser(ctx, user); err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"user_id":  user.ID,
		"email":    user.Email,
		"is_admin": user.IsAdmin,
	})
}

// loginUser exchanges credentials for a bearer token.
func (s *Server) loginUser(c *gin.Context) {
	req, ok := bindCredentials(c)
	if !ok {
		return
	}

	user, err := s.DB.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		respondError(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid credentials")
		return
	}

	token, expiresAt, err := issueToken(user.ID, s.JWTSecret, time.Now())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to generate token")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
		"user_id":    user.ID,
		"user_email": user.Email,
		"is_admin":   user.IsAdmin,
	})
}
