package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrMissingToken     = errors.New("missing authentication token")
	ErrInvalidClaims    = errors.New("invalid token claims")
)

// Claims represents the JWT claims of an editor or moderator
type Claims struct {
	UserID string   `json:"sub"`
	Email  string   `json:"email,omitempty"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// Config holds the token settings shared by validation and generation
type Config struct {
	SigningMethod string // RS256 or HS256
	PublicKey     string // For RS256 validation
	PrivateKey    string // For RS256 generation
	SecretKey     string // For HS256
	Issuer        string
	Audience      []string
	ExpiryTime    time.Duration
}

func (c Config) method() (jwt.SigningMethod, error) {
	switch c.SigningMethod {
	case "", "HS256":
		if c.SecretKey == "" {
			return nil, errors.New("secret key required for HS256")
		}
		return jwt.SigningMethodHS256, nil
	case "RS256":
		return jwt.SigningMethodRS256, nil
	default:
		return nil, fmt.Errorf("unsupported signing method: %s", c.SigningMethod)
	}
}

// Validator checks bearer tokens
type Validator struct {
	publicKey     *rsa.PublicKey
	secretKey     []byte
	signingMethod jwt.SigningMethod
	issuer        string
	audience      []string
}

// NewValidator creates a token validator
func NewValidator(config Config) (*Validator, error) {
	method, err := config.method()
	if err != nil {
		return nil, err
	}
	v := &Validator{
		signingMethod: method,
		issuer:        config.Issuer,
		audience:      config.Audience,
	}

	if method == jwt.SigningMethodRS256 {
		if config.PublicKey == "" {
			return nil, errors.New("public key required for RS256")
		}
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(config.PublicKey))
		if err != nil {
			return nil, fmt.Errorf("failed to parse public key: %w", err)
		}
		v.publicKey = key
	} else {
		v.secretKey = []byte(config.SecretKey)
	}
	return v, nil
}

// ValidateToken validates a token and returns its claims
func (v *Validator) ValidateToken(tokenString string) (*Claims, error) {
	tokenString = strings.TrimSpace(strings.TrimPrefix(tokenString, "Bearer "))
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != v.signingMethod {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Method.Alg())
		}
		if v.publicKey != nil {
			return v.publicKey, nil
		}
		return v.secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		if errors.Is(err, jwt.ErrSignatureInvalid) {
			return nil, ErrInvalidSignature
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}
	if v.issuer != "" && claims.Issuer != v.issuer {
		return nil, fmt.Errorf("%w: invalid issuer", ErrInvalidClaims)
	}
	if len(v.audience) > 0 && !slices.ContainsFunc(v.audience, func(aud string) bool {
		return slices.Contains(claims.Audience, aud)
	}) {
		return nil, fmt.Errorf("%w: invalid audience", ErrInvalidClaims)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing user ID", ErrInvalidClaims)
	}
	return claims, nil
}

// Generator issues tokens, used by the operator CLI and by tests
type Generator struct {
	privateKey    *rsa.PrivateKey
	secretKey     []byte
	signingMethod jwt.SigningMethod
	issuer        string
	audience      []string
	expiryTime    time.Duration
}

// NewGenerator creates a token generator
func NewGenerator(config Config) (*Generator, error) {
	method, err := config.method()
	if err != nil {
		return nil, err
	}
	g := &Generator{
		signingMethod: method,
		issuer:        config.Issuer,
		audience:      config.Audience,
		expiryTime:    config.ExpiryTime,
	}
	if g.expiryTime <= 0 {
		g.expiryTime = time.Hour
	}

	if method == jwt.SigningMethodRS256 {
		if config.PrivateKey == "" {
			return nil, errors.New("private key required for RS256")
		}
		key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(config.PrivateKey))
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		g.privateKey = key
	} else {
		g.secretKey = []byte(config.SecretKey)
	}
	return g, nil
}

// GenerateToken signs a token for userID carrying roles
func (g *Generator) GenerateToken(userID, email string, roles []string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		Email:  email,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    g.issuer,
			Subject:   userID,
			Audience:  g.audience,
			ExpiresAt: jwt.NewNumericDate(now.Add(g.expiryTime)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(g.signingMethod, claims)
	if g.privateKey != nil {
		return token.SignedString(g.privateKey)
	}
	return token.SignedString(g.secretKey)
}
