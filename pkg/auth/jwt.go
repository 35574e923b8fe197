// Package auth provides JWT-based authentication for the vellum trust
// subsystem's admin HTTP API.
//
//   - JWT token validation with RSA signature verification
//   - Token generation and signing capabilities (when private key available)
//   - Clock skew tolerance for distributed system compatibility
//   - Comprehensive claims validation (issuer, audience, expiration)
//   - Role-based authorization with flexible role mapping
//   - Session management with session ID tracking
//
// This validator gates access to the admin API (list/approve/revoke trust
// entries); it has nothing to do with the Permission Bridge's plugin trust
// decision, which remains a pure, credential-free function.
//
// Example usage:
//
//	config := auth.JWTConfig{
//	    PublicKeyPath: "/etc/vellum/keys/admin-jwt-public.pem",
//	    Issuer:        "vellum-trustd",
//	    Audience:      "vellum-admin-api",
//	    ClockSkew:     5 * time.Minute,
//	}
//
//	validator, err := auth.NewJWTValidator(config, logger, metrics)
//	if err != nil {
//	    log.Fatal("JWT validator creation failed:", err)
//	}
//
//	claims, err := validator.ValidateToken(tokenString)
//	if err != nil {
//	    log.Printf("Token validation failed: %v", err)
//	}
package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/vellum-dev/vellum/pkg/logging"
	"github.com/vellum-dev/vellum/pkg/metrics"
)

// JWTClaims represents the expected JWT token structure
type JWTClaims struct {
	Subject   string   `json:"sub"`
	Roles     []string `json:"roles"`
	SessionID string   `json:"sid,omitempty"`
	IssuedAt  int64    `json:"iat"`
	ExpiresAt int64    `json:"exp"`
	Issuer    string   `json:"iss"`
	Audience  string   `json:"aud,omitempty"`
}

// JWTValidator handles JWT token validation and parsing
type JWTValidator struct {
	publicKey  *rsa.PublicKey
	privateKey *rsa.PrivateKey
	issuer     string
	audience   string
	logger     logging.Logger
	metrics    metrics.Metrics
	clockSkew  time.Duration
}

// JWTConfig configures the JWT validator
type JWTConfig struct {
	PublicKeyPath  string        `yaml:"public_key_path"`
	PrivateKeyPath string        `yaml:"private_key_path"`
	Issuer         string        `yaml:"issuer"`
	Audience       string        `yaml:"audience"`
	ClockSkew      time.Duration `yaml:"clock_skew"`
}

// NewJWTValidator creates a new JWT validator instance
func NewJWTValidator(config JWTConfig, logger logging.Logger, metrics metrics.Metrics) (*JWTValidator, error) {
	validator := &JWTValidator{
		issuer:    config.Issuer,
		audience:  config.Audience,
		logger:    logger,
		metrics:   metrics,
		clockSkew: config.ClockSkew,
	}

	if validator.clockSkew == 0 {
		validator.clockSkew = 5 * time.Minute // Default 5 minute clock skew
	}

	// Load public key for validation
	if config.PublicKeyPath != "" {
		if err := validator.loadPublicKey(config.PublicKeyPath); err != nil {
			return nil, fmt.Errorf("failed to load public key: %w", err)
		}
	}

	// Load private key for signing (optional)
	if config.PrivateKeyPath != "" {
		if err := validator.loadPrivateKey(config.PrivateKeyPath); err != nil {
			return nil, fmt.Errorf("failed to load private key: %w", err)
		}
	}

	return validator, nil
}

// ValidateToken validates a JWT token and returns the claims
func (jv *JWTValidator) ValidateToken(tokenString string) (*JWTClaims, error) {
	timer := jv.metrics.Time("jwt_validation_duration")
	defer timer.Stop()

	// Parse token with validation
	token, err := jwt.ParseWithClaims(tokenString, &jwt.MapClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			jv.metrics.Inc("jwt_validation_errors", "error", "invalid_signing_method")
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return jv.publicKey, nil
	})

	if err != nil {
		jv.metrics.Inc("jwt_validation_errors", "error", "parse_failed")
		jv.logger.Warn("jwt_validation_failed", "error", err)
		return nil, fmt.Errorf("token validation failed: %w", err)
	}

	// Extract and validate claims
	claims, ok := token.Claims.(*jwt.MapClaims)
	if !ok || !token.Valid {
		jv.metrics.Inc("jwt_validation_errors", "error", "invalid_claims")
		return nil, fmt.Errorf("invalid token claims")
	}

	// Convert to our claims structure
	jwtClaims, err := jv.mapClaimsToJWTClaims(*claims)
	if err != nil {
		jv.metrics.Inc("jwt_validation_errors", "error", "claims_mapping")
		return nil, fmt.Errorf("failed to map claims: %w", err)
	}

	// Validate standard claims
	if err := jv.validateStandardClaims(jwtClaims); err != nil {
		jv.metrics.Inc("jwt_validation_errors", "error", "standard_claims")
		return nil, fmt.Errorf("standard claims validation failed: %w", err)
	}

	jv.metrics.Inc("jwt_validation_success")
	jv.logger.Debug("jwt_validation_successful", "user_id", jwtClaims.Subject, "roles", jwtClaims.Roles)

	return jwtClaims, nil
}

// GenerateToken generates a new JWT token (if private key is available)
func (jv *JWTValidator) GenerateToken(claims *JWTClaims) (string, error) {
	if jv.privateKey == nil {
		return "", fmt.Errorf("private key not available for token generation")
	}

	timer := jv.metrics.Time("jwt_generation_duration")
	defer timer.Stop()

	// Create token with claims
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub":   claims.Subject,
		"roles": claims.Roles,
		"sid":   claims.SessionID,
		"iat":   claims.IssuedAt,
		"exp":   claims.ExpiresAt,
		"iss":   jv.issuer,
		"aud":   jv.audience,
	})

	// Sign token
	tokenString, err := token.SignedString(jv.privateKey)
	if err != nil {
		jv.metrics.Inc("jwt_generation_errors")
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	jv.metrics.Inc("jwt_generation_success")
	return tokenString, nil
}

func (jv *JWTValidator) mapClaimsToJWTClaims(claims jwt.MapClaims) (*JWTClaims, error) {
	jwtClaims := &JWTClaims{}

	// Extract subject
	if sub, ok := claims["sub"].(string); ok {
		jwtClaims.Subject = sub
	} else {
		return nil, fmt.Errorf("missing or invalid subject claim")
	}

	// Extract roles
	if rolesInterface, ok := claims["roles"]; ok {
		switch roles := rolesInterface.(type) {
		case []interface{}:
			jwtClaims.Roles = make([]string, len(roles))
			for i, role := range roles {
				if roleStr, ok := role.(string); ok {
					jwtClaims.Roles[i] = roleStr
				} else {
					return nil, fmt.Errorf("invalid role type in roles array")
				}
			}
		case []string:
			jwtClaims.Roles = roles
		default:
			return nil, fmt.Errorf("invalid roles claim type")
		}
	}

	// Extract optional claims
	if sid, ok := claims["sid"].(string); ok {
		jwtClaims.SessionID = sid
	}

	if iat, ok := claims["iat"].(float64); ok {
		jwtClaims.IssuedAt = int64(iat)
	}

	if exp, ok := claims["exp"].(float64); ok {
		jwtClaims.ExpiresAt = int64(exp)
	}

	if iss, ok := claims["iss"].(string); ok {
		jwtClaims.Issuer = iss
	}

	if aud, ok := claims["aud"].(string); ok {
		jwtClaims.Audience = aud
	}

	return jwtClaims, nil
}

func (jv *JWTValidator) validateStandardClaims(claims *JWTClaims) error {
	now := time.Now()

	// Validate expiration
	if claims.ExpiresAt > 0 {
		exp := time.Unix(claims.ExpiresAt, 0)
		if now.After(exp.Add(jv.clockSkew)) {
			return fmt.Errorf("token has expired")
		}
	}

	// Validate issued at
	if claims.IssuedAt > 0 {
		iat := time.Unix(claims.IssuedAt, 0)
		if now.Before(iat.Add(-jv.clockSkew)) {
			return fmt.Errorf("token used before issued")
		}
	}

	// Validate issuer
	if jv.issuer != "" && claims.Issuer != jv.issuer {
		return fmt.Errorf("invalid issuer: expected %s, got %s", jv.issuer, claims.Issuer)
	}

	// Validate audience
	if jv.audience != "" && claims.Audience != jv.audience {
		return fmt.Errorf("invalid audience: expected %s, got %s", jv.audience, claims.Audience)
	}

	return nil
}

func (jv *JWTValidator) loadPublicKey(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading public key file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return fmt.Errorf("no PEM block found in %s", path)
	}

	key, err := parseRSAPublicKey(block)
	if err != nil {
		return fmt.Errorf("parsing public key: %w", err)
	}

	jv.publicKey = key
	jv.logger.Info("jwt_public_key_loaded", "path", path)
	return nil
}

func parseRSAPublicKey(block *pem.Block) (*rsa.PublicKey, error) {
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("key is not an RSA public key")
	}
	return key, nil
}

func (jv *JWTValidator) loadPrivateKey(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading private key file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return fmt.Errorf("no PEM block found in %s", path)
	}

	key, err := parseRSAPrivateKey(block)
	if err != nil {
		return fmt.Errorf("parsing private key: %w", err)
	}

	jv.privateKey = key
	jv.logger.Info("jwt_private_key_loaded", "path", path)
	return nil
}

func parseRSAPrivateKey(block *pem.Block) (*rsa.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key is not an RSA private key")
	}
	return rsaKey, nil
}
