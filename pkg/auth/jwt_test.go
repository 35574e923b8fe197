package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vellum-dev/vellum/pkg/logging"
	"github.com/vellum-dev/vellum/pkg/metrics"
)

func writeKeyPair(t *testing.T) (pubPath, privPath string, priv *rsa.PrivateKey) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	dir := t.TempDir()
	pubPath = filepath.Join(dir, "pub.pem")
	privPath = filepath.Join(dir, "priv.pem")

	pubBytes, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	if err := os.WriteFile(pubPath, pubPEM, 0o600); err != nil {
		t.Fatalf("write public key: %v", err)
	}

	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})
	if err := os.WriteFile(privPath, privPEM, 0o600); err != nil {
		t.Fatalf("write private key: %v", err)
	}

	return pubPath, privPath, priv
}

func newValidator(t *testing.T, cfg JWTConfig) *JWTValidator {
	t.Helper()
	logger := logging.New("test")
	v, err := NewJWTValidator(cfg, logger, metrics.NewProductionMetrics(logger))
	if err != nil {
		t.Fatalf("NewJWTValidator: %v", err)
	}
	return v
}

func TestGenerateAndValidateToken(t *testing.T) {
	pubPath, privPath, _ := writeKeyPair(t)
	v := newValidator(t, JWTConfig{
		PublicKeyPath:  pubPath,
		PrivateKeyPath: privPath,
		Issuer:         "vellum-trustd",
		Audience:       "vellum-admin-api",
	})

	now := time.Now()
	token, err := v.GenerateToken(&JWTClaims{
		Subject:   "ci-runner",
		Roles:     []string{"read"},
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := v.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Subject != "ci-runner" || len(claims.Roles) != 1 || claims.Roles[0] != "read" {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	pubPath, privPath, _ := writeKeyPair(t)
	v := newValidator(t, JWTConfig{
		PublicKeyPath:  pubPath,
		PrivateKeyPath: privPath,
		Issuer:         "vellum-trustd",
		ClockSkew:      0,
	})

	past := time.Now().Add(-time.Hour)
	token, err := v.GenerateToken(&JWTClaims{
		Subject:   "ci-runner",
		IssuedAt:  past.Add(-time.Minute).Unix(),
		ExpiresAt: past.Unix(),
	})
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	if _, err := v.ValidateToken(token); err == nil {
		t.Error("expected expired token to be rejected")
	}
}

func TestValidateTokenRejectsWrongKey(t *testing.T) {
	pubPath, _, _ := writeKeyPair(t)
	_, otherPrivPath, _ := writeKeyPair(t)

	v := newValidator(t, JWTConfig{PublicKeyPath: pubPath})
	signer := newValidator(t, JWTConfig{PublicKeyPath: pubPath, PrivateKeyPath: otherPrivPath})

	token, err := signer.GenerateToken(&JWTClaims{
		Subject:   "attacker",
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	if _, err := v.ValidateToken(token); err == nil {
		t.Error("expected token signed by a different key to be rejected")
	}
}

func TestLoadPublicKeyMissingFile(t *testing.T) {
	_, err := NewJWTValidator(JWTConfig{PublicKeyPath: filepath.Join(t.TempDir(), "absent.pem")}, logging.New("test"), metrics.NewProductionMetrics(logging.New("test")))
	if err == nil {
		t.Error("expected error for missing public key file")
	}
}
