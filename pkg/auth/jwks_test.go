package auth

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// createTestToken creates a JWT token for testing (unsigned, for dev mode).
func createTestToken(claims *Claims) string {
	header := map[string]string{
		"alg": "none",
		"typ": "JWT",
	}
	headerJSON, _ := json.Marshal(header)
	headerB64 := base64.RawURLEncoding.EncodeToString(headerJSON)

	claimsJSON, _ := json.Marshal(claims)
	claimsB64 := base64.RawURLEncoding.EncodeToString(claimsJSON)

	// Unsigned token (header.claims.)
	return headerB64 + "." + claimsB64 + "."
}

func TestNewJWKSClient_DevMode(t *testing.T) {
	config := &JWKSConfig{
		EnableVerification: false,
		JWKSEndpoints:      nil,
	}

	client, err := NewJWKSClient(config)
	if err != nil {
		t.Fatalf("NewJWKSClient failed: %v", err)
	}
	defer client.Close()

	if client == nil {
		t.Fatal("expected non-nil client")
	}
}

func TestJWKSClient_ValidateToken_DevMode(t *testing.T) {
	config := &JWKSConfig{
		EnableVerification: false,
		JWKSEndpoints:      nil,
	}

	client, err := NewJWKSClient(config)
	if err != nil {
		t.Fatalf("NewJWKSClient failed: %v", err)
	}
	defer client.Close()

	testClaims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "admin-123",
			Issuer:    "https://auth.example.com",
			Audience:  jwt.ClaimStrings{"gateway"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Email: "admin@example.com",
		Roles: []string{"admin"},
	}

	token := createTestToken(testClaims)

	claims, err := client.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}

	if claims.Subject != "admin-123" {
		t.Errorf("expected Subject 'admin-123', got %q", claims.Subject)
	}
	if claims.Email != "admin@example.com" {
		t.Errorf("expected Email 'admin@example.com', got %q", claims.Email)
	}
	if !claims.HasRole("admin") {
		t.Errorf("expected role 'admin', got %v", claims.Roles)
	}
}

func TestJWKSClient_ValidateToken_InvalidFormat(t *testing.T) {
	config := &JWKSConfig{EnableVerification: false}

	client, err := NewJWKSClient(config)
	if err != nil {
		t.Fatalf("NewJWKSClient failed: %v", err)
	}
	defer client.Close()

	_, err = client.ValidateToken("not-a-valid-token")
	if err == nil {
		t.Error("expected error for invalid token format")
	}
}

func TestJWKSClient_ValidateToken_EmptyToken(t *testing.T) {
	config := &JWKSConfig{EnableVerification: false}

	client, err := NewJWKSClient(config)
	if err != nil {
		t.Fatalf("NewJWKSClient failed: %v", err)
	}
	defer client.Close()

	_, err = client.ValidateToken("")
	if err == nil {
		t.Error("expected error for empty token")
	}
}

func TestJWKSClient_ValidateToken_MalformedBase64(t *testing.T) {
	config := &JWKSConfig{EnableVerification: false}

	client, err := NewJWKSClient(config)
	if err != nil {
		t.Fatalf("NewJWKSClient failed: %v", err)
	}
	defer client.Close()

	_, err = client.ValidateToken("eyJhbGciOiJub25lIn0.!!!invalid!!!.")
	if err == nil {
		t.Error("expected error for malformed base64")
	}
}

func TestJWKSClient_Interface(t *testing.T) {
	config := &JWKSConfig{EnableVerification: false}

	client, err := NewJWKSClient(config)
	if err != nil {
		t.Fatalf("NewJWKSClient failed: %v", err)
	}

	var _ JWKSClientInterface = client
}

func TestJWKSClient_ValidateToken_InvalidAudience(t *testing.T) {
	config := &JWKSConfig{EnableVerification: false}

	client, err := NewJWKSClient(config)
	if err != nil {
		t.Fatalf("NewJWKSClient failed: %v", err)
	}
	defer client.Close()

	testClaims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  "admin-123",
			Issuer:   "https://auth.example.com",
			Audience: jwt.ClaimStrings{"other-service"},
		},
	}

	token := createTestToken(testClaims)
	_, err = client.ValidateToken(token)
	if err == nil {
		t.Error("expected error for invalid audience")
	}
	if err != ErrInvalidAudience {
		t.Errorf("expected ErrInvalidAudience, got: %v", err)
	}
}

func TestJWKSClient_ValidateToken_MissingAudience(t *testing.T) {
	config := &JWKSConfig{EnableVerification: false}

	client, err := NewJWKSClient(config)
	if err != nil {
		t.Fatalf("NewJWKSClient failed: %v", err)
	}
	defer client.Close()

	testClaims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: "admin-123",
			Issuer:  "https://auth.example.com",
		},
	}

	token := createTestToken(testClaims)
	_, err = client.ValidateToken(token)
	if err == nil {
		t.Error("expected error for missing audience")
	}
	if err != ErrInvalidAudience {
		t.Errorf("expected ErrInvalidAudience, got: %v", err)
	}
}

func TestNewJWKSClient_InvalidEndpoint(t *testing.T) {
	config := &JWKSConfig{
		EnableVerification: true,
		JWKSEndpoints: map[string]string{
			"https://invalid.example.com": "not-a-valid-url",
		},
	}

	_, err := NewJWKSClient(config)
	if err != nil {
		if !strings.Contains(err.Error(), "failed to create JWKS client") {
			t.Errorf("expected 'failed to create JWKS client' in error, got: %v", err)
		}
	}
}
