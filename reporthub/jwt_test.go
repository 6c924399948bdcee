package reporthub

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestJWTAuth_GenerateToken(t *testing.T) {
	jwtAuth := NewJWTAuth("test-secret")
	userID := "test-user-123"
	deviceID := "test-device-456"
	duration := time.Hour

	token, err := jwtAuth.GenerateToken(userID, deviceID, RoleVolunteer, duration)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	if token == "" {
		t.Error("Generated token should not be empty")
	}

	claims, err := jwtAuth.ValidateToken(token)
	if err != nil {
		t.Fatalf("Failed to validate generated token: %v", err)
	}

	if claims.Subject != userID {
		t.Errorf("Expected user_id %s, got %s", userID, claims.Subject)
	}
	if claims.DeviceID != deviceID {
		t.Errorf("Expected device_id %s, got %s", deviceID, claims.DeviceID)
	}
	if claims.Role != "volunteer" {
		t.Errorf("Expected role volunteer, got %s", claims.Role)
	}
	if claims.Issuer != "disaster-hub" {
		t.Errorf("Expected issuer 'disaster-hub', got %s", claims.Issuer)
	}

	if claims.ExpiresAt == nil {
		t.Fatal("Token should have expiration time")
	}
	expectedExpiry := time.Now().Add(duration)
	timeDiff := claims.ExpiresAt.Time.Sub(expectedExpiry).Abs()
	if timeDiff > time.Second {
		t.Errorf("Token expiry time differs by more than 1 second: expected ~%v, got %v",
			expectedExpiry, claims.ExpiresAt.Time)
	}
}

func TestJWTAuth_ValidateToken_InvalidSecret(t *testing.T) {
	jwtAuth1 := NewJWTAuth("secret-1")
	jwtAuth2 := NewJWTAuth("secret-2")

	token, err := jwtAuth1.GenerateToken("test-user", "test-device", RoleCitizen, time.Hour)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	_, err = jwtAuth2.ValidateToken(token)
	if err == nil {
		t.Error("Expected validation to fail with different secret")
	}
}

func TestJWTAuth_ValidateToken_ExpiredToken(t *testing.T) {
	jwtAuth := NewJWTAuth("test-secret")

	token, err := jwtAuth.GenerateToken("test-user", "test-device", RoleCitizen, time.Millisecond)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	_, err = jwtAuth.ValidateToken(token)
	if err == nil {
		t.Error("Expected validation to fail for expired token")
	}
}

func TestJWTAuth_ValidateToken_MalformedToken(t *testing.T) {
	jwtAuth := NewJWTAuth("test-secret")

	testCases := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"invalid format", "not.a.jwt"},
		{"random string", "random-string"},
		{"partial token", "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := jwtAuth.ValidateToken(tc.token)
			if err == nil {
				t.Errorf("Expected validation to fail for %s", tc.name)
			}
		})
	}
}

func TestJWTAuth_ValidateToken_MissingDeviceID(t *testing.T) {
	jwtAuth := NewJWTAuth("test-secret")

	claims := &JWTClaims{
		DeviceID: "",
		Role:     "citizen",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   "test-user",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(jwtAuth.secret)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}

	_, err = jwtAuth.ValidateToken(tokenString)
	if err == nil {
		t.Error("Expected validation to fail for missing device_id")
	}
}

func TestJWTAuth_ValidateToken_MissingSubject(t *testing.T) {
	jwtAuth := NewJWTAuth("test-secret")

	claims := &JWTClaims{
		DeviceID: "test-device",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(jwtAuth.secret)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}

	_, err = jwtAuth.ValidateToken(tokenString)
	if err == nil {
		t.Error("Expected validation to fail for missing sub")
	}
}

func TestJWTAuth_TokenRoundTrip(t *testing.T) {
	jwtAuth := NewJWTAuth("test-secret-roundtrip")

	testCases := []struct {
		userID   string
		deviceID string
		role     Role
		duration time.Duration
	}{
		{"user-1", "device-1", RoleCitizen, time.Hour},
		{"user-2", "device-2", RoleVolunteer, 30 * time.Minute},
		{"admin-user", "admin-laptop", RoleAdmin, 24 * time.Hour},
	}

	for _, tc := range testCases {
		t.Run(tc.userID+"-"+tc.deviceID, func(t *testing.T) {
			token, err := jwtAuth.GenerateToken(tc.userID, tc.deviceID, tc.role, tc.duration)
			if err != nil {
				t.Fatalf("Failed to generate token: %v", err)
			}

			claims, err := jwtAuth.ValidateToken(token)
			if err != nil {
				t.Fatalf("Failed to validate token: %v", err)
			}

			if claims.Subject != tc.userID {
				t.Errorf("user ID mismatch: expected %s, got %s", tc.userID, claims.Subject)
			}
			if claims.DeviceID != tc.deviceID {
				t.Errorf("device ID mismatch: expected %s, got %s", tc.deviceID, claims.DeviceID)
			}
			if claims.Role != tc.role.String() {
				t.Errorf("role mismatch: expected %s, got %s", tc.role, claims.Role)
			}
		})
	}
}
