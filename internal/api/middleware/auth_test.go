package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openquiz/quizmaster-api/internal/api/shared"
	"github.com/openquiz/quizmaster-api/internal/domain"
)

const testSecret = "test-secret-key-for-jwt-signing-0123456789"

func signToken(t *testing.T, secret string, userID uuid.UUID, role string, expiresAt time.Time) string {
	t.Helper()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		UserID: userID.String(),
		Role:   role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

// echoIdentity reports the identity the middleware put in the context.
func echoIdentity(t *testing.T, wantUser uuid.UUID, wantRole string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, ok := GetUserID(r)
		assert.True(t, ok)
		assert.Equal(t, wantUser, gotUser)

		gotRole, ok := r.Context().Value(shared.RoleContextKey).(string)
		assert.True(t, ok)
		assert.Equal(t, wantRole, gotRole)

		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	m := NewAuthMiddleware(testSecret)
	userID := uuid.New()

	t.Run("valid token passes identity through", func(t *testing.T) {
		t.Parallel()

		token := signToken(t, testSecret, userID, domain.RoleAdmin, time.Now().Add(time.Hour))

		req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()

		m.Authenticate(echoIdentity(t, userID, domain.RoleAdmin)).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing header returns 401", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
		rec := httptest.NewRecorder()

		m.Authenticate(http.NotFoundHandler()).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed header returns 401", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		rec := httptest.NewRecorder()

		m.Authenticate(http.NotFoundHandler()).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong secret returns 401", func(t *testing.T) {
		t.Parallel()

		token := signToken(t, "some-other-secret-entirely-0123456789", userID, domain.RoleStudent, time.Now().Add(time.Hour))

		req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()

		m.Authenticate(http.NotFoundHandler()).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "Invalid token")
	})

	t.Run("expired token returns 401 with expiry message", func(t *testing.T) {
		t.Parallel()

		token := signToken(t, testSecret, userID, domain.RoleStudent, time.Now().Add(-time.Hour))

		req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()

		m.Authenticate(http.NotFoundHandler()).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "Token expired")
	})

	t.Run("non-uuid subject returns 401", func(t *testing.T) {
		t.Parallel()

		claims := Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
			UserID: "not-a-uuid",
			Role:   domain.RoleStudent,
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()

		m.Authenticate(http.NotFoundHandler()).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRequireRole(t *testing.T) {
	t.Parallel()

	m := NewAuthMiddleware(testSecret)

	protected := m.Authenticate(
		m.RequireRole(domain.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})),
	)

	t.Run("admin is allowed", func(t *testing.T) {
		t.Parallel()

		token := signToken(t, testSecret, uuid.New(), domain.RoleAdmin, time.Now().Add(time.Hour))
		req := httptest.NewRequest(http.MethodPost, "/tasks", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()

		protected.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("student is forbidden", func(t *testing.T) {
		t.Parallel()

		token := signToken(t, testSecret, uuid.New(), domain.RoleStudent, time.Now().Add(time.Hour))
		req := httptest.NewRequest(http.MethodPost, "/tasks", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()

		protected.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "Insufficient permissions")
	})
}
