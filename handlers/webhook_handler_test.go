package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veriHabitAPI/database"
	"veriHabitAPI/services"
)

func setupWebhookTest(t *testing.T) (*WebhookHandler, *services.UserService, *pgxpool.Pool) {
	t.Helper()
	_ = godotenv.Load("../.env")

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	pool, err := database.Connect(ctx, dbURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, database.RunMigrations(ctx, pool, "../migrations/001_create_tables.sql"))

	userService := services.NewUserService(pool)
	return NewWebhookHandler(userService), userService, pool
}

func userCreatedPayload(clerkID string) []byte {
	return []byte(fmt.Sprintf(`{
		"type": "user.created",
		"data": {
			"id": "%s",
			"username": "testuser",
			"first_name": "Test",
			"last_name": "User",
			"email_addresses": [{"email_address": "test.user@example.com"}]
		}
	}`, clerkID))
}

func TestWebhookUserCreatedAndDeleted(t *testing.T) {
	handler, userService, pool := setupWebhookTest(t)
	t.Setenv("CLERK_WEBHOOK_SECRET", "")

	clerkID := "user_webhook_test"
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM users WHERE clerk_id = $1`, clerkID)
	})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/clerk", bytes.NewReader(userCreatedPayload(clerkID)))
	rr := httptest.NewRecorder()
	handler.HandleClerkWebhook(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	ctx := context.Background()
	created, err := userService.GetUserByClerkID(ctx, clerkID)
	require.NoError(t, err)
	assert.Equal(t, "testuser", created.Username)
	assert.Equal(t, "test.user@example.com", created.Email)
	assert.Equal(t, "free", string(created.Plan), "new accounts start on the free plan")

	deletePayload := []byte(fmt.Sprintf(`{"type": "user.deleted", "data": {"id": "%s"}}`, clerkID))
	req = httptest.NewRequest(http.MethodPost, "/webhooks/clerk", bytes.NewReader(deletePayload))
	rr = httptest.NewRecorder()
	handler.HandleClerkWebhook(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	_, err = userService.GetUserByClerkID(ctx, clerkID)
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func signWebhook(secret, svixID, svixTimestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(svixID + "." + svixTimestamp + "." + string(body)))
	return "v1," + hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookSignatureVerification(t *testing.T) {
	t.Setenv("CLERK_WEBHOOK_SECRET", "whsec_test_secret")

	// The handler never touches the database for unhandled event types, so
	// these run without TEST_DATABASE_URL.
	handler := NewWebhookHandler(nil)
	body := []byte(`{"type": "session.created", "data": {}}`)

	t.Run("valid signature", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/clerk", bytes.NewReader(body))
		req.Header.Set("svix-id", "msg_123")
		req.Header.Set("svix-timestamp", "1700000000")
		req.Header.Set("svix-signature", signWebhook("whsec_test_secret", "msg_123", "1700000000", body))

		rr := httptest.NewRecorder()
		handler.HandleClerkWebhook(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("wrong signature", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/clerk", bytes.NewReader(body))
		req.Header.Set("svix-id", "msg_123")
		req.Header.Set("svix-timestamp", "1700000000")
		req.Header.Set("svix-signature", signWebhook("wrong_secret", "msg_123", "1700000000", body))

		rr := httptest.NewRecorder()
		handler.HandleClerkWebhook(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("missing headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/clerk", bytes.NewReader(body))
		rr := httptest.NewRecorder()
		handler.HandleClerkWebhook(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}
