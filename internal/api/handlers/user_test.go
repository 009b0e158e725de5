package handlers

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitalchain-project/backend/internal/api/middleware"
	"github.com/vitalchain-project/backend/internal/models"
)

func TestGetUser(t *testing.T) {
	store := newMemoryStore()
	issuer := newTestIssuer(t)
	wallet := "0x" + strings.Repeat("c", 40)
	user := store.add(wallet)
	store.files[user.ID] = []models.HealthFile{{FileName: "x.csv", OriginalName: "vitals.csv"}}

	app := newTestApp()
	app.Get("/api/user", middleware.Protected(issuer, store), NewUserHandler(store).GetUser)

	resp, body := doJSON(t, app, http.MethodGet, "/api/user", bearer(t, issuer, wallet), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, wallet, body["walletAddress"])
	files, ok := body["healthData"].([]interface{})
	require.True(t, ok)
	assert.Len(t, files, 1)

	resp, body = doJSON(t, app, http.MethodGet, "/api/user", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "no token", body["error"])

	resp, body = doJSON(t, app, http.MethodGet, "/api/user", bearer(t, issuer, "0x"+strings.Repeat("d", 40)), nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid token", body["error"])
}
