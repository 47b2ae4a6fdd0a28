package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmlink-backend/pkg/auth"
	"github.com/angelmondragon/farmlink-backend/pkg/config"
	"github.com/angelmondragon/farmlink-backend/pkg/enums"
	"github.com/angelmondragon/farmlink-backend/pkg/types"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "farmlink", ExpirationMinutes: 60}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthRejectsMissingToken(t *testing.T) {
	handler := Auth(testJWT, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	handler := Auth(testJWT, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer invalid")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsForeignIssuer(t *testing.T) {
	other := testJWT
	other.Issuer = "someone-else"
	token := mintTestToken(t, other, enums.ActorRoleBuyer, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	Auth(testJWT, nil)(okHandler()).ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthSeedsActor(t *testing.T) {
	sellerID := uuid.New()
	token := mintTestToken(t, testJWT, enums.ActorRoleSeller, &sellerID)

	var captured types.Actor
	handler := Auth(testJWT, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = ActorFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if captured.UserID == uuid.Nil {
		t.Fatal("expected user id in context")
	}
	if !captured.OwnsSeller(sellerID) {
		t.Fatalf("expected seller %s on actor, got %+v", sellerID, captured)
	}
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(nil, enums.ActorRoleSeller, enums.ActorRoleLogistics)(okHandler())

	cases := []struct {
		name  string
		actor *types.Actor
		want  int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"buyer", &types.Actor{UserID: uuid.New(), Role: enums.ActorRoleBuyer}, http.StatusForbidden},
		{"logistics", &types.Actor{UserID: uuid.New(), Role: enums.ActorRoleLogistics}, http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		if tc.actor != nil {
			req = req.WithContext(WithActor(req.Context(), *tc.actor))
		}
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != tc.want {
			t.Fatalf("%s: expected %d got %d", tc.name, tc.want, resp.Code)
		}
	}
}

func mintTestToken(t *testing.T, cfg config.JWTConfig, role enums.ActorRole, sellerID *uuid.UUID) string {
	t.Helper()
	token, err := auth.MintAccessToken(cfg, time.Now(), auth.AccessTokenPayload{
		UserID:   uuid.New(),
		Role:     role,
		SellerID: sellerID,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}
