package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/farmlink-backend/api/responses"
	pkgAuth "github.com/angelmondragon/farmlink-backend/pkg/auth"
	"github.com/angelmondragon/farmlink-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/farmlink-backend/pkg/errors"
	"github.com/angelmondragon/farmlink-backend/pkg/logger"
	"github.com/angelmondragon/farmlink-backend/pkg/types"
)

// Auth validates a bearer token and seeds the request context with the actor
// it names.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			actor := types.Actor{UserID: claims.UserID, Role: claims.Role, SellerID: claims.SellerID}
			ctx := WithActor(r.Context(), actor)
			if logg != nil {
				ctx = logg.WithUserID(ctx, actor.UserID.String())
				ctx = logg.WithActorRole(ctx, actor.Role.String())
				if actor.SellerID != nil {
					ctx = logg.WithField(ctx, "seller_id", actor.SellerID.String())
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(raw string) string {
	token := strings.TrimSpace(raw)
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return token
}
