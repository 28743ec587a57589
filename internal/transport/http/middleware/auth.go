package httpmw

import (
	"context"
	"net/http"

	"github.com/cwrk-planet/room-chat/internal/domain"
)

type ctxKey string

const ctxKeyUserID ctxKey = "user_id"

// Resolver authenticates a request.
type Resolver interface {
	Resolve(r *http.Request) (domain.UserID, error)
}

// AuthMiddleware требует валидный токен и кладёт user id в контекст
func AuthMiddleware(res Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uid, err := res.Resolve(r)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","code":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), uid)))
		})
	}
}

func WithUserID(ctx context.Context, id domain.UserID) context.Context {
	return context.WithValue(ctx, ctxKeyUserID, id)
}

func UserIDFromCtx(ctx context.Context) domain.UserID {
	if id, ok := ctx.Value(ctxKeyUserID).(domain.UserID); ok {
		return id
	}
	return ""
}
