package auth

import "net/http"

// Guard verifies the signed access token cookie and attaches the caller's
// identity to the request context. It is stateless: deleted users and users
// logged out elsewhere keep passing until their access token expires.
func Guard(codec *CookieCodec, tokens *TokenManager, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := codec.ReadAccess(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized: Token missing")
			return
		}

		claims, err := tokens.VerifyAccess(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		ctx := contextWithIdentity(r.Context(), Identity{UserID: claims.UserID, Email: claims.Email})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
