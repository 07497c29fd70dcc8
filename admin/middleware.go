package admin

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/maxpert/mirrordb/cfg"
)

// SecretHeader carries the admin secret; a Bearer token is accepted too
const SecretHeader = "X-Mirrordb-Secret"

var (
	errNoSecret    = errors.New("missing admin secret")
	errBadScheme   = errors.New("authorization must use the Bearer scheme")
	errWrongSecret = errors.New("invalid admin secret")
)

// secretFromRequest extracts the presented secret, preferring SecretHeader
func secretFromRequest(r *http.Request) (string, error) {
	if s := r.Header.Get(SecretHeader); s != "" {
		return s, nil
	}
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", errNoSecret
	}
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || token == "" {
		return "", errBadScheme
	}
	return token, nil
}

// RequireSecret rejects admin requests that do not present the configured
// secret. It is a pass-through when no secret is configured.
func RequireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cfg.IsAdminAuthEnabled() {
			secret, err := secretFromRequest(r)
			if err == nil && subtle.ConstantTimeCompare([]byte(secret), []byte(cfg.Config.Admin.Secret)) != 1 {
				err = errWrongSecret
			}
			if err != nil {
				writeErrorResponse(w, http.StatusUnauthorized, err.Error())
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
