package api

import "net/http"

// requireAdmin guards operator routes with the Argon2id-verified bearer key.
func (h *Handler) requireAdmin(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.deps.Admin == nil {
			writeError(w, http.StatusServiceUnavailable, "admin_disabled", "admin key not configured")
			return
		}
		key := bearerToken(r)
		if key == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="invtrack-admin"`)
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		if !h.deps.Admin.Verify(key) {
			h.log.Info("api.admin.reject", "ip", ipString(clientIP(r, h.cfg.TrustProxy)), "path", r.URL.Path)
			w.Header().Set("WWW-Authenticate", `Bearer realm="invtrack-admin", error="invalid_token"`)
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid admin key")
			return
		}
		next(w, r)
	})
}
