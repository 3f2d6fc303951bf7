package middleware

import (
	"net/http"
	"strconv"
)

// PreviewHeader lets non-browser clients request preview mode without a query parameter.
const PreviewHeader = "X-Content-Preview"

// SettingsMiddleware reads the "preview=true" query parameter (or the preview
// header) into the request context. Handlers then serve drafts where they exist.
func SettingsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		preview := r.URL.Query().Get("preview") == "true"
		if !preview {
			preview, _ = strconv.ParseBool(r.Header.Get(PreviewHeader))
		}
		next.ServeHTTP(w, r.WithContext(SetPreview(r.Context(), preview)))
	})
}
