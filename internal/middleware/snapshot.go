package middleware

import (
	"net/http"

	"go-content-cache/internal/pubcache"
)

// SnapshotSource hands out pinned snapshots of the content store.
type SnapshotSource interface {
	Snapshot() *pubcache.Snapshot
}

// Snapshot pins one snapshot per request and binds it to the request context,
// so every lookup and navigation in the request sees the same tree. The
// snapshot is released when the handler returns.
func Snapshot(source SnapshotSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sn := source.Snapshot()
			defer sn.Release()
			next.ServeHTTP(w, r.WithContext(pubcache.WithSnapshot(r.Context(), sn)))
		})
	}
}
