package handler

import (
	"net/http"

	"go-content-cache/internal/logger"
	appmw "go-content-cache/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// DefaultNotifyPath is where change notifications are posted unless configured otherwise.
const DefaultNotifyPath = "/cache/notify"

// RouterOptions configures the non-content endpoints.
type RouterOptions struct {
	// Metrics is served at MetricsPath; nil disables it.
	Metrics     http.Handler
	MetricsPath string
	// NotifyPath defaults to DefaultNotifyPath.
	NotifyPath string
	// NotifyToken, when set, is required as a bearer token on notifications.
	NotifyToken string
}

// NewRouter creates and configures a new chi router.
func NewRouter(contentHandler *ContentHandler, seoHandler *SeoHandler, snapshots appmw.SnapshotSource, opts RouterOptions, log logger.Logger) *chi.Mux {
	r := chi.NewRouter()

	// A good base middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	withErrors := appmw.Error(log)

	r.Get("/healthz", contentHandler.healthHandler)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, opts.MetricsPath, opts.Metrics)
	}
	notifyPath := opts.NotifyPath
	if notifyPath == "" {
		notifyPath = DefaultNotifyPath
	}
	r.With(appmw.RequireToken(opts.NotifyToken)).Method(http.MethodPost, notifyPath, withErrors(contentHandler.notifyHandler))

	// Every read in a request goes through one pinned snapshot.
	r.Group(func(r chi.Router) {
		r.Use(appmw.Snapshot(snapshots))
		r.Use(appmw.SettingsMiddleware)

		r.Get("/robots.txt", seoHandler.robotsHandler)
		r.Get("/sitemap.xml", seoHandler.sitemapHandler)

		r.Route("/content", func(r chi.Router) {
			r.Method(http.MethodGet, "/roots", withErrors(contentHandler.rootsHandler))
			r.Method(http.MethodGet, "/{id}", withErrors(contentHandler.getHandler))
			r.Method(http.MethodGet, "/{id}/children", withErrors(contentHandler.childrenHandler))
			r.Method(http.MethodGet, "/{id}/ancestors", withErrors(contentHandler.ancestorsHandler))
			r.Method(http.MethodGet, "/{id}/properties/{alias}", withErrors(contentHandler.propertyHandler))
		})
	})

	return r
}
