package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go-content-cache/internal/logger"
	"go-content-cache/internal/middleware"
	"go-content-cache/internal/pubcache"
	"go-content-cache/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// Notifier applies change notifications to the cache.
type Notifier interface {
	NotifyContent(ctx context.Context, changes ...service.ContentChange) error
	NotifyContentTypes(ctx context.Context, ids ...int) error
}

// ContentHandler serves the read API over the published content cache.
type ContentHandler struct {
	store    *pubcache.ContentStore
	notifier Notifier
	log      logger.Logger
}

// NewContentHandler creates a new ContentHandler with the given dependencies.
func NewContentHandler(store *pubcache.ContentStore, notifier Notifier, log logger.Logger) *ContentHandler {
	return &ContentHandler{
		store:    store,
		notifier: notifier,
		log:      log,
	}
}

// ContentResponse is the JSON view of one content item.
type ContentResponse struct {
	ID          int                    `json:"id"`
	Key         string                 `json:"key"`
	Name        string                 `json:"name"`
	ContentType string                 `json:"contentType"`
	ParentID    int                    `json:"parentId"`
	Level       int                    `json:"level"`
	Path        string                 `json:"path"`
	SortOrder   int                    `json:"sortOrder"`
	CreateDate  time.Time              `json:"createDate"`
	UpdateDate  time.Time              `json:"updateDate"`
	IsDraft     bool                   `json:"isDraft"`
	TemplateID  *int                   `json:"templateId,omitempty"`
	Properties  map[string]interface{} `json:"properties"`
}

// PropertyResponse is the JSON view of one property.
type PropertyResponse struct {
	Alias    string      `json:"alias"`
	Editor   string      `json:"editor"`
	HasValue bool        `json:"hasValue"`
	Value    interface{} `json:"value"`
}

func newContentResponse(c *pubcache.PublishedContent) ContentResponse {
	resp := ContentResponse{
		ID:         c.ID(),
		Key:        c.Key().String(),
		Name:       c.Name(),
		ParentID:   c.ParentID(),
		Level:      c.Level(),
		Path:       c.Path(),
		SortOrder:  c.SortOrder(),
		CreateDate: c.CreateDate(),
		UpdateDate: c.UpdateDate(),
		IsDraft:    c.IsDraft(),
		Properties: make(map[string]interface{}),
	}
	if ct := c.ContentType(); ct != nil {
		resp.ContentType = ct.Alias()
	}
	if tpl, ok := c.TemplateID(); ok {
		resp.TemplateID = &tpl
	}
	for _, p := range c.Properties() {
		resp.Properties[p.Alias()] = p.Value()
	}
	return resp
}

func newContentList(items []*pubcache.PublishedContent) []ContentResponse {
	out := make([]ContentResponse, 0, len(items))
	for _, c := range items {
		out = append(out, newContentResponse(c))
	}
	return out
}

// content resolves the {id} URL parameter in the request's mode.
func (h *ContentHandler) content(r *http.Request) (*pubcache.PublishedContent, *middleware.AppError) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		return nil, &middleware.AppError{Error: err, Message: "Invalid content id", Code: http.StatusBadRequest}
	}
	node := h.store.Reader(r.Context()).Get(id)
	if node == nil {
		return nil, &middleware.AppError{Error: fmt.Errorf("node %d not in cache", id), Message: "Content not found", Code: http.StatusNotFound}
	}
	c := node.Content(middleware.IsPreview(r.Context()))
	if c == nil {
		return nil, &middleware.AppError{Error: fmt.Errorf("node %d has no content in this mode", id), Message: "Content not found", Code: http.StatusNotFound}
	}
	return c, nil
}

// rootsHandler lists the top-level content visible in the request's mode.
func (h *ContentHandler) rootsHandler(w http.ResponseWriter, r *http.Request) *middleware.AppError {
	preview := middleware.IsPreview(r.Context())
	var items []*pubcache.PublishedContent
	for node := range h.store.Reader(r.Context()).Roots() {
		if c := node.Content(preview); c != nil {
			items = append(items, c)
		}
	}
	render.JSON(w, r, newContentList(items))
	return nil
}

func (h *ContentHandler) getHandler(w http.ResponseWriter, r *http.Request) *middleware.AppError {
	c, appErr := h.content(r)
	if appErr != nil {
		return appErr
	}
	render.JSON(w, r, newContentResponse(c))
	return nil
}

func (h *ContentHandler) childrenHandler(w http.ResponseWriter, r *http.Request) *middleware.AppError {
	c, appErr := h.content(r)
	if appErr != nil {
		return appErr
	}
	render.JSON(w, r, newContentList(c.Children(r.Context())))
	return nil
}

func (h *ContentHandler) ancestorsHandler(w http.ResponseWriter, r *http.Request) *middleware.AppError {
	c, appErr := h.content(r)
	if appErr != nil {
		return appErr
	}
	render.JSON(w, r, newContentList(c.Ancestors(r.Context())))
	return nil
}

func (h *ContentHandler) propertyHandler(w http.ResponseWriter, r *http.Request) *middleware.AppError {
	c, appErr := h.content(r)
	if appErr != nil {
		return appErr
	}
	alias := chi.URLParam(r, "alias")
	p := c.Property(alias)
	if p == nil {
		return &middleware.AppError{Error: fmt.Errorf("no property %q on node %d", alias, c.ID()), Message: "Property not found", Code: http.StatusNotFound}
	}
	render.JSON(w, r, PropertyResponse{
		Alias:    p.Alias(),
		Editor:   p.PropertyType().EditorAlias,
		HasValue: p.HasValue(),
		Value:    p.Value(),
	})
	return nil
}

// NotifyRequest is the body of a cache notification.
type NotifyRequest struct {
	Content      []service.ContentChange `json:"content"`
	ContentTypes []int                   `json:"contentTypes"`
}

// NotifyResponse reports the store state after a notification.
type NotifyResponse struct {
	Generation int64 `json:"generation"`
	Nodes      int   `json:"nodes"`
}

// notifyHandler applies change notifications sent by the persistence side.
func (h *ContentHandler) notifyHandler(w http.ResponseWriter, r *http.Request) *middleware.AppError {
	var req NotifyRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		return &middleware.AppError{Error: err, Message: "Invalid notification body", Code: http.StatusBadRequest}
	}
	if len(req.Content) == 0 && len(req.ContentTypes) == 0 {
		return &middleware.AppError{Error: errors.New("empty notification"), Message: "Nothing to notify", Code: http.StatusBadRequest}
	}

	var errs []error
	if len(req.ContentTypes) > 0 {
		if err := h.notifier.NotifyContentTypes(r.Context(), req.ContentTypes...); err != nil {
			errs = append(errs, err)
		}
	}
	if len(req.Content) > 0 {
		if err := h.notifier.NotifyContent(r.Context(), req.Content...); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return &middleware.AppError{Error: err, Message: "Some changes could not be applied", Code: http.StatusInternalServerError}
	}

	h.log.With(map[string]interface{}{
		"content":       len(req.Content),
		"content_types": len(req.ContentTypes),
	}).Info("Cache notification applied")
	render.JSON(w, r, NotifyResponse{Generation: h.store.Generation(), Nodes: h.store.Len()})
	return nil
}

// healthHandler reports the cache size and generation.
func (h *ContentHandler) healthHandler(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]interface{}{
		"status":     "ok",
		"nodes":      h.store.Len(),
		"generation": h.store.Generation(),
	})
}
