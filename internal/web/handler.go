// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/csrf"
	"github.com/rs/zerolog/log"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static/*
var staticFS embed.FS

var pages = []string{
	"index.html",
	"kiosk.html",
	"verify.html",
	"admin.html",
	"login.html",
	"confirm.html",
}

type Handler struct {
	static    fs.FS
	templates map[string]*template.Template
	baseURL   string
	version   string
}

func init() {
	// Ensure MIME types are properly registered
	mime.AddExtensionType(".js", "application/javascript")
	mime.AddExtensionType(".css", "text/css")
}

// Page is what every template receives
type Page struct {
	Title     string
	BaseURL   string
	Version   string
	CSRFField template.HTML
	Refresh   int
	Data      any
}

func NewHandler(version, baseURL string) (*Handler, error) {
	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("failed to open static assets: %w", err)
	}

	h := &Handler{
		static:    static,
		templates: make(map[string]*template.Template, len(pages)),
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		version:   version,
	}

	funcs := template.FuncMap{
		"url": h.URL,
	}

	for _, page := range pages {
		tmpl, err := template.New(page).Funcs(funcs).ParseFS(templatesFS, "templates/layout.html", "templates/"+page)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", page, err)
		}
		h.templates[page] = tmpl
	}

	return h, nil
}

// URL prefixes path with the configured base URL
func (h *Handler) URL(path string) string {
	return h.baseURL + path
}

// Redirect sends a see-other redirect to a path inside the app
func (h *Handler) Redirect(w http.ResponseWriter, r *http.Request, path string) {
	http.Redirect(w, r, h.URL(path), http.StatusSeeOther)
}

// Render executes page inside the layout. refresh > 0 reloads the page
// after that many seconds.
func (h *Handler) Render(w http.ResponseWriter, r *http.Request, status int, page, title string, refresh int, data any) {
	tmpl, ok := h.templates[page]
	if !ok {
		log.Error().Str("page", page).Msg("Unknown template")
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	err := tmpl.ExecuteTemplate(&buf, "layout", Page{
		Title:     title,
		BaseURL:   h.baseURL,
		Version:   h.version,
		CSRFField: csrf.TemplateField(r),
		Refresh:   refresh,
		Data:      data,
	})
	if err != nil {
		log.Error().Err(err).Str("page", page).Msg("Failed to render template")
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/static/*", h.serveAssets)
}

func (h *Handler) serveAssets(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(chi.URLParam(r, "*"), "/")

	file, err := h.static.Open(path)
	if err != nil {
		log.Debug().
			Str("requested_url", r.URL.Path).
			Str("tried_path", path).
			Err(err).
			Msg("Asset not found")
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil || stat.IsDir() {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=3600")

	http.ServeContent(w, r, path, stat.ModTime(), file.(io.ReadSeeker))
}

func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	h.Render(w, r, http.StatusOK, "index.html", "Home", 0, nil)
}
