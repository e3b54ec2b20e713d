package app

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/PFlorov/k3s-url-shortener-app/internal/config"
	"github.com/PFlorov/k3s-url-shortener-app/internal/dtos"
	"github.com/PFlorov/k3s-url-shortener-app/internal/services"
	"github.com/PFlorov/k3s-url-shortener-app/internal/utils"
)

const healthTimeout = 2 * time.Second

//go:embed templates/*.html
var templateFS embed.FS

var indexTmpl = template.Must(template.ParseFS(templateFS, "templates/index.html"))

type Handlers struct {
	cfg config.Config

	urls *services.URLService
	qr   *services.QRService // nil when QR codes are disabled
	ping func(ctx context.Context) error
}

func NewHandlers(
	cfg config.Config,
	urls *services.URLService,
	qr *services.QRService,
	ping func(ctx context.Context) error,
) *Handlers {
	return &Handlers{
		cfg:  cfg,
		urls: urls,
		qr:   qr,
		ping: ping,
	}
}

func (h *Handlers) Index(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, dtos.ShortenPage{})
}

func (h *Handlers) Shorten(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Please enter a URL", http.StatusBadRequest)
		return
	}

	res, err := h.urls.Shorten(r.Context(), r.PostFormValue("long_url"))
	if errors.Is(err, services.ErrEmptyURL) {
		http.Error(w, "Please enter a URL", http.StatusBadRequest)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("Error processing URL")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	page := dtos.ShortenPage{
		LongURL:  res.LongURL,
		ShortURL: h.shortURL(r, res.Code),
		Code:     res.Code,
	}
	if h.qr != nil {
		uri, err := h.qr.DataURI(page.ShortURL)
		if err != nil {
			log.Warn().Err(err).Str("short_code", res.Code).Msg("Could not render QR code")
		} else {
			page.QRCode = template.URL(uri)
		}
	}

	h.render(w, r, page)
}

func (h *Handlers) Redirect(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	longURL, err := h.urls.Resolve(r.Context(), code)
	if errors.Is(err, services.ErrNotFound) {
		http.Error(w, "Short URL not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("short_code", code).
			Msg("Error redirecting")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, longURL, http.StatusFound)
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := h.ping(ctx); err != nil {
		log.Warn().Err(err).Msg("Health check failed")
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (h *Handlers) shortURL(r *http.Request, code string) string {
	base := h.cfg.Server.BaseURL
	if base == "" {
		base = utils.RequestBaseURL(r, h.cfg.Server.TrustProxyHeaders)
	}
	return base + "/" + code
}

func (h *Handlers) render(w http.ResponseWriter, r *http.Request, page dtos.ShortenPage) {
	var buf bytes.Buffer
	if err := indexTmpl.Execute(&buf, page); err != nil {
		log.Error().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("Error rendering page")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
