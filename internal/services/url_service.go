package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/PFlorov/k3s-url-shortener-app/internal/cache"
	"github.com/PFlorov/k3s-url-shortener-app/internal/entities"
	"github.com/PFlorov/k3s-url-shortener-app/internal/metrics"
	"github.com/PFlorov/k3s-url-shortener-app/internal/repositories"
)

var (
	// ErrEmptyURL is a client error: nothing to shorten.
	ErrEmptyURL = errors.New("long URL is empty")
	// ErrNotFound is a client error: no mapping for the short code.
	ErrNotFound = errors.New("short code not found")
	// ErrStorage wraps every database failure.
	ErrStorage = errors.New("storage error")
)

// URLStore is the persistence the shortener needs.
type URLStore interface {
	CodeChecker
	GetByCode(ctx context.Context, code string) (*entities.URL, error)
	GetByLongURL(ctx context.Context, longURL string) (*entities.URL, error)
	InsertOrGet(ctx context.Context, u *entities.URL) (*entities.URL, bool, error)
}

// Shortened is the outcome of a shorten request.
type Shortened struct {
	LongURL string
	Code    string
	// Created is false when an existing mapping was reused.
	Created bool
}

type URLService struct {
	store   URLStore
	codes   *CodeService
	cache   cache.Cache
	metrics *metrics.Metrics
}

func NewURLService(store URLStore, c cache.Cache, m *metrics.Metrics) *URLService {
	if c == nil {
		c = cache.Nop{}
	}
	return &URLService{
		store:   store,
		codes:   NewCodeService(store, m),
		cache:   c,
		metrics: m,
	}
}

// NormalizeURL trims the input and prefixes http:// when it has no scheme.
func NormalizeURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrEmptyURL
	}
	if u, err := url.Parse(s); err != nil || u.Scheme == "" {
		return "http://" + s, nil
	}
	return s, nil
}

// Shorten returns the short code for raw, reusing the existing mapping for
// the same normalized URL.
func (s *URLService) Shorten(ctx context.Context, raw string) (Shortened, error) {
	longURL, err := NormalizeURL(raw)
	if err != nil {
		return Shortened{}, err
	}

	existing, err := s.store.GetByLongURL(ctx, longURL)
	switch {
	case err == nil:
		s.metrics.IncShortened("reused")
		s.cache.Set(ctx, existing.ShortCode, existing.LongURL)
		return Shortened{LongURL: existing.LongURL, Code: existing.ShortCode}, nil
	case !errors.Is(err, repositories.ErrNotFound):
		return Shortened{}, fmt.Errorf("look up long url: %w: %w", ErrStorage, err)
	}

	for {
		code, err := s.codes.GenerateUniqueCode(ctx)
		if err != nil {
			return Shortened{}, fmt.Errorf("%w: %w", ErrStorage, err)
		}

		stored, created, err := s.store.InsertOrGet(ctx, &entities.URL{LongURL: longURL, ShortCode: code})
		if err != nil {
			return Shortened{}, fmt.Errorf("insert mapping: %w: %w", ErrStorage, err)
		}
		if stored == nil {
			// Another request took the code after our check.
			log.Warn().Str("short_code", code).Msg("Short code taken before insert, retrying")
			s.metrics.IncCodeRetry("collision")
			continue
		}

		result := "reused"
		if created {
			result = "created"
		}
		s.metrics.IncShortened(result)
		s.cache.Set(ctx, stored.ShortCode, stored.LongURL)

		log.Info().
			Str("short_code", stored.ShortCode).
			Str("long_url", stored.LongURL).
			Bool("created", created).
			Msg("Short URL issued")

		return Shortened{LongURL: stored.LongURL, Code: stored.ShortCode, Created: created}, nil
	}
}

// Resolve returns the long URL for code.
func (s *URLService) Resolve(ctx context.Context, code string) (string, error) {
	if code == "" {
		return "", ErrNotFound
	}

	if longURL, ok := s.cache.Get(ctx, code); ok {
		s.metrics.IncCacheLookup("hit")
		return longURL, nil
	}
	s.metrics.IncCacheLookup("miss")

	u, err := s.store.GetByCode(ctx, code)
	if errors.Is(err, repositories.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("look up short code: %w: %w", ErrStorage, err)
	}

	s.cache.Set(ctx, u.ShortCode, u.LongURL)
	return u.LongURL, nil
}
