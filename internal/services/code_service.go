package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/PFlorov/k3s-url-shortener-app/internal/metrics"
)

const (
	CodeLength = 6
	alphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	defaultCheckRetryDelay = 100 * time.Millisecond
)

// CodeChecker reports whether a short code is already stored.
type CodeChecker interface {
	ExistsCode(ctx context.Context, code string) (bool, error)
}

type CodeService struct {
	checker    CodeChecker
	metrics    *metrics.Metrics
	candidate  func() (string, error)
	retryDelay time.Duration
}

func NewCodeService(checker CodeChecker, m *metrics.Metrics) *CodeService {
	return &CodeService{
		checker:    checker,
		metrics:    m,
		candidate:  GenerateCode,
		retryDelay: defaultCheckRetryDelay,
	}
}

// GenerateUniqueCode samples codes until one is not in storage. Collisions
// and failed checks are retried without limit; only ctx ends the loop.
func (s *CodeService) GenerateUniqueCode(ctx context.Context) (string, error) {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("generate short code after %d attempts: %w", attempt-1, err)
		}

		code, err := s.candidate()
		if err != nil {
			return "", err
		}

		exists, err := s.checker.ExistsCode(ctx, code)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("short_code", code).Int("attempt", attempt).Msg("Error checking short code uniqueness")
			s.metrics.IncCodeRetry("error")
			select {
			case <-ctx.Done():
			case <-time.After(s.retryDelay):
			}
		case exists:
			log.Warn().Str("short_code", code).Int("attempt", attempt).Msg("Collision detected, retrying")
			s.metrics.IncCodeRetry("collision")
		default:
			return code, nil
		}
	}
}

// GenerateCode returns CodeLength characters drawn uniformly from
// [A-Za-z0-9].
func GenerateCode() (string, error) {
	b := make([]byte, CodeLength)
	n := big.NewInt(int64(len(alphabet)))
	for i := range b {
		j, err := rand.Int(rand.Reader, n)
		if err != nil {
			return "", err
		}
		b[i] = alphabet[j.Int64()]
	}
	return string(b), nil
}
