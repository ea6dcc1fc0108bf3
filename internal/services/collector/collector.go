// Package collector fetches a fund's disclosed holdings and turns them into a snapshot.
package collector

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"

	"github.com/vadiminshakov/fundwatch/internal/domain"
	"github.com/vadiminshakov/fundwatch/pkg/date"
	"github.com/vadiminshakov/fundwatch/pkg/retrier"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "Mozilla/5.0 (compatible; fundwatch/1.0)"
	maxPageSize      = 10 << 20
)

// Collector produces the holdings snapshot of a fund for a date.
// Failures are reported as *domain.CollectionError.
type Collector interface {
	Collect(ctx context.Context, fund domain.Fund, on date.Date) (domain.HoldingSnapshot, error)
}

// HTTPCollector scrapes the holdings table of a fund's disclosure page.
type HTTPCollector struct {
	l               *zap.Logger
	client          *http.Client
	userAgent       string
	retrier         *retrier.Retrier
	weightTolerance decimal.Decimal
}

// Option configures the HTTPCollector.
type Option func(*HTTPCollector)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPCollector) {
		h.client = c
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(h *HTTPCollector) {
		h.client.Timeout = d
	}
}

// WithInsecureSkipVerify disables TLS certificate checks for disclosure sites with broken chains.
func WithInsecureSkipVerify(skip bool) Option {
	return func(h *HTTPCollector) {
		if !skip {
			return
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
		h.client.Transport = transport
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(h *HTTPCollector) {
		if ua != "" {
			h.userAgent = ua
		}
	}
}

// WithRetrier sets the retry policy. Only retryable collection errors are retried.
func WithRetrier(r *retrier.Retrier) Option {
	return func(h *HTTPCollector) {
		h.retrier = r
	}
}

// WithWeightTolerance sets the accepted distance of the weight sum from 100 before warning.
func WithWeightTolerance(tol decimal.Decimal) Option {
	return func(h *HTTPCollector) {
		h.weightTolerance = tol
	}
}

// NewHTTPCollector creates a collector with sane defaults.
func NewHTTPCollector(l *zap.Logger, opts ...Option) *HTTPCollector {
	h := &HTTPCollector{
		l:               l,
		client:          &http.Client{Timeout: defaultTimeout},
		userAgent:       defaultUserAgent,
		weightTolerance: domain.DefaultWeightTolerance,
		retrier: retrier.New(
			retrier.WithMaxRetries(3),
			retrier.WithInitialInterval(500*time.Millisecond),
			retrier.WithRetryIf(domain.IsRetryable),
			retrier.WithOnRetry(LogRetry(l)),
		),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// LogRetry returns a retry hook that logs every failed attempt at warn level.
func LogRetry(l *zap.Logger) func(attempt int, err error, wait time.Duration) {
	return func(attempt int, err error, wait time.Duration) {
		l.Warn("collection attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err))
	}
}

// Collect fetches and parses the fund's disclosure page.
func (h *HTTPCollector) Collect(ctx context.Context, fund domain.Fund, on date.Date) (domain.HoldingSnapshot, error) {
	snapshot, err := retrier.DoWithData(h.retrier, ctx, func(ctx context.Context) (domain.HoldingSnapshot, error) {
		return h.fetch(ctx, fund, on)
	})
	if err != nil {
		return domain.HoldingSnapshot{}, err
	}

	if !snapshot.WeightSumWithin(h.weightTolerance) {
		h.l.Warn("disclosed weights do not sum to 100",
			zap.String("fund", fund.ID),
			zap.String("date", on.String()),
			zap.String("total", snapshot.TotalWeight().String()))
	}
	h.l.Info("holdings collected",
		zap.String("fund", fund.ID),
		zap.String("date", on.String()),
		zap.Int("records", len(snapshot.Records)))

	return snapshot, nil
}

func (h *HTTPCollector) fetch(ctx context.Context, fund domain.Fund, on date.Date) (domain.HoldingSnapshot, error) {
	if fund.URL == "" {
		return domain.HoldingSnapshot{}, domain.NewCollectionError(fund.ID, false, errors.New("fund has no disclosure url"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fund.URL, nil)
	if err != nil {
		return domain.HoldingSnapshot{}, domain.NewCollectionError(fund.ID, false, errors.Wrap(err, "build request"))
	}
	req.Header.Set("User-Agent", h.userAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		h.l.Warn("disclosure fetch failed", zap.String("fund", fund.ID), zap.Error(err))
		return domain.HoldingSnapshot{}, domain.NewCollectionError(fund.ID, ctx.Err() == nil, errors.Wrap(err, "fetch disclosure page"))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests
		return domain.HoldingSnapshot{}, domain.NewCollectionError(fund.ID, retryable,
			errors.Errorf("disclosure page returned %s", resp.Status))
	}

	body, err := charset.NewReader(io.LimitReader(resp.Body, maxPageSize), resp.Header.Get("Content-Type"))
	if err != nil {
		return domain.HoldingSnapshot{}, domain.NewCollectionError(fund.ID, false, errors.Wrap(err, "decode disclosure page"))
	}

	records, err := ParseHoldingsTable(body)
	if err != nil {
		return domain.HoldingSnapshot{}, domain.NewCollectionError(fund.ID, false, err)
	}

	snapshot, err := domain.NewHoldingSnapshot(fund.ID, on, records)
	if err != nil {
		return domain.HoldingSnapshot{}, domain.NewCollectionError(fund.ID, false, err)
	}

	return snapshot, nil
}
