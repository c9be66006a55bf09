// Package client fetches FHIR resources over REST with retry, rate-limit
// awareness and bundle-page traversal.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/SanteonNL/kolibri/models/fhir"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

// TokenSource supplies bearer tokens for outgoing requests.
type TokenSource interface {
	GetToken(ctx context.Context) (string, error)
}

// Config holds the fetch settings for one FHIR server.
type Config struct {
	BaseURL  string
	PageSize int
	MaxPages int
	Policy   RetryPolicy
	Timeout  time.Duration
}

// Service issues resilient FHIR requests. Sleep and jitter are injectable
// so retry behavior is deterministic under test.
type Service struct {
	config Config
	client *http.Client
	tokens TokenSource
	log    zerolog.Logger

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64
}

func NewService(config Config, tokens TokenSource, log zerolog.Logger) *Service {
	if config.PageSize <= 0 {
		config.PageSize = 100
	}
	if config.MaxPages <= 0 {
		config.MaxPages = 1000
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	return &Service{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		tokens: tokens,
		log:    log.With().Str("component", "fhir_client").Logger(),
		sleep:  sleepContext,
		jitter: rand.Float64,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Pager walks a bundle chain page by page, sql.Rows style:
//
//	pages := svc.FetchAll(ctx, "Observation", params)
//	for pages.Next() {
//		bundle := pages.Bundle()
//	}
//	if err := pages.Err(); err != nil { ... }
//
// Pagination is inherently sequential: each page carries the link to the
// next one.
type Pager struct {
	svc          *Service
	ctx          context.Context
	resourceType string

	nextURL      string
	pagesFetched int
	current      *fhir.Bundle
	err          error
	done         bool
}

// FetchAll starts a paged search for one resource type. The page size and
// search params are embedded in the first URL; follow-up pages use the
// server's next link verbatim.
func (s *Service) FetchAll(ctx context.Context, resourceType string, params url.Values) *Pager {
	query := url.Values{}
	for k, v := range params {
		query[k] = v
	}
	query.Set("_count", strconv.Itoa(s.config.PageSize))

	first := fmt.Sprintf("%s/%s?%s",
		strings.TrimRight(s.config.BaseURL, "/"), resourceType, query.Encode())

	return &Pager{
		svc:          s,
		ctx:          ctx,
		resourceType: resourceType,
		nextURL:      first,
	}
}

// Next fetches the following page. Returns false when the chain is
// exhausted, the page guard is hit, or an error occurred (check Err).
func (p *Pager) Next() bool {
	if p.done || p.err != nil {
		return false
	}
	if p.nextURL == "" {
		p.done = true
		return false
	}
	if p.pagesFetched >= p.svc.config.MaxPages {
		p.svc.log.Warn().
			Str("resourceType", p.resourceType).
			Int("maxPages", p.svc.config.MaxPages).
			Msg("Stopping pagination at page guard")
		p.done = true
		return false
	}

	body, err := p.svc.get(p.ctx, p.nextURL)
	if err != nil {
		p.err = err
		return false
	}

	var bundle fhir.Bundle
	if err := json.Unmarshal(body, &bundle); err != nil {
		p.err = fmt.Errorf("failed to parse bundle for %s: %w", p.resourceType, err)
		return false
	}

	p.current = &bundle
	p.pagesFetched++
	p.nextURL = bundle.NextLink()
	return true
}

// Bundle returns the page fetched by the last successful Next.
func (p *Pager) Bundle() *fhir.Bundle {
	return p.current
}

// Err returns the terminal error of the page walk, nil on clean exhaustion.
func (p *Pager) Err() error {
	return p.err
}

// Pages returns how many pages have been fetched so far.
func (p *Pager) Pages() int {
	return p.pagesFetched
}

// FetchResource reads a single resource by id.
func (s *Service) FetchResource(ctx context.Context, resourceType, id string) (json.RawMessage, error) {
	u := fmt.Sprintf("%s/%s/%s", strings.TrimRight(s.config.BaseURL, "/"), resourceType, id)
	return s.get(ctx, u)
}

// get performs one GET with the full resilience policy: 429 honors
// Retry-After without touching the retry budget, transient failures back
// off exponentially, other 4xx surface immediately.
func (s *Service) get(ctx context.Context, rawURL string) ([]byte, error) {
	attempt := 0
	for {
		body, retryAfter, err := s.doOnce(ctx, rawURL)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if retryAfter > 0 {
			s.log.Debug().
				Dur("retryAfter", retryAfter).
				Str("url", rawURL).
				Msg("Rate limited, honoring Retry-After")
			if sleepErr := s.sleep(ctx, retryAfter); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}

		var transient *TransientError
		if !errors.As(err, &transient) {
			return nil, err
		}
		if attempt >= s.config.Policy.MaxRetries {
			return nil, fmt.Errorf("retry budget of %d exhausted: %w",
				s.config.Policy.MaxRetries, err)
		}

		delay := s.config.Policy.Backoff(attempt, s.jitter)
		s.log.Debug().
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Err(err).
			Msg("Transient failure, backing off")
		if sleepErr := s.sleep(ctx, delay); sleepErr != nil {
			return nil, sleepErr
		}
		attempt++
	}
}

// doOnce issues a single request. A positive retryAfter signals a 429.
func (s *Service) doOnce(ctx context.Context, rawURL string) (body []byte, retryAfter time.Duration, err error) {
	token, err := s.tokens.GetToken(ctx)
	if err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/fhir+json")

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, &TransientError{Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return payload, 0, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, s.parseRetryAfter(resp.Header.Get("Retry-After")),
			&TransientError{StatusCode: resp.StatusCode, Err: fmt.Errorf("rate limited")}

	case resp.StatusCode >= 500:
		return nil, 0, &TransientError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("server error: %s", resp.Status),
		}

	default:
		return nil, 0, &PermanentError{StatusCode: resp.StatusCode, Body: string(payload)}
	}
}

func (s *Service) parseRetryAfter(header string) time.Duration {
	if header != "" {
		if seconds, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && seconds >= 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return s.config.Policy.RetryAfterDefault
}

// Probe checks server reachability against the capability endpoint. The
// probe tolerates startup blips with a small retrying client; budget
// semantics do not matter here the way they do in the fetch loop.
func (s *Service) Probe(ctx context.Context) error {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 2
	retryClient.Logger = nil
	retryClient.HTTPClient = &http.Client{Timeout: s.config.Timeout}

	u := strings.TrimRight(s.config.BaseURL, "/") + "/metadata"
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/fhir+json")

	resp, err := retryClient.Do(req)
	if err != nil {
		return fmt.Errorf("capability probe failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("capability probe returned status %d", resp.StatusCode)
	}
	s.log.Info().Str("url", u).Msg("FHIR server reachable")
	return nil
}
