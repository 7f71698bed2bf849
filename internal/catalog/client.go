// Package catalog is the commerce catalog client: signed product searches, lookups and
// affiliate links.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autonote/api/schemas"
	"github.com/xkilldash9x/autonote/internal/config"
	"github.com/xkilldash9x/autonote/internal/ratelimit"
	"github.com/xkilldash9x/autonote/internal/retry"
)

const (
	requestPath    = "/onca/xml"
	apiVersion     = "2013-08-01"
	responseGroups = "ItemAttributes,Images,Reviews,EditorialReview"
	// maxResponseSize bounds how much of a response body is read.
	maxResponseSize = 4 << 20
	// noMatchesCode is reported for searches without results; it is not a failure.
	noMatchesCode = "AWS.ECommerceService.NoExactMatches"
)

var (
	// ErrProductNotFound is returned when a lookup yields no item.
	ErrProductNotFound = errors.New("product not found")
	// ErrNoProducts is returned when product discovery finds nothing to write about.
	ErrNoProducts = errors.New("no products found")
)

// APIError is an error reported by the catalog service itself.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("catalog API returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("catalog API error %s (HTTP %d): %s", e.Code, e.StatusCode, e.Message)
}

// Client talks to the catalog API. Every request passes the shared rate limiter and is
// retried with backoff.
type Client struct {
	cfg        config.CatalogConfig
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	retryOpts  []retry.Option
	now        func() time.Time
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Its transport is wrapped for compression.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLimiter shares an existing limiter instead of creating one from the configuration.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithRetry sets the retry policy for requests.
func WithRetry(opts ...retry.Option) Option {
	return func(c *Client) { c.retryOpts = opts }
}

// WithClock sets the time source used for request timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient builds a client. The limiter admits rate_limit_per_second*60 calls per minute.
func NewClient(cfg config.CatalogConfig, logger *zap.Logger, opts ...Option) (*Client, error) {
	c := &Client{
		cfg:    cfg,
		now:    time.Now,
		logger: logger.Named("catalog"),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	wrapped := *c.httpClient
	wrapped.Transport = newCompressionTransport(c.httpClient.Transport)
	c.httpClient = &wrapped

	if c.limiter == nil {
		l, err := ratelimit.New(cfg.RateLimitPerSecond * 60)
		if err != nil {
			return nil, fmt.Errorf("catalog rate limiter: %w", err)
		}
		c.limiter = l
	}
	if c.cfg.Scheme == "" {
		c.cfg.Scheme = "https"
	}
	return c, nil
}

// request signs and performs one API operation and returns the parsed XML document.
func (c *Client) request(ctx context.Context, operation string, params map[string]string) (*etree.Document, error) {
	if err := c.limiter.Admit(ctx); err != nil {
		return nil, err
	}

	query := map[string]string{
		"Service":          "AWSECommerceService",
		"Operation":        operation,
		"AWSAccessKeyId":   c.cfg.AccessKey,
		"AssociateTag":     c.cfg.AssociateTag,
		"Timestamp":        c.now().UTC().Format(time.RFC3339),
		"SignatureMethod":  "HmacSHA256",
		"SignatureVersion": "2",
		"Version":          apiVersion,
	}
	for k, v := range params {
		query[k] = v
	}
	signature := Sign(c.cfg.SecretKey, http.MethodGet, c.cfg.Endpoint, requestPath, query)
	endpoint := fmt.Sprintf("%s://%s%s?%s&Signature=%s",
		c.cfg.Scheme, c.cfg.Endpoint, requestPath, canonicalQuery(query), escape(signature))

	opts := append([]retry.Option{}, c.retryOpts...)
	opts = append(opts, retry.WithName("catalog "+operation), retry.WithLogger(c.logger))
	doc, err := retry.Value(ctx, func(ctx context.Context) (*etree.Document, error) {
		return c.get(ctx, endpoint)
	}, opts...)
	if err != nil {
		c.logger.Error("Catalog API request failed", zap.String("operation", operation), zap.Error(err))
		return nil, err
	}
	return doc, nil
}

func (c *Client) get(ctx context.Context, endpoint string) (*etree.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read catalog response: %w", err)
	}

	doc := etree.NewDocument()
	parseErr := doc.ReadFromBytes(body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if parseErr == nil {
			apiErr.Code, apiErr.Message = firstError(doc)
		}
		return nil, apiErr
	}
	if parseErr != nil {
		return nil, fmt.Errorf("parse catalog response: %w", parseErr)
	}
	if code, msg := firstError(doc); code != "" && code != noMatchesCode {
		return nil, &APIError{StatusCode: resp.StatusCode, Code: code, Message: msg}
	}
	return doc, nil
}

// firstError returns the first Error element's code and message, if any.
func firstError(doc *etree.Document) (code, message string) {
	el := doc.FindElement("//Error")
	if el == nil {
		return "", ""
	}
	return childText(el, "Code"), childText(el, "Message")
}

func childText(el *etree.Element, path string) string {
	if c := el.FindElement(path); c != nil {
		return strings.TrimSpace(c.Text())
	}
	return ""
}

// parseProducts reads Item and TopItem elements in document order.
func (c *Client) parseProducts(doc *etree.Document, category string) []schemas.Product {
	var products []schemas.Product
	for _, item := range doc.FindElements("//Item") {
		products = append(products, c.parseItem(item, category))
	}
	for _, item := range doc.FindElements("//TopItem") {
		p := schemas.Product{
			ASIN:     childText(item, "ASIN"),
			Title:    childText(item, "Title"),
			Category: firstNonEmpty(childText(item, "ProductGroup"), category),
		}
		p.AffiliateURL = c.AffiliateLink(p.ASIN, nil)
		products = append(products, p)
	}
	return products
}

func (c *Client) parseItem(item *etree.Element, category string) schemas.Product {
	p := schemas.Product{
		ASIN:  childText(item, "ASIN"),
		Title: childText(item, "ItemAttributes/Title"),
		Price: firstNonEmpty(
			childText(item, "OfferSummary/LowestNewPrice/FormattedPrice"),
			childText(item, "ItemAttributes/ListPrice/FormattedPrice"),
		),
		Image: firstNonEmpty(
			childText(item, "LargeImage/URL"),
			childText(item, "MediumImage/URL"),
		),
		Description: childText(item, "EditorialReviews/EditorialReview/Content"),
		Category:    firstNonEmpty(childText(item, "ItemAttributes/ProductGroup"), category),
	}
	if r, err := strconv.ParseFloat(childText(item, "CustomerReviews/AverageRating"), 64); err == nil {
		p.Rating = r
	}
	if n, err := strconv.Atoi(childText(item, "CustomerReviews/TotalReviews")); err == nil {
		p.ReviewCount = n
	}
	for _, f := range item.FindElements("ItemAttributes/Feature") {
		if text := strings.TrimSpace(f.Text()); text != "" {
			p.Features = append(p.Features, text)
		}
	}
	p.AffiliateURL = c.AffiliateLink(p.ASIN, nil)
	return p
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
