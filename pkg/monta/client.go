package monta

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/aardg/massabalans/pkg/config"
	pkgerrors "github.com/aardg/massabalans/pkg/errors"
)

const (
	defaultTimeout          = 30 * time.Second
	responseBodyExcerpt int = 1024
	// DateLayout is the day format the orders listing filters on.
	DateLayout = "2006-01-02"
)

var (
	errBaseURLRequired     = errors.New("monta api url is required")
	errCredentialsRequired = errors.New("monta username and password are required")
)

// Client wraps the Monta partner REST API.
type Client struct {
	http *resty.Client
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient swaps the transport, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil && hc.Transport != nil {
			c.http.SetTransport(hc.Transport)
		}
	}
}

// WithRetries retries transport failures and 5xx responses.
func WithRetries(count int, wait time.Duration) Option {
	return func(c *Client) {
		if count <= 0 {
			return
		}
		c.http.SetRetryCount(count).
			SetRetryWaitTime(wait).
			AddRetryCondition(func(r *resty.Response, err error) bool {
				return err != nil || (r != nil && r.StatusCode() >= http.StatusInternalServerError)
			})
	}
}

// NewClient builds a basic-auth client for cfg.APIURL.
func NewClient(cfg config.MontaConfig, opts ...Option) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.APIURL)
	if baseURL == "" {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConfiguration, errBaseURLRequired, "monta client")
	}
	if strings.TrimSpace(cfg.Username) == "" || cfg.Password == "" {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConfiguration, errCredentialsRequired, "monta client")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	rc := resty.New().
		SetBaseURL(baseURL).
		SetBasicAuth(strings.TrimSpace(cfg.Username), cfg.Password).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	client := &Client{http: rc}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// ListReports returns the reports generated after createdAfter, newest first
// as ordered by Monta.
func (c *Client) ListReports(ctx context.Context, createdAfter string) ([]Report, error) {
	var out []Report
	resp, err := c.request(ctx).
		SetQueryParam("createdAfter", createdAfter).
		SetResult(&out).
		Get("reports")
	if err := checkResponse(resp, err, "list reports"); err != nil {
		return nil, err
	}
	return out, nil
}

// DownloadReport returns the raw file of a report.
func (c *Client) DownloadReport(ctx context.Context, reportID string) ([]byte, error) {
	if strings.TrimSpace(reportID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "report id is required")
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", reportID).
		Get("reports/{id}/file")
	if err := checkResponse(resp, err, "download report"); err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

// ListOrders returns one page of orders created in [since, until).
func (c *Client) ListOrders(ctx context.Context, since, until time.Time, page, pageSize int) ([]OrderRef, error) {
	var out []OrderRef
	resp, err := c.request(ctx).
		SetQueryParams(map[string]string{
			"created_since": since.Format(DateLayout),
			"created_until": until.Format(DateLayout),
			"page":          strconv.Itoa(page),
			"page_size":     strconv.Itoa(pageSize),
		}).
		SetResult(&out).
		Get("orders")
	if err := checkResponse(resp, err, "list orders"); err != nil {
		return nil, err
	}
	return out, nil
}

// GetOrder returns the order detail for a webshop order id.
func (c *Client) GetOrder(ctx context.Context, orderID string) (Order, error) {
	var out Order
	resp, err := c.request(ctx).
		SetPathParam("id", orderID).
		SetResult(&out).
		Get("order/{id}")
	if err := checkResponse(resp, err, "get order"); err != nil {
		return Order{}, err
	}
	return out, nil
}

// GetOrderBatches returns the shipped batch lines of an order.
func (c *Client) GetOrderBatches(ctx context.Context, orderID string) (OrderBatches, error) {
	var out OrderBatches
	resp, err := c.request(ctx).
		SetPathParam("id", orderID).
		SetResult(&out).
		Get("order/{id}/batches")
	if err := checkResponse(resp, err, "get order batches"); err != nil {
		return OrderBatches{}, err
	}
	return out, nil
}

// ListInbounds returns inbound deliveries with an id above sinceID.
func (c *Client) ListInbounds(ctx context.Context, sinceID int64) ([]Inbound, error) {
	var out []Inbound
	resp, err := c.request(ctx).
		SetQueryParam("sinceid", strconv.FormatInt(sinceID, 10)).
		SetResult(&out).
		Get("inbounds")
	if err := checkResponse(resp, err, "list inbounds"); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) request(ctx context.Context) *resty.Request {
	return c.http.R().
		SetContext(ctx).
		ForceContentType("application/json")
}

func checkResponse(resp *resty.Response, err error, op string) error {
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return pkgerrors.Wrap(pkgerrors.CodeSourceUnavailable, err, op)
	}
	if resp.IsSuccess() {
		return nil
	}

	code := pkgerrors.CodeSourceUnavailable
	if resp.StatusCode() == http.StatusNotFound {
		code = pkgerrors.CodeNotFound
	}
	return pkgerrors.New(code, fmt.Sprintf("%s: monta returned status %d", op, resp.StatusCode())).
		WithDetails(map[string]any{
			"status": resp.StatusCode(),
			"body":   excerpt(resp.Body()),
		})
}

func excerpt(body []byte) string {
	if len(body) > responseBodyExcerpt {
		body = body[:responseBodyExcerpt]
	}
	return strings.TrimSpace(string(body))
}
