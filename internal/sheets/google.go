package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

const (
	// DefaultRateLimit keeps well under the per-user Sheets quota
	// (60 requests per minute).
	DefaultRateLimit = rate.Limit(1)
	defaultBurst     = 5
	httpTimeout      = 30 * time.Second

	inputRaw        = "RAW"
	insertRows      = "INSERT_ROWS"
	renderFormatted = "FORMATTED_VALUE"
)

// Client implements Store on top of the Google Sheets v4 API.
type Client struct {
	svc           *gsheets.Service
	spreadsheetID string
	tokens        oauth2.TokenSource
	limiter       *rate.Limiter
}

type clientOptions struct {
	endpoint   string
	httpClient *http.Client
	limit      rate.Limit
	burst      int
}

// Option configures the Client.
type Option func(*clientOptions)

// WithEndpoint overrides the API base URL.
func WithEndpoint(endpoint string) Option {
	return func(o *clientOptions) { o.endpoint = endpoint }
}

// WithHTTPClient sets the HTTP client used for API calls. The token source
// is then only consulted to check that a credential is present.
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = c }
}

// WithRateLimit sets the request rate and burst.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(o *clientOptions) {
		o.limit = limit
		o.burst = burst
	}
}

// NewClient builds a Client for one spreadsheet. tokens supplies the opaque
// bearer credential on every call.
func NewClient(ctx context.Context, spreadsheetID string, tokens oauth2.TokenSource, opts ...Option) (*Client, error) {
	o := clientOptions{limit: DefaultRateLimit, burst: defaultBurst}
	for _, opt := range opts {
		opt(&o)
	}

	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = oauth2.NewClient(ctx, tokens)
		httpClient.Timeout = httpTimeout
	}

	svcOpts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if o.endpoint != "" {
		svcOpts = append(svcOpts, option.WithEndpoint(o.endpoint))
	}
	svc, err := gsheets.NewService(ctx, svcOpts...)
	if err != nil {
		return nil, fmt.Errorf("sheets.NewService: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		tokens:        tokens,
		limiter:       rate.NewLimiter(o.limit, o.burst),
	}, nil
}

// BatchRead fetches every range in one round trip.
func (c *Client) BatchRead(ctx context.Context, ranges []string) ([][][]string, error) {
	if err := c.ready(ctx); err != nil {
		return nil, err
	}

	resp, err := c.svc.Spreadsheets.Values.BatchGet(c.spreadsheetID).
		Ranges(ranges...).
		ValueRenderOption(renderFormatted).
		Context(ctx).
		Do()
	if err != nil {
		return nil, mapError("batchGet", err)
	}

	// The API omits trailing empty ranges; pad so the result stays aligned
	// with the request.
	out := make([][][]string, len(ranges))
	for i := range out {
		if i < len(resp.ValueRanges) && resp.ValueRanges[i] != nil {
			out[i] = toRows(resp.ValueRanges[i].Values)
		}
	}
	return out, nil
}

// Write overwrites rng with rows using raw input.
func (c *Client) Write(ctx context.Context, rng string, rows [][]string) error {
	if err := c.ready(ctx); err != nil {
		return err
	}

	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheets.ValueRange{Values: toValues(rows)}).
		ValueInputOption(inputRaw).
		Context(ctx).
		Do()
	if err != nil {
		return mapError("update "+rng, err)
	}
	return nil
}

// Append inserts row as a new row at the end of table.
func (c *Client) Append(ctx context.Context, table string, row []string) error {
	if err := c.ready(ctx); err != nil {
		return err
	}

	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, table+"!A1", &gsheets.ValueRange{Values: toValues([][]string{row})}).
		ValueInputOption(inputRaw).
		InsertDataOption(insertRows).
		Context(ctx).
		Do()
	if err != nil {
		return mapError("append "+table, err)
	}
	return nil
}

// ready checks that a credential is present and waits for the rate limiter.
func (c *Client) ready(ctx context.Context) error {
	if c.tokens != nil {
		if _, err := c.tokens.Token(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

// mapError turns 401/403 into ErrUnauthorized and wraps anything else.
func mapError(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && (gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden) {
		return fmt.Errorf("%w: %s returned %d", ErrUnauthorized, op, gerr.Code)
	}
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return fmt.Errorf("%w: %s: %v", ErrUnauthorized, op, rerr)
	}
	return fmt.Errorf("sheets %s: %w", op, err)
}

func toRows(values [][]interface{}) [][]string {
	rows := make([][]string, len(values))
	for i, v := range values {
		row := make([]string, len(v))
		for j, c := range v {
			if s, ok := c.(string); ok {
				row[j] = s
			} else if c != nil {
				row[j] = fmt.Sprint(c)
			}
		}
		rows[i] = row
	}
	return rows
}

func toValues(rows [][]string) [][]interface{} {
	values := make([][]interface{}, len(rows))
	for i, r := range rows {
		v := make([]interface{}, len(r))
		for j, c := range r {
			v[j] = c
		}
		values[i] = v
	}
	return values
}
