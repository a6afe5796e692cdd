package supabase

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/riskibarqy/orbito-profiles/internal/domain/profile"
	"github.com/riskibarqy/orbito-profiles/internal/platform/logging"
	"github.com/riskibarqy/orbito-profiles/internal/platform/resilience"
	"github.com/riskibarqy/orbito-profiles/internal/usecase"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultSchema    = "public"
	defaultTable     = "profiles"
	defaultTimeout   = 10 * time.Second
	restPathPrefix   = "/rest/v1/"
	maxResponseBytes = 1 << 20
)

var errSupabaseTransient = crerr.New("supabase transient failure")

type ClientConfig struct {
	HTTPClient     *http.Client
	BaseURL        string
	APIKey         string
	Schema         string
	Table          string
	Timeout        time.Duration
	Logger         *logging.Logger
	CircuitBreaker resilience.CircuitBreakerConfig
}

// Client reads and writes profile rows through the PostgREST API of a
// Supabase project.
type Client struct {
	httpClient *http.Client
	tableURL   string
	apiKey     string
	schema     string
	table      string
	logger     *logging.Logger
	breaker    *resilience.CircuitBreaker
	flight     resilience.SingleFlight
}

func NewClient(cfg ClientConfig) (*Client, error) {
	baseURL, err := validateHTTPBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, crerr.Wrap(err, "invalid SUPABASE_URL")
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, crerr.New("supabase api key is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if httpClient.Timeout <= 0 {
		httpClient.Timeout = defaultTimeout
	}

	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = defaultSchema
	}
	table := strings.TrimSpace(cfg.Table)
	if table == "" {
		table = defaultTable
	}
	breakerCfg := cfg.CircuitBreaker
	if breakerCfg.OnStateChange == nil {
		breakerCfg.OnStateChange = func(from, to resilience.CircuitState) {
			logger.Warn("supabase circuit breaker state changed", "from", string(from), "to", string(to), "table", table)
		}
	}

	return &Client{
		httpClient: httpClient,
		tableURL:   baseURL + restPathPrefix + url.PathEscape(table),
		apiKey:     apiKey,
		schema:     schema,
		table:      table,
		logger:     logger,
		breaker:    resilience.NewCircuitBreaker(breakerCfg),
	}, nil
}

// GetByID runs SELECT * FROM <table> WHERE id = <id> LIMIT 1.
func (c *Client) GetByID(ctx context.Context, id string) (profile.Record, bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return profile.Record{}, false, fmt.Errorf("%w: id is required", usecase.ErrInvalidInput)
	}

	query := url.Values{}
	query.Set("select", "*")
	query.Set("id", "eq."+id)
	query.Set("limit", "1")

	var rows []profileRow
	if err := c.doJSON(ctx, http.MethodGet, query, nil, nil, &rows); err != nil {
		return profile.Record{}, false, crerr.Wrapf(err, "select %s id=%s", c.table, id)
	}
	if len(rows) == 0 {
		return profile.Record{}, false, nil
	}

	rec, err := rows[0].toRecord()
	if err != nil {
		return profile.Record{}, false, crerr.Wrapf(err, "decode %s row id=%s", c.table, id)
	}
	return rec, true, nil
}

// Insert posts rec and returns the first row PostgREST echoes back.
// In InsertModeIgnoreDuplicates a conflicting id yields an empty echo.
func (c *Client) Insert(ctx context.Context, rec profile.Record, mode profile.InsertMode) (profile.Record, bool, error) {
	if strings.TrimSpace(rec.ID) == "" {
		return profile.Record{}, false, fmt.Errorf("%w: id is required", usecase.ErrInvalidInput)
	}

	body, err := sonic.Marshal(newProfileRow(rec))
	if err != nil {
		return profile.Record{}, false, crerr.Wrap(err, "marshal profile row")
	}

	query := url.Values{}
	prefer := "return=representation"
	if mode == profile.InsertModeIgnoreDuplicates {
		query.Set("on_conflict", "id")
		prefer = "resolution=ignore-duplicates,return=representation"
	}

	var rows []profileRow
	if err := c.doJSON(ctx, http.MethodPost, query, body, map[string]string{"Prefer": prefer}, &rows); err != nil {
		return profile.Record{}, false, crerr.Wrapf(err, "insert %s id=%s", c.table, rec.ID)
	}
	if len(rows) == 0 {
		return profile.Record{}, false, nil
	}

	created, err := rows[0].toRecord()
	if err != nil {
		return profile.Record{}, false, crerr.Wrapf(err, "decode inserted %s row id=%s", c.table, rec.ID)
	}
	return created, true, nil
}

func (c *Client) doJSON(
	ctx context.Context,
	method string,
	query url.Values,
	body []byte,
	headers map[string]string,
	target any,
) error {
	fullURL := c.tableURL
	if encoded := query.Encode(); encoded != "" {
		fullURL += "?" + encoded
	}

	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(
			attribute.String("supabase.table", c.table),
			attribute.String("supabase.method", method),
			attribute.String("supabase.url", fullURL),
		)
	}
	c.logger.DebugContext(ctx, "supabase request",
		"method", method,
		"table", c.table,
		"curl_preview", buildCurlPreview(method, fullURL, headers, body),
	)

	// Admission is checked once per request, not once per deduplicated caller.
	run := func() (any, error) {
		if err := c.breaker.Allow(); err != nil {
			c.logger.WarnContext(ctx, "supabase circuit breaker rejected request", "state", string(c.breaker.State()))
			return nil, fmt.Errorf("%w: %w: supabase is temporarily unavailable", usecase.ErrDependencyUnavailable, err)
		}
		raw, reqErr := c.executeRequest(ctx, method, fullURL, body, headers)
		c.breaker.Record(reqErr, isCircuitFailure)
		return raw, reqErr
	}

	var (
		out any
		err error
	)
	if method == http.MethodGet {
		out, err, _ = c.flight.Do(method+" "+fullURL, run)
	} else {
		out, err = run()
	}
	if err != nil {
		return err
	}

	raw, ok := out.([]byte)
	if !ok {
		return crerr.Newf("unexpected response payload type %T", out)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(raw, target); err != nil {
		return crerr.Wrapf(err, "decode supabase payload body=%s", abbreviateBody(raw))
	}

	return nil
}

func (c *Client) executeRequest(ctx context.Context, method, fullURL string, body []byte, headers map[string]string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, crerr.Wrap(err, "build supabase request")
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.schema != defaultSchema {
		if method == http.MethodGet {
			req.Header.Set("Accept-Profile", c.schema)
		} else {
			req.Header.Set("Content-Profile", c.schema)
		}
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, crerr.Wrap(ctxErr, "supabase request cancelled")
		}
		return nil, fmt.Errorf("%w: %w: send request: %s",
			usecase.ErrDependencyUnavailable,
			errSupabaseTransient,
			sanitizeSensitiveText(err.Error(), c.apiKey),
		)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %w: read response body: %v", usecase.ErrDependencyUnavailable, errSupabaseTransient, err)
	}

	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(attribute.Int("supabase.status_code", resp.StatusCode))
	}

	if resp.StatusCode/100 != 2 {
		callErr := classifyErrorResponse(resp.StatusCode, raw)
		c.logger.WarnContext(ctx, "supabase request failed",
			"method", method,
			"table", c.table,
			"status_code", resp.StatusCode,
			"error", callErr,
		)
		return nil, callErr
	}

	return raw, nil
}

// classifyErrorResponse maps a PostgREST error reply onto the use-case error taxonomy.
func classifyErrorResponse(statusCode int, raw []byte) error {
	apiErr := decodeAPIError(raw)
	detail := apiErr.describe(raw)

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: supabase status=%d: %s", usecase.ErrUnauthorized, statusCode, detail)
	case statusCode == http.StatusConflict || apiErr.Code == pgUniqueViolation:
		return fmt.Errorf("%w: supabase status=%d: %s", usecase.ErrConflict, statusCode, detail)
	case isRetryableStatus(statusCode):
		return fmt.Errorf("%w: %w: supabase status=%d: %s", usecase.ErrDependencyUnavailable, errSupabaseTransient, statusCode, detail)
	default:
		return crerr.Newf("supabase status=%d: %s", statusCode, detail)
	}
}

func isCircuitFailure(err error) bool {
	if err == nil {
		return false
	}
	return stderrors.Is(err, errSupabaseTransient)
}

func isRetryableStatus(statusCode int) bool {
	return statusCode == http.StatusRequestTimeout ||
		statusCode == http.StatusTooManyRequests ||
		statusCode >= http.StatusInternalServerError
}
