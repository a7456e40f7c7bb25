package sheets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/aTylerRobertson/sheet-posting/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// example export call, returns the sheet content as CSV:
// https://docs.google.com/spreadsheets/d/<spreadsheet-id>/gviz/tq?tqx=out:csv&sheet=Posts

const DefaultBaseURL = "https://docs.google.com"

// FetchError covers transport failures, non-2xx responses and
// identifiers that do not resolve to a published spreadsheet.
type FetchError struct {
	SpreadsheetID string
	StatusCode    int
	Err           error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch spreadsheet [%s]: unexpected status %d", e.SpreadsheetID, e.StatusCode)
	}
	return fmt.Sprintf("fetch spreadsheet [%s]: %s", e.SpreadsheetID, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Client fetches the public CSV export of a published Google spreadsheet.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

// Fetch returns the raw CSV content of a single named sheet (tab).
// One outbound call per invocation, no retries; the caching layer
// decides when a fetch happens at all.
func (c *Client) Fetch(ctx context.Context, spreadsheetID, sheet string) (raw string, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "sheets.fetch")
	span.SetAttributes(attribute.String("spreadsheet.id", spreadsheetID))
	span.SetAttributes(attribute.String("spreadsheet.sheet", sheet))
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if spreadsheetID == "" {
		return "", &FetchError{Err: fmt.Errorf("empty spreadsheet id")}
	}

	exportUrl := fmt.Sprintf(
		"%s/spreadsheets/d/%s/gviz/tq?tqx=out:csv&sheet=%s",
		c.baseURL, url.PathEscape(spreadsheetID), url.QueryEscape(sheet),
	)
	log.Debugf("calling sheets export: %s", exportUrl)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, exportUrl, nil)
	if err != nil {
		return "", &FetchError{SpreadsheetID: spreadsheetID, Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &FetchError{SpreadsheetID: spreadsheetID, Err: fmt.Errorf("http client do: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &FetchError{SpreadsheetID: spreadsheetID, StatusCode: resp.StatusCode}
	}

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &FetchError{SpreadsheetID: spreadsheetID, Err: fmt.Errorf("read export response bytes: %w", err)}
	}

	return string(respBytes), nil
}
