package fieldapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// timestampFormat is the naive-UTC layout the survey platform uses in
// submission times and query filters.
const timestampFormat = "2006-01-02T15:04:05"

// ClientError reports a failed survey API call.
type ClientError struct {
	StatusCode int
	Message    string
	URL        string
}

func (e *ClientError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("field api: %s returned %d: %s", e.URL, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("field api: status %d: %s", e.StatusCode, e.Message)
}

// Client wraps the survey platform REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient constructs a client for the given API base URL and access token.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, &ClientError{StatusCode: 0, Message: "response could not be parsed as JSON", URL: u}
	}
	if resp.StatusCode != http.StatusOK {
		var detail struct {
			Detail string `json:"detail"`
		}
		msg := "unexpected error"
		if err := json.Unmarshal(body, &detail); err == nil && detail.Detail != "" {
			msg = detail.Detail
		}
		return nil, &ClientError{StatusCode: resp.StatusCode, Message: msg, URL: u}
	}
	return body, nil
}

// GetFormDefinition fetches the XLSForm definition for a form.
func (c *Client) GetFormDefinition(ctx context.Context, formID int64) (json.RawMessage, error) {
	return c.get(ctx, fmt.Sprintf("/api/v1/forms/%d/form.json", formID), nil)
}

// GetFormSubmissions fetches the submissions for a form newer than since.
// A zero since fetches everything.
func (c *Client) GetFormSubmissions(ctx context.Context, formID int64, since time.Time) ([]json.RawMessage, error) {
	var query url.Values
	if !since.IsZero() {
		filter := fmt.Sprintf(`{"_submission_time": {"$gt": "%s"}}`, since.UTC().Format(timestampFormat))
		query = url.Values{"query": []string{filter}}
	}
	body, err := c.get(ctx, fmt.Sprintf("/api/v1/data/%d.json", formID), query)
	if err != nil {
		return nil, err
	}
	var submissions []json.RawMessage
	if err := json.Unmarshal(body, &submissions); err != nil {
		return nil, &ClientError{StatusCode: 0, Message: "submission list is not a JSON array", URL: c.baseURL}
	}
	return submissions, nil
}
