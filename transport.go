package revolt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"
)

// Transport is the REST collaborator the cache talks to. Implementations
// must be safe for concurrent use.
type Transport interface {
	GetChannel(ctx context.Context, channelID string) (APIChannel, error)
	GetMessage(ctx context.Context, channelID, messageID string) (APIMessage, error)
	PostMessage(ctx context.Context, channelID string, req SendMessageRequest) (APIMessage, error)
	DeleteChannel(ctx context.Context, channelID string) error
	GetUser(ctx context.Context, userID string) (APIUser, error)
}

const (
	sessionTokenHeader = "X-Session-Token"
	botTokenHeader     = "X-Bot-Token"
)

// HTTPTransport implements Transport over the REST API.
type HTTPTransport struct {
	baseURL     string
	token       string
	tokenHeader string
	httpClient  *http.Client
	limiter     *rate.Limiter
}

// NewHTTPTransport creates a transport authenticating with a session token.
func NewHTTPTransport(baseURL, token string, httpClient *http.Client) *HTTPTransport {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &HTTPTransport{
		baseURL:     baseURL,
		token:       strings.TrimSpace(token),
		tokenHeader: sessionTokenHeader,
		httpClient:  httpClient,
	}
}

func (t *HTTPTransport) GetChannel(ctx context.Context, channelID string) (APIChannel, error) {
	data, err := t.doRequest(ctx, http.MethodGet, "/channels/"+url.PathEscape(channelID), nil)
	if err != nil {
		return APIChannel{}, err
	}
	ch, err := decodeJSON[APIChannel](data)
	if err != nil {
		return APIChannel{}, transportError("get channel", err)
	}
	return *ch, nil
}

func (t *HTTPTransport) GetMessage(ctx context.Context, channelID, messageID string) (APIMessage, error) {
	path := "/channels/" + url.PathEscape(channelID) + "/messages/" + url.PathEscape(messageID)
	data, err := t.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return APIMessage{}, err
	}
	msg, err := decodeJSON[APIMessage](data)
	if err != nil {
		return APIMessage{}, transportError("get message", err)
	}
	return *msg, nil
}

func (t *HTTPTransport) PostMessage(ctx context.Context, channelID string, req SendMessageRequest) (APIMessage, error) {
	data, err := t.doRequest(ctx, http.MethodPost, "/channels/"+url.PathEscape(channelID)+"/messages", req)
	if err != nil {
		return APIMessage{}, err
	}
	msg, err := decodeJSON[APIMessage](data)
	if err != nil {
		return APIMessage{}, transportError("post message", err)
	}
	return *msg, nil
}

func (t *HTTPTransport) DeleteChannel(ctx context.Context, channelID string) error {
	_, err := t.doRequest(ctx, http.MethodDelete, "/channels/"+url.PathEscape(channelID), nil)
	return err
}

func (t *HTTPTransport) GetUser(ctx context.Context, userID string) (APIUser, error) {
	data, err := t.doRequest(ctx, http.MethodGet, "/users/"+url.PathEscape(userID), nil)
	if err != nil {
		return APIUser{}, err
	}
	u, err := decodeJSON[APIUser](data)
	if err != nil {
		return APIUser{}, transportError("get user", err)
	}
	return *u, nil
}

// ============================================================================
// Internal request helper
// ============================================================================

func (t *HTTPTransport) doRequest(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	op := method + " " + path
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, transportError(op, err)
		}
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if t.token != "" {
		req.Header.Set(t.tokenHeader, t.token)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, transportError(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		httpErr := &HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var envelope apiErrorBody
		if json.Unmarshal(data, &envelope) == nil && envelope.Type != "" {
			httpErr.Type = envelope.Type
			httpErr.Message = envelope.Message
		}
		return nil, fmt.Errorf("%s: %w", op, httpErr)
	}
	return data, nil
}

func decodeJSON[T any](data []byte) (*T, error) {
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}
