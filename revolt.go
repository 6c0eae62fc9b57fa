// Package revolt provides a client-side entity cache for the Revolt chat API.
//
// The cache keeps one live instance per remote channel, message and user,
// reconciles partial updates into those instances, resolves the users a
// channel references, and emits typed events as the cache changes.
//
// Example:
//
//	client := revolt.NewClient(token, revolt.WithBot(true))
//	client.On(revolt.EventChannelMutation, func(ev revolt.Event) {
//		m := ev.(revolt.ChannelMutated)
//		log.Println("channel changed:", m.Channel.ID())
//	})
//
//	ch, _ := client.FetchChannel(ctx, "01H...")
//	ch.SendMessage(ctx, "Hello!", "")
//
//	// Feed server pushes into the same cache.
//	stream := client.Stream(revolt.StreamConfig{AutoReconnect: true})
//	stream.Connect(ctx)
package revolt

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL      = "https://api.revolt.chat"
	DefaultWebSocketURL = "wss://ws.revolt.chat"
	DefaultTimeout      = 30 * time.Second
)

// ============================================================================
// Client
// ============================================================================

// Client owns the registry, the event emitter and the transport. It is safe
// for concurrent use.
type Client struct {
	token      string
	baseURL    string
	wsURL      string
	bot        bool
	httpClient *http.Client
	limiter    *rate.Limiter
	transport  Transport
	log        zerolog.Logger
	metricsReg prometheus.Registerer
	coalesce   bool

	metrics  *cacheMetrics
	flight   singleflight.Group
	registry *Registry
	events   *emitter
}

type ClientOption func(*Client)

func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithWebSocketURL sets the push endpoint used by Stream.
func WithWebSocketURL(url string) ClientOption {
	return func(c *Client) { c.wsURL = strings.TrimRight(url, "/") }
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

// WithBot authenticates with a bot token instead of a session token.
func WithBot(bot bool) ClientOption {
	return func(c *Client) { c.bot = bot }
}

func WithLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// WithTransport replaces the HTTP transport, e.g. with a test double.
func WithTransport(t Transport) ClientOption {
	return func(c *Client) { c.transport = t }
}

// WithRateLimit throttles outgoing REST requests.
func WithRateLimit(limit rate.Limit, burst int) ClientOption {
	return func(c *Client) { c.limiter = rate.NewLimiter(limit, burst) }
}

// WithMetrics registers cache metrics with reg.
func WithMetrics(reg prometheus.Registerer) ClientOption {
	return func(c *Client) { c.metricsReg = reg }
}

// WithFetchCoalescing makes concurrent first-time fetches of the same id
// share a single remote call and a single instance. Without it two
// overlapping fetches of an unknown id may both construct an instance and
// the later registration wins.
func WithFetchCoalescing() ClientOption {
	return func(c *Client) { c.coalesce = true }
}

// NewClient creates a new client. token may be empty when a custom
// transport handles authentication.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		token:   token,
		baseURL: DefaultBaseURL,
		wsURL:   DefaultWebSocketURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		log: zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.metricsReg != nil {
		c.metrics = newCacheMetrics(c.metricsReg)
	}
	if c.transport == nil {
		t := NewHTTPTransport(c.baseURL, c.token, c.httpClient)
		if c.bot {
			t.tokenHeader = botTokenHeader
		}
		t.limiter = c.limiter
		c.transport = t
	}
	c.registry = newRegistry(c.metrics)
	c.events = newEmitter(c.log, c.metrics)
	return c
}

// Registry returns the live entity store.
func (c *Client) Registry() *Registry {
	return c.registry
}

// On registers a handler for one event kind.
func (c *Client) On(kind EventKind, h EventHandler) {
	c.events.on(kind, h)
}

// OnAny registers a handler for every event kind.
func (c *Client) OnAny(h EventHandler) {
	c.events.onAny(h)
}

// RemoveAllListeners drops every registered event handler.
func (c *Client) RemoveAllListeners() {
	c.events.removeAll()
}

// coalesced runs fn directly, or through the singleflight group when fetch
// coalescing is enabled.
func (c *Client) coalesced(key string, fn func() (interface{}, error)) (interface{}, error) {
	if !c.coalesce {
		return fn()
	}
	v, err, _ := c.flight.Do(key, fn)
	return v, err
}
