package provider

import (
	"net/http"
	"strings"
)

// Option configures a provider.
type Option func(*options)

type options struct {
	client  *http.Client
	baseURL string
	headers map[string]string
}

func newOptions(defaultBaseURL string, opts []Option) options {
	// Streams are bounded by the caller's context, not by a client timeout.
	o := options{
		client:  &http.Client{},
		baseURL: defaultBaseURL,
		headers: map[string]string{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.baseURL = strings.TrimRight(o.baseURL, "/")
	return o
}

// WithBaseURL points the provider at another endpoint, e.g. a test server.
func WithBaseURL(baseURL string) Option {
	return func(o *options) {
		if baseURL != "" {
			o.baseURL = baseURL
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		if client != nil {
			o.client = client
		}
	}
}

// WithHeader adds a static header to every request. Empty values are ignored.
func WithHeader(key, value string) Option {
	return func(o *options) {
		if value != "" {
			o.headers[key] = value
		}
	}
}
