package observability

import (
	"net/http"
	"net/url"
	"time"

	sentryhttpclient "github.com/getsentry/sentry-go/httpclient"
)

// NewHTTPClient returns a client whose requests to the hosts of tracedURLs get
// sentry http.client spans and trace headers. Requests elsewhere pass through
// untouched, so trace headers never reach hosts we did not name.
func NewHTTPClient(timeout time.Duration, tracedURLs ...string) *http.Client {
	client := &http.Client{
		Transport: sentryhttpclient.NewSentryRoundTripper(
			http.DefaultTransport,
			sentryhttpclient.WithTracePropagationTargets(tracedHosts(tracedURLs)),
		),
	}
	if timeout > 0 {
		client.Timeout = timeout
	}
	return client
}

func tracedHosts(rawURLs []string) []string {
	hosts := make([]string, 0, len(rawURLs))
	for _, raw := range rawURLs {
		parsed, err := url.Parse(raw)
		if err != nil || parsed.Host == "" {
			continue
		}
		hosts = append(hosts, parsed.Host)
	}
	return hosts
}
