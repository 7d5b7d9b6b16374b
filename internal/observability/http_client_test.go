package observability

import (
	"reflect"
	"testing"
	"time"
)

func TestTracedHosts(t *testing.T) {
	t.Parallel()

	got := tracedHosts([]string{
		"https://dev-online-gateway.ghn.vn/shiip/public-api/v2",
		"https://api.postmarkapp.com",
		"not a url",
		"",
	})
	want := []string{"dev-online-gateway.ghn.vn", "api.postmarkapp.com"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("tracedHosts() = %v, want %v", got, want)
	}
}

func TestNewHTTPClientTimeout(t *testing.T) {
	t.Parallel()

	if got := NewHTTPClient(3 * time.Second).Timeout; got != 3*time.Second {
		t.Fatalf("Timeout = %v, want 3s", got)
	}
	if got := NewHTTPClient(0).Timeout; got != 0 {
		t.Fatalf("Timeout = %v, want none", got)
	}
}
