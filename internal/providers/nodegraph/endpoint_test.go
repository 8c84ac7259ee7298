package nodegraph

import (
	"net/url"
	"testing"
)

func TestParseEndpoint(t *testing.T) {
	cases := []struct {
		raw  string
		want Endpoint
	}{
		{"127.0.0.1:8188", Endpoint{Host: "127.0.0.1:8188"}},
		{"http://127.0.0.1:8188/", Endpoint{Host: "127.0.0.1:8188"}},
		{" ws://gpu-box:8188/ws ", Endpoint{Host: "gpu-box:8188"}},
		{"https://abc123-8188.proxy.runpod.net", Endpoint{Host: "abc123-8188.proxy.runpod.net", Secure: true}},
		{"abc123-8188.proxy.runpod.net:443", Endpoint{Host: "abc123-8188.proxy.runpod.net:443", Secure: true}},
	}
	for _, tc := range cases {
		if got := ParseEndpoint(tc.raw); got != tc.want {
			t.Fatalf("ParseEndpoint(%q) = %+v, want %+v", tc.raw, got, tc.want)
		}
	}
}

func TestEndpointURLs(t *testing.T) {
	plain := Endpoint{Host: "127.0.0.1:8188"}
	if got := plain.HTTPURL("/prompt", nil); got != "http://127.0.0.1:8188/prompt" {
		t.Fatalf("HTTPURL = %q", got)
	}
	if got := plain.WSURL("/ws", url.Values{"clientId": {"42"}}); got != "ws://127.0.0.1:8188/ws?clientId=42" {
		t.Fatalf("WSURL = %q", got)
	}
	secure := Endpoint{Host: "pod.proxy.runpod.net", Secure: true}
	if got := secure.HTTPURL("/history/x", nil); got != "https://pod.proxy.runpod.net/history/x" {
		t.Fatalf("HTTPURL = %q", got)
	}
	if got := secure.WSURL("/ws", nil); got != "wss://pod.proxy.runpod.net/ws" {
		t.Fatalf("WSURL = %q", got)
	}
}
