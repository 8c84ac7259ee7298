package nodegraph

import (
	"net/url"
	"strings"
)

// secureHostSuffix marks hosted pods that are only reachable over TLS.
const secureHostSuffix = ".proxy.runpod.net"

// Endpoint is a normalized node-graph server address.
type Endpoint struct {
	Host   string
	Secure bool
}

// ParseEndpoint strips any scheme the caller supplied and infers TLS from
// the host name.
func ParseEndpoint(raw string) Endpoint {
	host := strings.TrimSpace(raw)
	lower := strings.ToLower(host)
	for _, prefix := range []string{"https://", "http://", "wss://", "ws://"} {
		if strings.HasPrefix(lower, prefix) {
			host = host[len(prefix):]
			break
		}
	}
	host = strings.TrimRight(host, "/")
	if idx := strings.Index(host, "/"); idx >= 0 {
		host = host[:idx]
	}
	name := strings.ToLower(host)
	if idx := strings.LastIndex(name, ":"); idx >= 0 && !strings.HasSuffix(name, "]") {
		name = name[:idx]
	}
	return Endpoint{Host: host, Secure: strings.HasSuffix(name, secureHostSuffix)}
}

// HTTPURL builds a control channel URL.
func (e Endpoint) HTTPURL(path string, query url.Values) string {
	scheme := "http"
	if e.Secure {
		scheme = "https"
	}
	return e.build(scheme, path, query)
}

// WSURL builds an event channel URL.
func (e Endpoint) WSURL(path string, query url.Values) string {
	scheme := "ws"
	if e.Secure {
		scheme = "wss"
	}
	return e.build(scheme, path, query)
}

func (e Endpoint) build(scheme, path string, query url.Values) string {
	u := url.URL{Scheme: scheme, Host: e.Host, Path: path}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}
