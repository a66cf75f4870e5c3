// Package util holds small shared helpers with no better home.
package util

import (
	"context"
	"net"
	"net/http"
	"net/url"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"
)

// NewHTTPClient builds an HTTP client honoring an optional proxy URL.
// SOCKS5 and HTTP(S) proxies are supported; an empty or unparsable proxy URL
// yields a plain client.
func NewHTTPClient(proxyURL string) *http.Client {
	if proxyURL == "" {
		return &http.Client{}
	}
	parsed, err := url.Parse(proxyURL)
	if err != nil {
		log.Warnf("invalid proxy url %q: %v", proxyURL, err)
		return &http.Client{}
	}

	var transport *http.Transport
	switch parsed.Scheme {
	case "socks5":
		username := parsed.User.Username()
		password, _ := parsed.User.Password()
		var auth *proxy.Auth
		if username != "" {
			auth = &proxy.Auth{User: username, Password: password}
		}
		dialer, errSOCKS5 := proxy.SOCKS5("tcp", parsed.Host, auth, proxy.Direct)
		if errSOCKS5 != nil {
			log.Warnf("create SOCKS5 dialer failed: %v", errSOCKS5)
			return &http.Client{}
		}
		transport = &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			},
		}
	case "http", "https":
		transport = &http.Transport{Proxy: http.ProxyURL(parsed)}
	default:
		log.Warnf("unsupported proxy scheme %q", parsed.Scheme)
		return &http.Client{}
	}

	return &http.Client{Transport: transport}
}
