// Package fetch retrieves page HTML with a browser-like TLS fingerprint.
// Sites behind bot detection reject Go's default TLS ClientHello; dialing
// with utls and routing by negotiated ALPN gets past most of them.
package fetch

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// DefaultUserAgent matches the utls Firefox fingerprint used below.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:133.0) Gecko/20100101 Firefox/133.0"

// MaxResponseBytes is the maximum number of bytes read from any single
// response body. Responses exceeding it are rejected. 0 means unlimited.
var MaxResponseBytes int64 = 128 * 1024 * 1024

// ProxyURL is the HTTP proxy URL for all outgoing requests.
// When set, requests use standard TLS instead of the browser fingerprint
// so the request can tunnel through the proxy. Set by the -proxy CLI flag.
var ProxyURL string

// NewProxyClient creates an HTTP client that routes through the given proxy
// address using standard TLS (uTLS cannot negotiate CONNECT tunnels). An
// empty proxyAddr yields a direct standard-TLS client.
func NewProxyClient(proxyAddr string, timeout time.Duration) *http.Client {
	transport := &http.Transport{
		DialContext: safeDialContext(&net.Dialer{Timeout: timeout}),
	}
	if proxyAddr != "" {
		if proxyURL, err := url.Parse(proxyAddr); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// readLimited reads up to limit bytes from r, rejecting longer bodies.
// limit 0 reads without bound.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	// Read limit+1 bytes so overflow is detectable without a custom reader.
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("response body exceeds maximum allowed size (%d bytes)", limit)
	}
	return data, nil
}

// utlsConn wraps a utls.UConn and satisfies net.Conn plus the
// ConnectionState interface net/http2 needs.
type utlsConn struct {
	*utls.UConn
}

func (c *utlsConn) ConnectionState() tls.ConnectionState {
	cs := c.UConn.ConnectionState()
	return tls.ConnectionState{
		Version:                    cs.Version,
		HandshakeComplete:          cs.HandshakeComplete,
		CipherSuite:                cs.CipherSuite,
		NegotiatedProtocol:         cs.NegotiatedProtocol,
		NegotiatedProtocolIsMutual: cs.NegotiatedProtocolIsMutual,
		ServerName:                 cs.ServerName,
		PeerCertificates:           cs.PeerCertificates,
		VerifiedChains:             cs.VerifiedChains,
		OCSPResponse:               cs.OCSPResponse,
		TLSUnique:                  cs.TLSUnique,
	}
}

// NewBrowserClient creates an HTTP client that mimics a real browser's TLS
// fingerprint. Supports both HTTP/1.1 and HTTP/2.
func NewBrowserClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: timeout}
	rt := &browserTransport{
		dialer: dialer,
		h1: &http.Transport{
			DialContext: safeDialContext(dialer),
		},
		h2: &http2.Transport{},
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: rt,
	}
}

// NewImageClient returns the HTTP client for downloading page images.
// When a proxy is configured, uses a standard-TLS proxy-aware client;
// otherwise image requests carry the same browser TLS fingerprint as page
// fetches, since image CDNs sit behind the same bot detection.
func NewImageClient(timeout time.Duration) *http.Client {
	if ProxyURL != "" {
		return NewProxyClient(ProxyURL, timeout)
	}
	return NewBrowserClient(timeout)
}

// browserTransport dials with utls and routes to an h1 or h2 transport
// based on ALPN negotiation.
type browserTransport struct {
	dialer *net.Dialer
	h1     *http.Transport
	h2     *http2.Transport
}

func (bt *browserTransport) dialUTLS(ctx context.Context, network, addr string) (net.Conn, string, error) {
	conn, err := safeDialContext(bt.dialer)(ctx, network, addr)
	if err != nil {
		return nil, "", err
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	tlsConn := utls.UClient(conn, &utls.Config{
		ServerName: host,
	}, utls.HelloFirefox_120)

	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, "", err
	}

	alpn := tlsConn.ConnectionState().NegotiatedProtocol
	return &utlsConn{tlsConn}, alpn, nil
}

func (bt *browserTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return bt.h1.RoundTrip(req)
	}

	addr := req.URL.Host
	if !hasPort(addr) {
		addr = addr + ":443"
	}

	conn, alpn, err := bt.dialUTLS(req.Context(), "tcp", addr)
	if err != nil {
		return nil, err
	}

	if alpn == "h2" {
		h2conn, err := bt.h2.NewClientConn(conn)
		if err != nil {
			conn.Close()
			return nil, err
		}
		return h2conn.RoundTrip(req)
	}

	// HTTP/1.1: inject the TLS conn into a one-shot transport.
	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return conn, nil
		},
	}
	return transport.RoundTrip(req)
}

func hasPort(host string) bool {
	_, _, err := net.SplitHostPort(host)
	return err == nil
}

// HTML downloads a URL and returns the body and parsed URL. Browser-like
// headers go out alongside the TLS fingerprint. Non-2xx statuses are
// errors.
func HTML(rawURL string, timeout time.Duration, userAgent string) ([]byte, *url.URL, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}

	var client *http.Client
	switch {
	case ProxyURL != "":
		// Proxies need standard TLS so the request can tunnel through
		// CONNECT (uTLS cannot negotiate the tunnel).
		client = NewProxyClient(ProxyURL, timeout)
	case parsed.Scheme == "https":
		client = NewBrowserClient(timeout)
	default:
		client = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: safeDialContext(&net.Dialer{Timeout: timeout}),
			},
		}
	}

	req, err := http.NewRequest("GET", rawURL, nil)
	if err != nil {
		return nil, nil, err
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "none")

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, fmt.Errorf("HTTP %d for %s", resp.StatusCode, rawURL)
	}

	body, err := readLimited(resp.Body, MaxResponseBytes)
	if err != nil {
		return nil, nil, fmt.Errorf("reading response: %w", err)
	}
	return body, parsed, nil
}
