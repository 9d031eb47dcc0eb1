package files

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"syscall"
	"time"
	"unicode/utf8"

	"issuewiz/config"

	"github.com/sirupsen/logrus"
)

// TruncationMarker is appended to excerpts that were cut short.
const TruncationMarker = "\n... (content truncated)"

var (
	// ErrUnsupportedURL is returned for anything but absolute http(s) URLs.
	ErrUnsupportedURL = errors.New("download url must be an absolute http or https url")
	// ErrBinaryContent is returned when the file looks binary.
	ErrBinaryContent = errors.New("file appears to be binary")
	// ErrForbiddenHost is returned when a download would reach a loopback,
	// private, link-local or otherwise internal address.
	ErrForbiddenHost = errors.New("download url resolves to a non-public address")
)

// Fetcher downloads candidate files and reduces them to prompt-sized excerpts.
type Fetcher struct {
	client      *http.Client
	maxReadSize int64
	maxChars    int
}

// NewFetcher creates a Fetcher. A nil client gets one with cfg.FetchTimeout
// that refuses non-public addresses unless cfg.AllowPrivateHosts is set.
func NewFetcher(cfg config.AnalysisConfig, client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: cfg.FetchTimeout}
		if !cfg.AllowPrivateHosts {
			client.Transport = publicOnlyTransport()
		}
	}
	return &Fetcher{
		client:      client,
		maxReadSize: cfg.MaxFileReadSize,
		maxChars:    cfg.MaxCharsPerFile,
	}
}

// Fetch downloads rawURL and returns an excerpt of at most maxChars runes,
// followed by TruncationMarker when the file was longer.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedURL, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetching %s: unexpected status %s", rawURL, resp.Status)
	}

	// Read one byte past the limit to know whether the file was cut.
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxReadSize+1))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", rawURL, err)
	}
	if int64(len(body)) > f.maxReadSize {
		logrus.Warnf("File %s exceeds %d bytes. Reading partially.", rawURL, f.maxReadSize)
		body = body[:f.maxReadSize]
	}

	head := body
	if len(head) > 1024 {
		head = head[:1024]
	}
	if bytes.IndexByte(head, 0) >= 0 {
		return "", ErrBinaryContent
	}

	return Excerpt(string(body), f.maxChars), nil
}

// publicOnlyTransport checks the resolved address at dial time, so
// redirects and DNS names pointing inside the network are refused too.
func publicOnlyTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout: 30 * time.Second,
		Control: func(network, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return err
			}
			ip, err := netip.ParseAddr(host)
			if err != nil || !isPublic(ip) {
				return fmt.Errorf("%w: %s", ErrForbiddenHost, host)
			}
			return nil
		},
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext
	return transport
}

func isPublic(ip netip.Addr) bool {
	ip = ip.Unmap()
	return ip.IsGlobalUnicast() && !ip.IsPrivate() && !ip.IsLoopback() && !ip.IsLinkLocalUnicast()
}

// Excerpt cuts content to maxChars runes, marking the cut.
func Excerpt(content string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(content) <= maxChars {
		return content
	}
	runes := []rune(content)
	return string(runes[:maxChars]) + TruncationMarker
}
