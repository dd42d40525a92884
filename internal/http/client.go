package http

import (
	"crypto/tls"
	nethttp "net/http"
	"os"

	"golang.org/x/net/http2"

	"github.com/taxdesk/taxdesk/internal/config"
	"github.com/taxdesk/taxdesk/internal/constants"
)

// CreateUploadClient creates an HTTP client for multipart document uploads with proxy support.
//
// Differences from the JSON API client:
//   - no overall timeout; each upload bounds itself with a context deadline
//   - compression disabled (documents are mostly PDFs and images)
//   - HTTP/2 negotiated when no proxy is in the path (DISABLE_HTTP2=true forces HTTP/1.1)
//
// If cfg is nil, proxy settings are read from environment variables.
func CreateUploadClient(cfg *config.Config) (*nethttp.Client, error) {
	var baseClient *nethttp.Client
	var err error

	if cfg != nil {
		baseClient, err = ConfigureHTTPClient(cfg)
		if err != nil {
			return nil, err
		}
	} else {
		tr := newBaseTransport()
		tr.Proxy = nethttp.ProxyFromEnvironment
		baseClient = &nethttp.Client{Transport: tr}
	}

	tr, ok := baseClient.Transport.(*nethttp.Transport)
	if !ok {
		// NTLM wraps the transport in ntlmssp.Negotiator; leave it alone
		baseClient.Timeout = 0
		return baseClient, nil
	}

	tr.MaxIdleConnsPerHost = constants.MaxUploadWorkers
	tr.MaxConnsPerHost = constants.MaxUploadWorkers * 2
	tr.IdleConnTimeout = constants.HTTPIdleConnTimeout
	tr.DisableCompression = true
	tr.ForceAttemptHTTP2 = true

	_ = http2.ConfigureTransport(tr)

	if os.Getenv("DISABLE_HTTP2") == "true" || (proxyActive(cfg) && os.Getenv("FORCE_HTTP2") != "true") {
		// Proxies often break HTTP/2 multiplexing mid-transfer
		tr.ForceAttemptHTTP2 = false
		tr.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
	}

	baseClient.Transport = tr
	baseClient.Timeout = 0

	return baseClient, nil
}

func proxyActive(cfg *config.Config) bool {
	envProxy := os.Getenv("HTTP_PROXY") != "" || os.Getenv("HTTPS_PROXY") != "" ||
		os.Getenv("http_proxy") != "" || os.Getenv("https_proxy") != ""
	if cfg == nil {
		return envProxy
	}
	switch cfg.ProxyMode {
	case config.ProxyModeNone, "":
		return false
	case config.ProxyModeSystem:
		return envProxy
	default:
		return true
	}
}
