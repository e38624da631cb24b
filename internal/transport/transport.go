// Package transport issues authenticated ActiveSync HTTP requests and
// classifies their outcomes. It performs no retries itself; retry policy
// belongs to the command executor.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/DedovMosol/IwoMailClient-sub004/internal/errs"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/model"
	"github.com/DedovMosol/IwoMailClient-sub004/internal/proto"
)

const endpointPath = "/Microsoft-Server-ActiveSync"

const contentType = "application/vnd.ms-sync.wbxml"

// Config holds the per-account transport settings.
type Config struct {
	Host string
	Port int

	TLSMode model.TLSMode

	// PinnedCertPEM is the trusted certificate when TLSMode is
	// TLSPinned.
	PinnedCertPEM []byte

	Username string
	Password string

	DeviceID   string
	DeviceType string

	// ConnectTimeout bounds dialing; ReadTimeout bounds the whole
	// request unless the caller overrides it per request (the push
	// channel's long poll does).
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// Request is one outbound command.
type Request struct {
	// Command is the Cmd= query value, e.g. "Sync".
	Command string

	// PolicyKey is sent as X-MS-PolicyKey when non-empty.
	PolicyKey string

	// Body is the encoded WBXML payload.
	Body []byte

	// Timeout overrides the client's read timeout for this request
	// when positive. The push channel uses this for its long poll.
	Timeout time.Duration
}

// Response is a completed HTTP exchange. Status is always set; Body may
// be empty (e.g. on 449 provisioning demands).
type Response struct {
	Status int
	Body   []byte
}

// Client sends ActiveSync requests for one account.
type Client struct {
	cfg  Config
	http *http.Client
	base *url.URL
	log  *logrus.Logger
}

// NewClient builds a transport for the given configuration.
func NewClient(cfg Config, log *logrus.Logger) (*Client, error) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if log == nil {
		log = logrus.New()
	}

	tlsConfig, err := tlsConfigFor(cfg)
	if err != nil {
		return nil, err
	}

	base := &url.URL{
		Scheme: "https",
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:   endpointPath,
	}

	return &Client{
		cfg: cfg,
		http: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: cfg.ConnectTimeout,
				}).DialContext,
				TLSClientConfig:     tlsConfig,
				TLSHandshakeTimeout: cfg.ConnectTimeout,
			},
		},
		base: base,
		log:  log,
	}, nil
}

// tlsConfigFor builds the TLS configuration for the selected trust mode.
func tlsConfigFor(cfg Config) (*tls.Config, error) {
	switch cfg.TLSMode {
	case model.TLSSystem, "":
		return &tls.Config{MinVersion: tls.VersionTLS12}, nil

	case model.TLSPinned:
		if len(cfg.PinnedCertPEM) == 0 {
			return nil, fmt.Errorf("pinned trust mode without a certificate")
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(cfg.PinnedCertPEM) {
			return nil, fmt.Errorf("pinned certificate is not valid PEM")
		}
		return &tls.Config{MinVersion: tls.VersionTLS12, RootCAs: pool}, nil

	case model.TLSInsecure:
		// Explicit opt-in only; never a default.
		return &tls.Config{InsecureSkipVerify: true}, nil

	default:
		return nil, fmt.Errorf("unknown TLS mode %q", cfg.TLSMode)
	}
}

// Send issues one command request and classifies the outcome. Network,
// TLS, and timeout failures come back as transport errors; any HTTP
// response, success or not, comes back as a Response for the executor to
// interpret.
func (c *Client) Send(ctx context.Context, req Request) (*Response, error) {
	timeout := c.cfg.ReadTimeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	q := url.Values{}
	q.Set("Cmd", req.Command)
	q.Set("User", c.cfg.Username)
	q.Set("DeviceId", c.cfg.DeviceID)
	q.Set("DeviceType", c.cfg.DeviceType)

	u := *c.base
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(req.Body))
	if err != nil {
		return nil, errs.Transport(req.Command, false, err)
	}

	httpReq.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("MS-ASProtocolVersion", proto.ProtocolVersion)
	if req.PolicyKey != "" {
		httpReq.Header.Set("X-MS-PolicyKey", req.PolicyKey)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, classifySendError(req.Command, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Transport(req.Command, true, fmt.Errorf("reading response body: %w", err))
	}

	c.log.WithFields(logrus.Fields{
		"cmd":      req.Command,
		"status":   resp.StatusCode,
		"bytes":    len(body),
		"duration": time.Since(start).Round(time.Millisecond),
	}).Debug("request completed")

	return &Response{Status: resp.StatusCode, Body: body}, nil
}

// classifySendError maps a client error to the transport taxonomy:
// timeouts and plain network failures are temporary, TLS validation
// failures are not.
func classifySendError(op string, err error) error {
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return errs.Transport(op, false, fmt.Errorf("TLS verification failed: %w", err))
	}
	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return errs.Transport(op, false, fmt.Errorf("TLS handshake failed: %w", err))
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return errs.Transport(op, true, fmt.Errorf("request timed out: %w", err))
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errs.Transport(op, true, fmt.Errorf("request timed out: %w", err))
	}

	return errs.Transport(op, true, err)
}
