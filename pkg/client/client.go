// Package client talks to the guard daemon over its unix socket.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultTimeout bounds a single API call. Watch is not bounded.
	DefaultTimeout = 5 * time.Second

	// maxResponseSize guards against a misbehaving peer on the socket.
	maxResponseSize = 1 << 20
)

// Client calls the guard daemon API. The host part of request URLs is
// ignored; every connection goes to the socket.
type Client struct {
	socketPath string
	httpClient *http.Client
	timeout    time.Duration
}

func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		httpClient: &http.Client{
			Transport: &http.Transport{DialContext: dialSocket(socketPath)},
		},
		timeout: DefaultTimeout,
	}
}

// dialSocket maps the ways a unix dial fails onto the package errors, so
// callers can tell a stopped daemon from a root-only socket.
func dialSocket(socketPath string) func(ctx context.Context, _, _ string) (net.Conn, error) {
	return func(ctx context.Context, _, _ string) (net.Conn, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "unix", socketPath)
		switch {
		case err == nil:
			return conn, nil
		case errors.Is(err, os.ErrNotExist), errors.Is(err, syscall.ECONNREFUSED):
			return nil, ErrDaemonNotRunning
		case errors.Is(err, os.ErrPermission):
			return nil, ErrPermissionDenied
		default:
			logrus.WithField("socket", socketPath).Errorf("failed to connect to guard daemon: %v", err)
			return nil, err
		}
	}
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// call sends in as JSON (if not nil) and decodes the response into out (if
// not nil).
func (c *Client) call(method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return pkgerrors.Wrapf(err, "failed to encode %s %s", method, path)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, "http://unix"+path, body)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to create request")
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	logrus.WithFields(logrus.Fields{
		"method": method,
		"path":   path,
		"socket": c.socketPath,
	}).Debug("calling guard daemon")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Keep the sentinel from the dialer reachable through errors.Is.
		return pkgerrors.WithMessagef(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read %s response", path)
	}

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}
	return pkgerrors.Wrapf(json.Unmarshal(data, out), "failed to decode %s response", path)
}
