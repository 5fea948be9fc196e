package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/minipupper/mpct/pkg/config"
	"github.com/minipupper/mpct/pkg/events"
	"github.com/minipupper/mpct/pkg/guard"
)

// Status mirrors the daemon's GET /status response.
type Status struct {
	guard.Status
	LastSample string `json:"lastSample,omitempty"`
	Instance   string `json:"instance"`
}

func (c *Client) GetStatus() (*Status, error) {
	var st Status
	if err := c.call(http.MethodGet, "/status", nil, &st); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to get guard status")
	}
	return &st, nil
}

// ResetGuard forces the guard back to Normal and returns its new status.
func (c *Client) ResetGuard() (*guard.Status, error) {
	var st guard.Status
	if err := c.call(http.MethodPost, "/reset", nil, &st); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to reset guard")
	}
	return &st, nil
}

// SetLimits replaces the guard thresholds and returns the daemon's message.
func (c *Client) SetLimits(l guard.Limits) (string, error) {
	var msg string
	if err := c.call(http.MethodPut, "/limits", l, &msg); err != nil {
		return "", err
	}
	return msg, nil
}

func (c *Client) GetConfig() (*config.RawFileConfig, error) {
	var conf config.RawFileConfig
	if err := c.call(http.MethodGet, "/config", nil, &conf); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to get config")
	}
	return &conf, nil
}

func (c *Client) GetVersion() (string, error) {
	var v string
	if err := c.call(http.MethodGet, "/version", nil, &v); err != nil {
		return "", pkgerrors.Wrap(err, "failed to get version")
	}
	return v, nil
}

// Watch streams daemon events to fn until ctx is done or the daemon closes
// the stream. Returning false from fn stops watching.
func (c *Client) Watch(ctx context.Context, fn func(events.Event) bool) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://unix/events", nil)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return pkgerrors.Errorf("got %d from /events", resp.StatusCode)
	}

	err = readEvents(bufio.NewScanner(resp.Body), fn)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// readEvents parses a server-sent event stream. Only the event and data
// fields are used.
func readEvents(sc *bufio.Scanner, fn func(events.Event) bool) error {
	var ev events.Event
	var data []string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if ev.Name == "" && len(data) == 0 {
				continue
			}
			ev.Data = json.RawMessage(strings.Join(data, "\n"))
			if !fn(ev) {
				return nil
			}
			ev, data = events.Event{}, nil
		case strings.HasPrefix(line, ":"):
			// comment
		case strings.HasPrefix(line, "event:"):
			ev.Name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	return sc.Err()
}
