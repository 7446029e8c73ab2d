package gluetun

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"localtube/internal/domain/ports"
)

const userAgent = "localtube-gluetun-integration"

// ErrPollTimeout means the VPN never reported the desired state within
// the poll budget.
var ErrPollTimeout = errors.New("gluetun did not report the desired state after polling")

// UnexpectedStatusError reports a non-2xx control API response.
type UnexpectedStatusError struct {
	Code int
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.Code)
}

// UnexpectedStateError reports a state change whose echoed status differs
// from the requested one.
type UnexpectedStateError struct {
	Expected string
	Actual   string
}

func (e *UnexpectedStateError) Error() string {
	return fmt.Sprintf("gluetun returned unexpected state: expected %s, got %s", e.Expected, e.Actual)
}

type statusResponse struct {
	Status  string  `json:"status"`
	Outcome *string `json:"outcome,omitempty"`
}

// Controller drives the gluetun control server through full stop/start
// cycles. Implements ports.VPNController.
type Controller struct {
	client *http.Client
	config Config
}

func New(config Config) *Controller {
	return &Controller{
		client: &http.Client{Timeout: 10 * time.Second},
		config: config,
	}
}

// Restart stops the VPN and starts it again, confirming each state
// through the control API before moving on.
func (c *Controller) Restart(ctx context.Context) (ports.VPNRestartOutcome, error) {
	stop, err := c.requestState(ctx, "stopped")
	if err != nil {
		return ports.VPNRestartOutcome{}, err
	}
	if err := c.pollUntil(ctx, "stopped"); err != nil {
		return ports.VPNRestartOutcome{}, err
	}

	start, err := c.requestState(ctx, "running")
	if err != nil {
		return ports.VPNRestartOutcome{}, err
	}
	if err := c.pollUntil(ctx, "running"); err != nil {
		return ports.VPNRestartOutcome{}, err
	}

	return ports.VPNRestartOutcome{StopOutcome: stop.Outcome, StartOutcome: start.Outcome}, nil
}

// requestState PUTs the desired status and checks the server echoes it.
func (c *Controller) requestState(ctx context.Context, status string) (statusResponse, error) {
	body, err := json.Marshal(map[string]string{"status": status})
	if err != nil {
		return statusResponse{}, fmt.Errorf("encoding status body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.config.statusURL(), bytes.NewReader(body))
	if err != nil {
		return statusResponse{}, fmt.Errorf("building status request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return statusResponse{}, fmt.Errorf("requesting vpn %s: %w", status, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusResponse{}, &UnexpectedStatusError{Code: resp.StatusCode}
	}
	var parsed statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return statusResponse{}, fmt.Errorf("decoding vpn status response: %w", err)
	}
	if parsed.Status != status {
		return statusResponse{}, &UnexpectedStateError{Expected: status, Actual: parsed.Status}
	}
	return parsed, nil
}

// pollUntil reads the status until it matches desired, waiting
// PollInterval between attempts.
func (c *Controller) pollUntil(ctx context.Context, desired string) error {
	for attempt := 0; attempt < c.config.PollAttempts; attempt++ {
		current, err := c.readState(ctx)
		if err != nil {
			return err
		}
		if current == desired {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.config.PollInterval):
		}
	}
	return ErrPollTimeout
}

func (c *Controller) readState(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.statusURL(), nil)
	if err != nil {
		return "", fmt.Errorf("building status request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("reading vpn status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &UnexpectedStatusError{Code: resp.StatusCode}
	}
	var parsed statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decoding vpn status response: %w", err)
	}
	return parsed.Status, nil
}
