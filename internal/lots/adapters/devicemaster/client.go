package devicemaster

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	benchtest "devicelab/internal/benchtest/domain"
	lots "devicelab/internal/lots/domain"
)

// DefaultTimeout bounds one device master call.
const DefaultTimeout = 10 * time.Second

// Client writes bench test fields through the legacy device master REST API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient constructs a device master client.
func NewClient(baseURL, token string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("devicemaster: empty base url")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

type verifiedRequest struct {
	BenchTestVerified bool      `json:"benchTestVerified"`
	VerifiedAt        time.Time `json:"benchTestVerifiedDateTime"`
}

type statusRequest struct {
	BenchTestStatusCode string    `json:"benchTestStatusCode"`
	UpdatedAt           time.Time `json:"updateDateTime"`
}

// MarkBenchTestVerified sets a device's verified flag.
func (c *Client) MarkBenchTestVerified(ctx context.Context, serialNumber string, at time.Time) error {
	if serialNumber == "" {
		return errors.New("devicemaster: empty serial number")
	}
	body := verifiedRequest{BenchTestVerified: true, VerifiedAt: at}
	return c.doJSON(ctx, http.MethodPost, devicePath(serialNumber, "bench-test-verified"), body, nil)
}

// RecordBenchTestStatus stores a device's latest bench test status.
func (c *Client) RecordBenchTestStatus(ctx context.Context, serialNumber string, status benchtest.DeviceStatus, at time.Time) error {
	if serialNumber == "" {
		return errors.New("devicemaster: empty serial number")
	}
	body := statusRequest{BenchTestStatusCode: string(status), UpdatedAt: at}
	return c.doJSON(ctx, http.MethodPut, devicePath(serialNumber, "bench-test-status"), body, nil)
}

func devicePath(serialNumber, action string) string {
	return "/api/devices/" + url.PathEscape(serialNumber) + "/" + action
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reqBody *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(payload)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return lots.ErrDeviceNotFound
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("devicemaster: http %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
