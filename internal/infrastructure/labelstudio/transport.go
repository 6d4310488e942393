package labelstudio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any, operation string, expectStatus int) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}

	call := func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create %s request: %w", operation, err)
		}
		req.Header.Set("Content-Type", "application/json")
		return c.roundTrip(req, out, operation, expectStatus)
	}
	return c.execute(ctx, operation, call)
}

func (c *Client) getJSON(ctx context.Context, path string, out any, operation string) error {
	call := func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return fmt.Errorf("create %s request: %w", operation, err)
		}
		return c.roundTrip(req, out, operation, http.StatusOK)
	}
	return c.execute(ctx, operation, call)
}

func (c *Client) getBytes(ctx context.Context, path string, operation string) ([]byte, error) {
	var payload []byte
	call := func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return fmt.Errorf("create %s request: %w", operation, err)
		}
		req.Header.Set("Authorization", "Token "+c.token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("annotation tool %s request: %w", operation, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return statusError(operation, resp)
		}
		payload, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read %s response: %w", operation, err)
		}
		return nil
	}
	if err := c.execute(ctx, operation, call); err != nil {
		return nil, err
	}
	return payload, nil
}

// roundTrip sends one authorized request and decodes the JSON response
// when the status matches.
func (c *Client) roundTrip(req *http.Request, out any, operation string, expectStatus int) error {
	req.Header.Set("Authorization", "Token "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("annotation tool %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != expectStatus {
		return statusError(operation, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

// execute rate-limits every attempt and routes the call through the
// resilience executor, then maps the outcome onto the domain error kinds.
func (c *Client) execute(ctx context.Context, operation string, call func(context.Context) error) error {
	limited := func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		return call(ctx)
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "labelstudio."+metricName(operation), limited, classifyAPIError)
	} else {
		err = limited(ctx)
	}
	return wrapAPIError(operation, err)
}

func metricName(operation string) string {
	return strings.ReplaceAll(operation, " ", "_")
}

func statusError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &HTTPStatusError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(string(body)),
	}
}
