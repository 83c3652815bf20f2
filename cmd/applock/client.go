package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Client talks to the applockd HTTP bridge.
type Client struct {
	addr string
	http *http.Client
}

// newClient creates a Client from the current config. APPLOCK_ADDR wins.
func newClient() *Client {
	addr := cfg.Address
	if v := os.Getenv("APPLOCK_ADDR"); v != "" {
		addr = v
	}
	// Prompt endpoints block until the user answers.
	return &Client{addr: addr, http: &http.Client{Timeout: 5 * time.Minute}}
}

func (c *Client) do(method, path string, body any) (map[string]any, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.addr+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	return parseResponse(resp)
}

func (c *Client) get(path string) (map[string]any, error) {
	return c.do(http.MethodGet, path, nil)
}

func (c *Client) post(path string, body any) (map[string]any, error) {
	return c.do(http.MethodPost, path, body)
}

func (c *Client) put(path string, body any) (map[string]any, error) {
	return c.do(http.MethodPut, path, body)
}

func (c *Client) delete(path string) error {
	_, err := c.do(http.MethodDelete, path, nil)
	return err
}

// apiError carries the bridge's error code next to its message.
type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
	return e.Message
}

func parseResponse(resp *http.Response) (map[string]any, error) {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	result := map[string]any{}
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, data)
		}
	}
	if resp.StatusCode >= 400 {
		e := &apiError{Status: resp.StatusCode, Message: fmt.Sprintf("HTTP %d", resp.StatusCode)}
		if errs, ok := result["errors"].([]any); ok && len(errs) > 0 {
			e.Message = fmt.Sprint(errs[0])
		}
		e.Code, _ = result["code"].(string)
		return nil, e
	}
	return result, nil
}
