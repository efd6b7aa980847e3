package httpmiddleware

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

var client = &http.Client{Timeout: 60 * time.Second}

type HttpRequestStruct struct {
	Method  string
	Url     string
	Body    io.Reader
	Headers map[string]string
}

// HttpRequest performs a single HTTP round trip and returns the response
// body. The request is bound to ctx, so a caller deadline cancels an
// in-flight call before the client's own 60s ceiling. Non-2xx statuses are
// returned as errors with the body included.
func HttpRequest(ctx context.Context, args HttpRequestStruct) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, args.Method, args.Url, args.Body)
	if err != nil {
		return nil, err
	}

	for key, value := range args.Headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("request to %s failed with status %d: %s", args.Url, resp.StatusCode, string(respBody))
	}

	return respBody, nil
}
