package search

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/huraaa/Agent-one/internal/httpkit"
)

// newClient is the client every provider uses: 20s budget and one
// retry on dial failure or an overloaded upstream.
func newClient() *http.Client {
	return httpkit.NewClient(
		httpkit.WithTimeout(20*time.Second),
		httpkit.WithRetry(1, 500*time.Millisecond),
	)
}

// do sends req and returns the body of a 200 response, capped at 2 MB.
// The caller closes it.
func do(client *http.Client, req *http.Request) (io.ReadCloser, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		msg := httpkit.ReadErrorBody(resp.Body, 512)
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, msg)
	}
	return struct {
		io.Reader
		io.Closer
	}{io.LimitReader(resp.Body, 2<<20), resp.Body}, nil
}

// decodeJSON sends req and unmarshals the response into out.
func decodeJSON(client *http.Client, req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	body, err := do(client, req)
	if err != nil {
		return err
	}
	defer body.Close()
	if err := json.NewDecoder(body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
