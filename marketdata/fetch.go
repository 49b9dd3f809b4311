package marketdata

import (
	"context"
	"fmt"
	"net/http"
)

// Fetch downloads a JSON curve. A nil client uses http.DefaultClient.
func Fetch(ctx context.Context, client *http.Client, url string) (Quotes, error) {
	return Reader{}.Fetch(ctx, client, url)
}

func (rd Reader) Fetch(ctx context.Context, client *http.Client, url string) (Quotes, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build curve request: %w", err)
	}
	req.Header.Add("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch curve: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch curve: %s", resp.Status)
	}
	return rd.LoadJSON(resp.Body)
}
