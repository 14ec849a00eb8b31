// Package lending implements the external lending-market client.
package lending

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/vaultpilot/vaultpilot/internal/strategy"
)

// Client is the REST client for a lending-market aggregator. Supply and
// redeem are keyed by the custodial account address on the lending chain.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a lending client for the given API root.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type supplyRequest struct {
	Account  string `json:"account"`
	Protocol string `json:"protocol"`
	Asset    string `json:"asset"`
	Amount   int64  `json:"amount"`
}

type supplyResponse struct {
	TxRef string `json:"tx_ref"`
}

type redeemResponse struct {
	Redeemed int64  `json:"redeemed"`
	TxRef    string `json:"tx_ref"`
}

type balanceResponse struct {
	Balance int64 `json:"balance"`
}

// Supply deposits amount of asset into the protocol for the account.
func (c *Client) Supply(ctx context.Context, account, protocol, asset string, amount int64) (string, error) {
	body, err := c.doPost(ctx, "/supplies", supplyRequest{
		Account: account, Protocol: protocol, Asset: asset, Amount: amount,
	})
	if err != nil {
		return "", fmt.Errorf("lending: supply %s/%s: %w", protocol, asset, err)
	}

	var resp supplyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("lending: decode supply: %w", err)
	}
	return resp.TxRef, nil
}

// Redeem withdraws amount of asset from the protocol and returns the actual
// amount received, which includes accrued interest.
func (c *Client) Redeem(ctx context.Context, account, protocol, asset string, amount int64) (int64, string, error) {
	body, err := c.doPost(ctx, "/redemptions", supplyRequest{
		Account: account, Protocol: protocol, Asset: asset, Amount: amount,
	})
	if err != nil {
		return 0, "", fmt.Errorf("lending: redeem %s/%s: %w", protocol, asset, err)
	}

	var resp redeemResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, "", fmt.Errorf("lending: decode redemption: %w", err)
	}
	return resp.Redeemed, resp.TxRef, nil
}

// SupplyBalance returns the account's current supply balance in the protocol.
func (c *Client) SupplyBalance(ctx context.Context, account, protocol, asset string) (int64, error) {
	path := fmt.Sprintf("/supplies/%s?protocol=%s&asset=%s",
		url.PathEscape(account), url.QueryEscape(protocol), url.QueryEscape(asset))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, fmt.Errorf("lending: create request: %w", err)
	}
	body, err := c.do(req)
	if err != nil {
		return 0, fmt.Errorf("lending: supply balance: %w", err)
	}

	var resp balanceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("lending: decode balance: %w", err)
	}
	return resp.Balance, nil
}

func (c *Client) doPost(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return body, nil
}

var _ strategy.LendingAPI = (*Client)(nil)
