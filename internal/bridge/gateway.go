// Package bridge implements the unified-balance gateway protocol client.
package bridge

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

// GatewayClient is the REST client for the cross-chain gateway API. The
// gateway pools bridged funds into a per-address unified balance that can be
// released into destination pools and redeemed back.
type GatewayClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewGatewayClient creates a new gateway API client.
//
// baseURL is the gateway API root, e.g. "https://gateway.example.com/v1".
func NewGatewayClient(baseURL, apiKey string) *GatewayClient {
	return &GatewayClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type initiateRequest struct {
	Depositor   string `json:"depositor"`
	DestAddress string `json:"dest_address"`
	Amount      int64  `json:"amount"`
	TargetPool  string `json:"target_pool"`
}

type txResponse struct {
	TxRef string `json:"tx_ref"`
}

type balanceResponse struct {
	Balance int64 `json:"balance"`
}

type redeemResponse struct {
	Redeemed int64  `json:"redeemed"`
	TxRef    string `json:"tx_ref"`
}

type feeResponse struct {
	Fee int64 `json:"fee"`
}

// Initiate starts a bridge transfer into destAddress's unified balance. The
// returned transaction reference identifies the transfer; arrival is
// asynchronous and must be observed via UnifiedBalance.
func (g *GatewayClient) Initiate(ctx context.Context, depositor, destAddress string, amount int64, targetPoolKey string) (string, error) {
	body, err := g.doPost(ctx, "/transfers", initiateRequest{
		Depositor:   depositor,
		DestAddress: destAddress,
		Amount:      amount,
		TargetPool:  targetPoolKey,
	})
	if err != nil {
		return "", fmt.Errorf("bridge: initiate transfer: %w", err)
	}

	var resp txResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("bridge: decode transfer: %w", err)
	}
	return resp.TxRef, nil
}

// UnifiedBalance returns the settled unified balance for destAddress.
func (g *GatewayClient) UnifiedBalance(ctx context.Context, destAddress string) (int64, error) {
	path := fmt.Sprintf("/balances/%s", url.PathEscape(destAddress))
	body, err := g.doGet(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("bridge: unified balance %s: %w", destAddress, err)
	}

	var resp balanceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("bridge: decode balance: %w", err)
	}
	return resp.Balance, nil
}

// ReleaseToPool moves amount from the unified balance into a destination pool.
func (g *GatewayClient) ReleaseToPool(ctx context.Context, destAddress, poolKey string, amount int64) (string, error) {
	body, err := g.doPost(ctx, "/releases", map[string]any{
		"dest_address": destAddress,
		"pool_key":     poolKey,
		"amount":       amount,
	})
	if err != nil {
		return "", fmt.Errorf("bridge: release to pool %s: %w", poolKey, err)
	}

	var resp txResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("bridge: decode release: %w", err)
	}
	return resp.TxRef, nil
}

// RedeemFromPool burns shares in a destination pool back into the unified
// balance and returns the redeemed amount.
func (g *GatewayClient) RedeemFromPool(ctx context.Context, destAddress, poolKey string, shares int64) (int64, error) {
	body, err := g.doPost(ctx, "/redemptions", map[string]any{
		"dest_address": destAddress,
		"pool_key":     poolKey,
		"shares":       shares,
	})
	if err != nil {
		return 0, fmt.Errorf("bridge: redeem from pool %s: %w", poolKey, err)
	}

	var resp redeemResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("bridge: decode redemption: %w", err)
	}
	return resp.Redeemed, nil
}

// ReturnToHome bridges amount from the unified balance back to the home
// chain. The gateway deducts its protocol fee from the transfer.
func (g *GatewayClient) ReturnToHome(ctx context.Context, destAddress string, amount int64) (string, error) {
	body, err := g.doPost(ctx, "/returns", map[string]any{
		"dest_address": destAddress,
		"amount":       amount,
	})
	if err != nil {
		return "", fmt.Errorf("bridge: return to home: %w", err)
	}

	var resp txResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("bridge: decode return: %w", err)
	}
	return resp.TxRef, nil
}

// ProtocolFee returns the gateway's current flat fee in minor units.
func (g *GatewayClient) ProtocolFee(ctx context.Context) (int64, error) {
	body, err := g.doGet(ctx, "/fee")
	if err != nil {
		return 0, fmt.Errorf("bridge: protocol fee: %w", err)
	}

	var resp feeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("bridge: decode fee: %w", err)
	}
	return resp.Fee, nil
}

func (g *GatewayClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return g.do(req)
}

func (g *GatewayClient) doPost(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return g.do(req)
}

func (g *GatewayClient) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Accept", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body, 256))
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

var _ strategy.GatewayAPI = (*GatewayClient)(nil)
