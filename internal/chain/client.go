// Package chain wraps the go-ethereum client with the narrow surface the
// agent needs: contract calls, signed transactions, and bounded log queries.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	gethcore "github.com/ethereum/go-ethereum"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// ClientConfig describes how to reach an EVM endpoint.
type ClientConfig struct {
	RPCURL   string
	LogChunk uint64 // max blocks per FilterLogs call, 0 means defaultLogChunk
}

const defaultLogChunk = 5_000

// Client is a thin ethclient wrapper that remembers the chain ID.
type Client struct {
	rpc      *gethrpc.Client
	eth      *ethclient.Client
	chainID  *big.Int
	logChunk uint64
}

// Dial connects to the RPC endpoint and fetches the chain ID.
func Dial(ctx context.Context, cfg ClientConfig) (*Client, error) {
	url := strings.TrimSpace(cfg.RPCURL)
	if url == "" {
		return nil, fmt.Errorf("chain: rpc url is empty")
	}

	rpcClient, err := gethrpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", url, err)
	}
	eth := ethclient.NewClient(rpcClient)

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("chain: chain id: %w", err)
	}

	chunk := cfg.LogChunk
	if chunk == 0 {
		chunk = defaultLogChunk
	}

	return &Client{rpc: rpcClient, eth: eth, chainID: chainID, logChunk: chunk}, nil
}

// Eth returns the underlying ethclient for contract bindings.
func (c *Client) Eth() *ethclient.Client {
	return c.eth
}

// ChainID returns the connected chain's ID.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// BlockNumber returns the latest block height.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("chain: block number: %w", err)
	}
	return n, nil
}

// FilterLogs runs the query in bounded block-range chunks so providers with a
// range cap never reject it. The query's FromBlock and ToBlock must both be
// set.
func (c *Client) FilterLogs(ctx context.Context, q gethcore.FilterQuery) ([]coretypes.Log, error) {
	if q.FromBlock == nil || q.ToBlock == nil {
		logs, err := c.eth.FilterLogs(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("chain: filter logs: %w", err)
		}
		return logs, nil
	}

	from := q.FromBlock.Uint64()
	to := q.ToBlock.Uint64()

	var all []coretypes.Log
	for start := from; start <= to; start += c.logChunk {
		end := start + c.logChunk - 1
		if end > to {
			end = to
		}

		chunk := q
		chunk.FromBlock = new(big.Int).SetUint64(start)
		chunk.ToBlock = new(big.Int).SetUint64(end)

		logs, err := c.eth.FilterLogs(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("chain: filter logs %d-%d: %w", start, end, err)
		}
		all = append(all, logs...)
	}
	return all, nil
}

// Close releases the RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}
