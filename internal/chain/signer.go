package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Signer produces transact opts for a fixed operator key.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
	client  *Client
}

// NewSigner builds a Signer from a hex-encoded private key.
func NewSigner(client *Client, hexKey string) (*Signer, error) {
	key, err := gethcrypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("chain: parse operator key: %w", err)
	}
	return &Signer{
		key:     key,
		address: gethcrypto.PubkeyToAddress(key.PublicKey),
		client:  client,
	}, nil
}

// Address returns the signing account's address.
func (s *Signer) Address() common.Address {
	return s.address
}

// Opts returns transact opts bound to ctx.
func (s *Signer) Opts(ctx context.Context) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(s.key, s.client.ChainID())
	if err != nil {
		return nil, fmt.Errorf("chain: build transactor: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}
