// Package keystore implements the custodial key store: per-depositor
// secondary-chain keypairs generated at most once and held sealed under a
// process-wide master key.
package keystore

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	vpcrypto "github.com/vaultpilot/vaultpilot/internal/crypto"
	"github.com/vaultpilot/vaultpilot/internal/domain"
)

// Store generates and resolves custodial keys. All operations fail closed
// with domain.ErrNoMasterKey when no master key was supplied at startup.
type Store struct {
	masterKey []byte
	records   domain.KeyStore
	logger    *slog.Logger
}

// New creates a Store. masterKey may be nil, in which case every operation
// returns domain.ErrNoMasterKey; the rest of the orchestrator keeps running.
func New(masterKey []byte, records domain.KeyStore, logger *slog.Logger) *Store {
	return &Store{
		masterKey: masterKey,
		records:   records,
		logger:    logger.With(slog.String("component", "keystore")),
	}
}

// EnsureKey returns the depositor's custodial key, generating and sealing a
// new secp256k1 keypair on first call. The operation is idempotent: repeated
// calls return the same address and never rotate the sealed secret.
func (s *Store) EnsureKey(ctx context.Context, depositor string) (domain.CustodialKey, error) {
	if s.masterKey == nil {
		return domain.CustodialKey{}, domain.ErrNoMasterKey
	}

	rec, err := s.records.Get(ctx, depositor)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.CustodialKey{}, fmt.Errorf("keystore: lookup %s: %w", depositor, err)
	}

	priv, err := gethcrypto.GenerateKey()
	if err != nil {
		return domain.CustodialKey{}, fmt.Errorf("keystore: generate keypair: %w", err)
	}
	sealed, err := vpcrypto.Seal(s.masterKey, gethcrypto.FromECDSA(priv))
	if err != nil {
		return domain.CustodialKey{}, fmt.Errorf("keystore: seal secret: %w", err)
	}

	now := time.Now().UTC()
	rec = domain.CustodialKey{
		Depositor:       depositor,
		Address:         gethcrypto.PubkeyToAddress(priv.PublicKey).Hex(),
		EncryptedSecret: sealed,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.records.Put(ctx, rec); err != nil {
		// Lost a creation race; the stored record wins so the address is
		// stable across callers.
		if errors.Is(err, domain.ErrAlreadyExists) {
			return s.records.Get(ctx, depositor)
		}
		return domain.CustodialKey{}, fmt.Errorf("keystore: persist %s: %w", depositor, err)
	}

	s.logger.Info("custodial key generated",
		slog.String("depositor", depositor),
		slog.String("address", rec.Address),
	)
	return rec, nil
}

// GetKey returns the depositor's key record, or nil when none exists.
func (s *Store) GetKey(ctx context.Context, depositor string) (*domain.CustodialKey, error) {
	if s.masterKey == nil {
		return nil, domain.ErrNoMasterKey
	}
	rec, err := s.records.Get(ctx, depositor)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("keystore: lookup %s: %w", depositor, err)
	}
	return &rec, nil
}

// PrivateKey unseals the record's secret into a usable signing key.
func (s *Store) PrivateKey(rec domain.CustodialKey) (*ecdsa.PrivateKey, error) {
	if s.masterKey == nil {
		return nil, domain.ErrNoMasterKey
	}
	raw, err := vpcrypto.Open(s.masterKey, rec.EncryptedSecret)
	if err != nil {
		return nil, fmt.Errorf("keystore: unseal %s: %w", rec.Depositor, err)
	}
	priv, err := gethcrypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("keystore: parse secret %s: %w", rec.Depositor, err)
	}
	return priv, nil
}
