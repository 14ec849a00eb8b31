package domain

import "time"

// CustodialKey is a secondary-venue keypair held on a depositor's behalf.
// The secret is stored sealed under the process master key; the plaintext is
// never persisted and must never appear in logs or telemetry.
type CustodialKey struct {
	Depositor       string
	Address         string
	EncryptedSecret []byte
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
