package bootstrap

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"

	"github.com/target/sealbox/internal/adapters/devcrypt"
	"github.com/target/sealbox/internal/core"
)

// CreateDecrypter creates an AES-GCM decrypter from the provided key.
// If the key is a hex string, it decodes it. Otherwise, it hashes the key to get a 32-byte key.
// Returns the passthrough decrypter if the key is empty (with warning log);
// staged payloads are then handed to the engine as-is.
//
//nolint:ireturn // Returning interface is intentional for decrypter abstraction
func CreateDecrypter(key string, logger *slog.Logger) core.Decrypter {
	if key == "" {
		if logger != nil {
			logger.Warn("payload encryption key is empty, using passthrough decrypter")
		}
		return devcrypt.Passthrough{}
	}

	dec, err := devcrypt.NewAESGCM(deriveKey(key))
	if err != nil {
		if logger != nil {
			logger.Warn("failed to create decrypter, using passthrough decrypter", "error", err)
		}
		return devcrypt.Passthrough{}
	}

	return dec
}

// AuditSigningKey derives the HMAC key for audit record signatures. The key
// is required outside dev mode; in dev mode an empty key falls back to a
// fixed local key so signatures still verify during development.
func AuditSigningKey(key string, isDev bool, logger *slog.Logger) ([]byte, error) {
	if key == "" {
		if !isDev {
			return nil, errors.New("AUDIT_SIGNING_KEY is required")
		}
		if logger != nil {
			logger.Warn("audit signing key is empty, using development key")
		}
		key = "sealbox-dev-audit-signing"
	}

	return deriveKey(key), nil
}

// deriveKey turns a configured key string into raw key bytes.
func deriveKey(key string) []byte {
	// If the key is a hex string, decode it
	if decoded, err := hex.DecodeString(key); err == nil && len(decoded) == 32 {
		return decoded
	}

	// Otherwise, hash the key to get a 32-byte key
	hash := sha256.Sum256([]byte(key))
	return hash[:]
}
