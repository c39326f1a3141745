// Package devcrypt implements the decrypter port. AESGCM handles payloads
// sealed by the bundled client with AES-256-GCM; Passthrough serves
// simulation deployments where staged bytes are processed as-is.
package devcrypt

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// frameV1 versions the sealed frame so the key or algorithm can rotate
// without breaking payloads already in flight.
const frameV1 = "v1:"

// AESGCM seals and opens payloads with AES-256-GCM. The validated encryption
// context is bound as additional authenticated data, so a payload opened
// under a different context fails authentication.
type AESGCM struct {
	key []byte // 32 bytes
}

// NewAESGCM constructs an AESGCM. Key must be 32 bytes (AES-256).
func NewAESGCM(key []byte) (*AESGCM, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("aes-gcm key must be 32 bytes, got %d", len(key))
	}
	return &AESGCM{key: append([]byte(nil), key...)}, nil
}

// Encrypt seals plaintext under a random nonce and returns the versioned
// frame: "v1:" + base64(nonce||ciphertext). The bundled client and tests use
// this to produce payloads the consumer can open.
func (d *AESGCM) Encrypt(plaintext []byte, encCtx map[string]string) ([]byte, error) {
	gcm, err := d.aead()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, readErr := io.ReadFull(rand.Reader, nonce); readErr != nil {
		return nil, readErr
	}

	sealed := gcm.Seal(nonce, nonce, plaintext, contextAAD(encCtx))
	return []byte(frameV1 + base64.StdEncoding.EncodeToString(sealed)), nil
}

// Decrypt opens a versioned frame created by Encrypt.
func (d *AESGCM) Decrypt(ctx context.Context, ciphertext []byte, encCtx map[string]string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	frame := string(ciphertext)
	if !strings.HasPrefix(frame, frameV1) {
		prefix := frame
		if len(prefix) > 10 {
			prefix = prefix[:10]
		}
		return nil, fmt.Errorf("unknown ciphertext frame (prefix: %q)", prefix)
	}

	data, err := base64.StdEncoding.DecodeString(frame[len(frameV1):])
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext frame: %w", err)
	}

	gcm, err := d.aead()
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}

	plaintext, err := gcm.Open(nil, data[:nonceSize], data[nonceSize:], contextAAD(encCtx))
	if err != nil {
		return nil, fmt.Errorf("open sealed payload: %w", err)
	}

	return plaintext, nil
}

func (d *AESGCM) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(d.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// contextAAD canonicalizes the encryption context for authentication.
// json.Marshal sorts map keys, so both ends derive identical bytes from
// identical validated contexts.
func contextAAD(encCtx map[string]string) []byte {
	if len(encCtx) == 0 {
		return nil
	}
	aad, err := json.Marshal(encCtx)
	if err != nil {
		// map[string]string always marshals.
		panic(fmt.Sprintf("devcrypt: marshal context: %v", err))
	}
	return aad
}

// Passthrough returns staged bytes unchanged. Simulation deployments run the
// pipeline over unencrypted payloads.
type Passthrough struct{}

// Decrypt returns ciphertext as the plaintext.
func (Passthrough) Decrypt(_ context.Context, ciphertext []byte, _ map[string]string) ([]byte, error) {
	return ciphertext, nil
}
