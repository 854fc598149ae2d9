package keys

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNoSealKey is returned when the sealing key or IV is not configured.
var ErrNoSealKey = errors.New("seal key not configured")

// Sealer encrypts secrets before they are persisted.
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(ciphertext []byte) ([]byte, error)
}

// AESSealer is AES-256-CBC with PKCS#7 padding under an operator supplied
// key and IV.
type AESSealer struct {
	block cipher.Block
	iv    []byte
}

var _ Sealer = (*AESSealer)(nil)

// NewAESSealer expects a 32 byte key and a 16 byte IV.
func NewAESSealer(key, iv []byte) (*AESSealer, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("seal key must be 32 bytes, got %d", len(key))
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("seal iv must be %d bytes, got %d", aes.BlockSize, len(iv))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return &AESSealer{block: block, iv: append([]byte(nil), iv...)}, nil
}

// NewAESSealerFromHex decodes hex key and IV.
func NewAESSealerFromHex(keyHex, ivHex string) (*AESSealer, error) {
	key, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(keyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode seal key: %w", err)
	}
	iv, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(ivHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode seal iv: %w", err)
	}
	return NewAESSealer(key, iv)
}

// SealerFromEnv reads the hex key and IV from the named variables.
// Unset variables yield ErrNoSealKey.
func SealerFromEnv(keyVar, ivVar string) (*AESSealer, error) {
	key, iv := os.Getenv(keyVar), os.Getenv(ivVar)
	if key == "" || iv == "" {
		return nil, ErrNoSealKey
	}
	return NewAESSealerFromHex(key, iv)
}

func (s *AESSealer) Seal(plaintext []byte) ([]byte, error) {
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(s.block, s.iv).CryptBlocks(out, padded)
	return out, nil
}

func (s *AESSealer) Open(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, errors.New("sealed data is not a whole number of blocks")
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(s.block, s.iv).CryptBlocks(out, ciphertext)
	return pkcs7Unpad(out, aes.BlockSize)
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(append([]byte(nil), b...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 {
		return nil, errors.New("empty plaintext")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, errors.New("invalid padding")
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, errors.New("invalid padding")
		}
	}
	return b[:len(b)-n], nil
}

// sealHex seals and hex encodes, or returns "" without a sealer.
func sealHex(s Sealer, secret []byte) (string, error) {
	if s == nil {
		return "", nil
	}
	ct, err := s.Seal(secret)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(ct), nil
}
