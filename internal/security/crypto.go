package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

const pseudoOpenIDPrefix = "PSEUDO_OPENID_"

// openIDLength matches the length of provider-issued open identifiers.
const openIDLength = 28

var (
	ErrDecryption        = errors.New("decrypt user data")
	ErrWatermarkMismatch = errors.New("watermark appid mismatch")
)

// Sign returns the lowercase hex SHA-1 digest of raw followed by sessionKey.
func Sign(raw []byte, sessionKey string) string {
	h := sha1.New()
	h.Write(raw)
	h.Write([]byte(sessionKey))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifySignature reports whether expected is the signature of raw under
// sessionKey.
func VerifySignature(raw []byte, sessionKey, expected string) bool {
	got := Sign(raw, sessionKey)
	return subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1
}

// PseudoOpenID derives a stable, clearly non-authoritative identifier from an
// avatar reference. It is only used when signature checking is disabled.
func PseudoOpenID(avatarURL string) string {
	sum := sha1.Sum([]byte(avatarURL))
	id := pseudoOpenIDPrefix + hex.EncodeToString(sum[:])
	return id[:openIDLength]
}

// Decrypt opens an encrypted user-data block with the base64 session key and
// iv, and checks that the payload watermark names appID. The decoded JSON
// object is returned field by field.
func Decrypt(appID, sessionKey, encryptedData, iv string) (map[string]json.RawMessage, error) {
	key, err := base64.StdEncoding.DecodeString(sessionKey)
	if err != nil {
		return nil, fmt.Errorf("%w: decode session key: %v", ErrDecryption, err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encryptedData)
	if err != nil {
		return nil, fmt.Errorf("%w: decode encrypted data: %v", ErrDecryption, err)
	}
	ivBytes, err := base64.StdEncoding.DecodeString(iv)
	if err != nil {
		return nil, fmt.Errorf("%w: decode iv: %v", ErrDecryption, err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	if len(ivBytes) != block.BlockSize() {
		return nil, fmt.Errorf("%w: iv length %d", ErrDecryption, len(ivBytes))
	}
	if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d is not a multiple of the block size", ErrDecryption, len(ciphertext))
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, ivBytes).CryptBlocks(plaintext, ciphertext)
	plaintext, err = pkcs7Unpad(plaintext, block.BlockSize())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(plaintext, &fields); err != nil {
		return nil, fmt.Errorf("%w: parse plaintext: %v", ErrDecryption, err)
	}
	var watermark struct {
		AppID string `json:"appid"`
	}
	if raw, ok := fields["watermark"]; ok {
		if err := json.Unmarshal(raw, &watermark); err != nil {
			return nil, fmt.Errorf("%w: parse watermark: %v", ErrDecryption, err)
		}
	}
	if watermark.AppID != appID {
		return nil, fmt.Errorf("%w: %w", ErrDecryption, ErrWatermarkMismatch)
	}
	return fields, nil
}

// Encrypt is the inverse of Decrypt for a JSON payload. The caller is
// responsible for embedding the watermark.
func Encrypt(sessionKey, iv string, payload []byte) (string, error) {
	key, err := base64.StdEncoding.DecodeString(sessionKey)
	if err != nil {
		return "", fmt.Errorf("decode session key: %w", err)
	}
	ivBytes, err := base64.StdEncoding.DecodeString(iv)
	if err != nil {
		return "", fmt.Errorf("decode iv: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	if len(ivBytes) != block.BlockSize() {
		return "", fmt.Errorf("iv length %d", len(ivBytes))
	}
	padded := pkcs7Pad(payload, block.BlockSize())
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, ivBytes).CryptBlocks(out, padded)
	return base64.StdEncoding.EncodeToString(out), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(bytes.Clone(data), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty plaintext")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-n], nil
}

// Verifier exposes the package functions as a value so callers can swap it
// out in tests.
type Verifier struct{}

func (Verifier) VerifySignature(raw []byte, sessionKey, expected string) bool {
	return VerifySignature(raw, sessionKey, expected)
}

func (Verifier) Decrypt(appID, sessionKey, encryptedData, iv string) (map[string]json.RawMessage, error) {
	return Decrypt(appID, sessionKey, encryptedData, iv)
}
