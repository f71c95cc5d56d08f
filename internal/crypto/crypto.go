// Package crypto implements the at-rest encipherment of stored records and the
// one-way hashing of chat identifiers used as storage keys.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha512"
	"fmt"
	"strconv"

	apperrors "github.com/gradewatch/gradewatch/internal/errors"
)

// Gate performs symmetric AES-CBC encryption with PKCS#7 padding under a fixed
// key and IV supplied at startup. The fixed IV keeps the on-disk format
// compatible across restarts; records never leave the process unencrypted.
type Gate struct {
	block cipher.Block
	iv    []byte
}

// NewGate validates the key and IV lengths and builds a Gate.
func NewGate(key, iv string) (*Gate, error) {
	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("iv must be %d bytes, got %d", aes.BlockSize, len(iv))
	}

	return &Gate{
		block: block,
		iv:    []byte(iv),
	}, nil
}

// Encrypt enciphers plaintext and returns the raw ciphertext bytes.
func (g *Gate) Encrypt(plaintext string) []byte {
	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(g.block, g.iv).CryptBlocks(out, padded)
	return out
}

// Decrypt deciphers ciphertext. Nil or empty input yields an empty string;
// malformed input yields a CryptoError.
func (g *Gate) Decrypt(ciphertext []byte) (string, error) {
	if len(ciphertext) == 0 {
		return "", nil
	}

	if len(ciphertext)%aes.BlockSize != 0 {
		return "", apperrors.NewCryptoError(fmt.Errorf("ciphertext length %d is not a multiple of the block size", len(ciphertext)))
	}

	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(g.block, g.iv).CryptBlocks(out, ciphertext)

	unpadded, err := pkcs7Unpad(out, aes.BlockSize)
	if err != nil {
		return "", apperrors.NewCryptoError(err)
	}

	return string(unpadded), nil
}

// HashChatID derives the storage key for a chat: uppercase hex of the SHA-512
// digest of the decimal chat id. The backing store never sees a reversible
// chat identifier.
func HashChatID(chatID int64) string {
	sum := sha512.Sum512([]byte(strconv.FormatInt(chatID, 10)))
	return fmt.Sprintf("%X", sum)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("invalid padded length %d", len(data))
	}

	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, fmt.Errorf("invalid padding length %d", padLen)
	}

	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("inconsistent padding bytes")
		}
	}

	return data[:len(data)-padLen], nil
}
