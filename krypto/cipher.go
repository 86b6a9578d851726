package krypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20"
)

// PayloadCipher identifies the container body cipher, mirroring the cipher
// IDs stored in a KDBX header.
type PayloadCipher int

const (
	CipherAES256CBC PayloadCipher = iota
	CipherChaCha20
)

// EncryptPayload encrypts the (already compressed) container body with the
// requested cipher and a fresh random IV/nonce, returning the IV and
// ciphertext separately the way a KDBX header stores them.
func EncryptPayload(c PayloadCipher, key, plaintext []byte) (iv, ciphertext []byte, err error) {
	switch c {
	case CipherAES256CBC:
		return encryptAESCBC(key, plaintext)
	case CipherChaCha20:
		return encryptChaCha20(key, plaintext)
	default:
		return nil, nil, fmt.Errorf("unsupported payload cipher %d", c)
	}
}

// DecryptPayload reverses EncryptPayload.
func DecryptPayload(c PayloadCipher, key, iv, ciphertext []byte) ([]byte, error) {
	switch c {
	case CipherAES256CBC:
		return decryptAESCBC(key, iv, ciphertext)
	case CipherChaCha20:
		return decryptChaCha20(key, iv, ciphertext)
	default:
		return nil, fmt.Errorf("unsupported payload cipher %d", c)
	}
}

func encryptAESCBC(key, plaintext []byte) ([]byte, []byte, error) {
	if len(key) != 32 {
		return nil, nil, errors.New("aes-256-cbc requires a 32-byte key")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("create cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, nil, fmt.Errorf("generate iv: %w", err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	mode := cipher.NewCBCEncrypter(block, iv)
	mode.CryptBlocks(ciphertext, padded)

	return iv, ciphertext, nil
}

func decryptAESCBC(key, iv, ciphertext []byte) ([]byte, error) {
	if len(key) != 32 {
		return nil, errors.New("aes-256-cbc requires a 32-byte key")
	}
	if len(iv) != aes.BlockSize {
		return nil, errors.New("invalid iv size")
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, errors.New("ciphertext is not a multiple of the block size")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	plainPadded := make([]byte, len(ciphertext))
	mode := cipher.NewCBCDecrypter(block, iv)
	mode.CryptBlocks(plainPadded, ciphertext)

	return pkcs7Unpad(plainPadded)
}

func encryptChaCha20(key, plaintext []byte) ([]byte, []byte, error) {
	if len(key) != chacha20.KeySize {
		return nil, nil, fmt.Errorf("chacha20 requires a %d-byte key", chacha20.KeySize)
	}
	nonce := make([]byte, chacha20.NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("generate nonce: %w", err)
	}

	stream, err := chacha20.NewUnauthenticatedCipher(key, nonce)
	if err != nil {
		return nil, nil, fmt.Errorf("create chacha20 stream: %w", err)
	}
	ciphertext := make([]byte, len(plaintext))
	stream.XORKeyStream(ciphertext, plaintext)

	return nonce, ciphertext, nil
}

func decryptChaCha20(key, nonce, ciphertext []byte) ([]byte, error) {
	if len(key) != chacha20.KeySize {
		return nil, fmt.Errorf("chacha20 requires a %d-byte key", chacha20.KeySize)
	}
	if len(nonce) != chacha20.NonceSize {
		return nil, errors.New("invalid chacha20 nonce size")
	}
	stream, err := chacha20.NewUnauthenticatedCipher(key, nonce)
	if err != nil {
		return nil, fmt.Errorf("create chacha20 stream: %w", err)
	}
	plaintext := make([]byte, len(ciphertext))
	stream.XORKeyStream(plaintext, ciphertext)
	return plaintext, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(append([]byte{}, data...), padding...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	n := len(data)
	if n == 0 {
		return nil, errors.New("cannot unpad empty data")
	}
	padLen := int(data[n-1])
	if padLen == 0 || padLen > n || padLen > aes.BlockSize {
		return nil, errors.New("invalid pkcs7 padding")
	}
	for _, b := range data[n-padLen:] {
		if int(b) != padLen {
			return nil, errors.New("invalid pkcs7 padding")
		}
	}
	return data[:n-padLen], nil
}
