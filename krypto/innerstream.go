package krypto

import (
	"crypto/sha512"
	"fmt"

	"golang.org/x/crypto/chacha20"
)

// InnerStream generates a keystream used to mask individual protected field
// values, mirroring the role KeePass's "inner random stream" plays for
// Protected="True" XML fields. It is seeded once per container from the
// inner-stream key stored in the header and then asked for successive
// keystream chunks, one per protected field, in field-visitation order.
type InnerStream struct {
	stream *chacha20.Cipher
}

// NewInnerStream derives a ChaCha20 keystream generator from the container's
// inner-stream key. The key is hashed down to the cipher's key/nonce sizes so
// any header-supplied key length can be used.
func NewInnerStream(innerKey []byte) (*InnerStream, error) {
	digest := sha512.Sum512(innerKey)
	key := digest[:chacha20.KeySize]
	nonce := digest[chacha20.KeySize : chacha20.KeySize+chacha20.NonceSize]

	stream, err := chacha20.NewUnauthenticatedCipher(key, nonce)
	if err != nil {
		return nil, fmt.Errorf("create inner stream: %w", err)
	}
	return &InnerStream{stream: stream}, nil
}

// Mask XORs data against the next len(data) bytes of keystream, advancing the
// stream's internal position. Masking the output with a second InnerStream
// seeded from the same key, at the same stream position, reverses it.
func (s *InnerStream) Mask(data []byte) []byte {
	out := make([]byte, len(data))
	s.stream.XORKeyStream(out, data)
	return out
}
