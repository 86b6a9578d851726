package kdbx

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/kdbxkeeper/keeper/krypto"
)

// baseSignature and versionSignature mirror the real KDBX magic numbers, so
// the on-disk layout is recognizable as a KeePass 2.x-family container even
// though the payload encoding underneath is this implementation's own.
const (
	baseSignature    uint32 = 0x9AA2D903
	versionSignature uint32 = 0xB54BFB67
	fileVersion      uint32 = 0x00040000

	masterSeedLen  = 32
	streamStartLen = 32
	headerHMACLen  = sha256.Size
)

// header is the cleartext preamble of a .kdbx container: everything needed
// to derive the master key and verify/decrypt the payload that follows.
type header struct {
	Cipher         krypto.PayloadCipher
	KDFType        krypto.Argon2Variant
	KDFMemoryKiB   uint32
	KDFIterations  uint32
	KDFParallelism uint8
	KDFVersion     uint32
	KDFHashLength  uint32
	KDFSalt        []byte
	MasterSeed     []byte
	IV             []byte
	StreamStart    []byte
	InnerKey       []byte
}

func (h *header) encode() []byte {
	var buf bytes.Buffer
	writeU32(&buf, baseSignature)
	writeU32(&buf, versionSignature)
	writeU32(&buf, fileVersion)
	buf.WriteByte(byte(h.Cipher))
	writeU32(&buf, uint32(h.KDFType))
	writeU32(&buf, h.KDFMemoryKiB)
	writeU32(&buf, h.KDFIterations)
	buf.WriteByte(h.KDFParallelism)
	writeU32(&buf, h.KDFVersion)
	writeU32(&buf, h.KDFHashLength)
	writeBlob(&buf, h.KDFSalt)
	writeBlob(&buf, h.MasterSeed)
	writeBlob(&buf, h.IV)
	writeBlob(&buf, h.StreamStart)
	writeBlob(&buf, h.InnerKey)
	return buf.Bytes()
}

func decodeHeader(data []byte) (*header, int, error) {
	r := bytes.NewReader(data)

	sig1, err := readU32(r)
	if err != nil || sig1 != baseSignature {
		return nil, 0, errors.New("not a kdbx container")
	}
	sig2, err := readU32(r)
	if err != nil || sig2 != versionSignature {
		return nil, 0, errors.New("not a kdbx container")
	}
	if _, err := readU32(r); err != nil {
		return nil, 0, fmt.Errorf("read file version: %w", err)
	}

	cipherByte, err := r.ReadByte()
	if err != nil {
		return nil, 0, fmt.Errorf("read cipher id: %w", err)
	}

	kdfType, err := readU32(r)
	if err != nil {
		return nil, 0, fmt.Errorf("read kdf type: %w", err)
	}
	memKiB, err := readU32(r)
	if err != nil {
		return nil, 0, fmt.Errorf("read kdf memory: %w", err)
	}
	iterations, err := readU32(r)
	if err != nil {
		return nil, 0, fmt.Errorf("read kdf iterations: %w", err)
	}
	parallelism, err := r.ReadByte()
	if err != nil {
		return nil, 0, fmt.Errorf("read kdf parallelism: %w", err)
	}
	kdfVersion, err := readU32(r)
	if err != nil {
		return nil, 0, fmt.Errorf("read kdf version: %w", err)
	}
	hashLength, err := readU32(r)
	if err != nil {
		return nil, 0, fmt.Errorf("read kdf hash length: %w", err)
	}
	salt, err := readBlob(r)
	if err != nil {
		return nil, 0, fmt.Errorf("read kdf salt: %w", err)
	}
	seed, err := readBlob(r)
	if err != nil {
		return nil, 0, fmt.Errorf("read master seed: %w", err)
	}
	iv, err := readBlob(r)
	if err != nil {
		return nil, 0, fmt.Errorf("read iv: %w", err)
	}
	streamStart, err := readBlob(r)
	if err != nil {
		return nil, 0, fmt.Errorf("read stream start bytes: %w", err)
	}
	innerKey, err := readBlob(r)
	if err != nil {
		return nil, 0, fmt.Errorf("read inner stream key: %w", err)
	}

	consumed := len(data) - r.Len()
	return &header{
		Cipher:         krypto.PayloadCipher(cipherByte),
		KDFType:        krypto.Argon2Variant(kdfType),
		KDFMemoryKiB:   memKiB,
		KDFIterations:  iterations,
		KDFParallelism: parallelism,
		KDFVersion:     kdfVersion,
		KDFHashLength:  hashLength,
		KDFSalt:        salt,
		MasterSeed:     seed,
		IV:             iv,
		StreamStart:    streamStart,
		InnerKey:       innerKey,
	}, consumed, nil
}

// headerHMAC authenticates the header bytes against tampering/corruption,
// keyed only off the master seed — deliberately independent of the
// password-derived key, so a header-HMAC failure means "this container is
// structurally damaged", not "wrong password" (spec: InvalidKey and Corrupt
// are raised by separate checks; see codec.go's stream-start-bytes check for
// the password-dependent one).
func headerHMAC(headerBytes, masterSeed []byte) []byte {
	mac := hmac.New(sha256.New, masterSeed)
	mac.Write(headerBytes)
	return mac.Sum(nil)
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func readU32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func writeBlob(buf *bytes.Buffer, data []byte) {
	writeU32(buf, uint32(len(data)))
	buf.Write(data)
}

const maxHeaderBlobLen = 1 << 16

func readBlob(r *bytes.Reader) ([]byte, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	if n > maxHeaderBlobLen {
		return nil, fmt.Errorf("header field too large (%d bytes)", n)
	}
	buf := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
	}
	return buf, nil
}
