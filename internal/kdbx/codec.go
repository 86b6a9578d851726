package kdbx

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"io"
	"time"

	"github.com/kdbxkeeper/keeper/internal/vault"
	"github.com/kdbxkeeper/keeper/krypto"
)

const kdfSaltLen = 32

// Create constructs a fresh empty vault with default meta and a freshly
// generated root group — spec §4.1 "create(name, passphrase) -> Vault". The
// passphrase isn't consumed yet: no Argon2 derivation happens until the
// vault is first Saved, at which point it supplies the KDF callback with the
// passphrase directly (spec: "the KDF callback is the ONLY place where the
// passphrase is consumed").
func Create(name string, now time.Time) *vault.Vault {
	return vault.New(name, now)
}

// Load decrypts and parses a .kdbx byte stream, spec §4.1.
func Load(blob []byte, passphrase string, argon2Func krypto.Argon2Func) (*vault.Vault, error) {
	hdr, headerLen, err := decodeHeader(blob)
	if err != nil {
		return nil, wrap(KindCorrupt, err)
	}
	if headerLen+headerHMACLen > len(blob) {
		return nil, wrapf(KindCorrupt, "truncated container")
	}
	headerBytes := blob[:headerLen]
	trailerHMAC := blob[headerLen : headerLen+headerHMACLen]
	ciphertext := blob[headerLen+headerHMACLen:]

	expectedHMAC := headerHMAC(headerBytes, hdr.MasterSeed)
	if subtle.ConstantTimeCompare(expectedHMAC, trailerHMAC) != 1 {
		return nil, wrapf(KindCorrupt, "header authentication failed")
	}

	keyMaterial, err := argon2Func(krypto.Argon2Params{
		Password:    []byte(passphrase),
		Salt:        hdr.KDFSalt,
		MemoryKiB:   hdr.KDFMemoryKiB,
		Iterations:  hdr.KDFIterations,
		Parallelism: hdr.KDFParallelism,
		HashLength:  hdr.KDFHashLength,
		Type:        hdr.KDFType,
		Version:     hdr.KDFVersion,
	})
	if err != nil {
		return nil, wrap(KindInvalidKey, err)
	}
	defer zeroBytes(keyMaterial)

	encKey := combineKey(hdr.MasterSeed, keyMaterial)
	defer zeroBytes(encKey)

	plaintext, err := krypto.DecryptPayload(hdr.Cipher, encKey, hdr.IV, ciphertext)
	if err != nil {
		return nil, wrap(KindInvalidKey, err)
	}

	if len(plaintext) < streamStartLen {
		return nil, wrapf(KindInvalidKey, "decrypted payload too short")
	}
	if !bytes.Equal(plaintext[:streamStartLen], hdr.StreamStart) {
		return nil, wrapf(KindInvalidKey, "stream start bytes mismatch")
	}

	jsonBytes, err := gunzip(plaintext[streamStartLen:])
	if err != nil {
		return nil, wrap(KindCorrupt, err)
	}

	var w wireVault
	if err := json.Unmarshal(jsonBytes, &w); err != nil {
		return nil, wrap(KindCorrupt, err)
	}

	stream, err := krypto.NewInnerStream(hdr.InnerKey)
	if err != nil {
		return nil, wrap(KindCorrupt, err)
	}
	if err := unmaskProtectedFields(&w, stream); err != nil {
		return nil, wrap(KindCorrupt, err)
	}

	kdfParams := krypto.Argon2Params{
		Salt:        hdr.KDFSalt,
		MemoryKiB:   hdr.KDFMemoryKiB,
		Iterations:  hdr.KDFIterations,
		Parallelism: hdr.KDFParallelism,
		HashLength:  hdr.KDFHashLength,
		Type:        hdr.KDFType,
		Version:     hdr.KDFVersion,
	}
	return fromWire(w, hdr.Cipher, kdfParams)
}

// Save serializes v, encrypting with the cipher and KDF parameters currently
// attached to it — spec §4.1 "save(Vault) -> bytes".
func Save(v *vault.Vault, passphrase string, argon2Func krypto.Argon2Func) ([]byte, error) {
	w, err := toWire(v)
	if err != nil {
		return nil, wrap(KindIo, err)
	}

	masterSeed, err := krypto.NewRandomSalt(masterSeedLen)
	if err != nil {
		return nil, wrap(KindIo, err)
	}
	kdfSalt, err := krypto.NewRandomSalt(kdfSaltLen)
	if err != nil {
		return nil, wrap(KindIo, err)
	}
	streamStart, err := krypto.NewRandomSalt(streamStartLen)
	if err != nil {
		return nil, wrap(KindIo, err)
	}
	innerKey, err := krypto.NewRandomSalt(64)
	if err != nil {
		return nil, wrap(KindIo, err)
	}

	stream, err := krypto.NewInnerStream(innerKey)
	if err != nil {
		return nil, wrap(KindIo, err)
	}
	maskProtectedFields(&w, stream)

	jsonBytes, err := json.Marshal(w)
	if err != nil {
		return nil, wrap(KindIo, err)
	}
	compressed, err := gzipBytes(jsonBytes)
	if err != nil {
		return nil, wrap(KindIo, err)
	}

	plaintext := append(append([]byte{}, streamStart...), compressed...)

	keyMaterial, err := argon2Func(krypto.Argon2Params{
		Password:    []byte(passphrase),
		Salt:        kdfSalt,
		MemoryKiB:   v.KDFParams.MemoryKiB,
		Iterations:  v.KDFParams.Iterations,
		Parallelism: v.KDFParams.Parallelism,
		HashLength:  v.KDFParams.HashLength,
		Type:        v.KDFParams.Type,
		Version:     v.KDFParams.Version,
	})
	if err != nil {
		return nil, wrap(KindIo, err)
	}
	defer zeroBytes(keyMaterial)

	encKey := combineKey(masterSeed, keyMaterial)
	defer zeroBytes(encKey)

	iv, ciphertext, err := krypto.EncryptPayload(v.Cipher, encKey, plaintext)
	if err != nil {
		return nil, wrap(KindIo, err)
	}

	hdr := &header{
		Cipher:         v.Cipher,
		KDFType:        v.KDFParams.Type,
		KDFMemoryKiB:   v.KDFParams.MemoryKiB,
		KDFIterations:  v.KDFParams.Iterations,
		KDFParallelism: v.KDFParams.Parallelism,
		KDFVersion:     v.KDFParams.Version,
		KDFHashLength:  v.KDFParams.HashLength,
		KDFSalt:        kdfSalt,
		MasterSeed:     masterSeed,
		IV:             iv,
		StreamStart:    streamStart,
		InnerKey:       innerKey,
	}
	headerBytes := hdr.encode()
	trailerHMAC := headerHMAC(headerBytes, masterSeed)

	out := make([]byte, 0, len(headerBytes)+len(trailerHMAC)+len(ciphertext))
	out = append(out, headerBytes...)
	out = append(out, trailerHMAC...)
	out = append(out, ciphertext...)
	return out, nil
}

func combineKey(masterSeed, keyMaterial []byte) []byte {
	sum := sha256.Sum256(append(append([]byte{}, masterSeed...), keyMaterial...))
	return sum[:]
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
