package crypt

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"github.com/grafov/m3u8"

	"hlsgrab/internal/fetch"
)

// Encryption is the per-segment decryption capability resolved from playlist
// key metadata. The zero value is the "none" variant, whose Decrypt is the
// identity transform. Values are immutable and may be shared across segments
// until the playlist declares a new key.
type Encryption struct {
	block cipher.Block
	iv    []byte
}

// None returns the identity Encryption.
func None() Encryption {
	return Encryption{}
}

// IsNone reports whether e is the identity transform.
func (e Encryption) IsNone() bool {
	return e.block == nil
}

// Resolve builds an Encryption from an EXT-X-KEY declaration. The key URI is
// resolved against playlistURL and fetched through client; seq supplies the
// default IV when the declaration carries none.
func Resolve(ctx context.Context, client *fetch.Client, key *m3u8.Key, playlistURL *url.URL, seq uint64) (Encryption, error) {
	switch strings.ToUpper(key.Method) {
	case "", "NONE":
		return None(), nil
	case "AES-128":
		// Handled below.
	default:
		return None(), fmt.Errorf("unsupported encryption method %q", key.Method)
	}

	keyURL, err := fetch.AbsoluteURL(playlistURL, key.URI)
	if err != nil {
		return None(), err
	}

	keyBytes, _, err := client.Get(ctx, keyURL.String())
	if err != nil {
		return None(), fmt.Errorf("fetching key %s: %w", keyURL, err)
	}
	if len(keyBytes) != aes.BlockSize {
		return None(), fmt.Errorf("key %s has %d bytes, want %d", keyURL, len(keyBytes), aes.BlockSize)
	}

	iv, err := parseIV(key.IV, seq)
	if err != nil {
		return None(), err
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return None(), err
	}

	return Encryption{block: block, iv: iv}, nil
}

// parseIV decodes the hex IV attribute, or derives the IV from the media
// sequence number when the attribute is absent, per RFC 8216 §4.3.2.4.
func parseIV(attr string, seq uint64) ([]byte, error) {
	if attr == "" {
		iv := make([]byte, aes.BlockSize)
		binary.BigEndian.PutUint64(iv[8:], seq)
		return iv, nil
	}

	s := strings.TrimPrefix(strings.TrimPrefix(attr, "0x"), "0X")
	iv, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("parsing IV %q: %w", attr, err)
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("IV %q has %d bytes, want %d", attr, len(iv), aes.BlockSize)
	}
	return iv, nil
}

// Decrypt returns the plaintext of data. For the none variant data is
// returned unchanged.
func (e Encryption) Decrypt(data []byte) ([]byte, error) {
	if e.IsNone() {
		return data, nil
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext length %d is not a multiple of the block size", len(data))
	}

	plain := make([]byte, len(data))
	cipher.NewCBCDecrypter(e.block, e.iv).CryptBlocks(plain, data)

	return stripPadding(plain)
}

// stripPadding removes PKCS#7 padding.
func stripPadding(data []byte) ([]byte, error) {
	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return nil, fmt.Errorf("invalid padding length %d", n)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("invalid padding byte %#x", b)
		}
	}
	return data[:len(data)-n], nil
}
