package crypt

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/grafov/m3u8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hlsgrab/internal/fetch"
	"hlsgrab/internal/logger"
)

// encryptCBC applies AES-128-CBC with PKCS#7 padding, mirroring what an HLS
// origin does to segments.
func encryptCBC(t *testing.T, key, iv, plain []byte) []byte {
	t.Helper()

	pad := aes.BlockSize - len(plain)%aes.BlockSize
	padded := make([]byte, len(plain)+pad)
	copy(padded, plain)
	for i := len(plain); i < len(padded); i++ {
		padded[i] = byte(pad)
	}

	block, err := aes.NewCipher(key)
	require.NoError(t, err)

	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out
}

func testSetup(t *testing.T, key []byte) (*fetch.Client, *url.URL) {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/enc.key" {
			_, _ = w.Write(key)
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(server.Close)

	playlistURL, err := url.Parse(server.URL + "/live/media.m3u8")
	require.NoError(t, err)

	return fetch.New(5*time.Second, 0, "", logger.Nop{}), playlistURL
}

func TestEncryption_NoneIsIdentity(t *testing.T) {
	data := []byte("not encrypted at all")
	out, err := None().Decrypt(data)
	require.NoError(t, err)
	assert.Equal(t, data, out)
	assert.True(t, None().IsNone())
}

func TestResolve_MethodNone(t *testing.T) {
	client, playlistURL := testSetup(t, nil)

	enc, err := Resolve(context.Background(), client, &m3u8.Key{Method: "NONE"}, playlistURL, 0)
	require.NoError(t, err)
	assert.True(t, enc.IsNone())
}

func TestResolve_UnsupportedMethod(t *testing.T) {
	client, playlistURL := testSetup(t, nil)

	_, err := Resolve(context.Background(), client, &m3u8.Key{Method: "SAMPLE-AES", URI: "/enc.key"}, playlistURL, 0)
	assert.Error(t, err)
}

func TestResolve_DecryptRoundTrip(t *testing.T) {
	key := []byte("0123456789abcdef")
	iv := []byte("fedcba9876543210")
	plain := []byte("the quick brown fox jumps over the lazy dog")

	client, playlistURL := testSetup(t, key)

	enc, err := Resolve(context.Background(), client, &m3u8.Key{
		Method: "AES-128",
		URI:    "/enc.key", // relative to the playlist URL
		IV:     "0x" + hex.EncodeToString(iv),
	}, playlistURL, 7)
	require.NoError(t, err)
	assert.False(t, enc.IsNone())

	out, err := enc.Decrypt(encryptCBC(t, key, iv, plain))
	require.NoError(t, err)
	assert.Equal(t, plain, out)
}

// Without an IV attribute, the IV is the media sequence number in the low
// 8 bytes, big endian.
func TestResolve_DefaultIVFromSequence(t *testing.T) {
	key := []byte("0123456789abcdef")
	var seq uint64 = 31337
	iv := make([]byte, aes.BlockSize)
	binary.BigEndian.PutUint64(iv[8:], seq)
	plain := []byte("segment payload")

	client, playlistURL := testSetup(t, key)

	enc, err := Resolve(context.Background(), client, &m3u8.Key{Method: "AES-128", URI: "/enc.key"}, playlistURL, seq)
	require.NoError(t, err)

	out, err := enc.Decrypt(encryptCBC(t, key, iv, plain))
	require.NoError(t, err)
	assert.Equal(t, plain, out)
}

func TestDecrypt_RejectsPartialBlocks(t *testing.T) {
	key := []byte("0123456789abcdef")
	client, playlistURL := testSetup(t, key)

	enc, err := Resolve(context.Background(), client, &m3u8.Key{Method: "AES-128", URI: "/enc.key"}, playlistURL, 0)
	require.NoError(t, err)

	_, err = enc.Decrypt([]byte("short"))
	assert.Error(t, err)
}

func TestResolve_BadKeyLength(t *testing.T) {
	client, playlistURL := testSetup(t, []byte("too short"))

	_, err := Resolve(context.Background(), client, &m3u8.Key{Method: "AES-128", URI: "/enc.key"}, playlistURL, 0)
	assert.Error(t, err)
}
