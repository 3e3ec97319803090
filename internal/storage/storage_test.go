package storage

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemBlobStoreRoundTrip(t *testing.T) {
	store := NewMemBlobStore()
	ctx := context.Background()

	ref, err := store.Put(ctx, []byte("payload"))
	require.NoError(t, err)

	got, err := store.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)
	assert.Equal(t, 1, store.Len())

	_, err = store.Get(ctx, "missing")
	assert.Error(t, err)
}

func TestMemBlobStoreCopiesData(t *testing.T) {
	store := NewMemBlobStore()
	ctx := context.Background()

	data := []byte("original")
	ref, err := store.Put(ctx, data)
	require.NoError(t, err)
	data[0] = 'X'

	got, err := store.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), got)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	s := &S3BlobStore{encryptionKey: bytes.Repeat([]byte{0x42}, 32)}

	plain := []byte("%PDF-1.7 signed document bytes")
	encrypted, err := s.encryptData(plain)
	require.NoError(t, err)
	assert.NotEqual(t, plain, encrypted)

	decrypted, err := s.decryptData(encrypted)
	require.NoError(t, err)
	assert.Equal(t, plain, decrypted)

	// A different key must not decrypt.
	other := &S3BlobStore{encryptionKey: bytes.Repeat([]byte{0x13}, 32)}
	_, err = other.decryptData(encrypted)
	assert.Error(t, err)
}

func TestDecryptRejectsShortData(t *testing.T) {
	s := &S3BlobStore{encryptionKey: bytes.Repeat([]byte{0x42}, 32)}
	_, err := s.decryptData([]byte{0x01, 0x02})
	assert.Error(t, err)
}

func TestValidateIntegrity(t *testing.T) {
	s := &S3BlobStore{}
	data := []byte("content")

	// sha256("content")
	assert.NoError(t, s.ValidateIntegrity(data,
		"ed7002b439e9ac845f22357d822bac1444730fbdb6016d3ec9432297b9ec9f73"))
	assert.Error(t, s.ValidateIntegrity(data, "deadbeef"))
}
