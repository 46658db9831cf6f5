package image

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlantImageKey(t *testing.T) {
	tests := []struct {
		contentType string
		want        string
	}{
		{"image/jpeg", "plant-diagnoses/u1/abc.jpg"},
		{"image/png", "plant-diagnoses/u1/abc.png"},
		{"image/webp", "plant-diagnoses/u1/abc.webp"},
		{"image/heic", "plant-diagnoses/u1/abc.heic"},
		{"application/octet-stream", "plant-diagnoses/u1/abc.jpg"},
		{"", "plant-diagnoses/u1/abc.jpg"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PlantImageKey("u1", "abc", tt.contentType), tt.contentType)
	}
}

func TestMemoryStore_PutGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	url, err := s.Put(ctx, "plant-diagnoses/u1/a.png", []byte{1, 2, 3}, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "/api/images/plant-diagnoses/u1/a.png", url)

	obj, err := s.Get(ctx, "/plant-diagnoses/u1/a.png")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, obj.Data)
	assert.Equal(t, "image/png", obj.ContentType)

	_, err = s.Get(ctx, "plant-diagnoses/u1/missing.png")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNormalizeKey_RejectsTraversal(t *testing.T) {
	for _, key := range []string{"", "  ", "a/../b", "a//b", "./a"} {
		_, err := normalizeKey(key)
		assert.ErrorIs(t, err, ErrInvalidKey, key)
	}

	_, err := NewMemoryStore().Get(context.Background(), "plant-diagnoses/../secrets")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestDetectContentType(t *testing.T) {
	ftyp := func(brand string) []byte {
		return append([]byte{0, 0, 0, 0x10, 'f', 't', 'y', 'p'}, append([]byte(brand), 0, 0, 0, 0)...)
	}
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"heic", ftyp("heic"), "image/heic"},
		{"heif", ftyp("mif1"), "image/heif"},
		{"avif", ftyp("avif"), "image/avif"},
		{"png", []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), "image/png"},
		{"mp4 is not an image", ftyp("mp42"), "video/mp4"},
		{"text", []byte("hello"), "text/plain; charset=utf-8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectContentType(tt.data)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.True(t, IsImage("image/heic"))
	assert.False(t, IsImage("video/mp4"))
}

func TestNewS3Store_RequiresConfig(t *testing.T) {
	_, err := NewS3Store(S3Config{})
	assert.Error(t, err)
	_, err = NewS3Store(S3Config{Endpoint: "minio:9000", AccessKey: "a", SecretKey: "b"})
	assert.Error(t, err)

	s, err := NewS3Store(S3Config{Endpoint: "minio:9000", AccessKey: "a", SecretKey: "b", Bucket: "images", PublicBaseURL: "https://cdn.example.com/"})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com", s.publicBase)
	assert.Equal(t, "us-east-1", s.region)
}
