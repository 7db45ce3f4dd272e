package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"codezen/internal/config"
	"codezen/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 120, A: 255})
		}
	}
	return img
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage(w, h)))
	return buf.Bytes()
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, testImage(w, h), &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func newTestUploadService(t *testing.T) *UploadService {
	t.Helper()
	return NewUploadService(&config.Config{UploadDir: t.TempDir(), UploadMaxSizeMB: 1})
}

func TestUploadService_SavePNG(t *testing.T) {
	svc := newTestUploadService(t)
	content := pngBytes(t, 640, 480)

	img, err := svc.Save(context.Background(), UploadImageInput{Filename: "chart.png", ContentType: "image/png", Content: content})
	require.NoError(t, err)

	assert.Equal(t, contentHash(content), img.Hash)
	assert.Equal(t, "/uploads/"+img.Hash+"/master.jpg", img.URL)
	assert.Equal(t, 640, img.Width)
	assert.Equal(t, 480, img.Height)

	for _, name := range []string{"master.jpg", "master.webp", "thumb.jpg"} {
		_, statErr := os.Stat(filepath.Join(svc.Dir(), img.Hash, name))
		assert.NoError(t, statErr, name)
	}

	thumb, err := os.Open(filepath.Join(svc.Dir(), img.Hash, "thumb.jpg"))
	require.NoError(t, err)
	defer func() { _ = thumb.Close() }()
	cfg, format, err := image.DecodeConfig(thumb)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, ThumbnailSize, cfg.Width)
	assert.Equal(t, 240, cfg.Height)
}

func TestUploadService_SameContentReusesFiles(t *testing.T) {
	svc := newTestUploadService(t)
	content := jpegBytes(t, 100, 50)

	first, err := svc.Save(context.Background(), UploadImageInput{ContentType: "image/jpeg", Content: content})
	require.NoError(t, err)
	second, err := svc.Save(context.Background(), UploadImageInput{ContentType: "image/jpg", Content: content})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	entries, err := os.ReadDir(svc.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestUploadService_Rejects(t *testing.T) {
	svc := newTestUploadService(t)

	tests := []struct {
		name string
		in   UploadImageInput
	}{
		{"empty", UploadImageInput{}},
		{"not an image", UploadImageInput{ContentType: "text/plain", Content: []byte("hello world")}},
		{"too large", UploadImageInput{Content: make([]byte, svc.MaxUploadSizeBytes()+1)}},
		{"corrupt png", UploadImageInput{Content: append([]byte("\x89PNG\r\n\x1a\n"), []byte("garbage")...)}},
		{"type mismatch", UploadImageInput{ContentType: "image/gif", Content: pngBytes(t, 8, 8)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Save(context.Background(), tt.in)
			assertValidationError(t, err)
		})
	}

	entries, err := os.ReadDir(svc.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNewUploadService_Defaults(t *testing.T) {
	svc := NewUploadService(nil)
	assert.Equal(t, DefaultUploadDir, svc.Dir())
	assert.Equal(t, int64(DefaultMaxUploadSizeMB)*1024*1024, svc.MaxUploadSizeBytes())
}

func TestResizeToFit(t *testing.T) {
	small := testImage(10, 20)
	assert.Same(t, image.Image(small), resizeToFit(small, 100, 100))

	out := resizeToFit(testImage(1000, 250), 200, 200)
	assert.Equal(t, 200, out.Bounds().Dx())
	assert.Equal(t, 50, out.Bounds().Dy())
}

func TestUploadErrorsAreValidationErrors(t *testing.T) {
	_, err := newTestUploadService(t).Save(context.Background(), UploadImageInput{Content: []byte("nope")})
	assert.True(t, models.HasCode(err, models.CodeValidation))
}
