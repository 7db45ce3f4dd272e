package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/gif" // Register GIF decoder
	_ "image/png" // Register PNG decoder
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"codezen/internal/config"
	"codezen/internal/models"
	"codezen/internal/observability"

	"github.com/chai2010/webp"
	"go.opentelemetry.io/otel/attribute"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const (
	DefaultUploadDir       = "uploads"
	DefaultMaxUploadSizeMB = 10
	MasterMaxSize          = 2048
	ThumbnailSize          = 320
	JPEGQuality            = 82
	WebPQuality            = 70

	// UploadURLPrefix is where the server mounts the upload directory.
	UploadURLPrefix = "/uploads"
)

type UploadImageInput struct {
	Filename    string
	ContentType string
	Content     []byte
}

// UploadedImage describes the files written for one upload. URL is what a post stores as its image reference.
type UploadedImage struct {
	Hash         string `json:"hash"`
	URL          string `json:"url"`
	WebPURL      string `json:"webpUrl"`
	ThumbnailURL string `json:"thumbnailUrl"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
}

type UploadService struct {
	uploadDir          string
	maxUploadSizeBytes int64
}

func NewUploadService(cfg *config.Config) *UploadService {
	uploadDir := DefaultUploadDir
	maxUploadSizeMB := DefaultMaxUploadSizeMB

	if cfg != nil {
		if cfg.UploadDir != "" {
			uploadDir = cfg.UploadDir
		}
		if cfg.UploadMaxSizeMB > 0 {
			maxUploadSizeMB = cfg.UploadMaxSizeMB
		}
	}

	return &UploadService{
		uploadDir:          uploadDir,
		maxUploadSizeBytes: int64(maxUploadSizeMB) * 1024 * 1024,
	}
}

// Dir is the directory uploads are written to.
func (s *UploadService) Dir() string {
	return s.uploadDir
}

// MaxUploadSizeBytes is the largest accepted upload.
func (s *UploadService) MaxUploadSizeBytes() int64 {
	return s.maxUploadSizeBytes
}

// Save validates an uploaded image and stores a normalized JPEG master, a WebP
// copy and a JPEG thumbnail under a directory named after the content hash.
// Uploading the same bytes twice reuses the stored files.
func (s *UploadService) Save(ctx context.Context, in UploadImageInput) (*UploadedImage, error) {
	span, _ := observability.StartSpan(ctx, "UploadService.Save", attribute.Int("upload.bytes", len(in.Content)))
	defer span.End()

	decoded, err := s.decodeUpload(in)
	if err != nil {
		return nil, err
	}

	hash := contentHash(in.Content)
	result := describeUpload(hash)
	target := filepath.Join(s.uploadDir, hash)

	if cfg, ok := storedMaster(target); ok {
		result.Width, result.Height = cfg.Width, cfg.Height
		return result, nil
	}

	master := resizeToFit(decoded, MasterMaxSize, MasterMaxSize)
	if err := s.publish(target, renditions(master)); err != nil {
		span.SetError(err)
		return nil, models.NewInternalError(err)
	}

	result.Width, result.Height = master.Bounds().Dx(), master.Bounds().Dy()
	span.AddAttributes(attribute.String("upload.hash", hash))
	return result, nil
}

// decodeUpload sniffs, decodes and cross-checks the declared content type.
// A generic or missing declared type is accepted as long as the bytes decode.
func (s *UploadService) decodeUpload(in UploadImageInput) (image.Image, error) {
	if len(in.Content) == 0 {
		return nil, models.NewValidationError("No file uploaded")
	}
	if int64(len(in.Content)) > s.maxUploadSizeBytes {
		return nil, models.NewValidationError(fmt.Sprintf("File too large (max %dMB)", s.maxUploadSizeBytes/(1024*1024)))
	}
	if _, ok := imageFormatOf(http.DetectContentType(in.Content)); !ok {
		return nil, models.NewValidationError("Invalid image type")
	}

	img, format, err := image.Decode(bytes.NewReader(in.Content))
	if err != nil {
		return nil, models.NewValidationError("Invalid image file")
	}

	declared := mediaType(in.ContentType)
	if strings.HasPrefix(declared, "image/") {
		if f, ok := imageFormatOf(declared); !ok || f != format {
			return nil, models.NewValidationError("Image content type mismatch")
		}
	}
	return img, nil
}

// rendition is one file written per upload.
type rendition struct {
	name   string
	encode func() ([]byte, error)
}

func renditions(master image.Image) []rendition {
	thumb := resizeToFit(master, ThumbnailSize, ThumbnailSize)
	return []rendition{
		{"master.jpg", func() ([]byte, error) { return encodeJPEG(master) }},
		{"master.webp", func() ([]byte, error) {
			var buf bytes.Buffer
			err := webp.Encode(&buf, master, &webp.Options{Quality: WebPQuality})
			return buf.Bytes(), err
		}},
		{"thumb.jpg", func() ([]byte, error) { return encodeJPEG(thumb) }},
	}
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality})
	return buf.Bytes(), err
}

// publish writes every rendition into a staging directory next to target and
// renames it into place, so readers never see a partial upload. Losing the
// rename race to an identical upload is not an error.
func (s *UploadService) publish(target string, files []rendition) error {
	if err := os.MkdirAll(s.uploadDir, 0o750); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}
	staging, err := os.MkdirTemp(s.uploadDir, ".staging-")
	if err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(staging) }()

	for _, f := range files {
		data, err := f.encode()
		if err != nil {
			return fmt.Errorf("encode %s: %w", f.name, err)
		}
		if err := os.WriteFile(filepath.Join(staging, f.name), data, 0o600); err != nil {
			return fmt.Errorf("write %s: %w", f.name, err)
		}
	}

	if err := os.Rename(staging, target); err != nil {
		if _, ok := storedMaster(target); ok {
			return nil
		}
		return fmt.Errorf("publish upload: %w", err)
	}
	return nil
}

func describeUpload(hash string) *UploadedImage {
	base := UploadURLPrefix + "/" + hash + "/"
	return &UploadedImage{
		Hash:         hash,
		URL:          base + "master.jpg",
		WebPURL:      base + "master.webp",
		ThumbnailURL: base + "thumb.jpg",
	}
}

// storedMaster reports the dimensions of an already published upload.
func storedMaster(dir string) (image.Config, bool) {
	// #nosec G304: dir is built from a hex content hash
	f, err := os.Open(filepath.Join(dir, "master.jpg"))
	if err != nil {
		return image.Config{}, false
	}
	defer func() { _ = f.Close() }()
	cfg, _, err := image.DecodeConfig(f)
	return cfg, err == nil
}

// fitWithin scales w x h down to fit inside maxW x maxH keeping the aspect
// ratio. ok is false when no scaling is needed.
func fitWithin(w, h, maxW, maxH int) (int, int, bool) {
	if w <= 0 || h <= 0 || (w <= maxW && h <= maxH) {
		return w, h, false
	}
	scale := min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	return max(1, int(float64(w)*scale)), max(1, int(float64(h)*scale)), true
}

// resizeToFit returns src itself when it already fits.
func resizeToFit(src image.Image, maxW, maxH int) image.Image {
	b := src.Bounds()
	w, h, ok := fitWithin(b.Dx(), b.Dy(), maxW, maxH)
	if !ok {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Over, nil)
	return dst
}

// imageMIME maps accepted media types to the format name image.Decode reports.
var imageMIME = map[string]string{
	"image/jpeg":  "jpeg",
	"image/jpg":   "jpeg",
	"image/pjpeg": "jpeg",
	"image/png":   "png",
	"image/gif":   "gif",
	"image/webp":  "webp",
}

func imageFormatOf(contentType string) (string, bool) {
	f, ok := imageMIME[mediaType(contentType)]
	return f, ok
}

func mediaType(contentType string) string {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		return mt
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
