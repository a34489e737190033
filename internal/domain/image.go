package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"mime"
	"net/http"
	"strings"
)

// JPEGMediaType is the media type of every NormalizedAsset.
const JPEGMediaType = "image/jpeg"

// RawImage is the user-supplied photo before normalization.
type RawImage struct {
	Name      string
	MediaType string
	Data      []byte
	Size      int64
}

// NewRawImage wraps data, sniffing the media type when none is declared.
func NewRawImage(name, mediaType string, data []byte) RawImage {
	mediaType = normalizeMediaType(mediaType)
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = normalizeMediaType(http.DetectContentType(data))
	}
	return RawImage{
		Name:      strings.TrimSpace(name),
		MediaType: mediaType,
		Data:      data,
		Size:      int64(len(data)),
	}
}

// Validate rejects anything that is not declared as an image.
func (r RawImage) Validate() error {
	if len(r.Data) == 0 {
		return NewError(KindValidation, "image is empty", nil)
	}
	if !strings.HasPrefix(normalizeMediaType(r.MediaType), "image/") {
		return NewError(KindValidation, "file is not an image", nil)
	}
	return nil
}

// Identity returns a content hash of the image bytes.
func (r RawImage) Identity() string {
	sum := sha256.Sum256(r.Data)
	return hex.EncodeToString(sum[:])
}

// NormalizedAsset is the JPEG payload produced from a RawImage.
type NormalizedAsset struct {
	Data         []byte
	Width        int
	Height       int
	SourceWidth  int
	SourceHeight int
	Quality      int
}

// MediaType is always JPEG.
func (NormalizedAsset) MediaType() string { return JPEGMediaType }

// RemoteHandle identifies an uploaded asset inside the remote service. It may
// only be consumed by a single workflow call.
type RemoteHandle string

func normalizeMediaType(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(v); err == nil {
		return strings.ToLower(parsed)
	}
	return strings.ToLower(v)
}
