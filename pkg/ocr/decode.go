package ocr

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"io"
	"os"
	"strings"

	"github.com/disintegration/imaging"
)

// DecodeImage decodes an image and applies its EXIF orientation.
func DecodeImage(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	if img.Bounds().Empty() {
		return nil, ErrImageDecode
	}
	return img, nil
}

// DecodeBase64 decodes a base64 image. A data URL header ("data:image/png;base64,")
// is stripped when present.
func DecodeBase64(s string) (image.Image, error) {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "base64,"); i >= 0 {
		s = s[i+len("base64,"):]
	}
	if s == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrImageDecode)
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		// some clients drop the padding
		if data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "=")); err != nil {
			return nil, fmt.Errorf("%w: base64: %v", ErrImageDecode, err)
		}
	}
	return DecodeImage(bytes.NewReader(data))
}

// OpenImage reads and decodes an image file.
func OpenImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()
	return DecodeImage(f)
}
