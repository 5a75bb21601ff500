package ocr

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
)

func pngBase64(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.New(8, 4, color.NRGBA{255, 255, 255, 255}), imaging.PNG); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestDecodeBase64(t *testing.T) {
	raw := pngBase64(t)
	for _, in := range []string{raw, "data:image/png;base64," + raw, "  " + raw + "\n"} {
		img, err := DecodeBase64(in)
		if err != nil {
			t.Fatalf("decode %q...: %v", in[:10], err)
		}
		if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 4 {
			t.Fatalf("unexpected bounds %v", img.Bounds())
		}
	}
}

func TestDecodeBase64Invalid(t *testing.T) {
	for _, in := range []string{"", "data:image/png;base64,", "!!!not-base64", base64.StdEncoding.EncodeToString([]byte("plain text"))} {
		if _, err := DecodeBase64(in); !errors.Is(err, ErrImageDecode) {
			t.Fatalf("DecodeBase64(%q) expected ErrImageDecode got %v", in, err)
		}
	}
}
