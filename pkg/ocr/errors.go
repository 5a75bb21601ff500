package ocr

import "errors"

var (
	// ErrImageDecode is returned when the input is not a decodable image.
	ErrImageDecode = errors.New("image decode failed")
	// ErrNoTextExtracted is returned when no profile produced any text.
	ErrNoTextExtracted = errors.New("no text extracted")
	// ErrTimeout is returned when recognition did not finish before the context deadline.
	ErrTimeout = errors.New("ocr timed out")
	// ErrEngineUnavailable means tesseract could not be initialised.
	ErrEngineUnavailable = errors.New("ocr engine unavailable")
)
