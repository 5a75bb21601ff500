package analyzer

import (
	"errors"

	"labelscan/pkg/classify"
	"labelscan/pkg/ocr"
)

// Failure kinds.
const (
	KindImageDecode        = "image_decode"
	KindNoTextExtracted    = "no_text_extracted"
	KindTimeout            = "timeout"
	KindValidation         = "validation"
	KindServiceUnavailable = "service_unavailable"
	KindMalformedResponse  = "malformed_response"
	KindSchemaValidation   = "schema_validation"
	KindInternal           = "internal"
)

// Failure describes why an analysis did not produce a result.
type Failure struct {
	Kind      string   `json:"kind"`
	Reason    string   `json:"reason"`
	Retryable bool     `json:"retryable"`
	Fields    []string `json:"fields,omitempty"`
	Raw       string   `json:"raw,omitempty"`
}

// Outcome is either a Result or a Failure, never both.
type Outcome struct {
	Success bool     `json:"success"`
	Result  *Result  `json:"result,omitempty"`
	Failure *Failure `json:"error,omitempty"`
}

// NewOutcome tags res or err.
func NewOutcome(res *Result, err error) Outcome {
	if err == nil && res != nil {
		return Outcome{Success: true, Result: res}
	}
	if err == nil {
		err = errors.New("empty analysis result")
	}
	return Outcome{Failure: Classify(err)}
}

// Classify maps an analysis error to its Failure.
func Classify(err error) *Failure {
	f := &Failure{Kind: KindInternal, Reason: err.Error()}

	var (
		suErr     *classify.ServiceUnavailableError
		mErr      *classify.MalformedResponseError
		schemaErr *classify.SchemaValidationError
	)
	switch {
	case errors.As(err, &suErr):
		f.Kind, f.Retryable = KindServiceUnavailable, true
		if suErr.Timeout() {
			f.Kind = KindTimeout
		}
	case errors.As(err, &schemaErr):
		f.Kind = KindSchemaValidation
		f.Fields = append(append([]string(nil), schemaErr.Missing...), schemaErr.Invalid...)
		f.Raw = schemaErr.Raw
	case errors.As(err, &mErr):
		f.Kind = KindMalformedResponse
		f.Raw = mErr.Raw
	case errors.Is(err, ocr.ErrTimeout):
		f.Kind, f.Retryable = KindTimeout, true
	case errors.Is(err, ocr.ErrImageDecode):
		f.Kind = KindImageDecode
	case errors.Is(err, ocr.ErrNoTextExtracted):
		f.Kind = KindNoTextExtracted
	case errors.Is(err, classify.ErrValidation):
		f.Kind = KindValidation
	}
	return f
}

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	return err != nil && Classify(err).Retryable
}
