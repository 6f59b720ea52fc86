package shared

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// Request decoding errors.
var (
	// ErrBodyTooLarge is returned when the body exceeds the decoder's limit.
	ErrBodyTooLarge = errors.New("request body too large")

	// ErrMalformedJSON is returned when the body is not a single JSON value.
	ErrMalformedJSON = errors.New("malformed JSON")

	// ErrUnexpectedShape is returned when the body is valid JSON but has
	// unknown fields or fields of the wrong type.
	ErrUnexpectedShape = errors.New("unexpected JSON shape")
)

// Global validator instance for reuse
var validate = validator.New()

// DecodeStrictJSON decodes exactly one JSON value from the request body into
// v. At most maxBytes are read and unknown object fields are rejected.
func DecodeStrictJSON(r *http.Request, maxBytes int64, v interface{}) error {
	body := http.MaxBytesReader(nil, r.Body, maxBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		return classifyDecodeError(err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err != nil {
			return classifyDecodeError(err)
		}
		return fmt.Errorf("%w: trailing data after JSON value", ErrMalformedJSON)
	}
	return nil
}

func classifyDecodeError(err error) error {
	var (
		maxBytesErr *http.MaxBytesError
		syntaxErr   *json.SyntaxError
		typeErr     *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &maxBytesErr):
		return fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, maxBytesErr.Limit)
	case errors.As(err, &syntaxErr),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	case errors.As(err, &typeErr):
		return fmt.Errorf("%w: %v", ErrUnexpectedShape, err)
	default:
		// encoding/json reports unknown fields with an untyped error.
		return fmt.Errorf("%w: %v", ErrUnexpectedShape, err)
	}
}

// ValidateRequest validates the given struct using the validator package.
func ValidateRequest(v interface{}) error {
	if validator, ok := v.(interface{ Validate() error }); ok {
		return validator.Validate()
	}
	return validate.Struct(v)
}
