// Package jsoncodec wraps the sonic JSON implementation behind the small
// surface the wire layer needs. Messages crossing a transport are encoded
// here so the rest of the module never imports a JSON package directly.
package jsoncodec

import (
	"fmt"
	"io"

	"github.com/bytedance/sonic"
)

var defaultConfig = sonic.ConfigStd

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return defaultConfig.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(data, v)
}

func Encode(w io.Writer, v any) error {
	enc := defaultConfig.NewEncoder(w)
	return enc.Encode(v)
}

func Decode(r io.Reader, v any) error {
	dec := defaultConfig.NewDecoder(r)
	return dec.Decode(v)
}

// MarshalValue encodes v, wrapping failures with the value's type so wire
// errors identify which message could not be encoded.
func MarshalValue[T any](v T) ([]byte, error) {
	data, err := Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("reqflow: encode %T: %w", v, err)
	}
	return data, nil
}

// UnmarshalValue decodes data into a fresh T.
func UnmarshalValue[T any](data []byte) (T, error) {
	var v T
	if err := Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("reqflow: decode %T: %w", v, err)
	}
	return v, nil
}
