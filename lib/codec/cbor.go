// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	// Commitment roots hash the encoded bytes, so the encoder must be
	// deterministic: Core Deterministic Encoding plus text form for
	// hashes and statuses, matching their JSON.
	encMode = must(cbor.EncOptions{
		Sort:          cbor.SortCoreDeterministic,
		ShortestFloat: cbor.ShortestFloat16,
		NaNConvert:    cbor.NaNConvert7e00,
		InfConvert:    cbor.InfConvertFloat16,
		IndefLength:   cbor.IndefLengthForbidden,
		TextMarshaler: cbor.TextMarshalerTextString,
	}.EncMode())

	// Decoding into any yields string-keyed maps so the CLI can print
	// history values as JSON. Unknown fields are ignored.
	decMode = must(cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode())

	// Byte strings that hold UTF-8 are shown as text, which is what a
	// payload usually is.
	diagMode = must(cbor.DiagOptions{
		ByteStringText: true,
	}.DiagMode())
)

func must[M any](mode M, err error) M {
	if err != nil {
		panic("codec: " + err.Error())
	}
	return mode
}

// Marshal encodes v deterministically.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Decode decodes data as a T.
func Decode[T any](data []byte) (T, error) {
	var v T
	err := decMode.Unmarshal(data, &v)
	return v, err
}

// Diagnose renders data in CBOR diagnostic notation (RFC 8949 §8).
func Diagnose(data []byte) (string, error) {
	return diagMode.Diagnose(data)
}
