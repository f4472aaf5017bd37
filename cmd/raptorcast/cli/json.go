// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"io"
	"reflect"
)

// JSONOutput is an embeddable struct that adds --json output support to
// a command's parameter struct.
//
//	type historyParams struct {
//	    cli.JSONOutput
//	    Limit int `flag:"limit" desc:"maximum entries"`
//	}
//
//	// In Run:
//	if done, err := params.EmitJSON(out, entries); done {
//	    return err
//	}
//	// ... text formatting ...
type JSONOutput struct {
	OutputJSON bool `json:"-" flag:"json" desc:"output as JSON"`
}

// EmitJSON writes result as indented JSON to w if --json is set.
// Returns (true, nil) on success, (true, err) on write failure, or
// (false, nil) when --json is not set and the caller should proceed
// with text formatting.
//
// Nil slices are written as [] rather than null.
func (j *JSONOutput) EmitJSON(w io.Writer, result any) (bool, error) {
	if !j.OutputJSON {
		return false, nil
	}
	return true, WriteJSON(w, normalizeNilSlice(result))
}

// WriteJSON marshals value as indented JSON and writes it to w.
func WriteJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

// normalizeNilSlice returns an empty slice of the same type if value
// is a nil slice. Returns value unchanged for all other types.
func normalizeNilSlice(value any) any {
	v := reflect.ValueOf(value)
	if v.Kind() == reflect.Slice && v.IsNil() {
		return reflect.MakeSlice(v.Type(), 0, 0).Interface()
	}
	return value
}
