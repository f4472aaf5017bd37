// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding configuration shared by
// every package that persists or hashes structured values.
//
// Provenance store values and serialized broadcast trees are CBOR.
// JSON is used only at the edges: CLI --json output and configuration
// files. The encoder uses Core Deterministic Encoding (RFC 8949 §4.2),
// so the same logical value always produces identical bytes and
// therefore an identical commitment root.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// # Struct Tags
//
// Types in this module carry `json` tags only. fxamacker/cbor v2
// reads `json` tags when `cbor` tags are absent, so one tag controls
// field naming and omitempty for both the stored CBOR and the CLI's
// JSON output.
package codec
