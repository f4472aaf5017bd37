// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads raptorcast configuration files.
//
// Configuration comes from a single file named by either the
// RAPTORCAST_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There is no discovery and no search path.
// Files ending in .json or .jsonc are JSON with comments and trailing
// commas; everything else is YAML.
//
// The file has engine, store and nodes sections, plus development and
// production sections that override base values when
// [Config].Environment matches. Production without a production
// section gets a durable store.
//
// The store path and encryption key expand ${HOME} and ${VAR:-default}
// after loading, so a key can be supplied as ${RAPTORCAST_STORE_KEY}
// without being written to the file. No other environment variables
// override config values.
//
// This package depends on no other raptorcast packages; cmd/raptorcast
// maps a [Config] onto the engine and store configuration.
package config
