// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package raptorcast

import "errors"

var (
	// ErrInvalidConfig is returned (wrapped) for a bad engine
	// configuration, bad propagation options, or input the encoder or
	// tree builder rejects. The wrapped error names the cause.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnknownMessage is returned (wrapped) by operations on a
	// message id with no stored broadcast.
	ErrUnknownMessage = errors.New("unknown message")

	// ErrNotInitialized is returned by every operation called before
	// Engine.Initialize.
	ErrNotInitialized = errors.New("engine not initialized")

	// ErrClosed is returned by operations on a closed engine.
	ErrClosed = errors.New("engine closed")
)
