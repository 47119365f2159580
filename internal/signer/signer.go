// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

// Package signer provides the request signers used to authenticate
// license requests to the key server.
package signer

// RequestSigner signs license requests on behalf of a named signer
// registered with the license service.
type RequestSigner interface {
	// Name returns the signer identifier sent with the signature.
	Name() string

	// Sign returns the signature of message.
	Sign(message []byte) ([]byte, error)
}
