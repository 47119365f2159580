// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

// Package license implements the JSON wire protocol spoken with the
// Widevine key server.
//
// A request is built from a RequestContext and serialized with its
// fields in lexical order, so the bytes handed to a signer are stable.
// When a signer is present the request is wrapped into an envelope
// carrying the base64 request, the signature and the signer name.
//
// Responses arrive as {"response": base64(inner)}. The inner document
// holds a status and the per track keys, which DecodeResponse turns into
// one drm.EncryptionKeyMap per batch. Status "OK" succeeds, the transient
// status is reported as drm.ErrTransientServer and anything else as
// drm.ErrServer.
package license
