// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

// Package drm defines the key provisioning model shared by the key sources,
// the license codec and the packaging pipeline that consumes the keys.
//
// The package provides:
//   - EncryptionKey and EncryptionKeyMap, the unit of key delivery where one
//     map holds the keys of a single batch indexed by track label.
//   - KeySystemInfo, the per DRM system initialization data of a key, with
//     serialization to and from ISO-BMFF 'pssh' boxes.
//   - ProtectionScheme, the common encryption scheme FourCC codes.
//   - WidevinePsshData encoding of key ids and content ids.
//   - KeySource, the contract implemented by the Widevine and raw key sources.
//   - The error taxonomy used to classify transport, protocol and lookup
//     failures.
package drm
