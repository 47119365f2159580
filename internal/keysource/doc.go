// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

// Package keysource implements drm.KeySource on top of a Widevine
// license service, and a raw key source serving fixed keys.
//
// The Widevine key source fetches the keys of a title synchronously in
// FetchKeys. Failed attempts are retried with exponential backoff when
// the fetcher times out or the service reports a transient error, every
// other failure is returned immediately.
//
// With key rotation enabled, the first call to GetCryptoPeriodKey
// releases a background producer that requests batches of crypto period
// keys ahead of the consumer and adds them to a bounded key pool. Keys
// of crypto periods that fall behind the consumer are discarded when
// newer periods are looked up.
package keysource
