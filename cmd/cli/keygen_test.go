// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"fmt"
	"hash/adler32"
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/controlplaneio-fluxcd/drm-keysource/internal/export"
	"github.com/controlplaneio-fluxcd/drm-keysource/internal/signer"
)

func TestKeygenSigCmd(t *testing.T) {
	g := NewWithT(t)
	tmpDir := t.TempDir()

	output, err := executeCommand([]string{"keygen", "sig", "my-packager", "--output-dir", tmpDir})
	g.Expect(err).ToNot(HaveOccurred())

	id := fmt.Sprintf("%08x", adler32.Checksum([]byte("my-packager")))
	privatePath := filepath.Join(tmpDir, id+"-sig-private.jwks")
	g.Expect(output).To(ContainSubstring("private key set written to: " + privatePath))

	keySet, err := signer.KeySetFromFile(privatePath)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(keySet.Signer).To(Equal("my-packager"))

	info, err := os.Stat(privatePath)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(info.Mode().Perm()).To(Equal(os.FileMode(0600)))

	_, err = os.Stat(filepath.Join(tmpDir, id+"-sig-public.jwks"))
	g.Expect(err).ToNot(HaveOccurred())

	_, err = executeCommand([]string{"keygen", "sig", "my-packager", "--output-dir", tmpDir})
	g.Expect(err).To(HaveOccurred())
	g.Expect(err.Error()).To(ContainSubstring("refusing to overwrite"))
}

func TestKeygenEncCmd(t *testing.T) {
	g := NewWithT(t)
	tmpDir := t.TempDir()

	_, err := executeCommand([]string{"keygen", "enc", "cdn-origin", "--output-dir", tmpDir})
	g.Expect(err).ToNot(HaveOccurred())

	id := fmt.Sprintf("%08x", adler32.Checksum([]byte("cdn-origin")))
	publicKeySet, err := export.ReadKeySet(filepath.Join(tmpDir, id+"-enc-public.jwks"))
	g.Expect(err).ToNot(HaveOccurred())
	privateKeySet, err := export.ReadKeySet(filepath.Join(tmpDir, id+"-enc-private.jwks"))
	g.Expect(err).ToNot(HaveOccurred())

	jwe, err := export.Encrypt([]byte(`{"keys":[]}`), publicKeySet, "")
	g.Expect(err).ToNot(HaveOccurred())
	data, err := export.Decrypt([]byte(jwe), privateKeySet)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(string(data)).To(Equal(`{"keys":[]}`))
}

func TestKeygenCmd_InvalidOutputDir(t *testing.T) {
	g := NewWithT(t)

	_, err := executeCommand([]string{"keygen", "enc", "cdn-origin", "--output-dir", "/non/existent"})
	g.Expect(err).To(HaveOccurred())
	g.Expect(err.Error()).To(ContainSubstring("does not exist"))
}
