// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package signer

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/gomega"
)

var message = []byte(`{"content_id":"Q29udGVudEZvbw==","policy":"PolicyFoo"}`)

func TestAESSigner(t *testing.T) {
	key := bytes.Repeat([]byte{0x1e}, 32)
	iv := bytes.Repeat([]byte{0xd5}, 16)

	t.Run("signs the padded sha1 digest", func(t *testing.T) {
		g := NewWithT(t)

		s, err := NewAESSigner("widevine_test", key, iv)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(s.Name()).To(Equal("widevine_test"))

		signature, err := s.Sign(message)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(signature).To(HaveLen(32))

		block, err := aes.NewCipher(key)
		g.Expect(err).ToNot(HaveOccurred())
		plain := make([]byte, len(signature))
		cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, signature)

		digest := sha1.Sum(message)
		g.Expect(plain[:sha1.Size]).To(Equal(digest[:]))
		g.Expect(plain[sha1.Size:]).To(Equal(bytes.Repeat([]byte{12}, 12)))
	})

	t.Run("is deterministic", func(t *testing.T) {
		g := NewWithT(t)

		s, err := NewAESSignerFromHex("widevine_test",
			"1e1e1e1e1e1e1e1e1e1e1e1e1e1e1e1e1e1e1e1e1e1e1e1e1e1e1e1e1e1e1e1e",
			"d5d5d5d5d5d5d5d5d5d5d5d5d5d5d5d5")
		g.Expect(err).ToNot(HaveOccurred())

		first, _ := s.Sign(message)
		second, _ := s.Sign(message)
		g.Expect(first).To(Equal(second))
	})

	t.Run("rejects invalid keys", func(t *testing.T) {
		g := NewWithT(t)

		_, err := NewAESSigner("widevine_test", []byte("short"), iv)
		g.Expect(err).To(MatchError(ErrInvalidKey))

		_, err = NewAESSigner("widevine_test", key, []byte("short"))
		g.Expect(err).To(MatchError(ErrInvalidIV))

		_, err = NewAESSigner("", key, iv)
		g.Expect(err).To(MatchError(ErrNameRequired))

		_, err = NewAESSignerFromHex("widevine_test", "zz", "00")
		g.Expect(err).To(MatchError(ErrInvalidKey))
	})
}

func TestRSASigner(t *testing.T) {
	g := NewWithT(t)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	g.Expect(err).ToNot(HaveOccurred())

	t.Run("signature verifies with PSS SHA-1", func(t *testing.T) {
		g := NewWithT(t)

		s, err := NewRSASigner("widevine_test", key)
		g.Expect(err).ToNot(HaveOccurred())

		signature, err := s.Sign(message)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(VerifyRSA(&key.PublicKey, message, signature)).To(Succeed())

		err = VerifyRSA(&key.PublicKey, []byte("tampered"), signature)
		g.Expect(err).To(MatchError(ErrVerifySig))
	})

	t.Run("loads PKCS#1 and PKCS#8 PEM files", func(t *testing.T) {
		g := NewWithT(t)
		dir := t.TempDir()

		pkcs1 := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
		der, err := x509.MarshalPKCS8PrivateKey(key)
		g.Expect(err).ToNot(HaveOccurred())
		pkcs8 := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

		for name, data := range map[string][]byte{"pkcs1.pem": pkcs1, "pkcs8.pem": pkcs8, "pkcs8.der": der} {
			path := filepath.Join(dir, name)
			g.Expect(os.WriteFile(path, data, 0600)).To(Succeed())

			s, err := NewRSASignerFromFile("widevine_test", path)
			g.Expect(err).ToNot(HaveOccurred(), name)
			g.Expect(s.key.Equal(key)).To(BeTrue(), name)
		}
	})

	t.Run("rejects non RSA data", func(t *testing.T) {
		g := NewWithT(t)

		_, err := ParseRSAPrivateKey([]byte("not a key"))
		g.Expect(err).To(MatchError(ErrInvalidKey))
	})
}

func TestEd25519Signer(t *testing.T) {
	t.Run("sign and verify with the generated pair", func(t *testing.T) {
		g := NewWithT(t)

		publicSet, privateSet, err := NewKeySetPair("widevine_test")
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(publicSet.Keys).To(HaveLen(1))
		g.Expect(publicSet.Signer).To(BeEmpty())

		s, err := NewEd25519Signer(privateSet)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(s.Name()).To(Equal("widevine_test"))
		g.Expect(s.KeyID()).To(Equal(publicSet.Keys[0].KeyID))

		signature, err := s.Sign(message)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(VerifyEd25519(publicSet, s.KeyID(), message, signature)).To(Succeed())

		err = VerifyEd25519(publicSet, s.KeyID(), []byte("tampered"), signature)
		g.Expect(err).To(MatchError(ErrVerifySig))
	})

	t.Run("round trips through files", func(t *testing.T) {
		g := NewWithT(t)
		dir := t.TempDir()

		publicSet, privateSet, err := NewKeySetPair("widevine_test")
		g.Expect(err).ToNot(HaveOccurred())

		privatePath := filepath.Join(dir, "private.jwks")
		publicPath := filepath.Join(dir, "public.jwks")
		g.Expect(privateSet.WriteFile(privatePath)).To(Succeed())
		g.Expect(publicSet.WriteFile(publicPath)).To(Succeed())

		info, err := os.Stat(privatePath)
		g.Expect(err).ToNot(HaveOccurred())
		g.Expect(info.Mode().Perm()).To(Equal(os.FileMode(0600)))

		err = privateSet.WriteFile(privatePath)
		g.Expect(err).To(HaveOccurred())
		g.Expect(err.Error()).To(ContainSubstring("refusing to overwrite"))

		s, err := NewEd25519SignerFromFile(privatePath)
		g.Expect(err).ToNot(HaveOccurred())

		loaded, err := KeySetFromFile(publicPath)
		g.Expect(err).ToNot(HaveOccurred())

		signature, _ := s.Sign(message)
		g.Expect(VerifyEd25519(loaded, s.KeyID(), message, signature)).To(Succeed())
	})

	t.Run("rejects public sets", func(t *testing.T) {
		g := NewWithT(t)

		publicSet, _, err := NewKeySetPair("widevine_test")
		g.Expect(err).ToNot(HaveOccurred())

		_, err = NewEd25519Signer(publicSet)
		g.Expect(err).To(MatchError(ErrInvalidKey))
	})

	t.Run("rejects empty sets", func(t *testing.T) {
		g := NewWithT(t)

		_, err := KeySetFromJSON([]byte(`{"keys":[]}`))
		g.Expect(err).To(MatchError(ErrKeySetEmpty))

		_, _, err = NewKeySetPair("")
		g.Expect(err).To(MatchError(ErrNameRequired))
	})
}
