package keystore

import (
	"bytes"
	"fmt"
	"io"

	"filippo.io/age"
)

// DefaultWorkFactor is the scrypt log2 work factor used for new files.
const DefaultWorkFactor = 18

// encrypt seals plaintext for a passphrase with an age scrypt recipient.
func encrypt(plaintext, passphrase []byte, workFactor int) ([]byte, error) {
	recipient, err := age.NewScryptRecipient(string(passphrase))
	if err != nil {
		return nil, fmt.Errorf("creating scrypt recipient: %w", err)
	}
	if workFactor > 0 {
		recipient.SetWorkFactor(workFactor)
	}

	buf := &bytes.Buffer{}
	w, err := age.Encrypt(buf, recipient)
	if err != nil {
		return nil, fmt.Errorf("initializing encryption: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing encrypted data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing encryption: %w", err)
	}
	return buf.Bytes(), nil
}

// decrypt opens an age scrypt file into SecureBytes.
func decrypt(ciphertext, passphrase []byte) (*SecureBytes, error) {
	identity, err := age.NewScryptIdentity(string(passphrase))
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}

	r, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("initializing decryption: %w", err)
	}

	plaintext, err := io.ReadAll(r)
	defer zero(plaintext)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted data: %w", err)
	}
	return NewSecureBytes(plaintext), nil
}
