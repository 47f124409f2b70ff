package network

import (
	"crypto/ed25519"
	"crypto/rand"
	"os"

	"golang.org/x/crypto/ssh"
)

// GenerateTestKey creates a client key and appends its public half to the
// authorized_keys file at authKeysPath.
func GenerateTestKey(authKeysPath string) (ssh.Signer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(authKeysPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if _, err := f.Write(ssh.MarshalAuthorizedKey(signer.PublicKey())); err != nil {
		return nil, err
	}
	return signer, nil
}
