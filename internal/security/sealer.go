package security

import (
	"errors"
	"strings"

	"github.com/fernet/fernet-go"
)

// Sealer encrypts message text at rest with fernet. Additional keys are
// accepted for opening only, which allows key rotation.
type Sealer struct {
	keys []*fernet.Key
}

// NewSealer parses the primary fernet key and any previous keys.
func NewSealer(primary string, previous ...string) (*Sealer, error) {
	k, err := fernet.DecodeKey(strings.TrimSpace(primary))
	if err != nil {
		return nil, errors.New("encryption key must be a base64 fernet key")
	}
	keys := []*fernet.Key{k}
	for _, raw := range previous {
		if pk, err := fernet.DecodeKey(strings.TrimSpace(raw)); err == nil {
			keys = append(keys, pk)
		}
	}
	return &Sealer{keys: keys}, nil
}

func (s *Sealer) Seal(plain string) (string, error) {
	tok, err := fernet.EncryptAndSign([]byte(plain), s.keys[0])
	if err != nil {
		return "", err
	}
	return string(tok), nil
}

// Open reverses Seal. Tokens never expire.
func (s *Sealer) Open(sealed string) (string, error) {
	plain := fernet.VerifyAndDecrypt([]byte(sealed), 0, s.keys)
	if plain == nil {
		return "", errors.New("failed to open sealed text")
	}
	return string(plain), nil
}
