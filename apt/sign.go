package apt

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/clearsign"
)

// signingEntity returns the first entity holding a private key in an
// ASCII-armored keyring.
func signingEntity(key string) (*openpgp.Entity, error) {
	entities, err := openpgp.ReadArmoredKeyRing(strings.NewReader(key))
	if err != nil {
		return nil, fmt.Errorf("reading signing key: %w", err)
	}
	for _, e := range entities {
		if e.PrivateKey != nil {
			return e, nil
		}
	}
	return nil, fmt.Errorf("no private key found")
}

// signBytes clearsigns input with the provided ASCII-armored PGP private key.
func signBytes(input []byte, key string) ([]byte, error) {
	signer, err := signingEntity(key)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	w, err := clearsign.Encode(&out, signer.PrivateKey, nil)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(input); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// publicKey returns the ASCII-armored public half of the signing key, to be
// published next to the indices.
func publicKey(key string) ([]byte, error) {
	signer, err := signingEntity(key)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	if err != nil {
		return nil, err
	}
	if err := signer.Serialize(w); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Sign adds the clearsigned 'InRelease' file and the armored public key to
// the indices.
func (ix *Indices) Sign(key string) error {
	inRelease, err := signBytes(ix.Release, key)
	if err != nil {
		return err
	}
	pub, err := publicKey(key)
	if err != nil {
		return err
	}
	ix.InRelease = inRelease
	ix.PublicKey = pub
	return nil
}
