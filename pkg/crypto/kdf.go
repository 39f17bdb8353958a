package crypto

import (
	"crypto/sha512"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the size of every key HAP derives.
const KeySize = 32

// KDFLabel is a salt/info pair fed to HKDF-SHA512.
type KDFLabel struct {
	Salt string
	Info string
}

// HKDF labels used during pairing and session setup.
var (
	LabelPairSetupEncrypt = KDFLabel{"Pair-Setup-Encrypt-Salt", "Pair-Setup-Encrypt-Info"}

	LabelPairSetupControllerSign = KDFLabel{"Pair-Setup-Controller-Sign-Salt", "Pair-Setup-Controller-Sign-Info"}

	LabelPairSetupAccessorySign = KDFLabel{"Pair-Setup-Accessory-Sign-Salt", "Pair-Setup-Accessory-Sign-Info"}

	LabelPairVerifyEncrypt = KDFLabel{"Pair-Verify-Encrypt-Salt", "Pair-Verify-Encrypt-Info"}

	// LabelControlWrite protects controller to accessory traffic.
	LabelControlWrite = KDFLabel{"Control-Salt", "Control-Write-Encryption-Key"}

	// LabelControlRead protects accessory to controller traffic.
	LabelControlRead = KDFLabel{"Control-Salt", "Control-Read-Encryption-Key"}
)

// HKDFSHA512 derives length bytes from inputKey (RFC 5869 with SHA-512).
func HKDFSHA512(inputKey, salt, info []byte, length int) ([]byte, error) {
	r := hkdf.New(sha512.New, inputKey, salt, info)
	out := make([]byte, length)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeriveKey derives a 32-byte key from inputKey using label.
func DeriveKey(inputKey []byte, label KDFLabel) ([]byte, error) {
	return HKDFSHA512(inputKey, []byte(label.Salt), []byte(label.Info), KeySize)
}
