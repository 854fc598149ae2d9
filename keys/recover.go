package keys

import (
	"bytes"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/vitwit/chaindonate/types"
)

// OpenSecpKey unseals the private key of an EVM or UTXO deposit and checks
// it against the recorded compressed public key when one is given.
func OpenSecpKey(s Sealer, sealedHex, publicKeyHex string) (*btcec.PrivateKey, error) {
	if s == nil {
		return nil, types.NewError(types.ErrDerivation, "no sealer to open deposit key")
	}
	ct, err := hex.DecodeString(sealedHex)
	if err != nil {
		return nil, types.NewError(types.ErrDerivation, "decode sealed key: %v", err)
	}
	raw, err := s.Open(ct)
	if err != nil {
		return nil, types.NewError(types.ErrDerivation, "open sealed key: %v", err)
	}
	if len(raw) != btcec.PrivKeyBytesLen {
		return nil, types.NewError(types.ErrDerivation, "sealed key is %d bytes, want %d", len(raw), btcec.PrivKeyBytesLen)
	}

	priv, pub := btcec.PrivKeyFromBytes(raw)
	if publicKeyHex != "" {
		want, err := hex.DecodeString(publicKeyHex)
		if err != nil {
			return nil, types.NewError(types.ErrDerivation, "decode public key: %v", err)
		}
		if !bytes.Equal(pub.SerializeCompressed(), want) {
			return nil, types.NewError(types.ErrDerivation, "sealed key does not match public key")
		}
	}
	return priv, nil
}
