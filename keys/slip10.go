package keys

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"errors"
)

// slip10Node is an ed25519 extended private key.
type slip10Node struct {
	key       []byte
	chainCode []byte
}

func slip10Master(seed []byte) slip10Node {
	mac := hmac.New(sha512.New, []byte("ed25519 seed"))
	mac.Write(seed)
	sum := mac.Sum(nil)
	return slip10Node{key: sum[:32], chainCode: sum[32:]}
}

// slip10Derive walks a path of hardened indices. Ed25519 has no public
// derivation, so non-hardened indices are rejected.
func slip10Derive(seed []byte, path []uint32) (slip10Node, error) {
	node := slip10Master(seed)
	for _, idx := range path {
		if idx < hardened {
			return slip10Node{}, errors.New("ed25519 derivation requires hardened indices")
		}
		var ser [4]byte
		binary.BigEndian.PutUint32(ser[:], idx)

		mac := hmac.New(sha512.New, node.chainCode)
		mac.Write([]byte{0x00})
		mac.Write(node.key)
		mac.Write(ser[:])
		sum := mac.Sum(nil)
		node = slip10Node{key: sum[:32], chainCode: sum[32:]}
	}
	return node, nil
}
