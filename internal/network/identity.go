// Package network adapts the membership and remote children() transport
// a distributed registry needs onto libp2p: a persistent node identity,
// a children() request/response protocol, and a membership announce
// protocol that feeds internal/processor.Registry.
package network

import (
	"encoding/json"
	"os"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
)

const identityFile = "node_identity.json"

// PersistentIdentity holds the private key and peer ID across restarts,
// so a worker's libp2p peer identity — and therefore its reachability to
// peers that cached its multiaddr — survives a process restart.
type PersistentIdentity struct {
	PrivKey []byte `json:"priv_key"`
	PeerID  string `json:"peer_id"`
}

func SaveIdentity(id *PersistentIdentity) error {
	data, err := json.Marshal(id)
	if err != nil {
		return err
	}
	return os.WriteFile(identityFile, data, 0600)
}

func LoadIdentity() (*PersistentIdentity, error) {
	data, err := os.ReadFile(identityFile)
	if err != nil {
		return nil, err
	}
	var id PersistentIdentity
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, err
	}
	return &id, nil
}

// loadOrGenerateKey returns the worker's persistent libp2p private key,
// generating and saving a fresh Ed25519 key on first run.
func loadOrGenerateKey() (crypto.PrivKey, error) {
	if id, err := LoadIdentity(); err == nil {
		priv, err := crypto.UnmarshalPrivateKey(id.PrivKey)
		if err != nil {
			return nil, err
		}
		return priv, nil
	}

	priv, _, err := crypto.GenerateEd25519Key(nil)
	if err != nil {
		return nil, err
	}
	pid, err := peer.IDFromPrivateKey(priv)
	if err != nil {
		return nil, err
	}
	privBytes, err := crypto.MarshalPrivateKey(priv)
	if err != nil {
		return nil, err
	}
	_ = SaveIdentity(&PersistentIdentity{PrivKey: privBytes, PeerID: pid.String()})
	return priv, nil
}
