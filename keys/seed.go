package keys

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tyler-smith/go-bip39"
	"github.com/vitwit/chaindonate/logger"
	"github.com/vitwit/chaindonate/types"
)

// ErrSeedNotFound means no master seed has been persisted yet.
var ErrSeedNotFound = errors.New("master seed not found")

// SeedStore persists the sealed master mnemonic.
type SeedStore interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, sealed []byte) error
}

// FileSeedStore keeps the sealed mnemonic hex encoded in a single file.
// Save never overwrites an existing seed.
type FileSeedStore struct {
	Path string
}

var _ SeedStore = (*FileSeedStore)(nil)

func (f *FileSeedStore) Load(_ context.Context) ([]byte, error) {
	raw, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrSeedNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	sealed, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	return sealed, nil
}

func (f *FileSeedStore) Save(_ context.Context, sealed []byte) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return fmt.Errorf("create seed dir: %w", err)
	}
	file, err := os.OpenFile(f.Path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create seed file: %w", err)
	}
	if _, err := file.WriteString(hex.EncodeToString(sealed) + "\n"); err != nil {
		file.Close()
		return fmt.Errorf("write seed file: %w", err)
	}
	return file.Close()
}

// NewMnemonic generates a 24 word BIP39 mnemonic.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", err
	}
	return bip39.NewMnemonic(entropy)
}

// LoadOrCreate opens the persisted master seed, generating and storing one
// on first start. Without a sealer, or when the store cannot be read or
// written, it falls back to an ephemeral seed and logs a critical warning;
// addresses derived from it are flagged non-recoverable. A stored seed that
// cannot be opened is fatal and is never replaced.
func LoadOrCreate(ctx context.Context, store SeedStore, sealer Sealer, log logger.Logger) (*Engine, error) {
	log = logger.Component(log, "keys")

	if sealer == nil {
		logger.Critical(log, "seed encryption key unavailable, using ephemeral master seed", nil)
		return NewEphemeralEngine(nil)
	}
	if store == nil {
		logger.Critical(log, "no seed store configured, using ephemeral master seed", nil)
		return NewEphemeralEngine(sealer)
	}

	sealed, err := store.Load(ctx)
	switch {
	case errors.Is(err, ErrSeedNotFound):
		mnemonic, err := NewMnemonic()
		if err != nil {
			return nil, types.NewError(types.ErrDerivation, "generate mnemonic: %v", err)
		}
		ct, err := sealer.Seal([]byte(mnemonic))
		if err != nil {
			return nil, types.NewError(types.ErrDerivation, "seal mnemonic: %v", err)
		}
		if err := store.Save(ctx, ct); err != nil {
			logger.Critical(log, "could not persist master seed, using it as ephemeral", map[string]any{"err": err})
			return newEngine(mnemonic, sealer, true)
		}
		log.Info("generated new master seed", nil)
		return newEngine(mnemonic, sealer, false)
	case err != nil:
		logger.Critical(log, "seed store unreadable, using ephemeral master seed", map[string]any{"err": err})
		return NewEphemeralEngine(sealer)
	}

	plain, err := sealer.Open(sealed)
	if err != nil {
		return nil, types.NewError(types.ErrDerivation, "open master seed: %v", err)
	}
	mnemonic := string(plain)
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, types.NewError(types.ErrDerivation, "stored master seed is not a valid mnemonic; wrong seal key?")
	}
	return newEngine(mnemonic, sealer, false)
}

// NewEphemeralEngine derives from a fresh in-memory mnemonic.
func NewEphemeralEngine(sealer Sealer) (*Engine, error) {
	mnemonic, err := NewMnemonic()
	if err != nil {
		return nil, types.NewError(types.ErrDerivation, "generate mnemonic: %v", err)
	}
	return newEngine(mnemonic, sealer, true)
}
