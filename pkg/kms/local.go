package kms

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"trustcore/pkg/cryptoutil"
	"trustcore/pkg/errkind"
	"trustcore/pkg/logger"
)

// keyRecord is the on-disk shape of one local-backend key, per §6.4:
// one JSON file per key under BaseDir/<key_id>.json.
type keyRecord struct {
	KeyID      string    `json:"key_id"`
	Algorithm  Algorithm `json:"algorithm"`
	Purpose    string    `json:"purpose"`
	CreatedAt  int64     `json:"created_at"`
	Status     Status    `json:"status"`
	Ciphertext string    `json:"ciphertext"` // hex(nonce || encrypted_secret_key || tag)
	PublicKey  string    `json:"public_key"` // hex
}

// LocalBackend implements Backend with keys encrypted at rest using
// AES-256-GCM under a master key derived via HKDF-SHA256 from a
// passphrase or key file, and one JSON file per key under BaseDir.
type LocalBackend struct {
	baseDir   string
	masterKey []byte
	log       logger.Logger

	mu   sync.Mutex
	keys map[string]*keyRecord
}

// NewLocalBackend derives a 32-byte AES-256 master key from secret via
// HKDF-SHA256 (no salt, info string "trustcore-local-kms") and loads
// any existing key files from baseDir.
func NewLocalBackend(baseDir string, secret []byte, log logger.Logger) (*LocalBackend, error) {
	if len(secret) == 0 {
		return nil, errkind.New(errkind.ErrInvalidInput, "local kms: master secret must not be empty")
	}
	if log == nil {
		log = logger.NewSimple("kms.local")
	}

	master := make([]byte, 32)
	kdf := hkdf.New(sha256.New, secret, nil, []byte("trustcore-local-kms"))
	if _, err := kdf.Read(master); err != nil {
		return nil, errkind.Wrap(errkind.ErrInternal, err, "local kms: derive master key")
	}

	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, errkind.Wrap(errkind.ErrInternal, err, "local kms: create base dir")
	}

	b := &LocalBackend{
		baseDir:   baseDir,
		masterKey: master,
		log:       log,
		keys:      make(map[string]*keyRecord),
	}
	if err := b.loadAll(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *LocalBackend) loadAll() error {
	entries, err := os.ReadDir(b.baseDir)
	if err != nil {
		return errkind.Wrap(errkind.ErrInternal, err, "local kms: read base dir")
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(b.baseDir, e.Name()))
		if err != nil {
			return errkind.Wrap(errkind.ErrInternal, err, "local kms: read key file %s", e.Name())
		}
		var rec keyRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return errkind.Wrap(errkind.ErrInternal, err, "local kms: decode key file %s", e.Name())
		}
		b.keys[rec.KeyID] = &rec
	}
	return nil
}

func (b *LocalBackend) persist(rec *keyRecord) error {
	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errkind.Wrap(errkind.ErrInternal, err, "local kms: encode key file")
	}
	path := filepath.Join(b.baseDir, rec.KeyID+".json")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return errkind.Wrap(errkind.ErrInternal, err, "local kms: write key file")
	}
	return nil
}

func (b *LocalBackend) seal(secret []byte) (string, error) {
	block, err := aes.NewCipher(b.masterKey)
	if err != nil {
		return "", errkind.Wrap(errkind.ErrInternal, err, "local kms: init cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", errkind.Wrap(errkind.ErrInternal, err, "local kms: init gcm")
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", errkind.Wrap(errkind.ErrInternal, err, "local kms: generate nonce")
	}
	sealed := gcm.Seal(nonce, nonce, secret, nil)
	return hex.EncodeToString(sealed), nil
}

func (b *LocalBackend) open(ciphertextHex string) ([]byte, error) {
	sealed, err := hex.DecodeString(ciphertextHex)
	if err != nil {
		return nil, errkind.Wrap(errkind.ErrInternal, err, "local kms: decode ciphertext")
	}
	block, err := aes.NewCipher(b.masterKey)
	if err != nil {
		return nil, errkind.Wrap(errkind.ErrInternal, err, "local kms: init cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errkind.Wrap(errkind.ErrInternal, err, "local kms: init gcm")
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, errkind.New(errkind.ErrInternal, "local kms: ciphertext too short")
	}
	nonce, body := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	secret, err := gcm.Open(nil, nonce, body, nil)
	if err != nil {
		return nil, errkind.Wrap(errkind.ErrInternal, err, "local kms: decrypt key material")
	}
	return secret, nil
}

// Generate creates a new key pair, seals the private key at rest, and
// persists it as its own JSON file.
func (b *LocalBackend) Generate(ctx context.Context, alg Algorithm, purpose string) (KeyReference, error) {
	var secret, pub []byte

	switch alg {
	case AlgEd25519:
		p, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return KeyReference{}, errkind.Wrap(errkind.ErrInternal, err, "local kms: generate ed25519 key")
		}
		secret, pub = priv, p

	case AlgSecp256k1:
		priv, err := secp256k1.GeneratePrivateKey()
		if err != nil {
			return KeyReference{}, errkind.Wrap(errkind.ErrInternal, err, "local kms: generate secp256k1 key")
		}
		secret = priv.Serialize()
		pub = priv.PubKey().SerializeCompressed()
		priv.Zero()

	default:
		return KeyReference{}, errkind.New(errkind.ErrInvalidInput, "local kms: unsupported algorithm %q", alg)
	}

	ciphertext, err := b.seal(secret)
	for i := range secret {
		secret[i] = 0
	}
	if err != nil {
		return KeyReference{}, err
	}

	rec := &keyRecord{
		KeyID:      uuid.NewString(),
		Algorithm:  alg,
		Purpose:    purpose,
		CreatedAt:  nowUnix(),
		Status:     StatusActive,
		Ciphertext: ciphertext,
		PublicKey:  hex.EncodeToString(pub),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.persist(rec); err != nil {
		return KeyReference{}, err
	}
	b.keys[rec.KeyID] = rec
	b.log.Info("local kms key generated", "key_id", rec.KeyID, "algorithm", string(alg), "purpose", purpose)

	return toRef(rec), nil
}

// Sign decrypts the key material in memory for the duration of one
// signing call and zeroes it immediately afterward.
func (b *LocalBackend) Sign(ctx context.Context, keyID string, message []byte) ([]byte, error) {
	b.mu.Lock()
	rec, ok := b.keys[keyID]
	b.mu.Unlock()
	if !ok {
		return nil, errkind.New(errkind.ErrKeyNotFound, "local kms: key %s not found", keyID)
	}
	if rec.Status == StatusDisabled {
		return nil, errkind.New(errkind.ErrKeyDisabled, "local kms: key %s is disabled", keyID)
	}

	secret, err := b.open(rec.Ciphertext)
	if err != nil {
		return nil, err
	}
	defer func() {
		for i := range secret {
			secret[i] = 0
		}
	}()

	sig, err := cryptoutil.Sign(rec.Algorithm, secret, message)
	if err != nil {
		return nil, errkind.Wrap(errkind.ErrInternal, err, "local kms: sign")
	}
	return sig, nil
}

// PublicKey serves the stored public key even for disabled keys, so
// historical signatures remain verifiable after rotation.
func (b *LocalBackend) PublicKey(ctx context.Context, keyID string) ([]byte, error) {
	b.mu.Lock()
	rec, ok := b.keys[keyID]
	b.mu.Unlock()
	if !ok {
		return nil, errkind.New(errkind.ErrKeyNotFound, "local kms: key %s not found", keyID)
	}
	pub, err := hex.DecodeString(rec.PublicKey)
	if err != nil {
		return nil, errkind.Wrap(errkind.ErrInternal, err, "local kms: decode stored public key")
	}
	return pub, nil
}

// Rotate generates a fresh key of the same algorithm/purpose and marks
// the old one disabled without deleting it.
func (b *LocalBackend) Rotate(ctx context.Context, keyID string) (KeyReference, error) {
	b.mu.Lock()
	rec, ok := b.keys[keyID]
	b.mu.Unlock()
	if !ok {
		return KeyReference{}, errkind.New(errkind.ErrKeyNotFound, "local kms: key %s not found", keyID)
	}

	next, err := b.Generate(ctx, rec.Algorithm, rec.Purpose)
	if err != nil {
		return KeyReference{}, err
	}
	if err := b.Disable(ctx, keyID); err != nil {
		return KeyReference{}, err
	}
	return next, nil
}

// Disable marks a key disabled in place; its public key remains
// servable.
func (b *LocalBackend) Disable(ctx context.Context, keyID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.keys[keyID]
	if !ok {
		return errkind.New(errkind.ErrKeyNotFound, "local kms: key %s not found", keyID)
	}
	rec.Status = StatusDisabled
	if err := b.persist(rec); err != nil {
		return err
	}
	b.log.Info("local kms key disabled", "key_id", keyID)
	return nil
}

func toRef(rec *keyRecord) KeyReference {
	return KeyReference{
		KeyID:     rec.KeyID,
		Algorithm: rec.Algorithm,
		Status:    rec.Status,
		CreatedAt: rec.CreatedAt,
	}
}

func nowUnix() int64 {
	return time.Now().Unix()
}
