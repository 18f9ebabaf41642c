package kms

import (
	"context"
	"encoding/pem"
	"fmt"
	"sync"
	"time"

	kms "cloud.google.com/go/kms/apiv1"
	"cloud.google.com/go/kms/apiv1/kmspb"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/fieldmaskpb"

	"trustcore/pkg/errkind"
	"trustcore/pkg/logger"
)

// GCPOpts mirrors freightliner's GCPOpts shape for locating a key ring.
type GCPOpts struct {
	Project         string
	Location        string
	KeyRing         string
	CredentialsFile string
}

// GCPBackend implements Backend against Google Cloud KMS asymmetric
// signing keys (AsymmetricSign). Unlike AWS/local, GCP KMS keys are
// versioned: KeyReference.KeyID carries the fully qualified crypto key
// version resource name.
type GCPBackend struct {
	client *kms.KeyManagementClient
	opts   GCPOpts
	log    logger.Logger

	mu    sync.Mutex
	algOf map[string]Algorithm
}

// NewGCPBackend constructs the client the same way freightliner's
// NewGCPKMS does, optionally pointed at a service-account credentials
// file.
func NewGCPBackend(ctx context.Context, opts GCPOpts, log logger.Logger) (*GCPBackend, error) {
	if opts.Project == "" || opts.Location == "" || opts.KeyRing == "" {
		return nil, errkind.New(errkind.ErrInvalidInput, "gcp kms: project, location, and key ring are required")
	}
	if log == nil {
		log = logger.NewSimple("kms.gcp")
	}

	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}

	client, err := kms.NewKeyManagementClient(ctx, clientOpts...)
	if err != nil {
		return nil, errkind.Wrap(errkind.ErrKMSUnavailable, err, "gcp kms: create client")
	}

	return &GCPBackend{client: client, opts: opts, log: log, algOf: make(map[string]Algorithm)}, nil
}

func (b *GCPBackend) keyRingName() string {
	return fmt.Sprintf("projects/%s/locations/%s/keyRings/%s", b.opts.Project, b.opts.Location, b.opts.KeyRing)
}

func (b *GCPBackend) algorithmSpec(alg Algorithm) (kmspb.CryptoKeyVersion_CryptoKeyVersionAlgorithm, error) {
	switch alg {
	case AlgEd25519:
		return kmspb.CryptoKeyVersion_EC_SIGN_ED25519, nil
	default:
		return 0, errkind.New(errkind.ErrNotSupported, "gcp kms: algorithm %q is not available as an asymmetric sign key in Cloud KMS", alg)
	}
}

// Generate creates a new CryptoKey and waits for its initial key
// version to become available.
func (b *GCPBackend) Generate(ctx context.Context, alg Algorithm, purpose string) (KeyReference, error) {
	spec, err := b.algorithmSpec(alg)
	if err != nil {
		return KeyReference{}, err
	}

	keyID := fmt.Sprintf("trustcore-%s-%d", purpose, time.Now().UnixNano())
	req := &kmspb.CreateCryptoKeyRequest{
		Parent:      b.keyRingName(),
		CryptoKeyId: keyID,
		CryptoKey: &kmspb.CryptoKey{
			Purpose: kmspb.CryptoKey_ASYMMETRIC_SIGN,
			VersionTemplate: &kmspb.CryptoKeyVersionTemplate{
				Algorithm: spec,
			},
		},
	}

	ck, err := b.client.CreateCryptoKey(ctx, req)
	if err != nil {
		return KeyReference{}, errkind.Wrap(errkind.ErrKMSUnavailable, err, "gcp kms: create crypto key")
	}

	versionName := ck.Name + "/cryptoKeyVersions/1"

	b.mu.Lock()
	b.algOf[versionName] = alg
	b.mu.Unlock()
	b.log.Info("gcp kms key created", "key_id", versionName, "algorithm", string(alg))

	return KeyReference{
		KeyID:     versionName,
		Algorithm: alg,
		Status:    StatusActive,
		CreatedAt: time.Now().Unix(),
	}, nil
}

// Sign calls AsymmetricSign against the key version resource name.
func (b *GCPBackend) Sign(ctx context.Context, keyID string, message []byte) ([]byte, error) {
	resp, err := b.client.AsymmetricSign(ctx, &kmspb.AsymmetricSignRequest{
		Name: keyID,
		Data: message,
	})
	if err != nil {
		return nil, errkind.Wrap(errkind.ErrKMSUnavailable, err, "gcp kms: asymmetric sign")
	}
	return resp.Signature, nil
}

// PublicKey fetches the PEM-encoded public key and returns its raw
// DER payload.
func (b *GCPBackend) PublicKey(ctx context.Context, keyID string) ([]byte, error) {
	resp, err := b.client.GetPublicKey(ctx, &kmspb.GetPublicKeyRequest{Name: keyID})
	if err != nil {
		return nil, errkind.Wrap(errkind.ErrKeyNotFound, err, "gcp kms: key %s not found", keyID)
	}
	block, _ := pem.Decode([]byte(resp.Pem))
	if block == nil {
		return nil, errkind.New(errkind.ErrInternal, "gcp kms: public key for %s is not PEM", keyID)
	}
	return block.Bytes, nil
}

// Rotate creates a new key version under the same crypto key and
// disables the old version.
func (b *GCPBackend) Rotate(ctx context.Context, keyID string) (KeyReference, error) {
	b.mu.Lock()
	alg, ok := b.algOf[keyID]
	b.mu.Unlock()
	if !ok {
		return KeyReference{}, errkind.New(errkind.ErrKeyNotFound, "gcp kms: key version %s not tracked by this backend instance", keyID)
	}

	cryptoKeyName := cryptoKeyNameFromVersion(keyID)
	newVersion, err := b.client.CreateCryptoKeyVersion(ctx, &kmspb.CreateCryptoKeyVersionRequest{
		Parent: cryptoKeyName,
	})
	if err != nil {
		return KeyReference{}, errkind.Wrap(errkind.ErrKMSUnavailable, err, "gcp kms: create crypto key version")
	}

	if err := b.Disable(ctx, keyID); err != nil {
		return KeyReference{}, err
	}

	b.mu.Lock()
	b.algOf[newVersion.Name] = alg
	b.mu.Unlock()

	return KeyReference{
		KeyID:     newVersion.Name,
		Algorithm: alg,
		Status:    StatusActive,
		CreatedAt: time.Now().Unix(),
	}, nil
}

// Disable transitions the key version to DISABLED; GCP KMS keeps
// disabled key versions available for verification, matching the
// local and AWS backends' rotation invariant.
func (b *GCPBackend) Disable(ctx context.Context, keyID string) error {
	_, err := b.client.UpdateCryptoKeyVersion(ctx, &kmspb.UpdateCryptoKeyVersionRequest{
		CryptoKeyVersion: &kmspb.CryptoKeyVersion{
			Name:  keyID,
			State: kmspb.CryptoKeyVersion_DISABLED,
		},
		UpdateMask: &fieldmaskpb.FieldMask{Paths: []string{"state"}},
	})
	if err != nil {
		return errkind.Wrap(errkind.ErrKMSUnavailable, err, "gcp kms: disable key version %s", keyID)
	}
	b.log.Info("gcp kms key version disabled", "key_id", keyID)
	return nil
}

func cryptoKeyNameFromVersion(versionName string) string {
	const suffix = "/cryptoKeyVersions/"
	for i := len(versionName) - len(suffix); i >= 0; i-- {
		if versionName[i:i+len(suffix)] == suffix {
			return versionName[:i]
		}
	}
	return versionName
}
