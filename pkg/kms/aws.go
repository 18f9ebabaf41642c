package kms

import (
	"context"
	"crypto/sha256"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"trustcore/pkg/errkind"
	"trustcore/pkg/logger"
)

// AWSOpts mirrors freightliner's AWSOpts shape: region plus an
// optional role to assume for cross-account KMS access.
type AWSOpts struct {
	Region  string
	RoleARN string
	Profile string
}

// AWSBackend implements Backend against AWS KMS asymmetric signing
// keys. AWS KMS does not support Ed25519 as of this writing; Generate
// with AlgEd25519 returns errkind.ErrNotSupported rather than silently
// falling back to a different algorithm.
type AWSBackend struct {
	client *kms.Client
	log    logger.Logger

	mu   sync.Mutex
	refs map[string]KeyReference
}

// NewAWSBackend loads AWS config the same way freightliner's
// NewAWSKMS does: default credential chain, optionally scoped to a
// profile, optionally elevated via AssumeRoleProvider when RoleARN is
// set.
func NewAWSBackend(ctx context.Context, opts AWSOpts, log logger.Logger) (*AWSBackend, error) {
	if opts.Region == "" {
		return nil, errkind.New(errkind.ErrInvalidInput, "aws kms: region is required")
	}
	if log == nil {
		log = logger.NewSimple("kms.aws")
	}

	var configOpts []func(*awsconfig.LoadOptions) error
	configOpts = append(configOpts, awsconfig.WithRegion(opts.Region))
	if opts.Profile != "" {
		configOpts = append(configOpts, awsconfig.WithSharedConfigProfile(opts.Profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, errkind.Wrap(errkind.ErrKMSUnavailable, err, "aws kms: load config")
	}

	var client *kms.Client
	if opts.RoleARN != "" {
		stsClient := sts.NewFromConfig(cfg)
		provider := stscreds.NewAssumeRoleProvider(stsClient, opts.RoleARN)
		roleCfg := aws.Config{
			Credentials: aws.NewCredentialsCache(provider),
			Region:      cfg.Region,
		}
		client = kms.NewFromConfig(roleCfg)
	} else {
		client = kms.NewFromConfig(cfg)
	}

	return &AWSBackend{client: client, log: log, refs: make(map[string]KeyReference)}, nil
}

func (b *AWSBackend) keySpec(alg Algorithm) (types.KeySpec, error) {
	switch alg {
	case AlgSecp256k1:
		return types.KeySpecEccSecgP256k1, nil
	case AlgEd25519:
		return "", errkind.New(errkind.ErrNotSupported, "aws kms: Ed25519 asymmetric keys are not supported by AWS KMS")
	default:
		return "", errkind.New(errkind.ErrInvalidInput, "aws kms: unsupported algorithm %q", alg)
	}
}

// Generate creates an asymmetric sign/verify key in AWS KMS.
func (b *AWSBackend) Generate(ctx context.Context, alg Algorithm, purpose string) (KeyReference, error) {
	spec, err := b.keySpec(alg)
	if err != nil {
		return KeyReference{}, err
	}

	out, err := b.client.CreateKey(ctx, &kms.CreateKeyInput{
		KeyUsage: types.KeyUsageTypeSignVerify,
		KeySpec:  spec,
		Tags: []types.Tag{
			{TagKey: aws.String("trustcore-purpose"), TagValue: aws.String(purpose)},
		},
	})
	if err != nil {
		return KeyReference{}, errkind.Wrap(errkind.ErrKMSUnavailable, err, "aws kms: create key")
	}

	keyID := aws.ToString(out.KeyMetadata.KeyId)
	ref := KeyReference{
		KeyID:     keyID,
		Algorithm: alg,
		Status:    StatusActive,
		CreatedAt: out.KeyMetadata.CreationDate.Unix(),
	}

	b.mu.Lock()
	b.refs[keyID] = ref
	b.mu.Unlock()
	b.log.Info("aws kms key created", "key_id", keyID, "algorithm", string(alg))

	return ref, nil
}

// Sign calls kms.Sign with MessageType=DIGEST: AWS KMS requires a
// pre-hashed digest for ECC_SECG_P256K1 signing keys rather than
// accepting raw message bytes. AWS returns a DER-encoded ECDSA
// signature; it is re-encoded to trustcore's raw 64-byte r||s,
// low-S-normalized convention (spec.md §4.1) before returning.
func (b *AWSBackend) Sign(ctx context.Context, keyID string, message []byte) ([]byte, error) {
	digest := sha256Digest(message)

	out, err := b.client.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(keyID),
		Message:          digest,
		MessageType:      types.MessageTypeDigest,
		SigningAlgorithm: types.SigningAlgorithmSpecEcdsaSha256,
	})
	if err != nil {
		return nil, mapAWSError(err, keyID)
	}

	compact, err := derToCompactLowS(out.Signature)
	if err != nil {
		return nil, errkind.Wrap(errkind.ErrInternal, err, "aws kms: re-encode signature")
	}
	return compact, nil
}

// derToCompactLowS converts a DER-encoded ECDSA signature to the raw
// 64-byte r||s form, negating s if it is above the curve's half order
// so the result matches what cryptoutil.Sign produces directly.
func derToCompactLowS(der []byte) ([]byte, error) {
	var parsed struct{ R, S *big.Int }
	if _, err := asn1.Unmarshal(der, &parsed); err != nil {
		return nil, fmt.Errorf("invalid DER signature: %w", err)
	}

	n, _ := new(big.Int).SetString("FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFEBAAEDCE6AF48A03BBFD25E8CD0364141", 16)
	halfOrder := new(big.Int).Rsh(n, 1)
	s := parsed.S
	if s.Cmp(halfOrder) > 0 {
		s = new(big.Int).Sub(n, s)
	}

	out := make([]byte, 64)
	parsed.R.FillBytes(out[:32])
	s.FillBytes(out[32:])
	return out, nil
}

// PublicKey fetches the DER SubjectPublicKeyInfo from KMS and returns
// the raw compressed secp256k1 point extracted from it.
func (b *AWSBackend) PublicKey(ctx context.Context, keyID string) ([]byte, error) {
	out, err := b.client.GetPublicKey(ctx, &kms.GetPublicKeyInput{KeyId: aws.String(keyID)})
	if err != nil {
		return nil, mapAWSError(err, keyID)
	}
	var spki struct {
		Algorithm pkix.AlgorithmIdentifier
		PublicKey asn1.BitString
	}
	if _, err := asn1.Unmarshal(out.PublicKey, &spki); err != nil {
		return nil, errkind.Wrap(errkind.ErrInternal, err, "aws kms: parse public key info")
	}
	pk, err := secp256k1.ParsePubKey(spki.PublicKey.Bytes)
	if err != nil {
		return nil, errkind.Wrap(errkind.ErrInternal, err, "aws kms: parse secp256k1 point")
	}
	return pk.SerializeCompressed(), nil
}

// Rotate creates a new key with the same algorithm and disables the
// old one; AWS KMS itself has no concept of "rotate a specific
// asymmetric key" (automatic rotation applies only to symmetric CMKs),
// so this generalizes the same generate-then-disable pattern the local
// backend uses.
func (b *AWSBackend) Rotate(ctx context.Context, keyID string) (KeyReference, error) {
	b.mu.Lock()
	ref, ok := b.refs[keyID]
	b.mu.Unlock()
	if !ok {
		return KeyReference{}, errkind.New(errkind.ErrKeyNotFound, "aws kms: key %s not tracked by this backend instance", keyID)
	}

	next, err := b.Generate(ctx, ref.Algorithm, "")
	if err != nil {
		return KeyReference{}, err
	}
	if err := b.Disable(ctx, keyID); err != nil {
		return KeyReference{}, err
	}
	return next, nil
}

// Disable schedules the key for disablement via DisableKey; it does
// not schedule deletion, so PublicKey keeps working for historical
// signature verification.
func (b *AWSBackend) Disable(ctx context.Context, keyID string) error {
	_, err := b.client.DisableKey(ctx, &kms.DisableKeyInput{KeyId: aws.String(keyID)})
	if err != nil {
		return mapAWSError(err, keyID)
	}
	b.mu.Lock()
	if ref, ok := b.refs[keyID]; ok {
		ref.Status = StatusDisabled
		b.refs[keyID] = ref
	}
	b.mu.Unlock()
	b.log.Info("aws kms key disabled", "key_id", keyID)
	return nil
}

func mapAWSError(err error, keyID string) error {
	var notFound *types.NotFoundException
	if errors.As(err, &notFound) {
		return errkind.Wrap(errkind.ErrKeyNotFound, err, "aws kms: key %s not found", keyID)
	}
	var disabled *types.DisabledException
	if errors.As(err, &disabled) {
		return errkind.Wrap(errkind.ErrKeyDisabled, err, "aws kms: key %s disabled", keyID)
	}
	return errkind.Wrap(errkind.ErrKMSUnavailable, err, "aws kms: request failed")
}

func sha256Digest(message []byte) []byte {
	sum := sha256.Sum256(message)
	return sum[:]
}
