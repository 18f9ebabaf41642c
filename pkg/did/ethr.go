package did

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Delegate is one ERC-1056 delegate entry recorded against a did:ethr
// identity, e.g. a rotated signing key or an authorized relay.
type Delegate struct {
	Type        string
	Address     string
	ValidUntil  int64
}

// RegistryState is the subset of ERC-1056 registry state a ChainReader
// surfaces for a single identity: its current owner address plus any
// active delegates. trustcore never talks to a chain directly (spec.md
// Non-goals: "no consensus layer implementation") — this is what an
// injected reader hands back instead.
type RegistryState struct {
	Owner     string
	Delegates []Delegate
}

// ChainReader abstracts the ERC-1056 registry lookup EthrDriver needs.
// Implementations talk to whatever Ethereum JSON-RPC endpoint, indexer,
// or cache the deployment wires up.
type ChainReader interface {
	ResolveRegistry(ctx context.Context, network string, address string) (*RegistryState, error)
}

// EthrDriver resolves did:ethr identifiers, per spec §4.4.3.
type EthrDriver struct {
	chain ChainReader
}

// NewEthrDriver builds an EthrDriver backed by chain.
func NewEthrDriver(chain ChainReader) *EthrDriver {
	return &EthrDriver{chain: chain}
}

func parseEthrDID(did string) (network, address string, err error) {
	const prefix = "did:ethr:"
	if !strings.HasPrefix(did, prefix) {
		return "", "", fmt.Errorf("not a did:ethr identifier")
	}
	rest := strings.TrimPrefix(did, prefix)
	parts := strings.Split(rest, ":")

	switch len(parts) {
	case 1:
		network = "mainnet"
		address = parts[0]
	case 2:
		network = parts[0]
		address = parts[1]
	default:
		return "", "", fmt.Errorf("malformed did:ethr identifier")
	}

	if !common.IsHexAddress(address) {
		return "", "", fmt.Errorf("invalid ethereum address %q", address)
	}
	return network, address, nil
}

// implicitVerificationMethod builds the default key entry every
// did:ethr document carries: the address itself, interpreted as an
// EcdsaSecp256k1RecoveryMethod2020, with no on-chain data required.
func implicitVerificationMethod(did, address string) VerificationMethod {
	id := did + "#controller"
	return VerificationMethod{
		ID:           id,
		Type:         "EcdsaSecp256k1RecoveryMethod2020",
		Controller:   did,
		PublicKeyHex: address,
	}
}

// Resolve implements Driver. An identity with no registry entry still
// resolves successfully using the implicit key derived from the
// address (spec §4.4.3: "the spec permits this").
func (d *EthrDriver) Resolve(ctx context.Context, did string, _ ResolutionOptions) (*ResolutionResult, error) {
	network, address, err := parseEthrDID(did)
	if err != nil {
		return errorResult(ErrorInvalidDID, err.Error()), nil
	}

	state, err := d.chain.ResolveRegistry(ctx, network, address)
	if err != nil {
		return errorResult(ErrorNetworkError, fmt.Sprintf("did:ethr: registry lookup failed: %v", err)), nil
	}

	implicit := implicitVerificationMethod(did, address)
	vms := []VerificationMethod{implicit}
	auth := []string{implicit.ID}
	assertion := []string{implicit.ID}

	if state != nil {
		for i, del := range state.Delegates {
			if !common.IsHexAddress(del.Address) {
				continue
			}
			vmID := fmt.Sprintf("%s#delegate-%d", did, i)
			vms = append(vms, VerificationMethod{
				ID:           vmID,
				Type:         "EcdsaSecp256k1RecoveryMethod2020",
				Controller:   did,
				PublicKeyHex: del.Address,
			})
			switch del.Type {
			case "sigAuth":
				auth = append(auth, vmID)
			default:
				assertion = append(assertion, vmID)
			}
		}
	}

	doc := &Document{
		Context:            []string{"https://www.w3.org/ns/did/v1"},
		ID:                 did,
		Controller:         did,
		VerificationMethod: vms,
		Authentication:     auth,
		AssertionMethod:    assertion,
	}

	return documentResult(doc, DocumentMetadata{}), nil
}

// addressFromCompressedPubKey derives the checksummed Ethereum address
// implied by a compressed secp256k1 public key. Nothing in this
// package calls it; EthrDriver works from the address in the DID.
func addressFromCompressedPubKey(compressed []byte) (string, error) {
	pub, err := crypto.DecompressPubkey(compressed)
	if err != nil {
		return "", fmt.Errorf("did:ethr: decompress public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}
