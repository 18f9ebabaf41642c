package revocation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustcore/pkg/credential"
	"trustcore/pkg/kms"
	"trustcore/pkg/logger"
)

func newTestKey(t *testing.T) credential.KeyRef {
	t.Helper()
	backend, err := kms.NewLocalBackend(t.TempDir(), []byte("test-master-secret"), logger.NewSimple("test"))
	require.NoError(t, err)
	ref, err := backend.Generate(context.Background(), kms.AlgEd25519, "revocation-test")
	require.NoError(t, err)
	return credential.KeyRef{Backend: backend, KeyID: ref.KeyID, KeyFragment: "key-1", Algorithm: kms.AlgEd25519}
}

func TestManager_AllocateIndexMonotonic(t *testing.T) {
	m := NewManager(nil)
	require.NoError(t, m.Register(ListConfig{ListID: "list-1", Length: 16}))

	first, err := m.AllocateIndex("list-1")
	require.NoError(t, err)
	second, err := m.AllocateIndex("list-1")
	require.NoError(t, err)

	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)
}

func TestManager_AllocateIndexExhausted(t *testing.T) {
	m := NewManager(nil)
	require.NoError(t, m.Register(ListConfig{ListID: "tiny", Length: 8}))

	for i := 0; i < 8; i++ {
		_, err := m.AllocateIndex("tiny")
		require.NoError(t, err)
	}
	_, err := m.AllocateIndex("tiny")
	assert.Error(t, err)
}

func TestManager_SetAndCheckStatus(t *testing.T) {
	m := NewManager(nil)
	require.NoError(t, m.Register(ListConfig{ListID: "list-1", StatusPurpose: "revocation", Length: 16}))

	idx, err := m.AllocateIndex("list-1")
	require.NoError(t, err)

	status, err := m.CheckStatus("list-1", idx)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, status)

	require.NoError(t, m.SetStatus("list-1", idx, true))

	status, err = m.CheckStatus("list-1", idx)
	require.NoError(t, err)
	assert.Equal(t, StatusRevoked, status)
}

func TestManager_CheckStatusReflectsSuspensionPurpose(t *testing.T) {
	m := NewManager(nil)
	require.NoError(t, m.Register(ListConfig{ListID: "list-1", StatusPurpose: "suspension", Length: 16}))

	idx, err := m.AllocateIndex("list-1")
	require.NoError(t, err)
	require.NoError(t, m.SetStatus("list-1", idx, true))

	status, err := m.CheckStatus("list-1", idx)
	require.NoError(t, err)
	assert.Equal(t, StatusSuspended, status)
}

func TestManager_UnregisteredListErrors(t *testing.T) {
	m := NewManager(nil)
	_, err := m.AllocateIndex("nonexistent")
	assert.Error(t, err)
}

func TestManager_GenerateCredentialReflectsCurrentState(t *testing.T) {
	m := NewManager(nil)
	issuerDID := "did:key:zIssuer"
	require.NoError(t, m.Register(ListConfig{ListID: "list-1", IssuerDID: issuerDID, StatusPurpose: "revocation", Length: 16}))

	idx, err := m.AllocateIndex("list-1")
	require.NoError(t, err)
	require.NoError(t, m.SetStatus("list-1", idx, true))

	key := newTestKey(t)
	vc, err := m.GenerateCredential(context.Background(), "list-1", "https://example.org/status/1", key, credential.IssueOptions{})
	require.NoError(t, err)
	assert.True(t, vc.HasType("StatusList2021Credential"))

	subject, err := decodeEncodedList(vc)
	require.NoError(t, err)
	assert.NotEmpty(t, subject)
}

func TestManager_GenerateCredentialIsASnapshot(t *testing.T) {
	// Flipping a bit after GenerateCredential has already signed a
	// snapshot must not mutate the credential already handed out.
	m := NewManager(nil)
	issuerDID := "did:key:zIssuer"
	require.NoError(t, m.Register(ListConfig{ListID: "list-1", IssuerDID: issuerDID, StatusPurpose: "revocation", Length: 16}))

	key := newTestKey(t)
	before, err := m.GenerateCredential(context.Background(), "list-1", "https://example.org/status/1", key, credential.IssueOptions{})
	require.NoError(t, err)
	beforeSubject, err := decodeEncodedList(before)
	require.NoError(t, err)

	require.NoError(t, m.SetStatus("list-1", 0, true))

	afterSubject, err := decodeEncodedList(before)
	require.NoError(t, err)
	assert.Equal(t, beforeSubject, afterSubject)
}

// fetcherStub serves one canned VC regardless of the URL requested.
type fetcherStub struct {
	vc *credential.VerifiableCredential
}

func (f *fetcherStub) Fetch(_ context.Context, _ string) (*credential.VerifiableCredential, error) {
	return f.vc, nil
}

// alwaysValidVerifier treats every credential as successfully verified,
// isolating VerifyRemote's own logic (fetch → decode → bit lookup) from
// the independently tested credential.Verifier.
type alwaysValidVerifier struct{}

func (alwaysValidVerifier) VerifyStatusListCredential(_ context.Context, _ *credential.VerifiableCredential) (bool, error) {
	return true, nil
}

func TestVerifyRemote_ReadsBitFromFetchedCredential(t *testing.T) {
	m := NewManager(nil)
	issuerDID := "did:key:zIssuer"
	require.NoError(t, m.Register(ListConfig{ListID: "list-1", IssuerDID: issuerDID, StatusPurpose: "revocation", Length: 16}))
	require.NoError(t, m.SetStatus("list-1", 3, true))

	key := newTestKey(t)
	vc, err := m.GenerateCredential(context.Background(), "list-1", "https://example.org/status/1", key, credential.IssueOptions{})
	require.NoError(t, err)

	revoked, err := VerifyRemote(context.Background(), &fetcherStub{vc: vc}, alwaysValidVerifier{}, "https://example.org/status/1", 3)
	require.NoError(t, err)
	assert.True(t, revoked)

	clear, err := VerifyRemote(context.Background(), &fetcherStub{vc: vc}, alwaysValidVerifier{}, "https://example.org/status/1", 4)
	require.NoError(t, err)
	assert.False(t, clear)
}

type neverValidVerifier struct{}

func (neverValidVerifier) VerifyStatusListCredential(_ context.Context, _ *credential.VerifiableCredential) (bool, error) {
	return false, nil
}

func TestVerifyRemote_RejectsUnverifiableCredential(t *testing.T) {
	m := NewManager(nil)
	require.NoError(t, m.Register(ListConfig{ListID: "list-1", IssuerDID: "did:key:zIssuer", StatusPurpose: "revocation", Length: 16}))
	key := newTestKey(t)
	vc, err := m.GenerateCredential(context.Background(), "list-1", "https://example.org/status/1", key, credential.IssueOptions{})
	require.NoError(t, err)

	_, err = VerifyRemote(context.Background(), &fetcherStub{vc: vc}, neverValidVerifier{}, "https://example.org/status/1", 0)
	assert.Error(t, err)
}
