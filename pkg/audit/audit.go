// Package audit implements the Hash-Chained Audit Log (spec §4.9): a
// tamper-evident, KMS-signed append-only log. Every entry's signature
// covers its own fields plus the hash of the entry before it, so
// altering any past entry — or reordering, or dropping one — breaks
// the chain at that entry's sequence number.
package audit

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"sync"
	"time"

	"github.com/google/uuid"

	"trustcore/pkg/canon"
	"trustcore/pkg/cryptoutil"
	"trustcore/pkg/errkind"
	"trustcore/pkg/kms"
	"trustcore/pkg/logger"
)

// genesisHash is prev_hash for the first entry in an empty log.
var genesisHash = make([]byte, sha256.Size)

// Entry is one append-only audit record, per spec §3's AuditEntry
// type.
type Entry struct {
	ID          string    `json:"id"`
	Sequence    uint64    `json:"sequence"`
	Timestamp   time.Time `json:"timestamp"`
	Actor       string    `json:"actor"`
	EventType   string    `json:"event_type"`
	Severity    string    `json:"severity"`
	PayloadHash []byte    `json:"payload_hash"`
	PrevHash    []byte    `json:"prev_hash"`
	Signature   []byte    `json:"signature"`
	KeyID       string    `json:"key_id"`
}

// signedPreimage reconstructs sequence_be_u64 || timestamp_rfc3339 ||
// actor || event_type || payload_hash || prev_hash, the exact byte
// sequence both Append signs and VerifyChain recomputes, per spec
// §4.9 step 3.
func (e Entry) signedPreimage() []byte {
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], e.Sequence)

	buf := make([]byte, 0, 8+32+len(e.Actor)+len(e.EventType)+len(e.PayloadHash)+len(e.PrevHash))
	buf = append(buf, seq[:]...)
	buf = append(buf, []byte(e.Timestamp.UTC().Format(time.RFC3339))...)
	buf = append(buf, []byte(e.Actor)...)
	buf = append(buf, []byte(e.EventType)...)
	buf = append(buf, e.PayloadHash...)
	buf = append(buf, e.PrevHash...)
	return buf
}

// preimageHash is sha256(signed_preimage), what the next entry's
// prev_hash points at.
func (e Entry) preimageHash() []byte {
	h := sha256.Sum256(e.signedPreimage())
	return h[:]
}

// Filter narrows a Query to entries matching every non-zero field.
type Filter struct {
	Actor     string
	EventType string
	Since     time.Time
	Until     time.Time
}

// Store persists Entry values. Append must preserve the order entries
// are appended in; Log itself, not Store, is responsible for
// serializing concurrent Append calls.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	Query(ctx context.Context, filter Filter) ([]Entry, error)
	Get(ctx context.Context, sequence uint64) (Entry, bool, error)
	// Last returns the most recently appended entry, or ok=false for an
	// empty log.
	Last(ctx context.Context) (entry Entry, ok bool, err error)
}

// Log is a single hash-chained append-only audit log, signed by one
// KMS key. Every Append serializes through log.mu — the "single-writer
// total order" property spec §5 requires — while Query passes
// straight through to Store, lock-free, since the store is append-only
// and readers only ever see a consistent prefix.
type Log struct {
	store  Store
	signer kms.Backend
	keyID  string
	alg    cryptoutil.Algorithm
	log    logger.Logger

	mu sync.Mutex
}

// Config names the collaborators a Log needs.
type Config struct {
	Store     Store
	Signer    kms.Backend
	KeyID     string
	Algorithm cryptoutil.Algorithm
	Log       logger.Logger
}

// New returns a Log backed by cfg.Store, signing every entry with
// cfg.Signer under cfg.KeyID.
func New(cfg Config) (*Log, error) {
	if cfg.Store == nil {
		return nil, errkind.New(errkind.ErrInvalidInput, "audit: store must not be nil")
	}
	if cfg.Signer == nil {
		return nil, errkind.New(errkind.ErrInvalidInput, "audit: signer must not be nil")
	}
	if cfg.KeyID == "" {
		return nil, errkind.New(errkind.ErrInvalidInput, "audit: key id must not be empty")
	}
	log := cfg.Log
	if log == nil {
		log = logger.NewSimple("audit")
	}
	return &Log{store: cfg.Store, signer: cfg.Signer, keyID: cfg.KeyID, alg: cfg.Algorithm, log: log}, nil
}

// Append constructs, signs, and persists the next entry in the chain,
// per spec §4.9 steps 1-4. payload is canonicalized and hashed, never
// stored verbatim — the log proves integrity over a commitment to the
// payload, not the payload's full content.
func (l *Log) Append(ctx context.Context, actor, eventType, severity string, payload any) (Entry, error) {
	canonical, err := canon.Marshal(payload)
	if err != nil {
		return Entry{}, errkind.Wrap(errkind.ErrCanonicalization, err, "audit: canonicalize payload")
	}
	payloadHash := sha256.Sum256(canonical)

	l.mu.Lock()
	defer l.mu.Unlock()

	var sequence uint64 = 1
	prevHash := genesisHash
	if last, ok, err := l.store.Last(ctx); err != nil {
		return Entry{}, err
	} else if ok {
		sequence = last.Sequence + 1
		prevHash = last.preimageHash()
	}

	entry := Entry{
		ID:          uuid.New().String(),
		Sequence:    sequence,
		Timestamp:   time.Now().UTC(),
		Actor:       actor,
		EventType:   eventType,
		Severity:    severity,
		PayloadHash: payloadHash[:],
		PrevHash:    prevHash,
		KeyID:       l.keyID,
	}

	sig, err := l.signer.Sign(ctx, l.keyID, entry.signedPreimage())
	if err != nil {
		return Entry{}, errkind.Wrap(errkind.ErrInternal, err, "audit: sign entry")
	}
	entry.Signature = sig

	if err := l.store.Append(ctx, entry); err != nil {
		return Entry{}, err
	}
	l.log.Info("audit entry appended", "sequence", entry.Sequence, "actor", actor, "event_type", eventType)
	return entry, nil
}

// Query delegates to the underlying Store.
func (l *Log) Query(ctx context.Context, filter Filter) ([]Entry, error) {
	return l.store.Query(ctx, filter)
}

// VerifyChain recomputes and checks every entry's signature, prev_hash
// linkage, and sequence contiguity from start to end inclusive
// (end == 0 means "to the latest entry"), per spec §4.9 step 2. It
// returns the first broken sequence number, failing fast rather than
// collecting every break — §4.9 only requires the first.
func (l *Log) VerifyChain(ctx context.Context, start, end uint64) (broken bool, brokenSequence uint64, err error) {
	if end == 0 {
		last, ok, err := l.store.Last(ctx)
		if err != nil {
			return false, 0, err
		}
		if !ok {
			return false, 0, nil
		}
		end = last.Sequence
	}
	if start == 0 {
		start = 1
	}

	var expectedPrevHash []byte
	var expectedSequence uint64
	for seq := start; seq <= end; seq++ {
		entry, ok, err := l.store.Get(ctx, seq)
		if err != nil {
			return false, 0, err
		}
		if !ok {
			return true, seq, nil
		}

		if seq == start {
			expectedSequence = seq
			if seq == 1 {
				expectedPrevHash = genesisHash
			} else {
				prev, ok, err := l.store.Get(ctx, seq-1)
				if err != nil {
					return false, 0, err
				}
				if !ok {
					return true, seq, nil
				}
				expectedPrevHash = prev.preimageHash()
			}
		}

		if entry.Sequence != expectedSequence {
			return true, seq, nil
		}
		if !bytes.Equal(entry.PrevHash, expectedPrevHash) {
			return true, seq, nil
		}

		pub, err := l.signer.PublicKey(ctx, entry.KeyID)
		if err != nil {
			return false, 0, err
		}
		valid, err := cryptoutil.Verify(l.alg, pub, entry.signedPreimage(), entry.Signature)
		if err != nil {
			return false, 0, err
		}
		if !valid {
			return true, seq, nil
		}

		expectedSequence = seq + 1
		expectedPrevHash = entry.preimageHash()
	}

	return false, 0, nil
}
