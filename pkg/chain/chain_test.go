package chain

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyntra-labs/attestchain/pkg/anchor"
	"github.com/cyntra-labs/attestchain/pkg/crypto"
	"github.com/cyntra-labs/attestchain/pkg/ledger"
	"github.com/cyntra-labs/attestchain/pkg/receipt"
)

const testHash = "aa11223344556677889900aabbccddeeff00112233445566778899aabbccddee"

type fakeRekor struct {
	entry *anchor.RekorEntry
	err   error
	panic bool
}

func (f *fakeRekor) Fetch(ctx context.Context, receiptHash string) (*anchor.RekorEntry, error) {
	if f.panic {
		panic("rekor adapter bug")
	}
	return f.entry, f.err
}

type fakeEAS struct {
	entry    *anchor.EASEntry
	err      error
	gotRunID string
}

func (f *fakeEAS) Fetch(ctx context.Context, receiptHash, runID string) (*anchor.EASEntry, error) {
	f.gotRunID = runID
	return f.entry, f.err
}

type fakeLedger struct {
	entry *anchor.LedgerEntry
	err   error
}

func (f *fakeLedger) Fetch(ctx context.Context, receiptHash string) (*anchor.LedgerEntry, error) {
	return f.entry, f.err
}

func validFakes() (*fakeRekor, *fakeEAS, *fakeLedger) {
	return &fakeRekor{entry: &anchor.RekorEntry{UUID: "uuid-1", Verified: true}},
		&fakeEAS{entry: &anchor.EASEntry{UID: "0xatt1", Verified: true}},
		&fakeLedger{entry: &anchor.LedgerEntry{
			Status:           ledger.StatusVerified,
			AttestationCount: 2,
			RequiredQuorum:   2,
			Verified:         true,
			QuorumMet:        true,
		}}
}

func TestVerifyHashAllSourcesValid(t *testing.T) {
	rekor, eas, sol := validFakes()
	v := New(rekor, eas, sol)

	got, err := v.VerifyHash(context.Background(), testHash, "run-42", Options{Rekor: true, EAS: true, Solana: true})
	require.NoError(t, err)
	assert.True(t, got.AllValid)
	assert.Equal(t, testHash, got.ReceiptHash)
	assert.Equal(t, "run-42", got.RunID)
	require.NotNil(t, got.Rekor)
	require.NotNil(t, got.EAS)
	require.NotNil(t, got.Solana)
	assert.Equal(t, "run-42", eas.gotRunID)
}

func TestVerifyHashNormalizes(t *testing.T) {
	rekor, eas, sol := validFakes()
	v := New(rekor, eas, sol)

	got, err := v.VerifyHash(context.Background(), "0x"+testHash, "", Options{Rekor: true})
	require.NoError(t, err)
	assert.Equal(t, testHash, got.ReceiptHash)

	_, err = v.VerifyHash(context.Background(), "not-a-hash", "", Options{Rekor: true})
	assert.Error(t, err)
}

func TestVerifyHashAdapterErrorDegradesSource(t *testing.T) {
	rekor, eas, _ := validFakes()
	sol := &fakeLedger{err: fmt.Errorf("rpc node unavailable")}
	v := New(rekor, eas, sol)

	// A network failure on one source must not escape the call; it only
	// makes that source absent and the aggregate invalid.
	got, err := v.VerifyHash(context.Background(), testHash, "", Options{Rekor: true, EAS: true, Solana: true})
	require.NoError(t, err)
	assert.Nil(t, got.Solana)
	assert.False(t, got.AllValid)
	assert.NotNil(t, got.Rekor)
	assert.NotNil(t, got.EAS)
}

func TestVerifyHashAdapterPanicIsContained(t *testing.T) {
	eas := &fakeEAS{entry: &anchor.EASEntry{Verified: true}}
	v := New(&fakeRekor{panic: true}, eas, nil)

	got, err := v.VerifyHash(context.Background(), testHash, "", Options{Rekor: true, EAS: true})
	require.NoError(t, err)
	assert.Nil(t, got.Rekor)
	assert.False(t, got.AllValid)
	assert.NotNil(t, got.EAS)
}

func TestVerifyHashRequestedSourceMissingEntry(t *testing.T) {
	rekor, eas, sol := validFakes()
	rekor.entry = nil // hash simply not in the log
	v := New(rekor, eas, sol)

	got, err := v.VerifyHash(context.Background(), testHash, "", Options{Rekor: true, EAS: true, Solana: true})
	require.NoError(t, err)
	assert.Nil(t, got.Rekor)
	assert.False(t, got.AllValid, "a requested source with no entry fails the aggregate")
}

func TestVerifyHashUnrequestedSourceIgnored(t *testing.T) {
	rekor, eas, _ := validFakes()
	sol := &fakeLedger{err: fmt.Errorf("would fail if consulted")}
	v := New(rekor, eas, sol)

	got, err := v.VerifyHash(context.Background(), testHash, "", Options{Rekor: true, EAS: true})
	require.NoError(t, err)
	assert.True(t, got.AllValid)
	assert.Nil(t, got.Solana)
}

func TestVerifyHashNoSourcesRequested(t *testing.T) {
	rekor, eas, sol := validFakes()
	v := New(rekor, eas, sol)

	got, err := v.VerifyHash(context.Background(), testHash, "", Options{})
	require.NoError(t, err)
	assert.False(t, got.AllValid, "zero requested sources can never be all-valid")
}

func TestVerifyHashNilAdapter(t *testing.T) {
	v := New(nil, nil, nil)

	got, err := v.VerifyHash(context.Background(), testHash, "", Options{Rekor: true})
	require.NoError(t, err)
	assert.Nil(t, got.Rekor)
	assert.False(t, got.AllValid)
}

func TestVerifyHashInvalidSourceEntries(t *testing.T) {
	cases := map[string]struct {
		mutate func(*fakeRekor, *fakeEAS, *fakeLedger)
	}{
		"unverified rekor entry": {func(r *fakeRekor, _ *fakeEAS, _ *fakeLedger) {
			r.entry.Verified = false
		}},
		"revoked eas entry": {func(_ *fakeRekor, e *fakeEAS, _ *fakeLedger) {
			e.entry.Revoked = true
		}},
		"ledger quorum unmet": {func(_ *fakeRekor, _ *fakeEAS, l *fakeLedger) {
			l.entry.QuorumMet = false
		}},
		"ledger status not verified": {func(_ *fakeRekor, _ *fakeEAS, l *fakeLedger) {
			l.entry.Verified = false
		}},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rekor, eas, sol := validFakes()
			tc.mutate(rekor, eas, sol)
			v := New(rekor, eas, sol)

			got, err := v.VerifyHash(context.Background(), testHash, "", Options{Rekor: true, EAS: true, Solana: true})
			require.NoError(t, err)
			assert.False(t, got.AllValid)
		})
	}
}

func TestVerifyReceiptHashesCanonically(t *testing.T) {
	r := receipt.Receipt{RunID: "run-42", WorkcellID: "cell-7"}
	expected, err := receipt.Hash(r, crypto.SHA256)
	require.NoError(t, err)

	rekor, eas, sol := validFakes()
	v := New(rekor, eas, sol)

	got, err := v.VerifyReceipt(context.Background(), r, Options{Rekor: true})
	require.NoError(t, err)
	assert.Equal(t, expected, got.ReceiptHash)
	assert.Equal(t, "run-42", got.RunID)

	// Keccak flavor produces a different chain identity.
	keccak, err := v.VerifyReceipt(context.Background(), r, Options{Rekor: true, Algorithm: crypto.Keccak256})
	require.NoError(t, err)
	assert.NotEqual(t, got.ReceiptHash, keccak.ReceiptHash)
}
