package ledger

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const platformID = "pf00000001"

func newTestLedger() *Ledger {
	return New(NewMemoryStore(), platformID)
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestOpenEscrow(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	txn, err := l.OpenEscrow(ctx, dec("125.0000"), "link_abc123")
	require.NoError(t, err)

	assert.Equal(t, StatusInitiated, txn.Status)
	assert.Equal(t, TypeCredit, txn.Type)
	assert.Equal(t, ModeBank, txn.Mode)
	assert.Equal(t, "link_abc123", txn.Remarks)
	assert.Equal(t, platformID, txn.ToUserID)

	// No balance moves until the provider confirms
	w, err := l.Balance(ctx, platformID)
	require.NoError(t, err)
	assert.True(t, w.Balance.IsZero())
}

func TestOpenEscrowRejectsNonPositive(t *testing.T) {
	l := newTestLedger()

	_, err := l.OpenEscrow(context.Background(), decimal.Zero, "link_x")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = l.OpenEscrow(context.Background(), dec("-5"), "link_x")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestSettleEscrow(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	_, err := l.OpenEscrow(ctx, dec("125.0000"), "link_abc123")
	require.NoError(t, err)

	txn, err := l.SettleEscrow(ctx, "link_abc123", dec("125.0000"))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, txn.Status)

	w, err := l.Balance(ctx, platformID)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(dec("125.0000")), "platform balance = %s", w.Balance)
}

func TestSettleEscrowIdempotent(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	_, err := l.OpenEscrow(ctx, dec("50"), "link_dup")
	require.NoError(t, err)

	_, err = l.SettleEscrow(ctx, "link_dup", dec("50"))
	require.NoError(t, err)

	// Second delivery of the same webhook must not double-credit
	_, err = l.SettleEscrow(ctx, "link_dup", dec("50"))
	assert.ErrorIs(t, err, ErrAlreadySettled)

	w, err := l.Balance(ctx, platformID)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(dec("50")))
}

func TestSettleEscrowUnknownLink(t *testing.T) {
	l := newTestLedger()

	_, err := l.SettleEscrow(context.Background(), "link_missing", dec("10"))
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestFailEscrow(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	open, err := l.OpenEscrow(ctx, dec("75"), "link_expired")
	require.NoError(t, err)

	require.NoError(t, l.FailEscrow(ctx, "link_expired"))

	got, err := l.store.GetTransaction(ctx, open.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)

	// Failing twice is rejected
	assert.ErrorIs(t, l.FailEscrow(ctx, "link_expired"), ErrAlreadySettled)
}

func TestRelease(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	_, err := l.OpenEscrow(ctx, dec("125.0000"), "link_1")
	require.NoError(t, err)
	_, err = l.SettleEscrow(ctx, "link_1", dec("125.0000"))
	require.NoError(t, err)

	// Release rent to the owner
	txn, err := l.Release(ctx, "owner00001", dec("100.0000"), "quote00001")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, txn.Status)
	assert.Equal(t, TypeDebit, txn.Type)
	assert.Equal(t, ModeWallet, txn.Mode)
	assert.Equal(t, platformID, txn.FromUserID)
	assert.Equal(t, "owner00001", txn.ToUserID)

	owner, err := l.Balance(ctx, "owner00001")
	require.NoError(t, err)
	assert.True(t, owner.Balance.Equal(dec("100.0000")))

	platform, err := l.Balance(ctx, platformID)
	require.NoError(t, err)
	assert.True(t, platform.Balance.Equal(dec("25.0000")))
}

func TestReleaseInsufficientFunds(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	_, err := l.OpenEscrow(ctx, dec("10"), "link_small")
	require.NoError(t, err)
	_, err = l.SettleEscrow(ctx, "link_small", dec("10"))
	require.NoError(t, err)

	_, err = l.Release(ctx, "owner00001", dec("100"), "quote00001")
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	// Balance untouched on failure
	platform, err := l.Balance(ctx, platformID)
	require.NoError(t, err)
	assert.True(t, platform.Balance.Equal(dec("10")))
}

func TestReleaseFromUnfundedPlatform(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	// No escrow was ever settled: the platform wallet row does not
	// exist yet, which is the same thing as a zero balance.
	_, err := l.Release(ctx, "owner00001", dec("100"), "quote00001")
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestCanRelease(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	ok, err := l.CanRelease(ctx, dec("1"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = l.OpenEscrow(ctx, dec("20"), "link_2")
	require.NoError(t, err)
	_, err = l.SettleEscrow(ctx, "link_2", dec("20"))
	require.NoError(t, err)

	ok, err = l.CanRelease(ctx, dec("20"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHistory(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	_, err := l.OpenEscrow(ctx, dec("125"), "link_h")
	require.NoError(t, err)
	_, err = l.SettleEscrow(ctx, "link_h", dec("125"))
	require.NoError(t, err)
	_, err = l.Release(ctx, "owner00001", dec("100"), "quote00001")
	require.NoError(t, err)
	_, err = l.Release(ctx, "cust000001", dec("25"), "quote00001")
	require.NoError(t, err)

	platformTxns, err := l.History(ctx, platformID, 10)
	require.NoError(t, err)
	assert.Len(t, platformTxns, 3)
	// Newest first
	assert.Equal(t, "cust000001", platformTxns[0].ToUserID)

	ownerTxns, err := l.History(ctx, "owner00001", 10)
	require.NoError(t, err)
	require.Len(t, ownerTxns, 1)
	assert.True(t, ownerTxns[0].Amount.Equal(dec("100")))
}

func TestTransactionStatusIsTerminal(t *testing.T) {
	assert.False(t, StatusInitiated.IsTerminal())
	assert.False(t, StatusInProcess.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
}
