package account

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"loyalty-engine/pkg/errutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestAccount(t *testing.T) *Account {
	t.Helper()
	acc := New(uuid.New())
	require.NoError(t, acc.Create(uuid.New(), base))
	return acc
}

func addPoints(t *testing.T, acc *Account, value int64, expiresAt *time.Time) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, acc.AddPoints(Transfer{
		ID:        id,
		Value:     value,
		CreatedAt: base,
		ExpiresAt: expiresAt,
	}))
	return id
}

func spendPoints(t *testing.T, acc *Account, value int64, locked bool) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, acc.SpendPoints(Transfer{
		ID:        id,
		Value:     value,
		CreatedAt: base,
	}, locked))
	return id
}

func daysAfter(d int) *time.Time {
	at := base.Add(time.Duration(d) * 24 * time.Hour)
	return &at
}

func TestCreateTwiceIsConflict(t *testing.T) {
	acc := newTestAccount(t)

	err := acc.Create(uuid.New(), base)
	require.Error(t, err)
	require.True(t, errutil.IsStatus(err, errutil.StatusConflict))
}

func TestOperationsRequireExistingAccount(t *testing.T) {
	acc := New(uuid.New())

	err := acc.AddPoints(Transfer{ID: uuid.New(), Value: 10, CreatedAt: base})
	require.True(t, errutil.IsStatus(err, errutil.StatusNotFound))
}

func TestAddPointsRejectsNonPositiveValue(t *testing.T) {
	acc := newTestAccount(t)

	for _, value := range []int64{0, -5} {
		err := acc.AddPoints(Transfer{ID: uuid.New(), Value: value, CreatedAt: base})
		require.Error(t, err)
		require.True(t, errutil.IsStatus(err, errutil.StatusUnprocessableEntity))
	}
}

func TestAddPointsRejectsDuplicateTransfer(t *testing.T) {
	acc := newTestAccount(t)
	id := addPoints(t, acc, 10, nil)

	err := acc.AddPoints(Transfer{ID: id, Value: 10, CreatedAt: base})
	require.True(t, errutil.IsStatus(err, errutil.StatusConflict))
}

func TestSpendRejectsInsufficientBalance(t *testing.T) {
	acc := newTestAccount(t)
	addPoints(t, acc, 30, nil)

	err := acc.SpendPoints(Transfer{ID: uuid.New(), Value: 31, CreatedAt: base}, false)
	require.Error(t, err)
	require.True(t, errutil.IsStatus(err, errutil.StatusUnprocessableEntity))
	require.EqualValues(t, 30, acc.AvailableAmount())
}

func TestSpendConsumesOldestExpiringFirst(t *testing.T) {
	acc := newTestAccount(t)
	tenDays := addPoints(t, acc, 50, daysAfter(10))
	addPoints(t, acc, 30, daysAfter(5))
	addPoints(t, acc, 100, nil)

	spendPoints(t, acc, 60, false)
	require.EqualValues(t, 120, acc.AvailableAmount())

	// The spend drained the 5-day transfer and 30 of the 10-day one, so only
	// the untouched 20 vanish with it.
	require.NoError(t, acc.ExpireTransfer(tenDays, *daysAfter(10)))
	require.EqualValues(t, 100, acc.AvailableAmount())
	require.EqualValues(t, 20, acc.ExpiredAmount())
}

func TestExpireRemovesOnlyUnspentRemainder(t *testing.T) {
	acc := newTestAccount(t)
	id := addPoints(t, acc, 100, daysAfter(30))
	spendPoints(t, acc, 40, false)

	require.NoError(t, acc.ExpireTransfer(id, *daysAfter(30)))

	require.EqualValues(t, 0, acc.AvailableAmount())
	require.EqualValues(t, 40, acc.SpentAmount())
	require.EqualValues(t, 60, acc.ExpiredAmount())
	require.EqualValues(t, 100, acc.EarnedAmount())
}

func TestExpireBeforeDeadlineDoesNothing(t *testing.T) {
	acc := newTestAccount(t)
	id := addPoints(t, acc, 100, daysAfter(30))
	pending := len(acc.Pending())

	require.NoError(t, acc.ExpireTransfer(id, *daysAfter(29)))
	require.Len(t, acc.Pending(), pending)
	require.EqualValues(t, 100, acc.AvailableAmount())
}

func TestExpireIsIdempotent(t *testing.T) {
	acc := newTestAccount(t)
	id := addPoints(t, acc, 100, daysAfter(30))

	require.NoError(t, acc.ExpireTransfer(id, *daysAfter(30)))
	pending := len(acc.Pending())

	require.NoError(t, acc.ExpireTransfer(id, *daysAfter(31)))
	require.Len(t, acc.Pending(), pending)
	require.EqualValues(t, 100, acc.ExpiredAmount())
}

func TestExpireSpendingTransferIsRejected(t *testing.T) {
	acc := newTestAccount(t)
	addPoints(t, acc, 100, nil)
	spendID := spendPoints(t, acc, 40, false)

	err := acc.ExpireTransfer(spendID, base)
	require.True(t, errutil.IsStatus(err, errutil.StatusUnprocessableEntity))
}

func TestCancelAddingRemovesRemainder(t *testing.T) {
	acc := newTestAccount(t)
	id := addPoints(t, acc, 100, nil)
	spendPoints(t, acc, 40, false)

	require.NoError(t, acc.CancelTransfer(id, base))
	require.EqualValues(t, 0, acc.AvailableAmount())
	require.EqualValues(t, 0, acc.EarnedAmount())
}

func TestCancelSpendReturnsPoints(t *testing.T) {
	acc := newTestAccount(t)
	addPoints(t, acc, 100, nil)
	spendID := spendPoints(t, acc, 40, false)
	require.EqualValues(t, 60, acc.AvailableAmount())

	require.NoError(t, acc.CancelTransfer(spendID, base))
	require.EqualValues(t, 100, acc.AvailableAmount())
	require.EqualValues(t, 0, acc.SpentAmount())
}

func TestCancelUnknownTransferNotFound(t *testing.T) {
	acc := newTestAccount(t)

	err := acc.CancelTransfer(uuid.New(), base)
	require.True(t, errutil.IsStatus(err, errutil.StatusNotFound))
}

func TestCancelTwiceIsConflict(t *testing.T) {
	acc := newTestAccount(t)
	id := addPoints(t, acc, 100, nil)
	require.NoError(t, acc.CancelTransfer(id, base))

	err := acc.CancelTransfer(id, base)
	require.True(t, errutil.IsStatus(err, errutil.StatusConflict))
}

func TestLockedAddingTransferIsNotSpendable(t *testing.T) {
	acc := newTestAccount(t)
	id := addPoints(t, acc, 100, nil)

	require.NoError(t, acc.LockTransfer(id))
	require.EqualValues(t, 0, acc.AvailableAmount())

	err := acc.SpendPoints(Transfer{ID: uuid.New(), Value: 10, CreatedAt: base}, false)
	require.True(t, errutil.IsStatus(err, errutil.StatusUnprocessableEntity))

	require.NoError(t, acc.UnlockTransfer(id))
	require.EqualValues(t, 100, acc.AvailableAmount())
}

func TestLockedSpendIsReservedUntilCanceled(t *testing.T) {
	acc := newTestAccount(t)
	addPoints(t, acc, 100, nil)
	spendID := spendPoints(t, acc, 40, true)
	require.EqualValues(t, 60, acc.AvailableAmount())

	require.NoError(t, acc.CancelTransfer(spendID, base))
	require.EqualValues(t, 100, acc.AvailableAmount())
}

func TestLockedSpendConfirmedByUnlock(t *testing.T) {
	acc := newTestAccount(t)
	addPoints(t, acc, 100, nil)
	spendID := spendPoints(t, acc, 40, true)

	require.NoError(t, acc.UnlockTransfer(spendID))
	require.EqualValues(t, 60, acc.AvailableAmount())
	require.EqualValues(t, 40, acc.SpentAmount())
}

func TestLockTwiceIsConflict(t *testing.T) {
	acc := newTestAccount(t)
	id := addPoints(t, acc, 100, nil)
	require.NoError(t, acc.LockTransfer(id))

	err := acc.LockTransfer(id)
	require.True(t, errutil.IsStatus(err, errutil.StatusConflict))

	err = acc.UnlockTransfer(uuid.New())
	require.True(t, errutil.IsStatus(err, errutil.StatusNotFound))
}

func TestReplayRebuildsIdenticalState(t *testing.T) {
	acc := newTestAccount(t)
	id := addPoints(t, acc, 100, daysAfter(10))
	addPoints(t, acc, 50, nil)
	spendPoints(t, acc, 120, false)
	require.NoError(t, acc.ExpireTransfer(id, *daysAfter(10)))

	rebuilt := New(acc.AggregateID())
	rebuilt.Replay(acc.Pending())

	require.Equal(t, acc.Playhead(), rebuilt.Playhead())
	require.Equal(t, acc.CustomerID, rebuilt.CustomerID)
	require.Equal(t, acc.AvailableAmount(), rebuilt.AvailableAmount())
	require.Equal(t, acc.SpentAmount(), rebuilt.SpentAmount())
	require.Equal(t, acc.ExpiredAmount(), rebuilt.ExpiredAmount())
	require.Empty(t, rebuilt.Pending())
}
