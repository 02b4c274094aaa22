package db

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAdvisoryLockKeyIsDeterministic(t *testing.T) {
	a := AdvisoryLockKey("o1")
	b := AdvisoryLockKey("o1")
	require.Equal(t, a, b)
}

func TestAdvisoryLockKeyDistinguishesOrders(t *testing.T) {
	require.NotEqual(t, AdvisoryLockKey("o1"), AdvisoryLockKey("o2"))
}

func TestAdvisoryXactLockRequiresTx(t *testing.T) {
	require.Error(t, AdvisoryXactLock(nil, "o1"))
}
