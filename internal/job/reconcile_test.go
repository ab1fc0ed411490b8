package job

import (
	"context"
	"testing"

	"shopwallet/internal/model"

	"github.com/stretchr/testify/require"
)

func TestReconcileAllScansAllAccounts(t *testing.T) {
	db := newTestDB(t)
	job := NewReconcileJob(db)
	job.batchSize = 2

	// 三个账户：两个账实相符，一个余额被直改绕过了台账
	for i := int64(1); i <= 3; i++ {
		require.NoError(t, db.Create(&model.WalletAccount{UserID: i, BalanceTWD: 100}).Error)
		require.NoError(t, db.Create(&model.LedgerEntry{
			EntryNo:      "TXN-RC" + string(rune('0'+i)),
			UserID:       i,
			Type:         model.LedgerTypeTopup,
			AmountTWD:    100,
			BalanceAfter: 100,
		}).Error)
	}
	require.NoError(t, db.Model(&model.WalletAccount{}).
		Where("user_id = ?", int64(2)).
		Update("balance_twd", 150).Error)

	// 游标翻页覆盖全部账户，不一致只告警不修账
	job.reconcileAll(context.Background())

	var account model.WalletAccount
	require.NoError(t, db.Where("user_id = ?", int64(2)).First(&account).Error)
	require.Equal(t, int64(150), account.BalanceTWD)
}
