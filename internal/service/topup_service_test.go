package service

import (
	"context"
	"testing"

	"shopwallet/internal/model"
	"shopwallet/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTopupService(t *testing.T) (*TopupService, *WalletService) {
	t.Helper()

	db := newTestDB(t)
	rdb := newTestRedis(t)
	return NewTopupService(db, rdb, newTestConfig()), NewWalletService(db, rdb)
}

func TestTopupApprove(t *testing.T) {
	svc, wallet := newTopupService(t)
	ctx := context.Background()

	topup, err := svc.Submit(ctx, &SubmitTopupRequest{
		UserID:           100,
		AmountTWD:        500,
		BankAccountLast5: "12345",
		ProofImage:       "https://cdn.example.com/proof/1.jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, model.TopupStatusPending, topup.Status)
	assert.NotEmpty(t, topup.RequestNo)

	reviewed, err := svc.Approve(ctx, topup.ID, "凭证已核对")
	require.NoError(t, err)
	assert.Equal(t, model.TopupStatusApproved, reviewed.Status)
	assert.Equal(t, "凭证已核对", reviewed.ReviewNote)
	require.NotNil(t, reviewed.ReviewedAt)

	// 入账 500，台账引用申请单号
	balance, err := wallet.GetBalance(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(500), balance)

	entries, _, err := wallet.ListEntries(ctx, 100, 1, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.LedgerTypeTopup, entries[0].Type)
	assert.Equal(t, topup.RequestNo, entries[0].ExternalRef)
}

func TestTopupApproveTwice(t *testing.T) {
	svc, wallet := newTopupService(t)
	ctx := context.Background()

	topup, err := svc.Submit(ctx, &SubmitTopupRequest{
		UserID:           100,
		AmountTWD:        500,
		BankAccountLast5: "12345",
	})
	require.NoError(t, err)

	_, err = svc.Approve(ctx, topup.ID, "第一次")
	require.NoError(t, err)

	// 重复审核不重复入账
	_, err = svc.Approve(ctx, topup.ID, "第二次")
	assert.ErrorIs(t, err, repository.ErrAlreadyReviewed)

	balance, _ := wallet.GetBalance(ctx, 100)
	assert.Equal(t, int64(500), balance)
}

func TestTopupReject(t *testing.T) {
	svc, wallet := newTopupService(t)
	ctx := context.Background()

	topup, err := svc.Submit(ctx, &SubmitTopupRequest{
		UserID:           100,
		AmountTWD:        800,
		BankAccountLast5: "54321",
	})
	require.NoError(t, err)

	reviewed, err := svc.Reject(ctx, topup.ID, "金额与汇款不符")
	require.NoError(t, err)
	assert.Equal(t, model.TopupStatusRejected, reviewed.Status)

	// 驳回不动钱包也不留台账
	balance, _ := wallet.GetBalance(ctx, 100)
	assert.Equal(t, int64(0), balance)

	_, total, err := wallet.ListEntries(ctx, 100, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)

	// 驳回后不能再通过
	_, err = svc.Approve(ctx, topup.ID, "")
	assert.ErrorIs(t, err, repository.ErrAlreadyReviewed)
}

func TestTopupSubmitValidation(t *testing.T) {
	svc, _ := newTopupService(t)
	ctx := context.Background()

	_, err := svc.Submit(ctx, &SubmitTopupRequest{UserID: 100, AmountTWD: 0, BankAccountLast5: "12345"})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Submit(ctx, &SubmitTopupRequest{UserID: 100, AmountTWD: 100, BankAccountLast5: "123"})
	assert.ErrorIs(t, err, ErrInvalidBankLast5)
}

func TestTopupListPending(t *testing.T) {
	svc, _ := newTopupService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Submit(ctx, &SubmitTopupRequest{
			UserID:           int64(100 + i),
			AmountTWD:        100,
			BankAccountLast5: "12345",
		})
		require.NoError(t, err)
	}

	first, err := svc.Submit(ctx, &SubmitTopupRequest{UserID: 200, AmountTWD: 100, BankAccountLast5: "12345"})
	require.NoError(t, err)
	_, err = svc.Reject(ctx, first.ID, "测试")
	require.NoError(t, err)

	pending, total, err := svc.ListPending(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	for _, p := range pending {
		assert.Equal(t, model.TopupStatusPending, p.Status)
	}
}
