package job

import (
	"context"
	"log"
	"time"

	"shopwallet/internal/repository"

	"gorm.io/gorm"
)

// ReconcileJob 周期核对钱包余额与台账流水
// 余额是台账的物化投影，两边对不上说明有写入绕过了台账，只告警不自动修账
type ReconcileJob struct {
	db         *gorm.DB
	walletRepo *repository.WalletRepository
	ledgerRepo *repository.LedgerRepository
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
}

func NewReconcileJob(db *gorm.DB) *ReconcileJob {
	return &ReconcileJob{
		db:         db,
		walletRepo: repository.NewWalletRepository(db),
		ledgerRepo: repository.NewLedgerRepository(db),
		stopCh:     make(chan struct{}),
		interval:   5 * time.Minute,
		batchSize:  100,
	}
}

func (j *ReconcileJob) Start(ctx context.Context) {
	log.Println("[ReconcileJob] 对账任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[ReconcileJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[ReconcileJob] 任务停止")
			return
		case <-ticker.C:
			j.reconcileAll(ctx)
		}
	}
}

func (j *ReconcileJob) Stop() {
	close(j.stopCh)
}

func (j *ReconcileJob) reconcileAll(ctx context.Context) {
	var cursor int64
	checked := 0
	mismatched := 0

	for {
		accounts, err := j.walletRepo.ListBatch(ctx, cursor, j.batchSize)
		if err != nil {
			log.Printf("[ReconcileJob] 扫描账户失败: %v", err)
			return
		}
		if len(accounts) == 0 {
			break
		}

		for _, account := range accounts {
			sum, err := j.ledgerRepo.SumSigned(ctx, account.UserID)
			if err != nil {
				log.Printf("[ReconcileJob] 汇总台账失败: userID=%d, err=%v", account.UserID, err)
				continue
			}
			checked++
			if sum != account.BalanceTWD {
				mismatched++
				log.Printf("[ReconcileJob] 账实不符: userID=%d, balance=%d, ledgerSum=%d",
					account.UserID, account.BalanceTWD, sum)
			}
		}

		cursor = accounts[len(accounts)-1].ID
	}

	if mismatched > 0 {
		log.Printf("[ReconcileJob] 对账完成: 核对 %d 个账户，%d 个不一致", checked, mismatched)
	}
}
