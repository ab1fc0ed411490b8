package repository

import (
	"context"
	"errors"
	"time"

	"shopwallet/internal/model"

	"gorm.io/gorm"
)

var (
	ErrTopupNotFound   = errors.New("储值申请不存在")
	ErrAlreadyReviewed = errors.New("储值申请已审核，不可重复操作")
)

type TopupRepository struct {
	db *gorm.DB
}

func NewTopupRepository(db *gorm.DB) *TopupRepository {
	return &TopupRepository{db: db}
}

func (r *TopupRepository) Create(ctx context.Context, req *model.TopupRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *TopupRepository) GetByID(ctx context.Context, id int64) (*model.TopupRequest, error) {
	var req model.TopupRequest
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTopupNotFound
		}
		return nil, err
	}
	return &req, nil
}

// Review 审核落库，WHERE 限定 PENDING，已被审核过的申请影响行数为 0
func (r *TopupRepository) Review(ctx context.Context, tx *gorm.DB, id int64, toStatus, note string) error {
	if tx == nil {
		tx = r.db
	}
	now := time.Now()
	result := tx.WithContext(ctx).
		Model(&model.TopupRequest{}).
		Where("id = ? AND status = ?", id, model.TopupStatusPending).
		Updates(map[string]interface{}{
			"status":      toStatus,
			"review_note": note,
			"reviewed_at": &now,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrAlreadyReviewed
	}

	return nil
}

func (r *TopupRepository) ListPending(ctx context.Context, page, pageSize int) ([]*model.TopupRequest, int64, error) {
	var requests []*model.TopupRequest
	var total int64

	query := r.db.WithContext(ctx).Model(&model.TopupRequest{}).Where("status = ?", model.TopupStatusPending)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&requests).Error

	return requests, total, err
}
