package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/Skotchmaster/user_service/internal/models"
)

func (r *GormRepo) CreateRevision(ctx context.Context, userID int64) error {
	rec := models.UserTokens{UserID: userID}
	tx := r.DB.WithContext(ctx).Where("user_id = ?", userID).FirstOrCreate(&rec)
	if tx.Error != nil {
		if errors.Is(tx.Error, gorm.ErrDuplicatedKey) {
			return ErrRevisionExists
		}
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrRevisionExists
	}
	return nil
}

func (r *GormRepo) GetRevision(ctx context.Context, userID int64) (*models.UserTokens, error) {
	var rec models.UserTokens
	if err := r.DB.WithContext(ctx).Where("user_id = ?", userID).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRevisionNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// BumpRevision increments the counter in place and reads it back inside the
// same transaction. The UPDATE holds the row lock until commit, so concurrent
// bumps for one user serialize and never observe the same value.
func (r *GormRepo) BumpRevision(ctx context.Context, userID int64) (int64, error) {
	var rec models.UserTokens
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.UserTokens{}).
			Where("user_id = ?", userID).
			UpdateColumn("token_revision", gorm.Expr("token_revision + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrRevisionNotFound
		}
		return tx.Where("user_id = ?", userID).First(&rec).Error
	})
	if err != nil {
		return 0, err
	}
	return rec.TokenRevision, nil
}
