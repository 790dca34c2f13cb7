package repo

import (
	"context"
	"time"

	"github.com/Skotchmaster/healthcare_records/internal/models"
)

func (r *GormRepo) CreateRefresh(ctx context.Context, rec *models.RefreshToken) error {
	return r.DB.WithContext(ctx).Create(rec).Error
}

func (r *GormRepo) RefreshActive(ctx context.Context, tokenHash string, now time.Time) (bool, error) {
	var count int64
	if err := r.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("token_hash = ? AND expires_at > ?", tokenHash, now.Unix()).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *GormRepo) DeleteRefresh(ctx context.Context, tokenHash string) error {
	return r.DB.WithContext(ctx).Where("token_hash = ?", tokenHash).Delete(&models.RefreshToken{}).Error
}

func (r *GormRepo) DeleteUserRefresh(ctx context.Context, userID uint) error {
	return r.DB.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.RefreshToken{}).Error
}

// PurgeExpired drops refresh records and one-time codes that can no longer be
// used. It returns the number of rows removed.
func (r *GormRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Unix()
	res := r.DB.WithContext(ctx).Where("expires_at <= ?", cutoff).Delete(&models.RefreshToken{})
	if res.Error != nil {
		return 0, res.Error
	}
	n := res.RowsAffected
	res = r.DB.WithContext(ctx).Where("expires_at <= ? OR used = ?", cutoff, true).Delete(&models.OneTimeCode{})
	if res.Error != nil {
		return n, res.Error
	}
	return n + res.RowsAffected, nil
}
