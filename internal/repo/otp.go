package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/Skotchmaster/healthcare_records/internal/models"
)

// ReplaceCode invalidates every unused code of the same purpose for the user
// and stores code, so at most one unused code exists per user and purpose.
func (r *GormRepo) ReplaceCode(ctx context.Context, code *models.OneTimeCode) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.OneTimeCode{}).
			Where("user_id = ? AND purpose = ? AND used = ?", code.UserID, code.Purpose, false).
			Update("used", true).Error; err != nil {
			return err
		}
		return tx.Create(code).Error
	})
}

// ConsumeCode marks a matching, unused, unexpired code as used. It reports
// false when no such code exists. The update is a single statement so two
// concurrent submissions of one code cannot both succeed.
func (r *GormRepo) ConsumeCode(ctx context.Context, userID uint, email string, purpose models.Purpose, codeHash string, now time.Time) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&models.OneTimeCode{}).
		Where("user_id = ? AND email = ? AND purpose = ? AND code_hash = ? AND used = ? AND expires_at > ?",
			userID, email, purpose, codeHash, false, now.Unix()).
		Update("used", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
