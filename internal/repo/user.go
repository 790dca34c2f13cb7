package repo

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/Skotchmaster/healthcare_records/internal/apperr"
	"github.com/Skotchmaster/healthcare_records/internal/models"
	"github.com/Skotchmaster/healthcare_records/internal/role"
)

func (r *GormRepo) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := r.DB.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (r *GormRepo) UserByID(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := r.DB.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

// CreateUser inserts u and, when profile is non-nil, its patient profile in
// the same transaction. Either both rows exist afterwards or neither does.
func (r *GormRepo) CreateUser(ctx context.Context, u *models.User, profile *models.Patient) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.User{}).
			Where("username = ? OR email = ?", u.Username, u.Email).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return apperr.ErrDuplicateIdentity
		}

		if err := tx.Create(u).Error; err != nil {
			return translate(err)
		}
		if profile == nil {
			return nil
		}
		profile.UserID = u.ID
		if err := tx.Create(profile).Error; err != nil {
			return fmt.Errorf("create patient profile: %w", translate(err))
		}
		return nil
	})
}

func (r *GormRepo) UpdatePassword(ctx context.Context, id uint, digest string) error {
	res := r.DB.WithContext(ctx).Model(&models.User{ID: id}).Update("password_hash", digest)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// SetTwoFactor stores the TOTP secret (encrypted by the field plugin) and the
// enabled flag. An empty secret clears enrolment.
func (r *GormRepo) SetTwoFactor(ctx context.Context, id uint, secret string, enabled bool) error {
	res := r.DB.WithContext(ctx).Model(&models.User{ID: id}).Updates(map[string]any{
		"two_factor_secret":  secret,
		"two_factor_enabled": enabled,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (r *GormRepo) ListUsers(ctx context.Context, offset, limit int) ([]models.User, int64, error) {
	var (
		users []models.User
		total int64
	)
	db := r.DB.WithContext(ctx).Model(&models.User{})
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Order("id").Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *GormRepo) ListByRole(ctx context.Context, rl role.Role) ([]models.User, error) {
	var users []models.User
	if err := r.DB.WithContext(ctx).Where("role = ?", rl).Order("username").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// SetAssignedNurse points a doctor's nurse back-reference at nurseID.
func (r *GormRepo) SetAssignedNurse(ctx context.Context, doctorID, nurseID uint) error {
	res := r.DB.WithContext(ctx).Model(&models.User{ID: doctorID}).Update("assigned_nurse_id", nurseID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// DeleteUser removes an identity and everything that hangs off it: refresh
// tokens, one-time codes, its patient profile with medications and tracking,
// and any assignment that points at it.
func (r *GormRepo) DeleteUser(ctx context.Context, id uint) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", id).Delete(&models.RefreshToken{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.OneTimeCode{}).Error; err != nil {
			return err
		}

		var profileIDs []uint
		if err := tx.Model(&models.Patient{}).Where("user_id = ?", id).Pluck("id", &profileIDs).Error; err != nil {
			return err
		}
		if len(profileIDs) > 0 {
			if err := tx.Where("patient_id IN ?", profileIDs).Delete(&models.MedicationTracking{}).Error; err != nil {
				return err
			}
			if err := tx.Where("patient_id IN ?", profileIDs).Delete(&models.Medication{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", profileIDs).Delete(&models.Patient{}).Error; err != nil {
				return err
			}
		}

		if err := tx.Model(&models.User{}).Where("assigned_nurse_id = ?", id).
			Update("assigned_nurse_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Patient{}).Where("assigned_doctor_id = ?", id).
			Update("assigned_doctor_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Patient{}).Where("assigned_nurse_id = ?", id).
			Update("assigned_nurse_id", nil).Error; err != nil {
			return err
		}

		res := tx.Delete(&models.User{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.ErrNotFound
		}
		return nil
	})
}
