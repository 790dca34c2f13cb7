package repo

import (
	"errors"

	"gorm.io/gorm"

	"github.com/Skotchmaster/healthcare_records/internal/apperr"
)

type GormRepo struct {
	DB *gorm.DB
}

func New(db *gorm.DB) *GormRepo {
	return &GormRepo{DB: db}
}

// translate maps storage errors onto the error taxonomy. Anything it does not
// recognise is returned unchanged.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.Wrap(apperr.ErrNotFound, err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperr.Wrap(apperr.ErrDuplicateIdentity, err)
	}
	return err
}
