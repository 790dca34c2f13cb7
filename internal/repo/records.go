package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/Skotchmaster/healthcare_records/internal/apperr"
	"github.com/Skotchmaster/healthcare_records/internal/models"
	"github.com/Skotchmaster/healthcare_records/internal/role"
)

// Viewer is the caller a patient query is scoped to.
type Viewer struct {
	ID   uint
	Role role.Role
}

// scopePatients restricts a patients query to the rows v may see.
func scopePatients(db *gorm.DB, v Viewer) *gorm.DB {
	switch v.Role {
	case role.Admin:
		return db
	case role.Doctor:
		return db.Where("assigned_doctor_id = ?", v.ID)
	case role.Nurse:
		return db.Where("assigned_nurse_id = ?", v.ID)
	case role.Patient:
		return db.Where("user_id = ?", v.ID)
	case role.Unknown:
	}
	return db.Where("1 = 0")
}

// CanSee is the in-memory twin of scopePatients.
func CanSee(v Viewer, p *models.Patient) bool {
	switch v.Role {
	case role.Admin:
		return true
	case role.Doctor:
		return p.AssignedDoctorID != nil && *p.AssignedDoctorID == v.ID
	case role.Nurse:
		return p.AssignedNurseID != nil && *p.AssignedNurseID == v.ID
	case role.Patient:
		return p.UserID == v.ID
	case role.Unknown:
	}
	return false
}

func (r *GormRepo) ListPatients(ctx context.Context, v Viewer) ([]models.Patient, error) {
	var out []models.Patient
	if err := scopePatients(r.DB.WithContext(ctx), v).Order("id").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *GormRepo) PatientByID(ctx context.Context, id uint) (*models.Patient, error) {
	var p models.Patient
	if err := r.DB.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *GormRepo) PatientByUserID(ctx context.Context, userID uint) (*models.Patient, error) {
	var p models.Patient
	if err := r.DB.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *GormRepo) SavePatient(ctx context.Context, p *models.Patient) error {
	return r.DB.WithContext(ctx).Save(p).Error
}

func (r *GormRepo) setPatientRef(ctx context.Context, patientID uint, column string, ref *uint) error {
	var v any
	if ref != nil {
		v = *ref
	}
	res := r.DB.WithContext(ctx).Model(&models.Patient{ID: patientID}).Update(column, v)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// SetPatientDoctor assigns a doctor; nil clears the assignment.
func (r *GormRepo) SetPatientDoctor(ctx context.Context, patientID uint, doctorID *uint) error {
	return r.setPatientRef(ctx, patientID, "assigned_doctor_id", doctorID)
}

// SetPatientNurse assigns a nurse; nil clears the assignment.
func (r *GormRepo) SetPatientNurse(ctx context.Context, patientID uint, nurseID *uint) error {
	return r.setPatientRef(ctx, patientID, "assigned_nurse_id", nurseID)
}

func (r *GormRepo) CreateMedication(ctx context.Context, m *models.Medication) error {
	return r.DB.WithContext(ctx).Create(m).Error
}

func (r *GormRepo) MedicationByID(ctx context.Context, id uint) (*models.Medication, error) {
	var m models.Medication
	if err := r.DB.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

func (r *GormRepo) ListMedications(ctx context.Context, patientID uint) ([]models.Medication, error) {
	var out []models.Medication
	if err := r.DB.WithContext(ctx).Where("patient_id = ?", patientID).Order("id").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *GormRepo) CreateTracking(ctx context.Context, t *models.MedicationTracking) error {
	return r.DB.WithContext(ctx).Create(t).Error
}

func (r *GormRepo) ListTracking(ctx context.Context, patientID uint) ([]models.MedicationTracking, error) {
	var out []models.MedicationTracking
	if err := r.DB.WithContext(ctx).Where("patient_id = ?", patientID).
		Order("recorded_at DESC, id DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
