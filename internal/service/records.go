package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Skotchmaster/healthcare_records/internal/apperr"
	"github.com/Skotchmaster/healthcare_records/internal/logging"
	"github.com/Skotchmaster/healthcare_records/internal/models"
	"github.com/Skotchmaster/healthcare_records/internal/repo"
)

// RecordsService reads and writes clinical records on behalf of a viewer.
// Sensitive columns are encrypted by the storage layer; this service only
// sees plaintext.
type RecordsService struct {
	repo *repo.GormRepo
	now  func() time.Time
}

func NewRecordsService(r *repo.GormRepo) *RecordsService {
	return &RecordsService{repo: r, now: time.Now}
}

type PatientUpdate struct {
	Name      *string `json:"name"`
	Age       *int    `json:"age"`
	Condition *string `json:"condition"`
}

type MedicationInput struct {
	Name         string `json:"name"`
	Dosage       string `json:"dosage"`
	Frequency    string `json:"frequency"`
	Instructions string `json:"instructions"`
}

type TrackingInput struct {
	MedicationID uint                  `json:"medicationId"`
	Status       models.TrackingStatus `json:"status"`
	Notes        string                `json:"notes"`
}

func (s *RecordsService) ListPatients(ctx context.Context, v repo.Viewer) ([]models.Patient, error) {
	return s.repo.ListPatients(ctx, v)
}

func (s *RecordsService) GetPatient(ctx context.Context, v repo.Viewer, id uint) (*models.Patient, error) {
	p, err := s.repo.PatientByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !repo.CanSee(v, p) {
		logging.FromContext(ctx).Warn("patient_access_denied", "patient_id", id)
		return nil, apperr.ErrForbidden
	}
	return p, nil
}

func (s *RecordsService) UpdatePatient(ctx context.Context, v repo.Viewer, id uint, in PatientUpdate) (*models.Patient, error) {
	p, err := s.GetPatient(ctx, v, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, apperr.Validation("name must not be empty")
		}
		p.Name = name
	}
	if in.Age != nil {
		if *in.Age < 0 || *in.Age > 150 {
			return nil, apperr.Validation("age is out of range")
		}
		p.Age = *in.Age
	}
	if in.Condition != nil {
		p.Condition = strings.TrimSpace(*in.Condition)
	}
	if err := s.repo.SavePatient(ctx, p); err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Info("patient_updated", "patient_id", id)
	return p, nil
}

func (s *RecordsService) CreateMedication(ctx context.Context, v repo.Viewer, patientID uint, in MedicationInput) (*models.Medication, error) {
	if _, err := s.GetPatient(ctx, v, patientID); err != nil {
		return nil, err
	}
	in.Name, in.Dosage = strings.TrimSpace(in.Name), strings.TrimSpace(in.Dosage)
	if in.Name == "" || in.Dosage == "" {
		return nil, apperr.Validation("name and dosage are required")
	}
	m := &models.Medication{
		PatientID:    patientID,
		Name:         in.Name,
		Dosage:       in.Dosage,
		Frequency:    strings.TrimSpace(in.Frequency),
		Instructions: strings.TrimSpace(in.Instructions),
		PrescribedBy: v.ID,
	}
	if err := s.repo.CreateMedication(ctx, m); err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Info("medication_prescribed", "patient_id", patientID, "medication_id", m.ID)
	return m, nil
}

func (s *RecordsService) ListMedications(ctx context.Context, v repo.Viewer, patientID uint) ([]models.Medication, error) {
	if _, err := s.GetPatient(ctx, v, patientID); err != nil {
		return nil, err
	}
	return s.repo.ListMedications(ctx, patientID)
}

func (s *RecordsService) RecordTracking(ctx context.Context, v repo.Viewer, patientID uint, in TrackingInput) (*models.MedicationTracking, error) {
	if _, err := s.GetPatient(ctx, v, patientID); err != nil {
		return nil, err
	}
	if in.Status == "" {
		in.Status = models.StatusPending
	}
	if !in.Status.Valid() {
		return nil, apperr.Validation("status must be given, missed or pending")
	}
	med, err := s.repo.MedicationByID(ctx, in.MedicationID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	if med == nil || med.PatientID != patientID {
		return nil, apperr.Validation("medication does not belong to this patient")
	}

	t := &models.MedicationTracking{
		MedicationID: med.ID,
		PatientID:    patientID,
		Status:       in.Status,
		Notes:        strings.TrimSpace(in.Notes),
		RecordedBy:   v.ID,
		RecordedAt:   s.now().UTC(),
	}
	if err := s.repo.CreateTracking(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *RecordsService) ListTracking(ctx context.Context, v repo.Viewer, patientID uint) ([]models.MedicationTracking, error) {
	if _, err := s.GetPatient(ctx, v, patientID); err != nil {
		return nil, err
	}
	return s.repo.ListTracking(ctx, patientID)
}
