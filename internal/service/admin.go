package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Skotchmaster/healthcare_records/internal/apperr"
	"github.com/Skotchmaster/healthcare_records/internal/hash"
	"github.com/Skotchmaster/healthcare_records/internal/logging"
	"github.com/Skotchmaster/healthcare_records/internal/models"
	"github.com/Skotchmaster/healthcare_records/internal/repo"
	"github.com/Skotchmaster/healthcare_records/internal/role"
	"github.com/Skotchmaster/healthcare_records/internal/util"
)

// AdminService manages identities and care-team assignments.
type AdminService struct {
	repo *repo.GormRepo
}

func NewAdminService(r *repo.GormRepo) *AdminService {
	return &AdminService{repo: r}
}

type CreateUserInput struct {
	Username string
	Email    string
	Password string
	Role     role.Role
	Name     string
	Age      int
}

type UserPage struct {
	Users []models.User `json:"users"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Size  int           `json:"size"`
}

func (s *AdminService) ListUsers(ctx context.Context, page, size int) (*UserPage, error) {
	offset, limit := util.Paginate(page, size)
	users, total, err := s.repo.ListUsers(ctx, offset, limit)
	if err != nil {
		return nil, err
	}
	return &UserPage{Users: users, Total: total, Page: offset/limit + 1, Size: limit}, nil
}

// CreateUser creates an identity of any role. Patients get their profile in
// the same transaction.
func (s *AdminService) CreateUser(ctx context.Context, in CreateUserInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = NormalizeEmail(in.Email)
	if !in.Role.Valid() {
		return nil, apperr.Validation("role is invalid")
	}
	if err := validateUsername(in.Username); err != nil {
		return nil, err
	}
	if err := validateEmail(in.Email); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	digest, err := hash.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &models.User{Username: in.Username, Email: in.Email, PasswordHash: digest, Role: in.Role}

	var profile *models.Patient
	if in.Role == role.Patient {
		name := strings.TrimSpace(in.Name)
		if name == "" {
			name = in.Username
		}
		profile = &models.Patient{Name: name, Age: in.Age}
	}

	if err := s.repo.CreateUser(ctx, u, profile); err != nil {
		if !errors.Is(err, apperr.ErrDuplicateIdentity) {
			logging.FromContext(ctx).Error("admin_create_user_failed", "error", err)
		}
		return nil, err
	}
	logging.FromContext(ctx).Info("admin_user_created", "user_id", u.ID, "role", u.Role.String())
	return u, nil
}

func (s *AdminService) DeleteUser(ctx context.Context, actorID, id uint) error {
	if actorID == id {
		return apperr.Validation("cannot delete your own account")
	}
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}
	logging.FromContext(ctx).Info("admin_user_deleted", "user_id", id)
	return nil
}

func (s *AdminService) requireRole(ctx context.Context, id uint, want role.Role) error {
	u, err := s.repo.UserByID(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return apperr.Validation(fmt.Sprintf("%s not found", want))
	}
	if err != nil {
		return err
	}
	if u.Role != want {
		return apperr.Validation(fmt.Sprintf("user %d is not a %s", id, want))
	}
	return nil
}

func (s *AdminService) AssignDoctor(ctx context.Context, patientID, doctorID uint) error {
	if err := s.requireRole(ctx, doctorID, role.Doctor); err != nil {
		return err
	}
	return s.repo.SetPatientDoctor(ctx, patientID, &doctorID)
}

func (s *AdminService) AssignNurse(ctx context.Context, patientID, nurseID uint) error {
	if err := s.requireRole(ctx, nurseID, role.Nurse); err != nil {
		return err
	}
	return s.repo.SetPatientNurse(ctx, patientID, &nurseID)
}

func (s *AdminService) RemoveDoctor(ctx context.Context, patientID uint) error {
	return s.repo.SetPatientDoctor(ctx, patientID, nil)
}

func (s *AdminService) RemoveNurse(ctx context.Context, patientID uint) error {
	return s.repo.SetPatientNurse(ctx, patientID, nil)
}

// AssignNurseToDoctor records which nurse works with a doctor.
func (s *AdminService) AssignNurseToDoctor(ctx context.Context, doctorID, nurseID uint) error {
	if err := s.requireRole(ctx, nurseID, role.Nurse); err != nil {
		return err
	}
	return s.repo.SetAssignedNurse(ctx, doctorID, nurseID)
}

func (s *AdminService) ListByRole(ctx context.Context, rl role.Role) ([]models.User, error) {
	return s.repo.ListByRole(ctx, rl)
}
