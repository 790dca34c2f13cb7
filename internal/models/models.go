package models

import (
	"time"

	"github.com/Skotchmaster/healthcare_records/internal/fieldcrypt"
	"github.com/Skotchmaster/healthcare_records/internal/role"
)

type User struct {
	ID               uint      `gorm:"primaryKey;autoIncrement"        json:"id"`
	Username         string    `gorm:"size:100;uniqueIndex;not null"   json:"username"`
	Email            string    `gorm:"size:255;uniqueIndex;not null"   json:"email"`
	PasswordHash     string    `gorm:"size:255;not null"               json:"-"`
	Role             role.Role `gorm:"type:varchar(20);not null;index" json:"role"`
	AssignedNurseID  *uint     `gorm:"index"                           json:"assignedNurseId,omitempty"`
	TwoFactorSecret  string    `gorm:"type:text"                       json:"-"`
	TwoFactorEnabled bool      `gorm:"not null;default:false"          json:"twoFactorEnabled"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

type RefreshToken struct {
	ID        uint      `gorm:"primaryKey"                   json:"id"`
	TokenHash string    `gorm:"size:64;uniqueIndex;not null" json:"-"`
	JTI       string    `gorm:"size:36;uniqueIndex;not null" json:"jti"`
	UserID    uint      `gorm:"index;not null"               json:"userId"`
	ExpiresAt int64     `gorm:"index;not null"               json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

type Purpose string

const (
	PurposeLogin Purpose = "login"
	PurposeReset Purpose = "password_reset"
)

// OneTimeCode backs both login step-up codes and password reset codes. Only
// the SHA-256 of the code is stored.
type OneTimeCode struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"index:idx_otp_lookup;not null"`
	Email     string    `gorm:"size:255;index:idx_otp_lookup;not null"`
	Purpose   Purpose   `gorm:"size:20;index:idx_otp_lookup;not null"`
	CodeHash  string    `gorm:"size:64;not null"`
	ExpiresAt int64     `gorm:"not null"`
	Used      bool      `gorm:"not null;default:false"`
	CreatedAt time.Time
}

type Patient struct {
	ID               uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID           uint      `gorm:"uniqueIndex;not null"     json:"userId"`
	Name             string    `gorm:"type:text;not null"       json:"name"`
	Age              int       `gorm:"not null;default:0"       json:"age"`
	Condition        string    `gorm:"type:text"                json:"condition"`
	AssignedDoctorID *uint     `gorm:"index"                    json:"assignedDoctorId,omitempty"`
	AssignedNurseID  *uint     `gorm:"index"                    json:"assignedNurseId,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

type Medication struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	PatientID    uint      `gorm:"index;not null"           json:"patientId"`
	Name         string    `gorm:"type:text;not null"       json:"name"`
	Dosage       string    `gorm:"type:text;not null"       json:"dosage"`
	Frequency    string    `gorm:"size:100"                 json:"frequency"`
	Instructions string    `gorm:"type:text"                json:"instructions"`
	PrescribedBy uint      `gorm:"index"                    json:"prescribedBy"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type TrackingStatus string

const (
	StatusGiven   TrackingStatus = "given"
	StatusMissed  TrackingStatus = "missed"
	StatusPending TrackingStatus = "pending"
)

func (s TrackingStatus) Valid() bool {
	switch s {
	case StatusGiven, StatusMissed, StatusPending:
		return true
	}
	return false
}

type MedicationTracking struct {
	ID           uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	MedicationID uint           `gorm:"index;not null"           json:"medicationId"`
	PatientID    uint           `gorm:"index;not null"           json:"patientId"`
	Status       TrackingStatus `gorm:"size:20;not null"         json:"status"`
	Notes        string         `gorm:"type:text"                json:"notes"`
	RecordedBy   uint           `gorm:"not null"                 json:"recordedBy"`
	RecordedAt   time.Time      `gorm:"not null"                 json:"recordedAt"`
}

func All() []any {
	return []any{
		&User{},
		&RefreshToken{},
		&OneTimeCode{},
		&Patient{},
		&Medication{},
		&MedicationTracking{},
	}
}

// Encrypted registers every sensitive text column with p.
func Encrypted(p *fieldcrypt.Plugin) *fieldcrypt.Plugin {
	return p.
		Register(User{}, "TwoFactorSecret").
		Register(Patient{}, "Name", "Condition").
		Register(Medication{}, "Name", "Dosage", "Instructions").
		Register(MedicationTracking{}, "Notes")
}
