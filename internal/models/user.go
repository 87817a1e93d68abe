package models

import "time"

const (
	RoleCustomer = "customer"
	RoleProvider = "provider"
	RoleAdmin    = "admin"
)

type User struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Email        string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Name         string    `gorm:"type:varchar(128);not null" json:"name"`
	PasswordHash string    `gorm:"type:varchar(128);not null" json:"-"`
	Role         string    `gorm:"type:varchar(16);index;not null" json:"role"`
	IsSuspended  bool      `gorm:"not null;default:false" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"-"`
}

func (User) TableName() string { return "users" }

// ProviderProfile is the availability record for a provider: current
// position plus the online flag the discovery path filters on. The position
// fields are written only through the realtime location_update path, so each
// row has a single writer.
type ProviderProfile struct {
	ID                 uint64     `gorm:"primaryKey;autoIncrement" json:"-"`
	UserID             uint64     `gorm:"uniqueIndex;not null" json:"user_id"`
	CurrentLatitude    *float64   `json:"current_latitude"`
	CurrentLongitude   *float64   `json:"current_longitude"`
	LastLocationUpdate *time.Time `json:"last_location_update"`
	IsAvailable        bool       `gorm:"index;not null;default:false" json:"is_available"`
	CreatedAt          time.Time  `json:"-"`
	UpdatedAt          time.Time  `json:"-"`
}

func (ProviderProfile) TableName() string { return "provider_profiles" }
