package models

import "time"

// Profile roles.
const (
	RoleAdmin      = "admin"
	RoleResearcher = "researcher"
	RoleViewer     = "viewer"
)

// User represents an account that can sign in to the API.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"id"` // Primary key.

	Username  string `gorm:"type:varchar(150);not null;uniqueIndex" json:"username"` // Unique login name.
	Email     string `gorm:"type:varchar(254);not null;uniqueIndex" json:"email"`    // Unique contact email.
	FirstName string `gorm:"type:varchar(150);not null;default:''" json:"first_name"` // Given name.
	LastName  string `gorm:"type:varchar(150);not null;default:''" json:"last_name"`  // Family name.
	Password  string `gorm:"type:text;not null" json:"-"`                             // Hashed password.

	IsActive bool `gorm:"not null;default:false" json:"is_active"` // Whether the account can sign in.
	IsStaff  bool `gorm:"not null;default:false" json:"is_staff"`  // Grants unrestricted registry access.

	Profile *Profile `gorm:"foreignKey:UserID" json:"-"` // One-to-one profile.

	DateJoined time.Time  `gorm:"not null" json:"date_joined"` // Registration timestamp.
	LastLogin  *time.Time `json:"last_login"`                  // Last successful login.

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"-"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"-"` // Last update timestamp.
}

// Profile extends a user with role and email verification state.
type Profile struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement" json:"-"`
	UserID uint64 `gorm:"not null;uniqueIndex" json:"-"` // Owning user.

	Role       string `gorm:"type:varchar(20);not null;default:'viewer'" json:"role"`
	Department string `gorm:"type:varchar(100);not null;default:''" json:"department"`
	Phone      string `gorm:"type:varchar(20);not null;default:''" json:"phone"`

	EmailVerified bool `gorm:"not null;default:false" json:"email_verified"`
	EverVerified  bool `gorm:"not null;default:false" json:"-"` // Set by the first verification; later verifications never reactivate.

	VerificationToken          *string    `gorm:"type:varchar(64);uniqueIndex" json:"-"` // Pending email verification token.
	VerificationTokenCreatedAt *time.Time `json:"-"`                                      // Issuance time of VerificationToken.

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"-"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"-"`
}

// IsStaff reports whether the profile role grants staff visibility.
func (p *Profile) IsStaff() bool {
	return p != nil && p.Role == RoleAdmin
}

// ValidRole reports whether role is one of the known profile roles.
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleResearcher, RoleViewer:
		return true
	default:
		return false
	}
}

// AuthToken is the single opaque session credential of a user.
type AuthToken struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"`
	UserID uint64 `gorm:"not null;uniqueIndex"` // One token per user.
	User   *User  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`

	KeyDigest string `gorm:"type:varchar(64);not null;uniqueIndex"` // SHA-256 hex of the issued key.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
}
