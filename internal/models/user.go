package models

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	BaseModel
	Username     string  `json:"username" gorm:"type:varchar(100);not null"`
	Email        string  `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	NewEmail     *string `json:"newEmail,omitempty" gorm:"type:varchar(255)"`
	PasswordHash string  `json:"-" gorm:"type:text;not null"`
	PhoneNumber  *string `json:"phoneNumber,omitempty" gorm:"type:varchar(30)"`
	ProfileURL   *string `json:"profileUrl,omitempty" gorm:"type:text"`
	// AvatarPath is the object-storage key backing ProfileURL, kept so the
	// object can be removed when superseded or the account is deleted.
	AvatarPath       *string  `json:"-" gorm:"type:text"`
	Roles            []string `json:"roles" gorm:"serializer:json;not null"`
	IsVerified       bool     `json:"isVerified" gorm:"not null;default:false"`
	VerifyEmailToken *string  `json:"-" gorm:"type:varchar(64)"`

	ResetPasswordToken     *string    `json:"-" gorm:"type:varchar(64)"`
	ResetPasswordExpiresAt *time.Time `json:"-"`

	Notes []Note `json:"-" gorm:"foreignKey:UserID"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}
