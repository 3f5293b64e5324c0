package models

import "gorm.io/gorm"

// User is the thin identity the core resolves tokens to. Roles: tenant,
// landlord, admin.
type User struct {
	gorm.Model
	FirstName string `json:"firstName" gorm:"size:128"`
	LastName  string `json:"lastName" gorm:"size:128"`
	Email     string `json:"email" gorm:"size:256;uniqueIndex"`
	Password  string `json:"-" gorm:"size:256"`
	Role      string `json:"role" gorm:"size:16;index;default:'tenant'"`
}
