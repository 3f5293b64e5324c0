package models

import (
	"gorm.io/gorm"
)

// Property carries the listing fields the booking core needs: owner routing,
// pricing inputs and stay constraints. Listing media, search and discovery
// live in other services.
type Property struct {
	gorm.Model
	OwnerID uint   `json:"ownerID" gorm:"not null;index"`
	Title   string `json:"title" gorm:"size:256"`
	City    string `json:"city" gorm:"size:128"`
	Country string `json:"country" gorm:"size:128"`

	NightlyPrice float64 `json:"nightlyPrice"`
	CleaningFee  float64 `json:"cleaningFee"`
	ServiceFee   float64 `json:"serviceFee"`
	Currency     string  `json:"currency" gorm:"size:8;default:'USD'"`

	MaxGuests int `json:"maxGuests" gorm:"default:1"`
	MinNights int `json:"minNights" gorm:"default:1"`
	MaxNights int `json:"maxNights"` // 0 = no upper bound

	IsActive bool `json:"isActive" gorm:"default:true"`

	Owner *User `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
}
