package models

import "gorm.io/gorm"

// AuditLog records admin mutations on bookings for after-the-fact review.
type AuditLog struct {
	gorm.Model
	AdminUserID  uint   `json:"adminUserID" gorm:"index"`
	Action       string `json:"action" gorm:"size:64"`
	ResourceType string `json:"resourceType" gorm:"size:32"`
	ResourceID   uint   `json:"resourceID" gorm:"index"`
	BeforeJSON   string `json:"beforeJSON" gorm:"type:text"`
	AfterJSON    string `json:"afterJSON" gorm:"type:text"`
	IPAddress    string `json:"ipAddress" gorm:"size:64"`
}
