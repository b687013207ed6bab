package models

import "time"

// WorkspaceMapping binds an identity to its remote storage container.
// Both columns are unique so lookups work in either direction.
type WorkspaceMapping struct {
	ID          int       `json:"id" gorm:"primaryKey;autoIncrement"`
	Identity    string    `json:"identity" gorm:"uniqueIndex;not null"`
	WorkspaceID string    `json:"workspace_id" gorm:"uniqueIndex;not null"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName specifies the table name for WorkspaceMapping
func (WorkspaceMapping) TableName() string {
	return "workspace_mappings"
}
