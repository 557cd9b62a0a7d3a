// Package models defines server-side data models persisted in the database.
package models

import "time"

// User is a storefront account. Password holds the bcrypt digest only.
// ResetToken and ResetTokenExpiration are both nil unless a reset is pending.
type User struct {
	ID                   int64
	Email                string
	Password             string
	ResetToken           *string
	ResetTokenExpiration *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}
