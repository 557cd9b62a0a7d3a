package models

import "time"

// Cart is the per-user shopping cart. Every user owns exactly one.
type Cart struct {
	ID        int64
	UserID    int64
	CreatedAt time.Time
}
