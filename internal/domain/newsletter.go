package domain

import "time"

type NewsletterSubscription struct {
	ID           int64     `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	SubscribedAt time.Time `db:"subscribed_at" json:"subscribed_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

type SubscribeInput struct {
	Email string `json:"email" validate:"required,email"`
}

type UpdateSubscriptionInput struct {
	IsActive *bool `json:"is_active"`
}
