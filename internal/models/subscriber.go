package models

import (
	"time"

	"github.com/google/uuid"
)

// Subscriber is one newsletter signup. ID and SubscribedAt are always set server side.
type Subscriber struct {
	ID           uuid.UUID
	Email        string
	Name         string
	SubscribedAt time.Time
}

// SubscribeForm is the url-encoded body of POST /subscriptions.
type SubscribeForm struct {
	Email string `form:"email" binding:"required"`
	Name  string `form:"name" binding:"required"`
}

func NewSubscriber(email, name string) *Subscriber {
	return &Subscriber{
		ID:           uuid.New(),
		Email:        email,
		Name:         name,
		SubscribedAt: time.Now().UTC(),
	}
}
