package service

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsletter-go/internal/logging"
	"newsletter-go/internal/models"
	"newsletter-go/internal/repository"
)

func newTestService() (*SubscriberService, *repository.InMemorySubscriberRepository) {
	logger := logging.NewLogger("debug")
	logger.SetOutput(io.Discard)
	repo := repository.NewInMemorySubscriberRepository()
	return NewSubscriberService(repo, logger), repo
}

func TestSubscribe(t *testing.T) {
	svc, repo := newTestService()

	subscriber, err := svc.Subscribe(context.Background(), &models.SubscribeForm{
		Email: "ursula_le_guin@gmail.com",
		Name:  "le guin",
	})
	require.NoError(t, err)

	assert.Equal(t, "ursula_le_guin@gmail.com", subscriber.Email)
	assert.Equal(t, "le guin", subscriber.Name)
	require.Len(t, repo.All(), 1)
	assert.Equal(t, subscriber.ID, repo.All()[0].ID)
}

func TestSubscribePropagatesPersistenceError(t *testing.T) {
	svc, repo := newTestService()
	repo.FailWith = errors.New("connection reset by peer")

	subscriber, err := svc.Subscribe(context.Background(), &models.SubscribeForm{
		Email: "a@example.com",
		Name:  "A",
	})

	assert.Nil(t, subscriber)
	var perr *repository.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.EqualError(t, perr.Err, "connection reset by peer")
}
