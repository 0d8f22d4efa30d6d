package repository

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"newsletter-go/internal/models"
)

// InMemorySubscriberRepository keeps subscribers in process memory. It backs
// unit tests that exercise the HTTP and service layers without PostgreSQL.
type InMemorySubscriberRepository struct {
	mu          sync.RWMutex
	subscribers []*models.Subscriber
	tracer      trace.Tracer

	// FailWith, when set, is returned (wrapped in a PersistenceError) by Insert.
	FailWith error
}

func NewInMemorySubscriberRepository() *InMemorySubscriberRepository {
	return &InMemorySubscriberRepository{
		tracer: otel.Tracer("subscriber-repository"),
	}
}

func (r *InMemorySubscriberRepository) Insert(ctx context.Context, email, name string) (*models.Subscriber, error) {
	subscriber := models.NewSubscriber(email, name)

	_, span := r.tracer.Start(ctx, "subscriber.repository.insert",
		trace.WithAttributes(
			attribute.String("subscriber.id", subscriber.ID.String()),
			attribute.String("subscriber.email", subscriber.Email),
			attribute.String("operation", "database.write"),
		))
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailWith != nil {
		err := &PersistenceError{Op: "insert subscriber", Err: r.FailWith}
		span.RecordError(err)
		return nil, err
	}

	r.subscribers = append(r.subscribers, subscriber)
	span.SetAttributes(attribute.Bool("success", true))
	return subscriber, nil
}

// All returns a snapshot of the stored subscribers in insertion order.
func (r *InMemorySubscriberRepository) All() []*models.Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Subscriber, len(r.subscribers))
	copy(out, r.subscribers)
	return out
}
