package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"newsletter-go/internal/models"
)

type SubscriberRepository interface {
	// Insert stores a new subscriber with a freshly generated id and timestamp.
	// Any storage failure is returned as a *PersistenceError.
	Insert(ctx context.Context, email, name string) (*models.Subscriber, error)
}

// PersistenceError wraps every failure coming out of the storage layer.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Code returns the SQLSTATE of the underlying postgres error, or "" when the
// failure did not come from the server (connection refused, timeout, ...).
func (e *PersistenceError) Code() string {
	var pgErr *pgconn.PgError
	if errors.As(e.Err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

type PostgresSubscriberRepository struct {
	pool         *pgxpool.Pool
	queryTimeout time.Duration
	tracer       trace.Tracer
}

// NewPostgresSubscriberRepository returns a repository backed by pool. A zero
// queryTimeout leaves the caller's context deadline untouched.
func NewPostgresSubscriberRepository(pool *pgxpool.Pool, queryTimeout time.Duration) *PostgresSubscriberRepository {
	return &PostgresSubscriberRepository{
		pool:         pool,
		queryTimeout: queryTimeout,
		tracer:       otel.Tracer("subscriber-repository"),
	}
}

func (r *PostgresSubscriberRepository) Insert(ctx context.Context, email, name string) (*models.Subscriber, error) {
	subscriber := models.NewSubscriber(email, name)

	ctx, span := r.tracer.Start(ctx, "subscriber.repository.insert",
		trace.WithAttributes(
			attribute.String("subscriber.id", subscriber.ID.String()),
			attribute.String("subscriber.email", subscriber.Email),
			attribute.String("operation", "database.write"),
			attribute.String("db.system", "postgresql"),
		))
	defer span.End()

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO subscriptions (id, email, name, subscribed_at)
		 VALUES ($1, $2, $3, $4)`,
		subscriber.ID, subscriber.Email, subscriber.Name, subscriber.SubscribedAt,
	)
	if err != nil {
		perr := &PersistenceError{Op: "insert subscriber", Err: err}
		span.RecordError(perr)
		span.SetStatus(codes.Error, "insert failed")
		if code := perr.Code(); code != "" {
			span.SetAttributes(attribute.String("db.sqlstate", code))
		}
		return nil, perr
	}

	span.SetAttributes(attribute.Bool("success", true))
	return subscriber, nil
}

// Count returns the number of stored subscribers.
func (r *PostgresSubscriberRepository) Count(ctx context.Context) (int, error) {
	ctx, span := r.tracer.Start(ctx, "subscriber.repository.count",
		trace.WithAttributes(attribute.String("operation", "database.read")))
	defer span.End()

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM subscriptions`).Scan(&total); err != nil {
		span.RecordError(err)
		return 0, &PersistenceError{Op: "count subscribers", Err: err}
	}
	return total, nil
}

// FindByEmail returns every subscription made with email, oldest first.
func (r *PostgresSubscriberRepository) FindByEmail(ctx context.Context, email string) ([]*models.Subscriber, error) {
	ctx, span := r.tracer.Start(ctx, "subscriber.repository.find_by_email",
		trace.WithAttributes(
			attribute.String("subscriber.email", email),
			attribute.String("operation", "database.read"),
		))
	defer span.End()

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx,
		`SELECT id, email, name, subscribed_at
		 FROM subscriptions WHERE email = $1
		 ORDER BY subscribed_at, id`,
		email,
	)
	if err != nil {
		span.RecordError(err)
		return nil, &PersistenceError{Op: "query subscribers by email", Err: err}
	}
	defer rows.Close()

	var subscribers []*models.Subscriber
	for rows.Next() {
		s := &models.Subscriber{}
		if err := rows.Scan(&s.ID, &s.Email, &s.Name, &s.SubscribedAt); err != nil {
			return nil, &PersistenceError{Op: "scan subscriber", Err: err}
		}
		subscribers = append(subscribers, s)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "iterate subscribers", Err: err}
	}

	span.SetAttributes(attribute.Int("subscriber.count", len(subscribers)))
	return subscribers, nil
}

func (r *PostgresSubscriberRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.queryTimeout)
}
