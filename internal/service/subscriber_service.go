package service

import (
	"context"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"newsletter-go/internal/logging"
	"newsletter-go/internal/models"
	"newsletter-go/internal/repository"
)

type SubscriberService struct {
	repo   repository.SubscriberRepository
	logger *logging.ContextLogger
	tracer trace.Tracer
}

func NewSubscriberService(repo repository.SubscriberRepository, logger *logging.ContextLogger) *SubscriberService {
	return &SubscriberService{
		repo:   repo,
		logger: logger,
		tracer: otel.Tracer("subscriber-service"),
	}
}

// Subscribe persists a validated form. Errors from the repository are returned unchanged.
func (s *SubscriberService) Subscribe(ctx context.Context, form *models.SubscribeForm) (*models.Subscriber, error) {
	ctx, span := s.tracer.Start(ctx, "subscriber.service.subscribe",
		trace.WithAttributes(
			attribute.String("subscriber.email", form.Email),
			attribute.String("subscriber.name", form.Name),
		))
	defer span.End()

	s.logger.DebugWithTracing(ctx, "Saving new subscriber details in the database", logrus.Fields{
		"email": form.Email,
		"name":  form.Name,
	})

	subscriber, err := s.repo.Insert(ctx, form.Email, form.Name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist subscriber")
		return nil, err
	}

	span.SetAttributes(
		attribute.String("subscriber.id", subscriber.ID.String()),
		attribute.Bool("success", true),
	)
	return subscriber, nil
}
