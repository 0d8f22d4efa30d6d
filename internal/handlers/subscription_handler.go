package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"newsletter-go/internal/logging"
	"newsletter-go/internal/metrics"
	"newsletter-go/internal/models"
	"newsletter-go/internal/repository"
	"newsletter-go/internal/service"
)

const subscribeEndpoint = "POST /subscriptions"

type SubscriptionHandler struct {
	service *service.SubscriberService
	logger  *logging.ContextLogger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

func NewSubscriptionHandler(service *service.SubscriberService, logger *logging.ContextLogger, m *metrics.Metrics) *SubscriptionHandler {
	return &SubscriptionHandler{
		service: service,
		logger:  logger,
		metrics: m,
		tracer:  otel.Tracer("subscription-handler"),
	}
}

// Subscribe handles a url-encoded signup form: 200 once stored, 400 when email
// or name is missing, 500 when the database write fails.
func (h *SubscriptionHandler) Subscribe(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "subscriber.handler.subscribe")
	defer span.End()

	var form models.SubscribeForm
	// Only the request body counts; query parameters are ignored.
	if err := c.ShouldBindWith(&form, binding.FormPost); err != nil {
		rejected := logrus.Fields{
			"reason":   err.Error(),
			"endpoint": subscribeEndpoint,
		}
		for _, key := range []string{"email", "name"} {
			if v, ok := c.GetPostForm(key); ok {
				rejected[key] = v
			}
		}
		h.logger.InfoWithTracing(ctx, "Rejected invalid subscription request", rejected)
		span.SetAttributes(attribute.String("error.type", "validation_error"))
		h.metrics.ObserveSubscription(metrics.OutcomeRejected)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fields := logrus.Fields{
		"email":    form.Email,
		"name":     form.Name,
		"endpoint": subscribeEndpoint,
	}
	span.SetAttributes(
		attribute.String("subscriber.email", form.Email),
		attribute.String("subscriber.name", form.Name),
	)

	h.logger.InfoWithTracing(ctx, "Adding a new subscriber", fields)

	subscriber, err := h.service.Subscribe(ctx, &form)
	if err != nil {
		failure := logrus.Fields{}
		for k, v := range fields {
			failure[k] = v
		}
		var perr *repository.PersistenceError
		if errors.As(err, &perr) && perr.Code() != "" {
			failure["sqlstate"] = perr.Code()
		}
		h.logger.ErrorWithTracing(ctx, "Failed to execute query", err, failure)
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist subscriber")
		h.metrics.ObserveSubscription(metrics.OutcomeFailed)
		c.Status(http.StatusInternalServerError)
		return
	}

	fields["subscriber_id"] = subscriber.ID.String()
	h.logger.InfoWithTracing(ctx, "New subscriber details have been saved", fields)
	span.SetAttributes(
		attribute.String("subscriber.id", subscriber.ID.String()),
		attribute.Bool("success", true),
	)
	h.metrics.ObserveSubscription(metrics.OutcomeSaved)
	c.Status(http.StatusOK)
}
