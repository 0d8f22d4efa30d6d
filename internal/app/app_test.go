package app_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace"

	"newsletter-go/internal/app"
	"newsletter-go/internal/handlers"
	"newsletter-go/internal/logging"
	"newsletter-go/internal/models"
	"newsletter-go/internal/repository"
	"newsletter-go/internal/telemetry"
	"newsletter-go/internal/testdb"
)

type TestApp struct {
	server   *httptest.Server
	recorder *telemetry.SpanRecorder
	tp       *trace.TracerProvider
	db       *testdb.Database
	repo     *repository.PostgresSubscriberRepository
}

func SpawnTestApp(t *testing.T) *TestApp {
	t.Helper()

	db := testdb.New(t)

	logger := logging.NewLogger("debug")
	logger.SetOutput(io.Discard)

	recorder := telemetry.NewSpanRecorder()
	tp := recorder.NewTracerProvider("test-newsletter", "1.0.0")
	otel.SetTracerProvider(tp)

	application, err := app.Build(&app.Config{
		ServiceName:    "test-newsletter",
		ServiceVersion: "1.0.0",
		Logger:         logger,
		TracerProvider: tp,
		GinMode:        gin.TestMode,
		Pool:           db.Pool,
		QueryTimeout:   5 * time.Second,
	})
	require.NoError(t, err)

	testApp := &TestApp{
		server:   httptest.NewServer(application.Router()),
		recorder: recorder,
		tp:       tp,
		db:       db,
		repo:     repository.NewPostgresSubscriberRepository(db.Pool, 0),
	}
	t.Cleanup(testApp.Close)
	return testApp
}

func (a *TestApp) Close() {
	a.server.Close()
	_ = a.tp.Shutdown(context.Background())
}

func (a *TestApp) PostSubscriptions(t *testing.T, body string) *http.Response {
	t.Helper()

	resp, err := http.Post(a.server.URL+"/subscriptions", "application/x-www-form-urlencoded", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (a *TestApp) Subscribers(t *testing.T, email string) []*models.Subscriber {
	t.Helper()

	subscribers, err := a.repo.FindByEmail(context.Background(), email)
	require.NoError(t, err)
	return subscribers
}

func (a *TestApp) Count(t *testing.T) int {
	t.Helper()

	n, err := a.repo.Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestHealthCheckWorks(t *testing.T) {
	testApp := SpawnTestApp(t)

	resp, err := http.Get(testApp.server.URL + "/health_check")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(0), resp.ContentLength)
	assert.Empty(t, body)
}

func TestHealthCheckDoesNotDependOnTheDatabase(t *testing.T) {
	testApp := SpawnTestApp(t)
	testApp.db.Pool.Close()

	resp, err := http.Get(testApp.server.URL + "/health_check")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSubscribeReturns200ForValidFormData(t *testing.T) {
	testApp := SpawnTestApp(t)

	resp := testApp.PostSubscriptions(t, "name=Frodo%20Baggins&email=frodo.baggins%40gmail.com")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(handlers.RequestIDHeader))

	saved := testApp.Subscribers(t, "frodo.baggins@gmail.com")
	require.Len(t, saved, 1)
	assert.Equal(t, "Frodo Baggins", saved[0].Name)
	assert.WithinDuration(t, time.Now(), saved[0].SubscribedAt, time.Minute)
}

func TestSubscribeReturns400WhenDataIsMissing(t *testing.T) {
	testApp := SpawnTestApp(t)

	cases := []struct {
		body        string
		description string
	}{
		{"name=le%20guin", "missing the email"},
		{"email=ursula_le_guin%40gmail.com", "missing the name"},
		{"", "missing both name and email"},
	}

	for _, tc := range cases {
		resp := testApp.PostSubscriptions(t, tc.body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode,
			"the API did not fail with 400 Bad Request when the payload was %s", tc.description)
	}

	assert.Equal(t, 0, testApp.Count(t))
}

func TestIdenticalSubmissionsCreateTwoRows(t *testing.T) {
	testApp := SpawnTestApp(t)

	for i := 0; i < 2; i++ {
		resp := testApp.PostSubscriptions(t, "name=Sam&email=sam%40shire.me")
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	saved := testApp.Subscribers(t, "sam@shire.me")
	require.Len(t, saved, 2)
	assert.NotEqual(t, saved[0].ID, saved[1].ID)
}

func TestConcurrentSubscriptionsAreAllStored(t *testing.T) {
	testApp := SpawnTestApp(t)

	const n = 20
	statuses := make([]int, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			form := url.Values{
				"name":  {fmt.Sprintf("user %d", i)},
				"email": {fmt.Sprintf("user%d@example.com", i)},
			}
			resp, err := http.PostForm(testApp.server.URL+"/subscriptions", form)
			if err != nil {
				return
			}
			defer resp.Body.Close()
			statuses[i] = resp.StatusCode
		}(i)
	}
	wg.Wait()

	for i, status := range statuses {
		assert.Equal(t, http.StatusOK, status, "request %d", i)
	}
	assert.Equal(t, n, testApp.Count(t))
}

func TestSubscribeReturns500WhenTheDatabaseIsGone(t *testing.T) {
	testApp := SpawnTestApp(t)
	testApp.db.Pool.Close()

	resp := testApp.PostSubscriptions(t, "name=le%20guin&email=ursula_le_guin%40gmail.com")

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	spans := testApp.recorder.SpansByOperation("database.write")
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestSubscribeRecordsDatabaseWriteSpan(t *testing.T) {
	testApp := SpawnTestApp(t)

	resp := testApp.PostSubscriptions(t, "name=Bilbo&email=bilbo%40shire.me")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	spans := testApp.recorder.SpansByOperation("database.write")
	require.Len(t, spans, 1)

	email, ok := telemetry.Attribute(spans[0], "subscriber.email")
	require.True(t, ok)
	assert.Equal(t, "bilbo@shire.me", email.AsString())

	handlerSpans := testApp.recorder.SpansByName("subscriber.handler.subscribe")
	require.Len(t, handlerSpans, 1)
	assert.Equal(t, handlerSpans[0].SpanContext().TraceID(), spans[0].SpanContext().TraceID())
}

func TestMetricsEndpointCountsOutcomes(t *testing.T) {
	testApp := SpawnTestApp(t)

	testApp.PostSubscriptions(t, "name=Merry&email=merry%40shire.me")
	testApp.PostSubscriptions(t, "name=Pippin")

	resp, err := http.Get(testApp.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `newsletter_subscriptions_total{outcome="saved"} 1`)
	assert.Contains(t, string(body), `newsletter_subscriptions_total{outcome="rejected"} 1`)
}

func TestBuildRequiresPersistence(t *testing.T) {
	_, err := app.Build(&app.Config{
		ServiceName: "test-newsletter",
		Logger:      logging.NewLogger("info"),
		GinMode:     gin.TestMode,
	})
	assert.Error(t, err)
}

func TestBuildAcceptsInjectedRepository(t *testing.T) {
	repo := repository.NewInMemorySubscriberRepository()
	logger := logging.NewLogger("info")
	logger.SetOutput(io.Discard)

	application, err := app.Build(&app.Config{
		ServiceName: "test-newsletter",
		Logger:      logger,
		GinMode:     gin.TestMode,
		Repository:  repo,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/subscriptions", strings.NewReader("name=Gandalf&email=gandalf%40istari.org"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	application.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, repo.All(), 1)
	assert.Same(t, repo, application.Repo())
}
