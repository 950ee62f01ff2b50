package rest_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/VadimShubkin/ii/application/commands"
	"github.com/VadimShubkin/ii/application/commands/bus"
	"github.com/VadimShubkin/ii/application/moderation"
	"github.com/VadimShubkin/ii/application/queries"
	"github.com/VadimShubkin/ii/application/services"
	"github.com/VadimShubkin/ii/domain/core/entities"
	"github.com/VadimShubkin/ii/infrastructure/persistence/memory"
	"github.com/VadimShubkin/ii/interfaces/http/rest"
	"github.com/VadimShubkin/ii/interfaces/http/rest/handlers"
	"github.com/VadimShubkin/ii/pkg/auth"
	apperrors "github.com/VadimShubkin/ii/pkg/errors"
	"github.com/VadimShubkin/ii/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

type server struct {
	handler http.Handler
	store   *memory.Store
	tokens  *auth.Generator
}

func newServer(t *testing.T, checks map[string]rest.ReadinessCheck) *server {
	t.Helper()
	logger := zap.NewNop()
	store := memory.NewStore()

	policy, err := moderation.NewRulePolicy(moderation.PolicyConfig{
		Default:      moderation.DecisionAllow,
		TrustedRoles: []string{"moderator"},
		Rules: map[moderation.Action]moderation.Decision{
			moderation.ActionTopicAddChild: moderation.DecisionQueue,
			moderation.ActionTopicMerge:    moderation.DecisionReject,
		},
	})
	require.NoError(t, err)

	collector := observability.NewCollector("topics_test")
	links := services.NewLinkService(store, logger)
	topics := services.NewTopicService(store, links, services.NewTopicIndex(store, logger), memory.NewKeyedLocker(), nil, services.TopicServiceConfig{}, logger)
	gate := moderation.NewGate(policy, store, nil, collector, logger)

	b := bus.NewCommandBus(bus.LoggingMiddleware(logger), bus.MetricsMiddleware(collector))
	require.NoError(t, commands.NewHandlers(topics, store, gate, logger).Register(b))
	gate.SetReplayer(b)

	cfg := auth.Config{SecretKey: testSecret, Issuer: "topics"}
	validator, err := auth.NewValidator(cfg)
	require.NoError(t, err)
	tokens, err := auth.NewGenerator(cfg)
	require.NoError(t, err)

	errHandler := apperrors.NewErrorHandler(logger, false)
	router := rest.NewRouter(
		handlers.NewTopicHandler(b, queries.NewTopicQueries(topics), topics, errHandler, logger),
		handlers.NewModerationHandler(gate, errHandler, logger),
		validator,
		collector,
		checks,
		rest.Options{ModeratorRoles: []string{"moderator", "admin"}},
		logger,
	)
	return &server{handler: router.Setup(), store: store, tokens: tokens}
}

func (s *server) do(t *testing.T, method, path string, form url.Values, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *server) token(t *testing.T, user string, roles ...string) string {
	t.Helper()
	tok, err := s.tokens.GenerateToken(user, "", roles)
	require.NoError(t, err)
	return tok
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	if data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func TestHealth(t *testing.T) {
	s := newServer(t, nil)
	rec := s.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReady(t *testing.T) {
	s := newServer(t, map[string]rest.ReadinessCheck{
		"store": func(context.Context) error { return nil },
	})
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/ready", nil, "").Code)

	s = newServer(t, map[string]rest.ReadinessCheck{
		"store": func(context.Context) error { return errors.New("down") },
	})
	assert.Equal(t, http.StatusServiceUnavailable, s.do(t, http.MethodGet, "/ready", nil, "").Code)
}

func TestImportAndPresentTopic(t *testing.T) {
	s := newServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/topic/import", strings.NewReader("Луна\nСолнце\n"))
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/topic/add-related", url.Values{"name": {"Луна"}, "related": {"Солнце"}}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/topic?name="+url.QueryEscape("Луна")+"&includeResources=true", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var view queries.TopicView
	decode(t, rec, &view)
	assert.Equal(t, "Луна", view.Name)
	assert.Equal(t, []string{"Солнце"}, view.Related)
	assert.NotNil(t, view.Resources)

	rec = s.do(t, http.MethodGet, "/api/topic/suggest?q="+url.QueryEscape("лу"), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var names []string
	decode(t, rec, &names)
	assert.Equal(t, []string{"Луна"}, names)
}

func TestLinkResourceAndTopicsFor(t *testing.T) {
	s := newServer(t, nil)
	ctx := context.Background()

	record, err := entities.NewRecord(entities.RecordParams{Code: "2015-05-02", Name: "Lecture"})
	require.NoError(t, err)
	require.NoError(t, s.store.Save(ctx, record))

	rec := s.do(t, http.MethodPost, "/api/topic/for", url.Values{
		"uri":     {record.URI()},
		"name":    {"Moon"},
		"comment": {"first"},
		"rate":    {"0.5"},
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/topic/update-rate", url.Values{
		"forUri": {record.URI()},
		"name":   {"Moon"},
		"rate":   {"not-a-number"},
	}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/topic/for/"+url.PathEscape(record.URI()), nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var linked []services.LinkedTopic
	decode(t, rec, &linked)
	require.Len(t, linked, 1)
	assert.Equal(t, "Moon", linked[0].Name)
	assert.Equal(t, "first", *linked[0].Comment)
	assert.Equal(t, 0.5, *linked[0].Rate)
}

func TestAddChild_QueuedThenApproved(t *testing.T) {
	s := newServer(t, nil)

	rec := s.do(t, http.MethodPost, "/api/topic/add-child", url.Values{"name": {"A"}, "child": {"B"}}, s.token(t, "editor"))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var pending struct {
		PendingID string `json:"pending_id"`
		Action    string `json:"action"`
	}
	decode(t, rec, &pending)
	require.NotEmpty(t, pending.PendingID)
	assert.Equal(t, string(moderation.ActionTopicAddChild), pending.Action)

	rec = s.do(t, http.MethodGet, "/api/topic/children?name=A", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var children []queries.TopicSummary
	decode(t, rec, &children)
	assert.Empty(t, children)

	// the queue is closed to anonymous callers and plain editors
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/moderation/pending", nil, "").Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/api/moderation/pending", nil, s.token(t, "editor")).Code)

	moderator := s.token(t, "mod", "moderator")
	rec = s.do(t, http.MethodGet, "/api/moderation/pending", nil, moderator)
	require.Equal(t, http.StatusOK, rec.Code)
	var queue []entities.PendingAction
	decode(t, rec, &queue)
	require.Len(t, queue, 1)
	assert.Equal(t, "editor", queue[0].Actor)

	rec = s.do(t, http.MethodPost, "/api/moderation/"+pending.PendingID+"/approve", nil, moderator)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var approved entities.PendingAction
	decode(t, rec, &approved)
	assert.Equal(t, entities.PendingStatusApplied, approved.Status)
	assert.Equal(t, "mod", approved.Moderator)

	rec = s.do(t, http.MethodPost, "/api/moderation/"+pending.PendingID+"/approve", nil, moderator)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/topic/children?name=A", nil, "")
	decode(t, rec, &children)
	require.Len(t, children, 1)
	assert.Equal(t, "B", children[0].Name)
}

func TestErrorStatuses(t *testing.T) {
	s := newServer(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		form   url.Values
		token  string
		want   int
	}{
		{"missing topic", http.MethodGet, "/api/topic?name=nowhere", nil, "", http.StatusNotFound},
		{"missing name", http.MethodGet, "/api/topic/children", nil, "", http.StatusBadRequest},
		{"rejected action", http.MethodPost, "/api/topic/merge", url.Values{"main": {"A"}, "mergeInto": {"B"}}, "", http.StatusForbidden},
		{"bulk link", http.MethodPost, "/api/topic/bulk/link", url.Values{"topicName": {"A"}, "resourceUris": {"x,y"}}, "", http.StatusNotImplemented},
		{"bulk unlink", http.MethodPost, "/api/topic/bulk/unlink", url.Values{"topicName": {"A"}}, "", http.StatusNotImplemented},
		{"bad token", http.MethodGet, "/api/topic/suggest?q=a", nil, "garbage", http.StatusUnauthorized},
		{"unknown pending", http.MethodGet, "/api/moderation/nope", nil, "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.form, tt.token)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			env := decode(t, rec, nil)
			assert.False(t, env.Success)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newServer(t, nil)
	s.do(t, http.MethodGet, "/api/topic/suggest?q=x", nil, "")

	rec := s.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `topics_test_http_requests_total{method="GET",route="/api/topic/suggest",status="200"} 1`)
}

func TestUnauthorizedResponse(t *testing.T) {
	s := newServer(t, nil)

	rec := s.do(t, http.MethodGet, "/api/topic/suggest?q=a", nil, "garbage")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, `Bearer realm="topics"`, rec.Header().Get("WWW-Authenticate"))

	env := decode(t, rec, nil)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(apperrors.ErrorTypeUnauthorized), env.Error.Code)
	assert.Equal(t, "Invalid token", env.Error.Message)
}
