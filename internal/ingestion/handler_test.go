package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	v1 "github.com/devarena-lab/project-devarena/internal/api/v1"
	httperr "github.com/devarena-lab/project-devarena/internal/core/errors"
	"github.com/devarena-lab/project-devarena/internal/core/reward"
	"github.com/devarena-lab/project-devarena/internal/core/storage"
)

type stubProcessor struct {
	result reward.Result
	err    error
	got    *v1.MergeEvent
}

func (p *stubProcessor) Process(_ context.Context, evt v1.MergeEvent) (reward.Result, error) {
	p.got = &evt
	return p.result, p.err
}

type stubStore struct {
	activities []storage.ActivityEvent
	err        error
	gotLimit   int
}

func (s *stubStore) ActivityExists(context.Context, string, string, int) (bool, error) {
	return false, nil
}

func (s *stubStore) CountRepositoryActivities(context.Context, string, string, string) (int, error) {
	return 0, nil
}

func (s *stubStore) ListRecentActivities(_ context.Context, _ string, limit int) ([]storage.ActivityEvent, error) {
	s.gotLimit = limit
	return s.activities, s.err
}

func (s *stubStore) WithinTx(_ context.Context, fn func(tx storage.LedgerTx) error) error {
	return errors.New("not implemented")
}

func newTestRouter(processor MergeProcessor, store storage.LedgerStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc := NewService(processor, store, 1)
	r := gin.New()
	svc.RegisterRoutes(r)
	return r
}

func mergeBody(t *testing.T) []byte {
	t.Helper()
	evt := v1.MergeEvent{
		Developer:  v1.Developer{ID: "dev-1", Login: "alice"},
		Repository: v1.Repository{ID: "repo-1", Owner: "acme", Name: "widgets"},
		PullRequest: v1.PullRequest{
			Number:         7,
			MergedAt:       time.Date(2026, 8, 21, 15, 0, 0, 0, time.UTC),
			ReviewDecision: v1.ReviewApproved,
		},
		SeasonID: "s1",
	}
	body, err := json.Marshal(evt)
	require.NoError(t, err)
	return body
}

func postMerge(r *gin.Engine, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/merges", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestMergeHandler_RewardedReturnsCreated(t *testing.T) {
	processor := &stubProcessor{result: reward.Result{
		Outcome:         reward.OutcomeRewarded,
		ActivityEventID: "act-1",
		Tier:            reward.TierFirstPR,
		Value:           decimal.NewFromInt(10),
	}}
	r := newTestRouter(processor, &stubStore{})

	resp := postMerge(r, mergeBody(t))
	require.Equal(t, http.StatusCreated, resp.Code)

	var result mergeResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	require.Equal(t, "rewarded", result.Outcome)
	require.Equal(t, "act-1", result.ActivityEventID)
	require.Equal(t, "first-pr", result.Tier)
	require.Equal(t, "10", result.Value)
	require.NotNil(t, processor.got)
	require.Equal(t, "dev-1", processor.got.Developer.ID)
}

func TestMergeHandler_RecordedWithoutRewardReturnsAccepted(t *testing.T) {
	for _, outcome := range []reward.Outcome{
		reward.OutcomeRecordedUnlinked,
		reward.OutcomeRecordedUnapproved,
		reward.OutcomeRecordedOffSeason,
	} {
		processor := &stubProcessor{result: reward.Result{Outcome: outcome, ActivityEventID: "act-1"}}
		r := newTestRouter(processor, &stubStore{})

		resp := postMerge(r, mergeBody(t))
		require.Equal(t, http.StatusAccepted, resp.Code, outcome.String())

		var result mergeResponse
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
		require.Equal(t, outcome.String(), result.Outcome)
		require.Empty(t, result.Tier)
	}
}

func TestMergeHandler_DuplicateReturnsOK(t *testing.T) {
	processor := &stubProcessor{result: reward.Result{Outcome: reward.OutcomeAlreadyProcessed}}
	r := newTestRouter(processor, &stubStore{})

	resp := postMerge(r, mergeBody(t))
	require.Equal(t, http.StatusOK, resp.Code)
}

func TestMergeHandler_PartnerSummaryInResponse(t *testing.T) {
	processor := &stubProcessor{result: reward.Result{
		Outcome:         reward.OutcomeRewarded,
		ActivityEventID: "act-1",
		Tier:            reward.TierRegularPR,
		Value:           decimal.NewFromInt(3),
		Partner: &reward.PartnerSummary{
			PartnerID:   "acme-dao",
			TokenSymbol: "ACME",
			Amount:      decimal.RequireFromString("2.5"),
			Summary:     "2.5 ACME from Acme DAO for closing issue #42",
		},
	}}
	r := newTestRouter(processor, &stubStore{})

	resp := postMerge(r, mergeBody(t))
	require.Equal(t, http.StatusCreated, resp.Code)

	var result mergeResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	require.NotNil(t, result.Partner)
	require.Equal(t, "acme-dao", result.Partner.PartnerID)
	require.Equal(t, "2.5", result.Partner.Amount)
}

func TestMergeHandler_InvalidJSON(t *testing.T) {
	r := newTestRouter(&stubProcessor{}, &stubStore{})

	resp := postMerge(r, []byte("{not json"))
	require.Equal(t, http.StatusBadRequest, resp.Code)

	var result httperr.ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	require.Equal(t, httperr.HttpInvalidJsonError, result.ErrorType)
}

func TestMergeHandler_MissingMergedAtRejected(t *testing.T) {
	processor := &stubProcessor{}
	r := newTestRouter(processor, &stubStore{})

	evt := v1.MergeEvent{
		Developer:   v1.Developer{ID: "dev-1"},
		Repository:  v1.Repository{ID: "repo-1"},
		PullRequest: v1.PullRequest{Number: 7},
		SeasonID:    "s1",
	}
	body, err := json.Marshal(evt)
	require.NoError(t, err)

	resp := postMerge(r, body)
	require.Equal(t, http.StatusBadRequest, resp.Code)

	var result httperr.ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	require.Equal(t, httperr.HttpInvalidMergeError, result.ErrorType)
	require.Nil(t, processor.got)
}

func TestMergeHandler_OversizedBodyRejected(t *testing.T) {
	r := newTestRouter(&stubProcessor{}, &stubStore{})

	big := strings.Repeat("x", 2*1024*1024)
	resp := postMerge(r, []byte(`{"filler":"`+big+`"}`))
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.Code)
}

func TestMergeHandler_ProcessorFailure(t *testing.T) {
	processor := &stubProcessor{err: errors.New("db down")}
	r := newTestRouter(processor, &stubStore{})

	resp := postMerge(r, mergeBody(t))
	require.Equal(t, http.StatusInternalServerError, resp.Code)

	var result httperr.ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	require.Equal(t, httperr.HttpInternalError, result.ErrorType)
}

func TestListActivityHandler_ReturnsActivities(t *testing.T) {
	store := &stubStore{activities: []storage.ActivityEvent{{
		ID:                "act-1",
		DeveloperID:       "dev-1",
		RepositoryID:      "repo-1",
		PullRequestNumber: 7,
		Title:             "Fix parser",
		CompletedAt:       time.Date(2026, 8, 21, 15, 0, 0, 0, time.UTC),
		EventType:         storage.EventTypeMergedPullRequest,
		FirstContribution: true,
	}}}
	r := newTestRouter(&stubProcessor{}, store)

	req := httptest.NewRequest(http.MethodGet, "/v1/developers/dev-1/activity", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, defaultListLimit, store.gotLimit)

	var result struct {
		DeveloperID string             `json:"developer_id"`
		Activities  []activityResponse `json:"activities"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	require.Equal(t, "dev-1", result.DeveloperID)
	require.Len(t, result.Activities, 1)
	require.Equal(t, 7, result.Activities[0].PullRequestNumber)
	require.True(t, result.Activities[0].FirstContribution)
}

func TestListActivityHandler_LimitClampedAndValidated(t *testing.T) {
	store := &stubStore{}
	r := newTestRouter(&stubProcessor{}, store)

	req := httptest.NewRequest(http.MethodGet, "/v1/developers/dev-1/activity?limit=9999", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, maxListLimit, store.gotLimit)

	req = httptest.NewRequest(http.MethodGet, "/v1/developers/dev-1/activity?limit=zero", nil)
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestListActivityHandler_StoreFailure(t *testing.T) {
	store := &stubStore{err: errors.New("db down")}
	r := newTestRouter(&stubProcessor{}, store)

	req := httptest.NewRequest(http.MethodGet, "/v1/developers/dev-1/activity", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	require.Equal(t, http.StatusInternalServerError, resp.Code)
}
