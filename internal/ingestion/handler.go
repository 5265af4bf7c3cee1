package ingestion

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	v1 "github.com/devarena-lab/project-devarena/internal/api/v1"
	httperr "github.com/devarena-lab/project-devarena/internal/core/errors"
	"github.com/devarena-lab/project-devarena/internal/core/reward"
)

const (
	msgReadBodyFailed = "Failed to read request body"
	msgInvalidJSON    = "Invalid JSON body"
	msgProcessFailed  = "Failed to process merge event"
	defaultListLimit  = 50
	maxListLimit      = 200
)

// ingestionError carries the structured HTTP error shape from a helper back to the orchestrator.
// Helpers return this instead of writing to gin.Context directly, keeping them decoupled from HTTP.
type ingestionError struct {
	statusCode int
	errorType  string
	message    string
	details    interface{}
}

func (e *ingestionError) Error() string {
	return e.message
}

// mergeResponse is the success body for POST /v1/merges.
type mergeResponse struct {
	Outcome         string `json:"outcome"`
	ActivityEventID string `json:"activity_event_id,omitempty"`
	Tier            string `json:"tier,omitempty"`
	Value           string `json:"value,omitempty"`
	Partner         *struct {
		PartnerID   string `json:"partner_id"`
		TokenSymbol string `json:"token_symbol"`
		Amount      string `json:"amount"`
		Summary     string `json:"summary"`
	} `json:"partner,omitempty"`
}

// MergeHandler handles HTTP POST requests for merged-pull-request events.
func (s *Service) MergeHandler(c *gin.Context) {
	evt, payloadSize, err := s.parseMergeEvent(c)
	if err != nil {
		writeError(c, err)
		return
	}

	slog.Info("Received Merge Event",
		"developer_id", evt.Developer.ID,
		"repository_id", evt.Repository.ID,
		"pull_request_number", evt.PullRequest.Number,
		"season_id", evt.SeasonID,
		"payload_size", payloadSize)

	result, procErr := s.processor.Process(c.Request.Context(), *evt)
	if procErr != nil {
		slog.Error("Failed to process merge event", "error", procErr,
			"developer_id", evt.Developer.ID,
			"pull_request_number", evt.PullRequest.Number)
		writeError(c, &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgProcessFailed,
		})
		return
	}

	c.JSON(statusFor(result.Outcome), toMergeResponse(result))
}

// statusFor maps ledger outcomes onto HTTP statuses: a fresh reward is a
// creation, a recorded-but-unrewarded activity is accepted, and a replay of a
// known natural key is a plain OK.
func statusFor(outcome reward.Outcome) int {
	switch outcome {
	case reward.OutcomeRewarded:
		return http.StatusCreated
	case reward.OutcomeAlreadyProcessed:
		return http.StatusOK
	default:
		return http.StatusAccepted
	}
}

func toMergeResponse(result reward.Result) mergeResponse {
	resp := mergeResponse{
		Outcome:         result.Outcome.String(),
		ActivityEventID: result.ActivityEventID,
	}
	if result.Outcome == reward.OutcomeRewarded {
		resp.Tier = string(result.Tier)
		resp.Value = result.Value.String()
	}
	if result.Partner != nil {
		resp.Partner = &struct {
			PartnerID   string `json:"partner_id"`
			TokenSymbol string `json:"token_symbol"`
			Amount      string `json:"amount"`
			Summary     string `json:"summary"`
		}{
			PartnerID:   result.Partner.PartnerID,
			TokenSymbol: result.Partner.TokenSymbol,
			Amount:      result.Partner.Amount.String(),
			Summary:     result.Partner.Summary,
		}
	}
	return resp
}

// parseMergeEvent reads the raw request body and binds it into a MergeEvent.
// Returns the parsed event and the raw payload size (used for structured logging upstream).
func (s *Service) parseMergeEvent(c *gin.Context) (*v1.MergeEvent, int, *ingestionError) {
	// Enforce maximum body size to prevent OOM attacks
	maxBytes := int64(s.maxBodySizeBytes)
	limitedBody := io.LimitReader(c.Request.Body, maxBytes+1) // +1 to detect oversized requests

	bodyBytes, err := io.ReadAll(limitedBody)
	if err != nil {
		slog.Error("Failed to read request body", "error", err)
		return nil, 0, &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgReadBodyFailed,
		}
	}

	// Check if body exceeds maximum size
	if int64(len(bodyBytes)) > maxBytes {
		slog.Warn("Request body exceeds maximum size", "size", len(bodyBytes), "max", maxBytes)
		return nil, len(bodyBytes), &ingestionError{
			statusCode: http.StatusRequestEntityTooLarge,
			errorType:  httperr.HttpInvalidJsonError,
			message:    "Request body exceeds maximum allowed size",
			details: map[string]interface{}{
				"max_size_mb": maxBytes / (1024 * 1024),
			},
		}
	}

	c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))

	var evt v1.MergeEvent
	if err := c.ShouldBindJSON(&evt); err != nil {
		slog.Warn("Invalid JSON body received", "error", err, "payload_size", len(bodyBytes))
		return nil, len(bodyBytes), &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    msgInvalidJSON,
		}
	}

	if err := evt.Validate(); err != nil {
		slog.Warn("Merge event validation failed", "error", err,
			"developer_id", evt.Developer.ID,
			"pull_request_number", evt.PullRequest.Number)
		return nil, len(bodyBytes), &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidMergeError,
			message:    err.Error(),
		}
	}

	return &evt, len(bodyBytes), nil
}

// activityResponse is one row of the developer activity read model.
type activityResponse struct {
	ID                string `json:"id"`
	RepositoryID      string `json:"repository_id"`
	PullRequestNumber int    `json:"pull_request_number"`
	Title             string `json:"title"`
	URL               string `json:"url"`
	CompletedAt       string `json:"completed_at"`
	EventType         string `json:"event_type"`
	FirstContribution bool   `json:"first_contribution"`
}

// ListActivityHandler returns a developer's most recent recorded activities.
func (s *Service) ListActivityHandler(c *gin.Context) {
	developerID := c.Param("developer_id")
	if developerID == "" {
		writeError(c, &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidMergeError,
			message:    "developer_id is required",
		})
		return
	}

	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(c, &ingestionError{
				statusCode: http.StatusBadRequest,
				errorType:  httperr.HttpInvalidMergeError,
				message:    "limit must be a positive integer",
			})
			return
		}
		if parsed > maxListLimit {
			parsed = maxListLimit
		}
		limit = parsed
	}

	activities, err := s.store.ListRecentActivities(c.Request.Context(), developerID, limit)
	if err != nil {
		slog.Error("Failed to list activities", "error", err, "developer_id", developerID)
		writeError(c, &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    "Failed to list activities",
		})
		return
	}

	out := make([]activityResponse, 0, len(activities))
	for _, a := range activities {
		out = append(out, activityResponse{
			ID:                a.ID,
			RepositoryID:      a.RepositoryID,
			PullRequestNumber: a.PullRequestNumber,
			Title:             a.Title,
			URL:               a.URL,
			CompletedAt:       a.CompletedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
			EventType:         a.EventType,
			FirstContribution: a.FirstContribution,
		})
	}
	c.JSON(http.StatusOK, gin.H{"developer_id": developerID, "activities": out})
}

// writeError serializes an ingestionError as the JSON HTTP response.
func writeError(c *gin.Context, err *ingestionError) {
	c.JSON(err.statusCode, httperr.ErrorResponse{
		ErrorType: err.errorType,
		Message:   err.message,
		Details:   err.details,
	})
}
