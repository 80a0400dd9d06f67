package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/tutorline/server/domain/entities"
	"github.com/tutorline/server/domain/repositories"
	"github.com/tutorline/server/usecase"
)

const (
	contactKind  = entities.SubmissionKindContact
	waitlistKind = entities.SubmissionKindWaitlist
	demoKind     = entities.SubmissionKindDemo
)

// submissionError maps service errors onto HTTP responses
func submissionError(c echo.Context, err error, logger *zap.Logger) error {
	switch {
	case errors.Is(err, usecase.ErrInvalidStatus):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_status", Message: err.Error()})
	case errors.Is(err, usecase.ErrValidation):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation_failed", Message: err.Error()})
	case errors.Is(err, repositories.ErrDuplicateSubmission):
		return c.JSON(http.StatusConflict, ErrorResponse{Error: "already_registered", Message: "This email is already on the waitlist"})
	case errors.Is(err, repositories.ErrSubmissionNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "Submission not found"})
	default:
		logger.Error("Submission request failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "Failed to process submission"})
	}
}

func submitHandler(deps Dependencies, kind entities.SubmissionKind, logger *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req SubmissionRequest
		if err := c.Bind(&req); err != nil {
			return badRequest(c, "invalid_request", "Invalid request format")
		}

		submission, err := deps.Submissions.Submit(c.Request().Context(), req.toEntity(kind))
		if err != nil {
			return submissionError(c, err, logger)
		}
		return c.JSON(http.StatusCreated, submission)
	}
}

func adminLogin(c echo.Context, deps Dependencies, logger *zap.Logger) error {
	if deps.AdminEmail == "" || deps.AdminPassword == "" {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "admin_disabled",
			Message: "Admin login is not configured",
		})
	}

	var req AdminLoginRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid_request", "Invalid request format")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	emailOK := subtle.ConstantTimeCompare([]byte(email), []byte(deps.AdminEmail)) == 1
	passwordOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(deps.AdminPassword)) == 1
	if !emailOK || !passwordOK {
		logger.Warn("Admin login failed", zap.String("email", email))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "authentication_failed",
			Message: "Invalid email or password",
		})
	}

	token, expiresAt, err := deps.Issuer.GenerateAdminToken(email)
	if err != nil {
		logger.Error("Failed to generate admin token", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate authentication token",
		})
	}

	logger.Info("Admin authenticated", zap.String("email", email))
	return c.JSON(http.StatusOK, AdminLoginResponse{Token: token, ExpiresAt: expiresAt})
}

func listSubmissions(c echo.Context, deps Dependencies, logger *zap.Logger) error {
	var filter repositories.SubmissionFilter
	if v := c.QueryParam("kind"); v != "" {
		kind := entities.SubmissionKind(v)
		filter.Kind = &kind
	}
	if v := c.QueryParam("status"); v != "" {
		status := entities.SubmissionStatus(v)
		filter.Status = &status
	}
	if v := c.QueryParam("email"); v != "" {
		email := strings.ToLower(v)
		filter.Email = &email
	}
	if v := c.QueryParam("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return badRequest(c, "invalid_limit", "limit must be a positive integer")
		}
		filter.Limit = limit
	}

	submissions, err := deps.Submissions.List(c.Request().Context(), filter)
	if err != nil {
		return submissionError(c, err, logger)
	}
	if submissions == nil {
		submissions = []*entities.Submission{}
	}
	return c.JSON(http.StatusOK, SubmissionListResponse{Submissions: submissions, Count: len(submissions)})
}

func getSubmission(c echo.Context, deps Dependencies, logger *zap.Logger) error {
	submission, err := deps.Submissions.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return submissionError(c, err, logger)
	}
	return c.JSON(http.StatusOK, submission)
}

func updateSubmission(c echo.Context, deps Dependencies, logger *zap.Logger) error {
	var req SubmissionPatchRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid_request", "Invalid request format")
	}

	updated, err := deps.Submissions.Update(c.Request().Context(), repositories.SubmissionUpdate{
		ID:     c.Param("id"),
		Status: req.Status,
		Notes:  req.Notes,
	})
	if err != nil {
		return submissionError(c, err, logger)
	}

	claims := claimsFrom(c)
	logger.Info("Submission updated by admin",
		zap.String("id", updated.ID),
		zap.String("admin", claims.Email))
	return c.JSON(http.StatusOK, updated)
}
