package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/civicnet/weeklymatch/internal/cycle"
	apperrors "github.com/civicnet/weeklymatch/internal/errors"
	"github.com/civicnet/weeklymatch/internal/meeting"
	"github.com/civicnet/weeklymatch/internal/middleware"
)

// RunRequest overrides the configured cycle defaults for one run. Absent fields keep the default.
type RunRequest struct {
	ExcludeRecentMatches  *bool `json:"excludeRecentMatches"`
	MinDaysSinceLastMatch *int  `json:"minDaysSinceLastMatch" binding:"omitempty,min=0,max=365"`
	MaxMatchesPerWeek     *int  `json:"maxMatchesPerWeek" binding:"omitempty,min=0"`
	CreateMeetings        *bool `json:"createMeetings"`
	Force                 *bool `json:"force"`
	DryRun                *bool `json:"dryRun"`
}

func (r RunRequest) apply(opts cycle.Options) cycle.Options {
	if r.ExcludeRecentMatches != nil {
		opts.ExcludeRecentMatches = *r.ExcludeRecentMatches
	}
	if r.MinDaysSinceLastMatch != nil {
		opts.MinDaysSinceLastMatch = *r.MinDaysSinceLastMatch
	}
	if r.MaxMatchesPerWeek != nil {
		opts.MaxMatchesPerWeek = *r.MaxMatchesPerWeek
	}
	if r.CreateMeetings != nil {
		opts.CreateMeetings = *r.CreateMeetings
	}
	if r.Force != nil {
		opts.Force = *r.Force
	}
	if r.DryRun != nil {
		opts.DryRun = *r.DryRun
	}
	return opts
}

func queryBool(c *gin.Context, key string) (*bool, error) {
	raw, ok := c.GetQuery(key)
	if !ok {
		return nil, nil
	}
	if raw == "" {
		v := true
		return &v, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, apperrors.NewValidationError(key, key+" must be a boolean")
	}
	return &v, nil
}

func (s *Server) parseRunRequest(c *gin.Context) (cycle.Options, error) {
	var req RunRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			return cycle.Options{}, apperrors.NewValidationError("body", err.Error())
		}
	}
	for key, dst := range map[string]**bool{"force": &req.Force, "dryRun": &req.DryRun} {
		v, err := queryBool(c, key)
		if err != nil {
			return cycle.Options{}, err
		}
		if v != nil {
			*dst = v
		}
	}
	return req.apply(s.cfg.Defaults), nil
}

func (s *Server) handleRunCycle(c *gin.Context) {
	opts, err := s.parseRunRequest(c)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	select {
	case s.running <- struct{}{}:
		defer func() { <-s.running }()
	default:
		c.JSON(http.StatusConflict, middleware.ErrorResponse{
			Error: "a matching cycle is already running",
			Code:  "CYCLE_IN_PROGRESS",
			Type:  apperrors.ErrorTypeValidation,
		})
		return
	}

	// A scheduler that gives up on the response must not cancel sends halfway through a cycle.
	summary := s.cfg.Runner.Run(context.WithoutCancel(c.Request.Context()), opts)
	status := http.StatusOK
	if !summary.Success {
		status = http.StatusInternalServerError
	}
	c.JSON(status, summary)
}

func (s *Server) handleLastSummary(c *gin.Context) {
	if s.cfg.Summaries == nil {
		middleware.RespondError(c, apperrors.NewNotFoundError("last cycle summary"))
		return
	}

	var summary cycle.Summary
	found, err := s.cfg.Summaries.LoadLastSummary(c.Request.Context(), &summary)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	if !found {
		middleware.RespondError(c, apperrors.NewNotFoundError("last cycle summary"))
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleICS(c *gin.Context) {
	ev, err := meeting.ParseICSQuery(c.Request.URL.Query())
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="civic-match.ics"`)
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", meeting.RenderICS(ev, time.Now().UTC()))
}
