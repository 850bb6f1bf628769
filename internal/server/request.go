package server

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"kanban/internal/models"
)

var (
	errTitleRequired  = errors.New("title is required")
	errEpicIDRequired = errors.New("epicId is required")
)

// itemRequest is the body accepted by create and update endpoints. Updates
// replace the whole item, so omitted fields fall back to their defaults.
type itemRequest struct {
	Title           *string    `json:"title"`
	Description     *string    `json:"description"`
	Status          *string    `json:"status"`
	StartTime       *time.Time `json:"startTime"`
	DurationMinutes *int64     `json:"durationMinutes"`
	EpicID          *int64     `json:"epicId"`
}

// bindItem decodes the request body. An empty body yields a nil request.
func bindItem(c *gin.Context) (*itemRequest, error) {
	var req itemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

func (r *itemRequest) task() (*models.Task, error) {
	if r.Title == nil || strings.TrimSpace(*r.Title) == "" {
		return nil, errTitleRequired
	}
	status, err := models.ParseStatus(getString(r.Status))
	if err != nil {
		return nil, err
	}
	var minutes int64
	if r.DurationMinutes != nil {
		minutes = *r.DurationMinutes
	}
	if err := models.ValidateDuration(minutes); err != nil {
		return nil, fmt.Errorf("durationMinutes: %w", err)
	}

	t := models.NewTask(*r.Title, getString(r.Description))
	t.Status = status
	t.DurationMinutes = minutes
	if r.StartTime != nil {
		t.Schedule(r.StartTime.UTC(), minutes)
	}
	return t, nil
}

func (r *itemRequest) epic() (*models.Epic, error) {
	if r.Title == nil || strings.TrimSpace(*r.Title) == "" {
		return nil, errTitleRequired
	}
	return models.NewEpic(*r.Title, getString(r.Description)), nil
}

func (r *itemRequest) subtask() (*models.Subtask, error) {
	if r.EpicID == nil {
		return nil, errEpicIDRequired
	}
	t, err := r.task()
	if err != nil {
		return nil, err
	}
	return &models.Subtask{Task: *t, EpicID: *r.EpicID}, nil
}

func getString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
