package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"kanban/internal/models"
	"kanban/internal/snapshot"
)

var errEpicNotCreated = errors.New("epic not created")

func errNotFound(kind models.Kind, id int64) error {
	return fmt.Errorf("%s %d not found", kind, id)
}

func (s *Server) handleListEpics(c *gin.Context) {
	respondSuccess(c, http.StatusOK, gin.H{"epics": snapshot.NewRecords(s.manager.Epics())})
}

// handleCreateEpic stores a new epic. An empty body creates nothing.
func (s *Server) handleCreateEpic(c *gin.Context) {
	req, err := bindItem(c)
	if err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	var epic *models.Epic
	if req != nil {
		if epic, err = req.epic(); err != nil {
			s.respondError(c, http.StatusBadRequest, err)
			return
		}
	}

	id, err := s.manager.CreateEpic(epic)
	if err != nil {
		s.respondManagerError(c, err)
		return
	}
	if id == 0 {
		s.respondError(c, http.StatusBadRequest, errEpicNotCreated)
		return
	}
	s.persist(c)
	respondSuccess(c, http.StatusCreated, gin.H{"id": id})
}

func (s *Server) handleGetEpic(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	epic, ok := s.manager.EpicByID(id)
	if !ok {
		s.respondError(c, http.StatusNotFound, errNotFound(models.KindEpic, id))
		return
	}
	s.persistView(c)
	respondSuccess(c, http.StatusOK, gin.H{"epic": snapshot.NewRecord(epic)})
}

// handleUpdateEpic changes the title and description. Status and dates
// are derived from subtasks and cannot be set.
func (s *Server) handleUpdateEpic(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if !s.manager.Contains(models.KindEpic, id) {
		s.respondError(c, http.StatusNotFound, errNotFound(models.KindEpic, id))
		return
	}

	req, err := bindItem(c)
	if err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	var epic *models.Epic
	if req != nil {
		if epic, err = req.epic(); err != nil {
			s.respondError(c, http.StatusBadRequest, err)
			return
		}
	}

	applied, err := s.manager.UpdateEpic(epic, id)
	if err != nil {
		s.respondManagerError(c, err)
		return
	}
	if !applied {
		s.respondError(c, http.StatusNotFound, errNotFound(models.KindEpic, id))
		return
	}
	s.persist(c)
	respondSuccess(c, http.StatusOK, gin.H{"status": "updated"})
}

// handleDeleteEpic removes an epic together with its subtasks.
func (s *Server) handleDeleteEpic(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := s.manager.RemoveEpic(id); err != nil {
		s.respondManagerError(c, err)
		return
	}
	s.persist(c)
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted"})
}

func (s *Server) handleDeleteAllEpics(c *gin.Context) {
	s.manager.RemoveAllEpics()
	s.persist(c)
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted"})
}

// handleListEpicSubtasks returns the subtasks of one epic in insertion order.
func (s *Server) handleListEpicSubtasks(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	subtasks, ok := s.manager.SubtasksByEpic(id)
	if !ok {
		s.respondError(c, http.StatusNotFound, errNotFound(models.KindEpic, id))
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"subtasks": snapshot.NewRecords(subtasks)})
}
