package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"kanban/internal/models"
	"kanban/internal/snapshot"
)

func (s *Server) handleListSubtasks(c *gin.Context) {
	respondSuccess(c, http.StatusOK, gin.H{"subtasks": snapshot.NewRecords(s.manager.Subtasks())})
}

// handleCreateSubtask stores a subtask under the epic named by epicId.
func (s *Server) handleCreateSubtask(c *gin.Context) {
	req, err := bindItem(c)
	if err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	var sub *models.Subtask
	if req != nil {
		if sub, err = req.subtask(); err != nil {
			s.respondError(c, http.StatusBadRequest, err)
			return
		}
	}

	id, err := s.manager.CreateSubtask(sub)
	if err != nil {
		s.respondManagerError(c, err)
		return
	}
	s.persist(c)
	respondSuccess(c, http.StatusCreated, gin.H{"id": id})
}

func (s *Server) handleGetSubtask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	sub, ok := s.manager.SubtaskByID(id)
	if !ok {
		s.respondError(c, http.StatusNotFound, errNotFound(models.KindSubtask, id))
		return
	}
	s.persistView(c)
	respondSuccess(c, http.StatusOK, gin.H{"subtask": snapshot.NewRecord(sub)})
}

// handleUpdateSubtask replaces a subtask. The epicId must match the
// subtask's current epic.
func (s *Server) handleUpdateSubtask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if !s.manager.Contains(models.KindSubtask, id) {
		s.respondError(c, http.StatusNotFound, errNotFound(models.KindSubtask, id))
		return
	}

	req, err := bindItem(c)
	if err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	var sub *models.Subtask
	if req != nil {
		if sub, err = req.subtask(); err != nil {
			s.respondError(c, http.StatusBadRequest, err)
			return
		}
	}

	applied, err := s.manager.UpdateSubtask(sub, id)
	if err != nil {
		s.respondManagerError(c, err)
		return
	}
	if !applied {
		s.respondError(c, http.StatusNotFound, errNotFound(models.KindSubtask, id))
		return
	}
	s.persist(c)
	respondSuccess(c, http.StatusOK, gin.H{"status": "updated"})
}

func (s *Server) handleDeleteSubtask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if !s.manager.Contains(models.KindSubtask, id) {
		s.respondError(c, http.StatusNotFound, errNotFound(models.KindSubtask, id))
		return
	}
	s.manager.RemoveSubtask(id)
	s.persist(c)
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted"})
}

// handleDeleteAllSubtasks clears every subtask and resets every epic.
func (s *Server) handleDeleteAllSubtasks(c *gin.Context) {
	s.manager.RemoveAllSubtasks()
	s.persist(c)
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted"})
}
