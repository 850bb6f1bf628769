package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"kanban/internal/models"
	"kanban/internal/snapshot"
)

// handleListTasks returns every plain task ordered by id.
func (s *Server) handleListTasks(c *gin.Context) {
	respondSuccess(c, http.StatusOK, gin.H{"tasks": snapshot.NewRecords(s.manager.Tasks())})
}

// handleCreateTask stores a new task and returns its id.
func (s *Server) handleCreateTask(c *gin.Context) {
	req, err := bindItem(c)
	if err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	var task *models.Task
	if req != nil {
		if task, err = req.task(); err != nil {
			s.respondError(c, http.StatusBadRequest, err)
			return
		}
	}

	id, err := s.manager.CreateTask(task)
	if err != nil {
		s.respondManagerError(c, err)
		return
	}
	s.persist(c)
	respondSuccess(c, http.StatusCreated, gin.H{"id": id})
}

// handleGetTask returns a task and records the view.
func (s *Server) handleGetTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	task, ok := s.manager.TaskByID(id)
	if !ok {
		s.respondError(c, http.StatusNotFound, errNotFound(models.KindTask, id))
		return
	}
	s.persistView(c)
	respondSuccess(c, http.StatusOK, gin.H{"task": snapshot.NewRecord(task)})
}

// handleUpdateTask replaces the fields of an existing task.
func (s *Server) handleUpdateTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if !s.manager.Contains(models.KindTask, id) {
		s.respondError(c, http.StatusNotFound, errNotFound(models.KindTask, id))
		return
	}

	req, err := bindItem(c)
	if err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	var task *models.Task
	if req != nil {
		if task, err = req.task(); err != nil {
			s.respondError(c, http.StatusBadRequest, err)
			return
		}
	}

	applied, err := s.manager.UpdateTask(task, id)
	if err != nil {
		s.respondManagerError(c, err)
		return
	}
	if !applied {
		s.respondError(c, http.StatusNotFound, errNotFound(models.KindTask, id))
		return
	}
	s.persist(c)
	respondSuccess(c, http.StatusOK, gin.H{"status": "updated"})
}

// handleDeleteTask removes a single task.
func (s *Server) handleDeleteTask(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if !s.manager.Contains(models.KindTask, id) {
		s.respondError(c, http.StatusNotFound, errNotFound(models.KindTask, id))
		return
	}
	s.manager.RemoveTask(id)
	s.persist(c)
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted"})
}

// handleDeleteAllTasks clears every plain task.
func (s *Server) handleDeleteAllTasks(c *gin.Context) {
	s.manager.RemoveAllTasks()
	s.persist(c)
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted"})
}
