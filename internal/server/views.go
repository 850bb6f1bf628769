package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"kanban/internal/snapshot"
)

var errBackupDisabled = errors.New("backup is not configured")

// handlePrioritized lists dated items by start time.
func (s *Server) handlePrioritized(c *gin.Context) {
	respondSuccess(c, http.StatusOK, gin.H{"prioritized": snapshot.NewRecords(s.manager.Prioritized())})
}

// handleHistory lists viewed items, oldest first.
func (s *Server) handleHistory(c *gin.Context) {
	respondSuccess(c, http.StatusOK, gin.H{"history": snapshot.NewRecords(s.manager.History())})
}

func (s *Server) handleListBackups(c *gin.Context) {
	if s.opts.Backup == nil {
		s.respondError(c, http.StatusServiceUnavailable, errBackupDisabled)
		return
	}
	versions, err := s.opts.Backup.Versions(c.Request.Context())
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	if versions == nil {
		versions = []string{}
	}
	respondSuccess(c, http.StatusOK, gin.H{"versions": versions})
}

// handleBackup writes a backup version on demand.
func (s *Server) handleBackup(c *gin.Context) {
	if s.opts.Backup == nil {
		s.respondError(c, http.StatusServiceUnavailable, errBackupDisabled)
		return
	}
	s.persistMu.Lock()
	err := s.opts.Backup.Save(c.Request.Context(), snapshot.Capture(s.manager))
	s.persistMu.Unlock()
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"status": "saved"})
}
