package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"codepilot/internal/models"
	"codepilot/internal/service/workspace"
)

type createProjectRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Language    string          `json:"language"`
	Files       json.RawMessage `json:"files"`
	IsPublic    bool            `json:"isPublic"`
}

func (h *Handler) listProjects(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	projects, err := h.workspace.ListProjects(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "Project not found", "Failed to fetch projects")
		return
	}
	c.JSON(http.StatusOK, projects)
}

func (h *Handler) getProject(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	project, err := h.workspace.ViewProject(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, err, "Project not found", "Failed to fetch project")
		return
	}
	c.JSON(http.StatusOK, project)
}

func (h *Handler) createProject(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}
	project, err := h.workspace.CreateProject(c.Request.Context(), models.Project{
		Name:        req.Name,
		Description: req.Description,
		Language:    req.Language,
		UserID:      userID,
		Files:       req.Files,
		IsPublic:    req.IsPublic,
	})
	if err != nil {
		respondError(c, err, "Project not found", "Failed to create project")
		return
	}
	c.JSON(http.StatusCreated, project)
}

// Updates and deletes answer 403 for missing projects as well.
func (h *Handler) updateProject(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var upd models.ProjectUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}
	project, err := h.workspace.UpdateProject(c.Request.Context(), userID, id, upd)
	if err != nil {
		respondError(c, hideMissing(err), "Project not found", "Failed to update project")
		return
	}
	c.JSON(http.StatusOK, project)
}

func (h *Handler) deleteProject(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.workspace.DeleteProject(c.Request.Context(), userID, id); err != nil {
		respondError(c, hideMissing(err), "Project not found", "Failed to delete project")
		return
	}
	c.Status(http.StatusNoContent)
}

func hideMissing(err error) error {
	if errors.Is(err, workspace.ErrNotFound) {
		return workspace.ErrAccessDenied
	}
	return err
}
