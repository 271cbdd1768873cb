package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"codepilot/internal/models"
	"codepilot/internal/service/workspace"
)

type createPricingRequest struct {
	Name        string   `json:"name"`
	Price       int      `json:"price"`
	TokensLimit int      `json:"tokensLimit"`
	Features    []string `json:"features"`
	IsActive    *bool    `json:"isActive"`
}

type subscribeRequest struct {
	PlanID int64 `json:"planId"`
}

func (h *Handler) listPricing(c *gin.Context) {
	plans, err := h.workspace.ListPricingPlans(c.Request.Context())
	if err != nil {
		respondError(c, err, "Plan not found", "Failed to fetch pricing plans")
		return
	}
	c.JSON(http.StatusOK, plans)
}

func (h *Handler) createPricing(c *gin.Context) {
	var req createPricingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	plan, err := h.workspace.CreatePricingPlan(c.Request.Context(), models.PricingPlan{
		Name:        req.Name,
		Price:       req.Price,
		TokensLimit: req.TokensLimit,
		Features:    req.Features,
		IsActive:    active,
	})
	if err != nil {
		respondError(c, err, "Plan not found", "Failed to create pricing plan")
		return
	}
	c.JSON(http.StatusCreated, plan)
}

func (h *Handler) initPricing(c *gin.Context) {
	plans, err := h.workspace.SeedPricingPlans(c.Request.Context())
	if err != nil {
		respondError(c, err, "Plan not found", "Failed to initialize pricing")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Default pricing plans created", "plans": plans})
}

func (h *Handler) getSubscription(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	sub, err := h.workspace.GetActiveSubscription(c.Request.Context(), userID)
	if errors.Is(err, workspace.ErrNotFound) {
		c.JSON(http.StatusOK, nil)
		return
	}
	if err != nil {
		respondError(c, err, "Subscription not found", "Failed to fetch subscription")
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (h *Handler) subscribe(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.PlanID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "planId is required"})
		return
	}
	sub, err := h.workspace.Subscribe(c.Request.Context(), userID, req.PlanID)
	if err != nil {
		respondError(c, err, "Plan not found", "Failed to create subscription")
		return
	}
	c.JSON(http.StatusCreated, sub)
}

func (h *Handler) userStats(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	stats, err := h.workspace.UserStats(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "User not found", "Failed to fetch user stats")
		return
	}
	c.JSON(http.StatusOK, stats)
}
