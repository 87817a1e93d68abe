package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ali-irt/Karigar/internal/common"
	"github.com/ali-irt/Karigar/internal/dispatch"
	"github.com/ali-irt/Karigar/internal/models"
)

// failTransition maps dispatch errors onto the HTTP taxonomy: authorization
// failures are 403, guard failures 409, everything malformed 400.
func failTransition(c *gin.Context, err error) {
	var conflict *dispatch.StateConflictError
	var rejected *dispatch.RejectedError

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		common.Fail(c, http.StatusNotFound, 40402, "job not found")
	case errors.Is(err, dispatch.ErrNotParticipant):
		common.Fail(c, http.StatusForbidden, 40303, "not a participant of this job")
	case errors.Is(err, dispatch.ErrInvalidETA), errors.Is(err, dispatch.ErrInvalidCost):
		common.Fail(c, http.StatusBadRequest, 10005, err.Error())
	case errors.As(err, &rejected):
		common.Fail(c, http.StatusConflict, 40901, err.Error())
	case errors.As(err, &conflict):
		common.Fail(c, http.StatusConflict, 40902, err.Error())
	default:
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
	}
}

type createJobReq struct {
	Description    string   `json:"description" binding:"required"`
	ServiceAddress string   `json:"service_address"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
}

func (h *Handler) CreateJob(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	if roleFromContext(c) != models.RoleCustomer {
		common.Fail(c, http.StatusForbidden, 40304, "customers only")
		return
	}

	var req createJobReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	job, err := h.Svc.CreateJob(c.Request.Context(), uid, dispatch.CreateJobInput{
		Description:    req.Description,
		ServiceAddress: req.ServiceAddress,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
	})
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to create job")
		return
	}

	common.OK(c, gin.H{"job": job})
}

// ListAvailableJobs returns pending jobs still inside the acceptance window.
func (h *Handler) ListAvailableJobs(c *gin.Context) {
	if _, okk := userIDFromContext(c); !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	if roleFromContext(c) != models.RoleProvider {
		common.Fail(c, http.StatusForbidden, 40302, "providers only")
		return
	}

	jobs, err := h.Svc.ListAvailable(c.Request.Context())
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to list jobs")
		return
	}

	common.OK(c, gin.H{"jobs": jobs})
}

func (h *Handler) GetJob(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	job, err := h.Svc.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40402, "job not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	if !h.Svc.IsParticipant(job, uid, roleFromContext(c)) {
		// hide existence
		common.Fail(c, http.StatusNotFound, 40402, "job not found")
		return
	}

	common.OK(c, gin.H{"job": job})
}

type acceptJobReq struct {
	EtaMinutes int `json:"eta_minutes" binding:"required"`
}

func (h *Handler) AcceptJob(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	if roleFromContext(c) != models.RoleProvider {
		common.Fail(c, http.StatusForbidden, 40302, "providers only")
		return
	}

	var req acceptJobReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	job, err := h.Svc.Accept(c.Request.Context(), c.Param("id"), uid, req.EtaMinutes)
	if err != nil {
		failTransition(c, err)
		return
	}

	common.OK(c, gin.H{"job": job})
}

func (h *Handler) StartJob(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	job, err := h.Svc.Start(c.Request.Context(), c.Param("id"), uid)
	if err != nil {
		failTransition(c, err)
		return
	}

	common.OK(c, gin.H{"job": job})
}

type completeJobReq struct {
	ActualCost float64 `json:"actual_cost" binding:"required"`
}

func (h *Handler) CompleteJob(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req completeJobReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	job, err := h.Svc.Complete(c.Request.Context(), c.Param("id"), uid, req.ActualCost)
	if err != nil {
		failTransition(c, err)
		return
	}

	common.OK(c, gin.H{"job": job})
}

type cancelJobReq struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *Handler) CancelJob(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req cancelJobReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if len(strings.TrimSpace(req.Reason)) < 10 {
		common.Fail(c, http.StatusBadRequest, 10006, "reason must be at least 10 characters")
		return
	}

	job, err := h.Svc.Cancel(c.Request.Context(), c.Param("id"), uid, roleFromContext(c), req.Reason)
	if err != nil {
		failTransition(c, err)
		return
	}

	common.OK(c, gin.H{"job": job})
}

// ListJobMessages is the chat readback API; delivery itself is the live
// broadcast, these rows are only a trail.
func (h *Handler) ListJobMessages(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	job, err := h.Svc.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40402, "job not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	if !h.Svc.IsParticipant(job, uid, roleFromContext(c)) {
		common.Fail(c, http.StatusNotFound, 40402, "job not found")
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	msgs, err := h.Svc.ListChatMessages(c.Request.Context(), job.ID, limit)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list messages")
		return
	}

	common.OK(c, gin.H{"messages": msgs})
}

func (h *Handler) ListJobLocations(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	job, err := h.Svc.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40402, "job not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	if !h.Svc.IsParticipant(job, uid, roleFromContext(c)) {
		common.Fail(c, http.StatusNotFound, 40402, "job not found")
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	samples, err := h.Svc.ListLocationSamples(c.Request.Context(), job.ID, limit)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list locations")
		return
	}

	common.OK(c, gin.H{"locations": samples})
}
