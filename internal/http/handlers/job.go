package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/secondbrain-backend/internal/http/response"
	"github.com/yungbote/secondbrain-backend/internal/services"
)

type JobHandler struct {
	jobs services.JobService
}

func NewJobHandler(jobs services.JobService) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// GET /api/jobs
func (h *JobHandler) ListJobs(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 20)
	if !ok {
		return
	}
	jobs, err := h.jobs.ListForRequestUser(requestCtx(c), limit)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"jobs": jobs})
}

// GET /api/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	job, err := h.jobs.GetByIDForRequestUser(requestCtx(c), jobID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}

// POST /api/jobs/:id/cancel
func (h *JobHandler) CancelJob(c *gin.Context) {
	jobID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	job, err := h.jobs.CancelForRequestUser(requestCtx(c), jobID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}
