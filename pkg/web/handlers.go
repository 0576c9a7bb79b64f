// Package web provides HTTP handlers and REST API endpoints for marketing package generation.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/dukex/promoflow/pkg/hitl"
	"github.com/dukex/promoflow/pkg/models"
	"github.com/dukex/promoflow/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// UserHeader identifies the caller that owns a new package.
const UserHeader = "X-User-ID"

const anonymousUser = "anonymous"

// HealthChecker reports the health of a backing dependency.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type APIHandlers struct {
	packages  *services.Packages
	approvals *hitl.Manager
	validator *validator.Validate
	health    HealthChecker
}

func NewAPIHandlers(
	packages *services.Packages,
	approvals *hitl.Manager,
	validator *validator.Validate,
	health HealthChecker,
) *APIHandlers {
	return &APIHandlers{
		packages:  packages,
		approvals: approvals,
		validator: validator,
		health:    health,
	}
}

// RegisterRoutes mounts every package and workflow endpoint on router.
func RegisterRoutes(router fiber.Router, h *APIHandlers) {
	p := router.Group("/packages")
	p.Post("/", h.CreatePackage)
	p.Get("/:id", h.GetPackage)
	p.Post("/:id/approve", h.ApprovePackage)
	p.Post("/:id/reject", h.RejectPackage)
	p.Post("/:id/regenerate", h.RegeneratePackage)
	p.Post("/:id/request-approval", h.RequestApproval)

	w := router.Group("/workflows")
	w.Get("/:workflowId", h.GetWorkflow)
	w.Post("/:workflowId/cancel", h.CancelWorkflow)

	router.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "Promoflow API is healthy"
	httpStatus := http.StatusOK
	repositoryCheck := "ok"

	if err := h.health.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		message = "Promoflow API is unhealthy"
		httpStatus = http.StatusInternalServerError
		repositoryCheck = err.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) CreatePackage(c fiber.Ctx) error {
	var req CreatePackageRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	userID := c.Get(UserHeader)
	if userID == "" {
		userID = anonymousUser
	}

	workflowID, err := h.packages.Start(c.Context(), req.toModel(), userID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(CreatePackageResponse{
		WorkflowID: workflowID,
		Status:     models.WorkflowStatusRunning,
	})
}

func (h *APIHandlers) GetPackage(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Package ID is required")
	}

	details, err := h.packages.GetPackage(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(details)
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	workflowID := c.Params("workflowId")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	view, err := h.packages.GetWorkflow(c.Context(), workflowID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(view)
}

func (h *APIHandlers) CancelWorkflow(c fiber.Ctx) error {
	workflowID := c.Params("workflowId")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	if err := h.packages.Cancel(c.Context(), workflowID); err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"workflow_id": workflowID,
		"cancelled":   true,
	})
}

func (h *APIHandlers) ApprovePackage(c fiber.Ctx) error {
	var req DecisionRequest
	if ok, err := h.bindOptional(c, &req); !ok {
		return err
	}

	record, err := h.approvals.Approve(c.Context(), c.Params("id"), req.Comment)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(record)
}

func (h *APIHandlers) RejectPackage(c fiber.Ctx) error {
	var req DecisionRequest
	if ok, err := h.bindOptional(c, &req); !ok {
		return err
	}

	record, err := h.approvals.Reject(c.Context(), c.Params("id"), req.Comment)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(record)
}

func (h *APIHandlers) RegeneratePackage(c fiber.Ctx) error {
	var req RegenerateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.approvals.Regenerate(c.Context(), c.Params("id"), hitl.Target(req.Target), req.Reason)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(result)
}

func (h *APIHandlers) RequestApproval(c fiber.Ctx) error {
	var req RequestApprovalRequest
	if ok, err := h.bindOptional(c, &req); !ok {
		return err
	}

	record, err := h.approvals.RequestApproval(c.Context(), c.Params("id"), req.Reason, req.QAScore)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(record)
}

// bindOptional decodes and validates a body that callers may omit. When ok is
// false the problem response has already been written.
func (h *APIHandlers) bindOptional(c fiber.Ctx, out any) (ok bool, err error) {
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(out); err != nil {
			return false, badRequest(c, "Invalid JSON format")
		}
	}

	if err := h.validator.Struct(out); err != nil {
		return false, badRequest(c, err.Error())
	}

	return true, nil
}
