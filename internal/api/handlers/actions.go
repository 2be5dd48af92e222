package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"adpilot/internal/core"
	"adpilot/internal/types"
)

// defaultActionPageSize bounds action list responses.
const defaultActionPageSize = 50

// ActionSource provides read access to automation actions.
// Mirrors db.ActionRepository.
type ActionSource interface {
	ListByState(ctx context.Context, state types.ActionState, limit int) ([]*types.AutomationAction, error)
}

// ActionApprover resolves pending actions and records execution outcomes
// reported by the execution collaborator. Mirrors rules.Lifecycle.
type ActionApprover interface {
	Approve(ctx context.Context, actionID, approvedBy string) (*types.AutomationAction, error)
	Reject(ctx context.Context, actionID, reason string) (*types.AutomationAction, error)
	MarkExecuted(ctx context.Context, actionID string) (*types.AutomationAction, error)
	MarkFailed(ctx context.Context, actionID, message string) (*types.AutomationAction, error)
}

// ApproveActionRequest is the request body for POST /v1/actions/{id}/approve.
type ApproveActionRequest struct {
	ApprovedBy string `json:"approved_by" validate:"required,max=200"`
}

// RejectActionRequest is the request body for POST /v1/actions/{id}/reject.
type RejectActionRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// FailActionRequest is the request body for POST /v1/actions/{id}/failed.
type FailActionRequest struct {
	Message string `json:"message" validate:"required,max=500"`
}

// ActionsHandler serves the action review surface: listing actions by state
// and resolving the approval decisions that gate risky actions.
type ActionsHandler struct {
	actions   ActionSource
	lifecycle ActionApprover
	validator *core.Validator
	logger    *slog.Logger
}

// NewActionsHandler creates an ActionsHandler with the provided dependencies.
func NewActionsHandler(actions ActionSource, lifecycle ActionApprover, v *core.Validator, logger *slog.Logger) *ActionsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ActionsHandler{
		actions:   actions,
		lifecycle: lifecycle,
		validator: v,
		logger:    logger,
	}
}

// RegisterRoutes mounts action routes on the provided chi.Router.
func (h *ActionsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/actions", h.List)
	r.Post("/actions/{id}/approve", h.Approve)
	r.Post("/actions/{id}/reject", h.Reject)
	r.Post("/actions/{id}/executed", h.MarkExecuted)
	r.Post("/actions/{id}/failed", h.MarkFailed)
}

// validActionStates guards the state query parameter.
var validActionStates = map[types.ActionState]struct{}{
	types.ActionPendingApproval: {},
	types.ActionApproved:        {},
	types.ActionRejected:        {},
	types.ActionExecuted:        {},
	types.ActionFailed:          {},
	types.ActionExpired:         {},
}

// List handles GET /v1/actions?state=pending_approval&limit=50.
// The state parameter is required; listing every action across states is not
// a review workflow we support.
func (h *ActionsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	raw := q.Get("state")
	if raw == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"state query parameter is required",
			nil,
		))
		return
	}
	state := types.ActionState(raw)
	if _, ok := validActionStates[state]; !ok {
		core.Error(w, r, types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidState,
			"unknown action state",
			nil,
			map[string]any{"state": raw},
		))
		return
	}

	limit := defaultActionPageSize
	if rawLimit := q.Get("limit"); rawLimit != "" {
		if parsed, err := strconv.Atoi(rawLimit); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	actions, err := h.actions.ListByState(r.Context(), state, limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: actions,
		Meta: &core.ListMeta{Count: len(actions)},
	})
}

// Approve handles POST /v1/actions/{id}/approve. Only pending_approval
// actions can be approved; anything else maps to 409 via the lifecycle's
// transition guard.
func (h *ActionsHandler) Approve(w http.ResponseWriter, r *http.Request) {
	actionID := chi.URLParam(r, "id")

	var req ApproveActionRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	action, err := h.lifecycle.Approve(r.Context(), actionID, req.ApprovedBy)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "action approved",
		"action_id", actionID,
		"approved_by", req.ApprovedBy,
	)

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: action})
}

// Reject handles POST /v1/actions/{id}/reject.
func (h *ActionsHandler) Reject(w http.ResponseWriter, r *http.Request) {
	actionID := chi.URLParam(r, "id")

	var req RejectActionRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	action, err := h.lifecycle.Reject(r.Context(), actionID, req.Reason)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "action rejected",
		"action_id", actionID,
		"reason", req.Reason,
	)

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: action})
}

// MarkExecuted handles POST /v1/actions/{id}/executed, the execution
// collaborator's success callback. No body; the transition guard rejects
// anything not currently approved.
func (h *ActionsHandler) MarkExecuted(w http.ResponseWriter, r *http.Request) {
	actionID := chi.URLParam(r, "id")

	action, err := h.lifecycle.MarkExecuted(r.Context(), actionID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "action executed", "action_id", actionID)

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: action})
}

// MarkFailed handles POST /v1/actions/{id}/failed, the execution
// collaborator's failure callback.
func (h *ActionsHandler) MarkFailed(w http.ResponseWriter, r *http.Request) {
	actionID := chi.URLParam(r, "id")

	var req FailActionRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	action, err := h.lifecycle.MarkFailed(r.Context(), actionID, req.Message)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "action execution failed",
		"action_id", actionID,
		"message", req.Message,
	)

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: action})
}
