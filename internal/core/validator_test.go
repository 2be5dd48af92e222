package core

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"adpilot/internal/types"
)

type approveRequest struct {
	ApprovedBy string `validate:"required"`
	Decision   string `validate:"required,oneof=approve reject"`
}

func testValidator() *Validator {
	return NewValidator(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestValidateStruct_Valid(t *testing.T) {
	v := testValidator()

	err := v.ValidateStruct(approveRequest{ApprovedBy: "ops@example.com", Decision: "approve"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateStruct_CollectsAllViolations(t *testing.T) {
	v := testValidator()

	err := v.ValidateStruct(approveRequest{Decision: "maybe"})
	if err == nil {
		t.Fatal("expected validation error")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if appErr.HTTPStatus() != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", appErr.HTTPStatus())
	}
	if len(appErr.Details) != 2 {
		t.Fatalf("expected 2 field violations, got %d: %v", len(appErr.Details), appErr.Details)
	}
	if _, ok := appErr.Details["ApprovedBy"]; !ok {
		t.Errorf("expected ApprovedBy violation, got %v", appErr.Details)
	}
	if msg, _ := appErr.Details["Decision"].(string); msg != "must be one of: approve reject" {
		t.Errorf("unexpected oneof message %q", msg)
	}
}

func TestValidateStruct_NonStructInput(t *testing.T) {
	v := testValidator()

	err := v.ValidateStruct("not a struct")
	if err == nil {
		t.Fatal("expected error for non-struct input")
	}
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeInternalUnexpected {
		t.Errorf("expected internal error code, got %q", appErr.Code)
	}
}
