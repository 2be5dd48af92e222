package core

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"adpilot/internal/types"
)

// --- JSON helper tests ---

func TestJSON_Success(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	JSON(w, r, http.StatusOK, APIResponse{Data: map[string]string{"name": "hourly_roas_profile"}})

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %q", ct)
	}

	var body APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	dataMap, ok := body.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("expected data to be a map, got %T", body.Data)
	}
	if dataMap["name"] != "hourly_roas_profile" {
		t.Errorf("unexpected data payload: %v", dataMap)
	}
}

func TestJSON_ListMeta(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	JSON(w, r, http.StatusOK, APIResponse{
		Data: []string{"a", "b"},
		Meta: &ListMeta{Count: 2},
	})

	var body struct {
		Meta struct {
			Count int `json:"count"`
		} `json:"meta"`
	}
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Meta.Count != 2 {
		t.Errorf("expected meta.count=2, got %d", body.Meta.Count)
	}
}

// --- Error helper tests ---

func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) APIErrorResponse {
	t.Helper()
	var body APIErrorResponse
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return body
}

func TestError_AppError_NotFound(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(types.WithRequestID(r.Context(), "req_42"))

	err := types.NewAppError(types.ErrCodeNotFoundAction, "action not found", nil)
	Error(w, r, err)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
	body := decodeErrorBody(t, w)
	if body.Error.Code != string(types.ErrCodeNotFoundAction) {
		t.Errorf("unexpected error code %q", body.Error.Code)
	}
	if body.Error.RequestID != "req_42" {
		t.Errorf("expected request_id req_42, got %q", body.Error.RequestID)
	}
}

func TestError_AppError_Conflict(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", nil)

	err := types.NewAppErrorWithDetails(
		types.ErrCodeActionIllegalTransition,
		"cannot approve an executed action",
		nil,
		map[string]any{"from": "executed", "to": "approved"},
	)
	Error(w, r, err)

	if w.Code != http.StatusConflict {
		t.Errorf("expected status 409, got %d", w.Code)
	}
	body := decodeErrorBody(t, w)
	if body.Error.Details["from"] != "executed" {
		t.Errorf("expected details to carry transition states, got %v", body.Error.Details)
	}
}

func TestError_WrappedAppError(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	inner := types.NewAppError(types.ErrCodeJobAlreadyRunning, "job already running", nil)
	Error(w, r, errors.Join(errors.New("dispatch failed"), inner))

	if w.Code != http.StatusConflict {
		t.Errorf("expected wrapped AppError to map to 409, got %d", w.Code)
	}
}

func TestError_GenericError_HidesDetails(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	Error(w, r, errors.New("pq: connection refused at 10.0.0.5"))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", w.Code)
	}
	body := decodeErrorBody(t, w)
	if body.Error.Code != string(types.ErrCodeInternalUnexpected) {
		t.Errorf("unexpected error code %q", body.Error.Code)
	}
	if strings.Contains(body.Error.Message, "10.0.0.5") {
		t.Errorf("internal error details leaked to client: %q", body.Error.Message)
	}
}

// --- DecodeJSON tests ---

type decodeTarget struct {
	Name string `json:"name"`
}

func decodeErr(t *testing.T, body string) *types.AppError {
	t.Helper()
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))

	var dst decodeTarget
	err := DecodeJSON(w, r, &dst)
	if err == nil {
		t.Fatalf("expected decode error for body %q", body)
	}
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	return appErr
}

func TestDecodeJSON_Valid(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"kill rule"}`))

	var dst decodeTarget
	if err := DecodeJSON(w, r, &dst); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dst.Name != "kill rule" {
		t.Errorf("expected name to be decoded, got %q", dst.Name)
	}
}

func TestDecodeJSON_Rejections(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"malformed", `{"name":`},
		{"unknown field", `{"name":"x","bogus":1}`},
		{"multiple values", `{"name":"x"}{"name":"y"}`},
		{"type mismatch", `{"name":123}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			appErr := decodeErr(t, tc.body)
			if appErr.Code != errCodeValidationInvalidJSON {
				t.Errorf("expected code %q, got %q", errCodeValidationInvalidJSON, appErr.Code)
			}
			if appErr.HTTPStatus() != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", appErr.HTTPStatus())
			}
		})
	}
}
