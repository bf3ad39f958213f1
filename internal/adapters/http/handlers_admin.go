package http

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/carebridge/portal-access/internal/application"
	"github.com/carebridge/portal-access/internal/domain"
)

// requirePermission gates the JSON admin API through the same session
// state query surface the page guard uses.
func (h *Handler) requirePermission(perm domain.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := tokenFromContext(r)
			if !ok {
				writeMissingBearerError(r.Context(), w, "require_permission")
				return
			}
			st, err := h.service.ResolveState(r.Context(), token)
			if err != nil || !st.CheckValid() {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing credentials")
				return
			}
			if !st.HasAllPermissions(perm) {
				logHTTPOperationError(r.Context(), "require_permission", http.StatusForbidden, "ACCESS_DENIED", "access denied", nil)
				writeError(w, http.StatusForbidden, "ACCESS_DENIED", "access denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req application.CreateUserRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "create_user", err)
		return
	}
	res, err := h.service.CreateUser(r.Context(), req)
	if err != nil {
		writeMappedError(r.Context(), w, "create_user", err)
		return
	}
	writeSuccess(w, http.StatusCreated, res)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	res, err := h.service.ListUsers(r.Context(), limit, offset)
	if err != nil {
		writeMappedError(r.Context(), w, "list_users", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) updateUserRole(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(pathParam(r, "user_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid user id")
		return
	}
	var req application.UpdateRoleRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "update_user_role", err)
		return
	}
	if err := h.service.UpdateUserRole(r.Context(), userID, req); err != nil {
		writeMappedError(r.Context(), w, "update_user_role", err)
		return
	}
	writeMessage(w, http.StatusOK, "role updated")
}
