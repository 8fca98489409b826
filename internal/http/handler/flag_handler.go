package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"feature-flag-service/internal/domain"
	"feature-flag-service/internal/engine"
	"feature-flag-service/internal/http/response"
	"feature-flag-service/internal/observability"
	"feature-flag-service/internal/repository"
	"feature-flag-service/internal/service"
)

type FlagHandler struct {
	svc service.FlagService
}

func NewFlagHandler(svc service.FlagService) *FlagHandler {
	return &FlagHandler{svc: svc}
}

type flagResponse struct {
	Key         string            `json:"key"`
	Description string            `json:"description,omitempty"`
	Enabled     bool              `json:"enabled"`
	Overrides   overridesResponse `json:"overrides"`
	CreatedAt   *time.Time        `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time        `json:"updatedAt,omitempty"`
}

type overridesResponse struct {
	Users   map[string]bool `json:"users"`
	Groups  map[string]bool `json:"groups"`
	Regions map[string]bool `json:"regions"`
}

func toFlagResponse(flag *domain.FeatureFlag) flagResponse {
	resp := flagResponse{
		Key:         flag.Key,
		Description: flag.Description,
		Enabled:     flag.Enabled,
		Overrides: overridesResponse{
			Users:   flag.OverrideMap(domain.OverrideUser),
			Groups:  flag.OverrideMap(domain.OverrideGroup),
			Regions: flag.OverrideMap(domain.OverrideRegion),
		},
	}
	if !flag.CreatedAt.IsZero() {
		created := flag.CreatedAt.UTC()
		resp.CreatedAt = &created
	}
	if !flag.UpdatedAt.IsZero() {
		updated := flag.UpdatedAt.UTC()
		resp.UpdatedAt = &updated
	}
	return resp
}

func (h *FlagHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Key         string `json:"key"`
		Description string `json:"description"`
		Enabled     bool   `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	flag, err := h.svc.CreateFlag(r.Context(), body.Key, body.Description, body.Enabled)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	observability.EmitAudit(r, observability.AuditInput{
		EventName:  "flag.create",
		TargetType: "flag",
		TargetID:   flag.Key,
		Action:     "create",
		Outcome:    "success",
		Reason:     "flag_created",
	}, "enabled", flag.Enabled)
	response.JSON(w, r, http.StatusCreated, toFlagResponse(flag))
}

func (h *FlagHandler) List(w http.ResponseWriter, r *http.Request) {
	flags, err := h.svc.ListFlags(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	items := make([]flagResponse, 0, len(flags))
	for i := range flags {
		items = append(items, toFlagResponse(&flags[i]))
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"items": items})
}

func (h *FlagHandler) Get(w http.ResponseWriter, r *http.Request) {
	flag, err := h.svc.GetFlag(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, toFlagResponse(flag))
}

func (h *FlagHandler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Enabled == nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "enabled boolean is required", nil)
		return
	}
	if err := h.svc.SetEnabled(r.Context(), key, *body.Enabled); err != nil {
		h.writeError(w, r, err)
		return
	}
	observability.EmitAudit(r, observability.AuditInput{
		EventName:  "flag.update",
		TargetType: "flag",
		TargetID:   key,
		Action:     "set_enabled",
		Outcome:    "success",
		Reason:     "global_state_updated",
	}, "enabled", *body.Enabled)
	response.JSON(w, r, http.StatusOK, map[string]any{"key": key, "enabled": *body.Enabled})
}

func (h *FlagHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var ec engine.Context
	if err := json.NewDecoder(r.Body).Decode(&ec); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	result, err := h.svc.Evaluate(r.Context(), chi.URLParam(r, "key"), ec)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, result)
}

func (h *FlagHandler) EvaluateAll(w http.ResponseWriter, r *http.Request) {
	var ec engine.Context
	if err := json.NewDecoder(r.Body).Decode(&ec); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	results, err := h.svc.EvaluateAll(r.Context(), ec)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"items": results})
}

func (h *FlagHandler) SetOverride(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var body struct {
		Type    string `json:"type"`
		ID      string `json:"id"`
		Enabled *bool  `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Enabled == nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "type, id and enabled are required", nil)
		return
	}
	err := h.svc.SetOverride(r.Context(), key, domain.OverrideType(body.Type), body.ID, *body.Enabled)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	observability.EmitAudit(r, observability.AuditInput{
		EventName:  "flag.override.set",
		TargetType: "flag_override",
		TargetID:   key,
		Action:     "set",
		Outcome:    "success",
		Reason:     "override_upserted",
	}, "type", body.Type, "entity_id", body.ID, "enabled", *body.Enabled)
	response.JSON(w, r, http.StatusOK, map[string]any{
		"key":     key,
		"type":    body.Type,
		"id":      body.ID,
		"enabled": *body.Enabled,
	})
}

func (h *FlagHandler) RemoveOverride(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	typ := chi.URLParam(r, "type")
	entityID := chi.URLParam(r, "id")
	if err := h.svc.RemoveOverride(r.Context(), key, domain.OverrideType(typ), entityID); err != nil {
		h.writeError(w, r, err)
		return
	}
	observability.EmitAudit(r, observability.AuditInput{
		EventName:  "flag.override.remove",
		TargetType: "flag_override",
		TargetID:   key,
		Action:     "remove",
		Outcome:    "success",
		Reason:     "override_removed",
	}, "type", typ, "entity_id", entityID)
	response.JSON(w, r, http.StatusOK, map[string]any{"key": key, "type": typ, "id": entityID, "removed": true})
}

func (h *FlagHandler) Delete(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := h.svc.DeleteFlag(r.Context(), key); err != nil {
		h.writeError(w, r, err)
		return
	}
	observability.EmitAudit(r, observability.AuditInput{
		EventName:  "flag.delete",
		TargetType: "flag",
		TargetID:   key,
		Action:     "delete",
		Outcome:    "success",
		Reason:     "flag_deleted",
	})
	response.JSON(w, r, http.StatusOK, map[string]any{"key": key, "deleted": true})
}

// writeError maps service errors onto the wire: validation sentinels become
// 400 with their message, store signals keep their status, anything else is a
// 500 with the detail kept out of the response body.
func (h *FlagHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidKey),
		errors.Is(err, service.ErrInvalidDescription),
		errors.Is(err, service.ErrInvalidOverrideType),
		errors.Is(err, service.ErrInvalidEntityID),
		errors.Is(err, service.ErrEmptyContext):
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, repository.ErrFlagNotFound):
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "feature flag not found", nil)
	case errors.Is(err, repository.ErrFlagExists):
		response.Error(w, r, http.StatusConflict, "CONFLICT", "feature flag already exists", nil)
	default:
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}
