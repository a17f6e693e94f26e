package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/onnwee/chat-panels/session"
	"github.com/onnwee/chat-panels/view"
)

// settingsUpdate is a partial PUT /settings body; absent fields keep their value.
type settingsUpdate struct {
	Layout         *string `json:"layout,omitempty"`
	FontSize       *int    `json:"font_size,omitempty"`
	BoxSize        *int    `json:"box_size,omitempty"`
	ShowTimestamps *bool   `json:"show_timestamps,omitempty"`
}

// HandleSettings handles GET and PUT of the viewer settings.
func (h *Handlers) HandleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.sessions.Settings())
	case http.MethodPut:
		var body settingsUpdate
		if err := decodeJSON(r, &body); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		ctx := r.Context()
		if body.Layout != nil {
			mode, err := view.ParseMode(*body.Layout)
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, err.Error())
				return
			}
			if _, err := h.sessions.SetLayout(ctx, mode); err != nil {
				writeSettingsError(w, err)
				return
			}
		}
		style := h.sessions.Settings().Style
		changed := false
		if body.FontSize != nil {
			style.FontSize, changed = *body.FontSize, true
		}
		if body.BoxSize != nil {
			style.BoxSize, changed = *body.BoxSize, true
		}
		if body.ShowTimestamps != nil {
			style.ShowTimestamps, changed = *body.ShowTimestamps, true
		}
		if changed {
			if _, err := h.sessions.SetStyle(ctx, style); err != nil {
				writeSettingsError(w, err)
				return
			}
		}
		writeJSON(w, http.StatusOK, h.sessions.Settings())
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleSettingsDispatcher routes the /settings/... step and toggle actions.
func (h *Handlers) HandleSettingsDispatcher(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/settings/"), "/"), "/")
	ctx := r.Context()

	var (
		settings session.Settings
		err      error
	)
	switch {
	case len(parts) == 2 && (parts[0] == "font-size" || parts[0] == "box-size"):
		if !allowMethods(w, r, http.MethodPost) {
			return
		}
		delta, ok := map[string]int{"increase": 1, "decrease": -1}[parts[1]]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if parts[0] == "font-size" {
			settings, err = h.sessions.StepFontSize(ctx, delta)
		} else {
			settings, err = h.sessions.StepBoxSize(ctx, delta)
		}
	case len(parts) == 2 && parts[0] == "timestamps" && parts[1] == "toggle":
		if !allowMethods(w, r, http.MethodPost) {
			return
		}
		settings, err = h.sessions.ToggleTimestamps(ctx)
	case len(parts) == 2 && parts[0] == "layout" && parts[1] == "toggle":
		if !allowMethods(w, r, http.MethodPost) {
			return
		}
		settings, err = h.sessions.ToggleLayout(ctx)
	case len(parts) == 1 && parts[0] == "layout":
		if !allowMethods(w, r, http.MethodPut) {
			return
		}
		var body struct {
			Mode string `json:"mode"`
		}
		if err := decodeJSON(r, &body); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		mode, perr := view.ParseMode(body.Mode)
		if perr != nil {
			writeJSONError(w, http.StatusBadRequest, perr.Error())
			return
		}
		settings, err = h.sessions.SetLayout(ctx, mode)
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		writeSettingsError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func writeSettingsError(w http.ResponseWriter, err error) {
	if errors.Is(err, view.ErrUnknownMode) || errors.Is(err, view.ErrUnknownSetting) {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSONError(w, http.StatusInternalServerError, err.Error())
}
