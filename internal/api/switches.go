package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-cmdswitch/internal/bridges/cmdline"
	"github.com/nerrad567/gray-logic-cmdswitch/internal/history"
)

// commandSourceAPI marks commands that arrived over HTTP.
const commandSourceAPI = "api"

// commandResponse is returned when a command is accepted.
type commandResponse struct {
	CommandID string `json:"command_id"`
	SwitchID  string `json:"switch_id"`
	Command   string `json:"command"`
	Status    string `json:"status"`
}

// handleListSwitches returns every configured switch.
func (s *Server) handleListSwitches(w http.ResponseWriter, _ *http.Request) {
	switches := s.switches.Switches()
	writeJSON(w, http.StatusOK, map[string]any{
		"switches": switches,
		"count":    len(switches),
	})
}

// handleGetSwitch returns a single switch.
func (s *Server) handleGetSwitch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, ok := s.switches.Snapshot(id)
	if !ok {
		writeNotFound(w, "switch not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleSwitchCommand dispatches on, off, toggle, or refresh to a switch.
// The command runs in the background; the response only confirms acceptance.
func (s *Server) handleSwitchCommand(w http.ResponseWriter, r *http.Request) {
	cmd, err := s.switches.Dispatch(cmdline.CommandMessage{
		DeviceID: chi.URLParam(r, "id"),
		Command:  chi.URLParam(r, "command"),
		Source:   commandSourceAPI,
	})
	switch {
	case errors.Is(err, cmdline.ErrUnknownSwitch):
		writeNotFound(w, "switch not found")
		return
	case errors.Is(err, cmdline.ErrUnknownCommand):
		writeBadRequest(w, "command must be one of on, off, toggle, refresh")
		return
	case errors.Is(err, cmdline.ErrBridgeStopped):
		writeUnavailable(w, "bridge is stopping")
		return
	case err != nil:
		s.logger.Error("failed to dispatch switch command", "error", err)
		writeInternalError(w, "failed to dispatch command")
		return
	}

	writeJSON(w, http.StatusAccepted, commandResponse{
		CommandID: cmd.ID,
		SwitchID:  cmd.DeviceID,
		Command:   cmd.Command,
		Status:    string(cmdline.AckAccepted),
	})
}

// handleSwitchHistory returns recent state changes for a switch, newest first.
func (s *Server) handleSwitchHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "history is not available")
		return
	}

	id := chi.URLParam(r, "id")
	if _, ok := s.switches.Snapshot(id); !ok {
		writeNotFound(w, "switch not found")
		return
	}

	limit, err := parseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	entries, err := s.history.Recent(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("failed to read switch history", "switch", id, "error", err)
		writeInternalError(w, "failed to read history")
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"switch_id": id,
		"entries":   entries,
		"count":     len(entries),
	})
}

// parseHistoryLimit parses the limit query parameter.
func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return history.DefaultLimit, nil
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("invalid limit")
	}
	if limit > history.MaxLimit {
		return 0, fmt.Errorf("limit exceeds maximum")
	}

	return limit, nil
}
