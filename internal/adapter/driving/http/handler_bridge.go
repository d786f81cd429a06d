package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ericfisherdev/orgvault/internal/adapter/driven/bridge"
)

// CommandQueue is the side of the browser bridge the extension talks to.
type CommandQueue interface {
	Next(ctx context.Context) (bridge.Command, error)
	Resolve(id string, res bridge.Result) error
}

// NextCommand long-polls for the next tab command. It answers 204 when
// nothing was queued within the poll window.
func (h *Handler) NextCommand(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.pollWait)
	defer cancel()

	cmd, err := h.commands.Next(ctx)
	if err != nil {
		if r.Context().Err() != nil {
			// Client went away; nobody to answer.
			return
		}
		if errors.Is(err, context.DeadlineExceeded) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.writeServiceError(w, err, "failed to fetch bridge command")
		return
	}

	writeJSON(w, http.StatusOK, cmd)
}

// ReportResult delivers the extension's outcome for a command.
func (h *Handler) ReportResult(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var res bridge.Result
	if err := json.NewDecoder(r.Body).Decode(&res); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.commands.Resolve(id, res); err != nil {
		if errors.Is(err, bridge.ErrUnknownCommand) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.writeServiceError(w, err, "failed to resolve bridge command", "command_id", id)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
