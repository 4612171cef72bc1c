package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/anatolykoptev/go_ytchat/internal/engine"
	"github.com/anatolykoptev/go_ytchat/internal/toolutil"
)

func (rt *Router) handleTranscript(w http.ResponseWriter, r *http.Request) {
	var in toolutil.LoadInput
	if err := decodeBody(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := rt.svc.LoadVideo(r.Context(), in.URL)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toolutil.NewLoadOutput(res))
}

func (rt *Router) handleChat(w http.ResponseWriter, r *http.Request) {
	var in toolutil.ChatInput
	if err := decodeBody(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	in = in.Trim()
	reply, err := rt.svc.Chat(r.Context(), in.VideoID, in.Message)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toolutil.ChatOutput{Response: reply})
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, engine.FormatMetrics())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return fmt.Errorf("%w: request body too large", engine.ErrInvalidInput)
		}
		return fmt.Errorf("%w: invalid JSON body", engine.ErrInvalidInput)
	}
	return nil
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(k engine.Kind) int {
	switch k {
	case engine.KindInvalidInput, engine.KindNotLoaded:
		return http.StatusBadRequest
	case engine.KindAcquisition:
		return http.StatusUnprocessableEntity
	case engine.KindUpstreamLLM:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	out := toolutil.NewErrorOutput(err)
	status := StatusFor(engine.KindOf(err))
	if status >= 500 || status == http.StatusUnprocessableEntity {
		slog.Warn("request failed",
			slog.String("path", r.URL.Path),
			slog.String("kind", out.Kind),
			slog.String("request_id", RequestID(r.Context())),
			slog.Any("error", err))
	}
	writeJSON(w, status, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response", slog.Any("error", err))
	}
}
