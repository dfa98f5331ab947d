// Package vehicles exposes the broker query operations over HTTP.
package vehicles

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/kilianp07/vehicle-broker/core/broker"
	"github.com/kilianp07/vehicle-broker/core/logger"
	"github.com/kilianp07/vehicle-broker/core/model"
)

// DefaultHistoryLimit is used when the limit query parameter is absent.
const DefaultHistoryLimit = 10

// Querier is the read side of the broker used by the handlers.
type Querier interface {
	LatestSnapshot(ctx context.Context, vehicleID string) (model.VehicleSnapshot, bool, error)
	SensorValue(ctx context.Context, vehicleID, sensorType string) (broker.SensorValue, bool, error)
	CommandHistory(ctx context.Context, vehicleID string, limit int) ([]model.Command, error)
	AllVehicles(ctx context.Context) ([]model.VehicleSnapshot, error)
	Health(ctx context.Context) error
	PublishCommand(ctx context.Context, vehicleID, name string, params map[string]any, source string) (model.Command, error)
}

// Flusher deletes the cached data of a vehicle.
type Flusher interface {
	Flush(ctx context.Context, vehicleID string) error
}

// Handler serves the vehicle API.
type Handler struct {
	query    Querier
	flusher  Flusher
	capacity int
	log      logger.Logger
}

// NewHandler returns a Handler. capacity bounds the history limit; flusher
// may be nil, in which case DELETE is not routed.
func NewHandler(q Querier, flusher Flusher, capacity int, log logger.Logger) *Handler {
	if capacity <= 0 {
		capacity = broker.DefaultHistoryCapacity
	}
	return &Handler{query: q, flusher: flusher, capacity: capacity, log: log}
}

// Register mounts the routes on r.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	api := r.PathPrefix("/api/vehicles").Subrouter()
	api.HandleFunc("", h.listVehicles).Methods(http.MethodGet)
	api.HandleFunc("/{id}/data", h.vehicleData).Methods(http.MethodGet)
	if h.flusher != nil {
		api.HandleFunc("/{id}/data", h.flushData).Methods(http.MethodDelete)
	}
	api.HandleFunc("/{id}/sensors/{type}", h.sensorValue).Methods(http.MethodGet)
	api.HandleFunc("/{id}/commands", h.sendCommand).Methods(http.MethodPost)
	api.HandleFunc("/{id}/commands", h.commandHistory).Methods(http.MethodGet)
}

// Router returns a new mux.Router with the routes registered.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	h.Register(r)
	return r
}

func (h *Handler) vehicleData(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	snap, found, err := h.query.LatestSnapshot(r.Context(), id)
	if err != nil {
		h.internalError(w, "latest snapshot", err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) flushData(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.flusher.Flush(r.Context(), id); err != nil {
		if errors.Is(err, model.ErrInvalidVehicleID) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.internalError(w, "flush", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) sensorValue(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	v, found, err := h.query.SensorValue(r.Context(), vars["id"], vars["type"])
	if err != nil {
		h.internalError(w, "sensor value", err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type commandRequest struct {
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters"`
	Source     string         `json:"source"`
}

func (h *Handler) sendCommand(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Command == "" {
		writeError(w, http.StatusBadRequest, "command is required")
		return
	}
	if req.Source == "" {
		req.Source = "api"
	}
	cmd, err := h.query.PublishCommand(r.Context(), id, req.Command, req.Parameters, req.Source)
	if err != nil {
		if errors.Is(err, broker.ErrMalformedMessage) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.internalError(w, "publish command", err)
		return
	}
	writeJSON(w, http.StatusOK, cmd)
}

func (h *Handler) commandHistory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	limit, err := h.parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cmds, err := h.query.CommandHistory(r.Context(), id, limit)
	if err != nil {
		h.internalError(w, "command history", err)
		return
	}
	writeJSON(w, http.StatusOK, cmds)
}

func (h *Handler) parseLimit(s string) (int, error) {
	if s == "" {
		return min(DefaultHistoryLimit, h.capacity), nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	return min(n, h.capacity), nil
}

func (h *Handler) listVehicles(w http.ResponseWriter, r *http.Request) {
	all, err := h.query.AllVehicles(r.Context())
	if err != nil {
		h.internalError(w, "list vehicles", err)
		return
	}
	writeJSON(w, http.StatusOK, all)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.query.Health(r.Context()); err != nil {
		h.log.Errorw("health check failed", map[string]any{"err": err})
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status": "unhealthy",
			"store":  "disconnected",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "store": "connected"})
}

func (h *Handler) internalError(w http.ResponseWriter, op string, err error) {
	h.log.Errorw("request failed", map[string]any{"op": op, "err": err})
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
