package http

import (
	"net/http"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/device"
	"github.com/cmlabs-hris/attendance-sync/internal/handler/http/response"
	"github.com/go-chi/chi/v5"
)

type DeviceHandler interface {
	Status(w http.ResponseWriter, r *http.Request)
	Sync(w http.ResponseWriter, r *http.Request)
	SyncAll(w http.ResponseWriter, r *http.Request)
}

type deviceHandlerImpl struct {
	deviceService device.DeviceService
}

func NewDeviceHandler(deviceService device.DeviceService) DeviceHandler {
	return &deviceHandlerImpl{deviceService: deviceService}
}

// Status implements DeviceHandler.
func (h *deviceHandlerImpl) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.deviceService.Status(r.Context())
	if err != nil {
		response.HandleError(w, err)
		return
	}
	response.SuccessWithMeta(w, status, &response.Meta{TotalItems: len(status)})
}

// Sync implements DeviceHandler.
func (h *deviceHandlerImpl) Sync(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		response.BadRequest(w, "Device ID is required", nil)
		return
	}

	result, err := h.deviceService.Sync(r.Context(), id)
	if err != nil {
		response.HandleError(w, err)
		return
	}
	response.SuccessWithMessage(w, "Device synced", result)
}

// SyncAll implements DeviceHandler. Per-device failures are in the result list.
func (h *deviceHandlerImpl) SyncAll(w http.ResponseWriter, r *http.Request) {
	results, err := h.deviceService.SyncAll(r.Context())
	if err != nil {
		response.HandleError(w, err)
		return
	}
	response.SuccessWithMeta(w, results, &response.Meta{TotalItems: len(results)})
}
