package queue

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints – any clinical or front-desk role
	readGroup := api.Group("", auth.RequireRole("admin", "doctor", "nurse", "receptionist"))
	readGroup.GET("/queues", h.ListActiveQueues)
	readGroup.GET("/queues/:room", h.GetQueue)

	// Write endpoints – roles that move the line
	writeGroup := api.Group("", auth.RequireRole("admin", "doctor", "nurse", "receptionist"))
	writeGroup.POST("/queues/:room/patients", h.AddPatient)
	writeGroup.POST("/queues/:room/next", h.AdvanceToNext)
	writeGroup.POST("/queues/:room/skip", h.Skip)
	writeGroup.PUT("/queues/:room/current", h.SetCurrentToken)
}

func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

type addPatientRequest struct {
	AppointmentID     *uuid.UUID `json:"appointment_id"`
	PatientID         uuid.UUID  `json:"patient_id"`
	PatientName       string     `json:"patient_name"`
	PatientNo         string     `json:"patient_no"`
	AssignedStaffID   *uuid.UUID `json:"assigned_staff_id"`
	AssignedStaffName string     `json:"assigned_staff_name"`
	Department        string     `json:"department"`
}

func (h *Handler) AddPatient(c echo.Context) error {
	var req addPatientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	entry, err := h.svc.AddPatient(c.Request().Context(), c.Param("room"), AdmitParams{
		AppointmentID:     req.AppointmentID,
		PatientID:         req.PatientID,
		PatientName:       req.PatientName,
		PatientNo:         req.PatientNo,
		AssignedStaffID:   req.AssignedStaffID,
		AssignedStaffName: req.AssignedStaffName,
		Department:        req.Department,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, entry)
}

func (h *Handler) AdvanceToNext(c echo.Context) error {
	entry, err := h.svc.AdvanceToNext(c.Request().Context(), c.Param("room"))
	if err != nil {
		return httpError(err)
	}
	if entry == nil {
		return c.JSON(http.StatusOK, map[string]any{"serving": nil})
	}
	return c.JSON(http.StatusOK, map[string]any{"serving": entry})
}

type skipRequest struct {
	EntryIndex int `json:"entry_index"`
}

func (h *Handler) Skip(c echo.Context) error {
	var req skipRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Skip(c.Request().Context(), c.Param("room"), req.EntryIndex); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type setCurrentRequest struct {
	Token string `json:"token"`
}

func (h *Handler) SetCurrentToken(c echo.Context) error {
	var req setCurrentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Token == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "token is required")
	}
	entry, err := h.svc.SetCurrentToken(c.Request().Context(), c.Param("room"), req.Token)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, entry)
}

func (h *Handler) GetQueue(c echo.Context) error {
	view, err := h.svc.GetQueueView(c.Request().Context(), c.Param("room"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) ListActiveQueues(c echo.Context) error {
	queues, err := h.svc.ListActiveQueues(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, queues)
}
