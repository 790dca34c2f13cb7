package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/healthcare_records/internal/service"
)

// RecordsHandler serves patient records. Every call is scoped to the caller
// through the viewer built from the access token.
type RecordsHandler struct {
	Svc *service.RecordsService
}

func (h *RecordsHandler) ListPatients(c echo.Context) error {
	list, err := h.Svc.ListPatients(c.Request().Context(), viewer(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

func (h *RecordsHandler) GetPatient(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	p, err := h.Svc.GetPatient(c.Request().Context(), viewer(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *RecordsHandler) UpdatePatient(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req service.PatientUpdate
	if err := bind(c, &req); err != nil {
		return err
	}
	p, err := h.Svc.UpdatePatient(c.Request().Context(), viewer(c), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *RecordsHandler) ListMedications(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	meds, err := h.Svc.ListMedications(c.Request().Context(), viewer(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, meds)
}

func (h *RecordsHandler) CreateMedication(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req service.MedicationInput
	if err := bind(c, &req); err != nil {
		return err
	}
	med, err := h.Svc.CreateMedication(c.Request().Context(), viewer(c), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, med)
}

func (h *RecordsHandler) ListTracking(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	list, err := h.Svc.ListTracking(c.Request().Context(), viewer(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

func (h *RecordsHandler) RecordTracking(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req service.TrackingInput
	if err := bind(c, &req); err != nil {
		return err
	}
	tr, err := h.Svc.RecordTracking(c.Request().Context(), viewer(c), id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, tr)
}
