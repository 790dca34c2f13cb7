package handlers

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/healthcare_records/internal/apperr"
	"github.com/Skotchmaster/healthcare_records/internal/audit"
	"github.com/Skotchmaster/healthcare_records/internal/middleware/auth"
	"github.com/Skotchmaster/healthcare_records/internal/role"
	"github.com/Skotchmaster/healthcare_records/internal/service"
	"github.com/Skotchmaster/healthcare_records/internal/util"
)

type AdminHandler struct {
	Svc *service.AdminService
	// Audit is set only when events are indexed in Elasticsearch.
	Audit *audit.Elastic
}

func (h *AdminHandler) ListUsers(c echo.Context) error {
	page, err := h.Svc.ListUsers(c.Request().Context(), queryInt(c, "page"), queryInt(c, "size"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, page)
}

func (h *AdminHandler) CreateUser(c echo.Context) error {
	var req struct {
		Username string    `json:"username"`
		Email    string    `json:"email"`
		Password string    `json:"password"`
		Role     role.Role `json:"role"`
		Name     string    `json:"name"`
		Age      int       `json:"age"`
	}
	if err := bind(c, &req); err != nil {
		return err
	}
	u, err := h.Svc.CreateUser(c.Request().Context(), service.CreateUserInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
		Name:     req.Name,
		Age:      req.Age,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, u)
}

func (h *AdminHandler) DeleteUser(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := h.Svc.DeleteUser(c.Request().Context(), auth.UserID(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AdminHandler) AssignDoctor(c echo.Context) error {
	var req struct {
		DoctorID uint `json:"doctorId"`
	}
	return h.assign(c, &req, func(patientID uint) error {
		return h.Svc.AssignDoctor(c.Request().Context(), patientID, req.DoctorID)
	})
}

func (h *AdminHandler) AssignNurse(c echo.Context) error {
	var req struct {
		NurseID uint `json:"nurseId"`
	}
	return h.assign(c, &req, func(patientID uint) error {
		return h.Svc.AssignNurse(c.Request().Context(), patientID, req.NurseID)
	})
}

func (h *AdminHandler) assign(c echo.Context, req any, apply func(patientID uint) error) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := bind(c, req); err != nil {
		return err
	}
	if err := apply(id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AdminHandler) RemoveDoctor(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := h.Svc.RemoveDoctor(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AdminHandler) RemoveNurse(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := h.Svc.RemoveNurse(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// SearchAudit queries indexed audit events: ?q=&userId=&page=&size=
func (h *AdminHandler) SearchAudit(c echo.Context) error {
	if h.Audit == nil {
		return apperr.ErrNotFound
	}
	var userID uint
	if raw := c.QueryParam("userId"); raw != "" {
		id, err := queryID(raw)
		if err != nil {
			return err
		}
		userID = id
	}
	page, size := queryInt(c, "page"), queryInt(c, "size")
	from, limit := util.Paginate(page, size)

	total, events, err := h.Audit.Search(c.Request().Context(), audit.Query{
		Text:   c.QueryParam("q"),
		UserID: userID,
		From:   from,
		Size:   limit,
	})
	if err != nil {
		return fmt.Errorf("audit search: %w", err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"total":  total,
		"events": events,
	})
}

// Doctors and Nurses are visible to every signed-in user so that patients
// and staff can see who cares for whom.
func (h *AdminHandler) Doctors(c echo.Context) error {
	return h.byRole(c, role.Doctor)
}

func (h *AdminHandler) Nurses(c echo.Context) error {
	return h.byRole(c, role.Nurse)
}

func (h *AdminHandler) byRole(c echo.Context, rl role.Role) error {
	users, err := h.Svc.ListByRole(c.Request().Context(), rl)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, users)
}

// AssignNurseToDoctor pairs the calling doctor with a nurse.
func (h *AdminHandler) AssignNurseToDoctor(c echo.Context) error {
	var req struct {
		NurseID uint `json:"nurseId"`
	}
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.Svc.AssignNurseToDoctor(c.Request().Context(), auth.UserID(c), req.NurseID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
