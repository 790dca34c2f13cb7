package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/healthcare_records/internal/audit"
	"github.com/Skotchmaster/healthcare_records/internal/handlers"
	"github.com/Skotchmaster/healthcare_records/internal/middleware/auth"
	"github.com/Skotchmaster/healthcare_records/internal/middleware/csrf"
	"github.com/Skotchmaster/healthcare_records/internal/role"
)

type Deps struct {
	AuthHandler    *handlers.AuthHandler
	AdminHandler   *handlers.AdminHandler
	RecordsHandler *handlers.RecordsHandler
	Tokens         auth.Verifier
	CSRF           *csrf.Guard
	Audit          audit.Sink
	// Ready reports whether backing services answer; nil means always ready.
	Ready func(ctx context.Context) error
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if d.Ready == nil {
			return c.NoContent(http.StatusOK)
		}
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := d.Ready(ctx); err != nil {
			return c.NoContent(http.StatusServiceUnavailable)
		}
		return c.NoContent(http.StatusOK)
	})

	requireAuth := auth.RequireAuth(d.Tokens)
	strict := d.CSRF.Middleware(csrf.MiddlewareConfig{})
	rec := func(action string) echo.MiddlewareFunc { return audit.Middleware(d.Audit, action) }

	v1 := e.Group("/api/v1")
	v1.GET("/csrf-token", d.CSRF.Issue)

	// Auth routes accept clients that never fetched a CSRF token; a token
	// that is sent must still be valid.
	authG := v1.Group("/auth", d.CSRF.Middleware(csrf.MiddlewareConfig{Optional: true}))
	authG.POST("/signup", d.AuthHandler.Signup, rec("signup"))
	authG.POST("/login", d.AuthHandler.Login, rec("login"))
	authG.POST("/verify-otp", d.AuthHandler.VerifyOTP, rec("verify_otp"))
	authG.POST("/refresh", d.AuthHandler.Refresh, rec("refresh"))
	authG.POST("/logout", d.AuthHandler.Logout, rec("logout"))
	authG.POST("/forgot-password", d.AuthHandler.ForgotPassword, rec("forgot_password"))
	authG.POST("/reset-password", d.AuthHandler.ResetPassword, rec("reset_password"))
	authG.GET("/me", d.AuthHandler.Me, requireAuth)

	users := v1.Group("/users", strict, requireAuth)
	users.PUT("/change-password", d.AuthHandler.ChangePassword, rec("change_password"))
	users.POST("/assign-nurse", d.AdminHandler.AssignNurseToDoctor, rec("assign_nurse_to_doctor"), auth.RequireRole(role.Doctor))
	users.GET("/doctors", d.AdminHandler.Doctors)
	users.GET("/nurses", d.AdminHandler.Nurses)

	tfa := v1.Group("/2fa", strict, requireAuth)
	tfa.POST("/generate", d.AuthHandler.GenerateTwoFactor, rec("2fa_generate"))
	tfa.POST("/enable", d.AuthHandler.EnableTwoFactor, rec("2fa_enable"))
	tfa.POST("/disable", d.AuthHandler.DisableTwoFactor, rec("2fa_disable"))

	admin := v1.Group("/admin", strict, requireAuth, auth.RequireAdmin)
	admin.GET("/users", d.AdminHandler.ListUsers)
	admin.POST("/users", d.AdminHandler.CreateUser, rec("admin_create_user"))
	admin.DELETE("/users/:id", d.AdminHandler.DeleteUser, rec("admin_delete_user"))
	admin.POST("/patients/:id/doctor", d.AdminHandler.AssignDoctor, rec("assign_doctor"))
	admin.DELETE("/patients/:id/doctor", d.AdminHandler.RemoveDoctor, rec("remove_doctor"))
	admin.POST("/patients/:id/nurse", d.AdminHandler.AssignNurse, rec("assign_nurse"))
	admin.DELETE("/patients/:id/nurse", d.AdminHandler.RemoveNurse, rec("remove_nurse"))
	admin.GET("/audit", d.AdminHandler.SearchAudit)

	patients := v1.Group("/patients", strict, requireAuth, auth.RequireRole(role.All...))
	patients.GET("", d.RecordsHandler.ListPatients)
	patients.GET("/:id", d.RecordsHandler.GetPatient, rec("read_patient"))
	patients.PUT("/:id", d.RecordsHandler.UpdatePatient, rec("update_patient"), auth.RequireRole(role.Doctor))
	patients.GET("/:id/medications", d.RecordsHandler.ListMedications)
	patients.POST("/:id/medications", d.RecordsHandler.CreateMedication, rec("prescribe"), auth.RequireRole(role.Doctor))
	patients.GET("/:id/tracking", d.RecordsHandler.ListTracking)
	patients.POST("/:id/tracking", d.RecordsHandler.RecordTracking, rec("record_tracking"), auth.RequireRole(role.Doctor, role.Nurse))
}
