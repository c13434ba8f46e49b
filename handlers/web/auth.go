package web

import (
	"cuchimail/backend"
	"cuchimail/config"
	"cuchimail/middleware"
	"cuchimail/models"
	"cuchimail/utils"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// AuthHandler serves the sign-in / sign-up screen
type AuthHandler struct {
	gate   *middleware.SessionGate
	auth   backend.Auth
	config *config.Config
	policy utils.AddressPolicy
}

// NewAuthHandler creates a new instance of AuthHandler
func NewAuthHandler(gate *middleware.SessionGate, auth backend.Auth, cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		gate:   gate,
		auth:   auth,
		config: cfg,
		policy: policyOf(cfg),
	}
}

// ShowLogin renders the auth form; ?mode=signup selects sign-up
func (h *AuthHandler) ShowLogin(c *fiber.Ctx) error {
	if sess, _ := h.gate.Resolve(c); sess != nil {
		return c.Redirect("/inbox")
	}
	return h.render(c, fiber.StatusOK, fiber.Map{
		"SignUp": c.Query("mode") == "signup",
	})
}

// HandleLogin submits the form in the chosen mode
func (h *AuthHandler) HandleLogin(c *fiber.Ctx) error {
	email := utils.NormalizeAddress(c.FormValue("email"))
	password := c.FormValue("password")
	signUp := c.FormValue("mode") == "signup" || c.Query("mode") == "signup"

	form := fiber.Map{"SignUp": signUp, "Email": email}
	localizer := middleware.Localizer(c)

	if err := h.policy.Check(email); err != nil {
		form["Error"] = validationMessage(c, h.policy, err)
		return h.render(c, fiber.StatusBadRequest, form)
	}
	creds := models.Credentials{Email: email, Password: password}
	if err := creds.Validate(); err != nil {
		form["Error"] = utils.T(localizer, "credentials_invalid")
		return h.render(c, fiber.StatusBadRequest, form)
	}

	ctx, cancel := h.gate.Context(c)
	defer cancel()

	log := utils.Log.WithField("email", email)

	var (
		sess *models.Session
		err  error
	)
	if signUp {
		sess, err = h.auth.SignUp(ctx, creds)
		if err != nil {
			log.Warn("Sign-up failed: %v", err)
			form["Error"] = backend.Message(err)
			return h.render(c, fiber.StatusBadRequest, form)
		}
		if sess == nil {
			form["SignUp"] = false
			form["Notice"] = utils.T(localizer, "check_inbox")
			return h.render(c, fiber.StatusOK, form)
		}
	} else {
		sess, err = h.auth.SignInWithPassword(ctx, creds)
		if err != nil {
			log.Warn("Sign-in failed: %v", err)
			form["Error"] = backend.Message(err)
			return h.render(c, fiber.StatusUnauthorized, form)
		}
	}

	if err := h.gate.Remember(c, sess); err != nil {
		return utils.InternalServerError("Failed to save session", err)
	}
	log.Info("Signed in")
	return c.Redirect("/")
}

// HandleLogout signs out at the collaborator and forgets the device session.
// The device session is dropped even when the collaborator call fails.
func (h *AuthHandler) HandleLogout(c *fiber.Ctx) error {
	token, _ := c.Locals(middleware.LocalToken).(string)

	ctx, cancel := h.gate.Context(c)
	defer cancel()

	if err := h.auth.SignOut(ctx, token); err != nil {
		utils.Log.WithField("email", middleware.Identity(c)).Warn("Sign-out failed: %v", err)
	}
	if err := h.gate.Forget(c, token); err != nil {
		utils.Log.Warn("Failed to destroy session: %v", err)
	}
	return c.Redirect("/login")
}

func (h *AuthHandler) render(c *fiber.Ctx, status int, form fiber.Map) error {
	title := "login_title"
	if signUp, _ := form["SignUp"].(bool); signUp {
		title = "signup_title"
	}
	form["Title"] = utils.T(middleware.Localizer(c), title)
	if _, ok := form["Email"]; !ok {
		form["Email"] = strings.TrimSpace(c.Query("email"))
	}
	return c.Status(status).Render("login", pageData(c, h.config, nil, form))
}
