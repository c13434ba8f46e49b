package web

import (
	"cuchimail/dashboard"
	"cuchimail/middleware"
	"cuchimail/utils"

	"github.com/gofiber/fiber/v2"
)

// HandleCompose renders an empty compose form; ?to= prefills the recipient
func (h *MailboxHandler) HandleCompose(c *fiber.Ctx) error {
	state := h.load(c)
	state.SwitchView(dashboard.Compose)
	state.Compose.To = c.Query("to")
	return h.render(c, fiber.StatusOK, state, nil)
}

// HandleSend validates and sends the compose form. On failure the form is
// shown again with the user's input intact.
func (h *MailboxHandler) HandleSend(c *fiber.Ctx) error {
	var form dashboard.ComposeForm
	if err := c.BodyParser(&form); err != nil {
		return utils.BadRequestError("Invalid form", err)
	}

	identity := middleware.Identity(c)
	localizer := middleware.Localizer(c)

	// Toolbar buttons submit the form without sending it
	if style := c.FormValue("format"); style == dashboard.Bold || style == dashboard.Italic {
		form = form.Emphasize(style, utils.T(localizer, "format_"+style))
		return h.renderCompose(c, fiber.StatusOK, form, "")
	}

	if err := form.Validate(h.policy); err != nil {
		return h.renderCompose(c, fiber.StatusBadRequest, form, validationMessage(c, h.policy, err))
	}

	msg := form.Message(identity)

	ctx, cancel := h.gate.Context(c)
	defer cancel()

	if err := h.service.SendInternalEmail(ctx, msg); err != nil {
		return h.renderCompose(c, fiber.StatusBadGateway, form, utils.T(localizer, "toast_send_failed"))
	}

	h.mailboxes.Invalidate(identity, msg.RecipientEmail)
	h.gate.Flash(c, "success", utils.T(localizer, "toast_sent"))
	return c.Redirect("/inbox")
}

// renderCompose shows form again; message, when set, is the error to display
func (h *MailboxHandler) renderCompose(c *fiber.Ctx, status int, form dashboard.ComposeForm, message string) error {
	state := h.load(c)
	state.SwitchView(dashboard.Compose)
	state.Compose = form

	return c.Status(status).Render("dashboard", pageData(c, h.config, &Flash{Kind: "error", Message: message}, fiber.Map{
		"Title":     utils.T(middleware.Localizer(c), "compose"),
		"State":     state,
		"Visible":   state.Visible(),
		"Counts":    state.Counts(),
		"FormError": message,
	}))
}
