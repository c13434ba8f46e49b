package api

import (
	"cuchimail/config"
	"cuchimail/dashboard"
	"cuchimail/mail"
	"cuchimail/middleware"
	"cuchimail/models"
	"cuchimail/utils"

	"github.com/gofiber/fiber/v2"
)

// MessagesHandler is the JSON face of the dashboard
type MessagesHandler struct {
	gate      *middleware.SessionGate
	service   *mail.Service
	mailboxes *mail.Mailboxes
	policy    utils.AddressPolicy
}

// NewMessagesHandler creates a new messages handler
func NewMessagesHandler(gate *middleware.SessionGate, service *mail.Service, mailboxes *mail.Mailboxes, cfg *config.Config) *MessagesHandler {
	return &MessagesHandler{
		gate:      gate,
		service:   service,
		mailboxes: mailboxes,
		policy: utils.AddressPolicy{
			Domain:         cfg.Organization.Domain,
			BlockedDomains: cfg.Organization.BlockedDomains,
		},
	}
}

// List returns ?view=inbox|sent filtered by ?q=
func (h *MessagesHandler) List(c *fiber.Ctx) error {
	state, err := h.load(c)
	if err != nil {
		return err
	}

	view := dashboard.ParseView(c.Query("view"))
	if view != dashboard.Sent {
		view = dashboard.Inbox
	}
	state.SwitchView(view)
	state.SearchText = c.Query("q")

	visible := state.Visible()
	return c.JSON(fiber.Map{
		"view":     view,
		"messages": visible,
		"count":    len(visible),
		"counts":   state.Counts(),
	})
}

// Get returns one message of the caller's mailbox
func (h *MessagesHandler) Get(c *fiber.Ctx) error {
	state, err := h.load(c)
	if err != nil {
		return err
	}
	if !state.OpenDetail(c.Params("id")) {
		return utils.NotFoundError(utils.T(middleware.Localizer(c), "message_not_found"), nil)
	}
	return c.JSON(state.Selected)
}

// Reply returns the compose form answering a message
func (h *MessagesHandler) Reply(c *fiber.Ctx) error {
	state, err := h.load(c)
	if err != nil {
		return err
	}
	if !state.OpenDetail(c.Params("id")) {
		return utils.NotFoundError(utils.T(middleware.Localizer(c), "message_not_found"), nil)
	}

	msg := *state.Selected
	header := utils.TWithData(middleware.Localizer(c), "reply_header", map[string]interface{}{
		"Date":   msg.CreatedAt.Local().Format("2006-01-02 15:04"),
		"Sender": msg.SenderEmail,
	})
	return c.JSON(dashboard.ReplyTo(msg, header))
}

// Send inserts a message from the caller
func (h *MessagesHandler) Send(c *fiber.Ctx) error {
	var form dashboard.ComposeForm
	if err := c.BodyParser(&form); err != nil {
		return utils.BadRequestError("Invalid request body", err)
	}

	localizer := middleware.Localizer(c)
	if err := form.Validate(h.policy); err != nil {
		msg := utils.TWithData(localizer, dashboard.MessageID(err), map[string]interface{}{"Domain": h.policy.Suffix()})
		return utils.BadRequestError(msg, err)
	}

	identity := middleware.Identity(c)
	msg := form.Message(identity)

	ctx, cancel := h.gate.Context(c)
	defer cancel()

	if err := h.service.SendInternalEmail(ctx, msg); err != nil {
		return utils.BadGatewayError(utils.T(localizer, "toast_send_failed"), err)
	}

	h.mailboxes.Invalidate(identity, msg.RecipientEmail)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": utils.T(localizer, "toast_sent"),
	})
}

func (h *MessagesHandler) load(c *fiber.Ctx) (*dashboard.State, error) {
	identity := middleware.Identity(c)

	ctx, cancel := h.gate.Context(c)
	defer cancel()

	messages, err := h.mailboxes.Load(ctx, identity)
	if err != nil {
		return nil, utils.BadGatewayError(utils.T(middleware.Localizer(c), "load_error"), err)
	}
	if messages == nil {
		messages = []models.Message{}
	}
	return dashboard.New(identity, messages), nil
}
