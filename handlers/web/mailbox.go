package web

import (
	"cuchimail/config"
	"cuchimail/dashboard"
	"cuchimail/mail"
	"cuchimail/middleware"
	"cuchimail/models"
	"cuchimail/utils"

	"github.com/gofiber/fiber/v2"
)

// MailboxHandler serves the dashboard: lists, detail, compose and reply
type MailboxHandler struct {
	gate      *middleware.SessionGate
	service   *mail.Service
	mailboxes *mail.Mailboxes
	config    *config.Config
	policy    utils.AddressPolicy
}

// NewMailboxHandler creates a new instance of MailboxHandler
func NewMailboxHandler(gate *middleware.SessionGate, service *mail.Service, mailboxes *mail.Mailboxes, cfg *config.Config) *MailboxHandler {
	return &MailboxHandler{
		gate:      gate,
		service:   service,
		mailboxes: mailboxes,
		config:    cfg,
		policy:    policyOf(cfg),
	}
}

// HandleInbox renders the inbox
func (h *MailboxHandler) HandleInbox(c *fiber.Ctx) error {
	return h.list(c, dashboard.Inbox)
}

// HandleSent renders the sent list
func (h *MailboxHandler) HandleSent(c *fiber.Ctx) error {
	return h.list(c, dashboard.Sent)
}

func (h *MailboxHandler) list(c *fiber.Ctx, view dashboard.View) error {
	state := h.load(c)
	state.SwitchView(view)
	return h.render(c, fiber.StatusOK, state, nil)
}

// HandleMessage renders one loaded message; ?from= names the list to go back to
func (h *MailboxHandler) HandleMessage(c *fiber.Ctx) error {
	state := h.load(c)
	state.SwitchView(dashboard.ParseView(c.Query("from")))

	if !state.OpenDetail(c.Params("id")) {
		if state.LoadErr != nil {
			return h.render(c, fiber.StatusBadGateway, state, nil)
		}
		return h.render(c, fiber.StatusNotFound, state, &Flash{
			Kind:    "error",
			Message: utils.T(middleware.Localizer(c), "message_not_found"),
		})
	}
	return h.render(c, fiber.StatusOK, state, nil)
}

// HandleReply opens compose prefilled from the message
func (h *MailboxHandler) HandleReply(c *fiber.Ctx) error {
	state := h.load(c)
	if !state.OpenDetail(c.Params("id")) {
		state.SwitchView(dashboard.Inbox)
		return h.render(c, fiber.StatusNotFound, state, &Flash{
			Kind:    "error",
			Message: utils.T(middleware.Localizer(c), "message_not_found"),
		})
	}

	state.Reply(*state.Selected, ReplyHeader(c, *state.Selected))
	return h.render(c, fiber.StatusOK, state, nil)
}

// ReplyHeader is the localized attribution line above a quoted message
func ReplyHeader(c *fiber.Ctx, msg models.Message) string {
	return utils.TWithData(middleware.Localizer(c), "reply_header", map[string]interface{}{
		"Date":   msg.CreatedAt.Local().Format("2006-01-02 15:04"),
		"Sender": msg.SenderEmail,
	})
}

// load builds the dashboard state of the signed-in identity. A failed read
// is kept on the state so the page shows an error instead of an empty list.
func (h *MailboxHandler) load(c *fiber.Ctx) *dashboard.State {
	identity := middleware.Identity(c)

	ctx, cancel := h.gate.Context(c)
	defer cancel()

	messages, err := h.mailboxes.Load(ctx, identity)
	state := dashboard.New(identity, messages)
	state.LoadErr = err
	state.SearchText = c.Query("q")
	return state
}

func (h *MailboxHandler) render(c *fiber.Ctx, status int, state *dashboard.State, flash *Flash) error {
	if flash == nil {
		if kind, msg := h.gate.TakeFlash(c); msg != "" {
			flash = &Flash{Kind: kind, Message: msg}
		}
	}
	if status == fiber.StatusOK && state.LoadErr != nil && state.View != dashboard.Compose && state.View != dashboard.Settings {
		status = fiber.StatusBadGateway
	}

	return c.Status(status).Render("dashboard", pageData(c, h.config, flash, fiber.Map{
		"Title":   utils.T(middleware.Localizer(c), string(titleView(state))),
		"State":   state,
		"Visible": state.Visible(),
		"Counts":  state.Counts(),
	}))
}

func titleView(state *dashboard.State) dashboard.View {
	if state.View == dashboard.Detail {
		return state.List
	}
	return state.View
}
