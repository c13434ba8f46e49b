package dashboard

import (
	"cuchimail/models"
	"cuchimail/utils"
	"errors"
	"strings"
)

var (
	ErrRecipientRequired = errors.New("recipient is required")
	ErrRecipientInvalid  = errors.New("recipient is not an email address")
)

// ComposeForm is the compose screen's input
type ComposeForm struct {
	To      string `json:"to" form:"to"`
	Subject string `json:"subject" form:"subject"`
	Body    string `json:"body" form:"body"`
}

// ReplyTo builds the compose form answering msg
func ReplyTo(msg models.Message, header string) ComposeForm {
	return ComposeForm{
		To:      msg.SenderEmail,
		Subject: "Re: " + msg.Subject,
		Body:    "\n\n\n" + header + "\n> " + msg.Body,
	}
}

// Validate checks the recipient. Subject and body may be empty.
func (f ComposeForm) Validate(policy utils.AddressPolicy) error {
	to := strings.TrimSpace(f.To)
	if to == "" {
		return ErrRecipientRequired
	}
	if err := models.ValidateAddress(to); err != nil {
		return ErrRecipientInvalid
	}
	return policy.Check(to)
}

// Message converts the form into an insert payload from sender.
// Subject and body are stored as typed.
func (f ComposeForm) Message(sender string) models.NewMessage {
	return models.NewMessage{
		SenderEmail:    sender,
		RecipientEmail: utils.NormalizeAddress(f.To),
		Subject:        strings.TrimSpace(f.Subject),
		Body:           f.Body,
	}
}

// Emphasis styles offered by the compose toolbar
const (
	Bold   = "bold"
	Italic = "italic"
)

// Emphasize appends a marked-up placeholder for style to the body.
// The body stays plain text; the markers are never rendered.
func (f ComposeForm) Emphasize(style, label string) ComposeForm {
	switch style {
	case Bold:
		f.Body += " **" + label + "**"
	case Italic:
		f.Body += " *" + label + "*"
	}
	return f
}

// MessageID names the translation describing a form or address-policy error
func MessageID(err error) string {
	switch {
	case errors.Is(err, ErrRecipientRequired):
		return "recipient_required"
	case errors.Is(err, ErrRecipientInvalid):
		return "recipient_invalid"
	case errors.Is(err, utils.ErrOutsideOrganization):
		return "policy_outside_org"
	case errors.Is(err, utils.ErrPublicDomain):
		return "policy_public_domain"
	}
	return "credentials_invalid"
}
