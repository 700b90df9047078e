package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"github.com/Clem69B/deglingos-app-sub000/pkg/logging"
)

// Service composes the emails the back office sends.
type Service struct {
	email  EmailSender
	logger *logging.Logger
}

// NewService creates a notification service. A nil sender falls back to the
// stub.
func NewService(email EmailSender, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if email == nil {
		email = NewStubEmailSender(logger)
	}
	return &Service{email: email, logger: logger.Component("notify")}
}

// InvoiceLink describes an invoice shared with a patient.
type InvoiceLink struct {
	To            string
	PatientName   string
	PracticeName  string
	InvoiceNumber string
	Total         string
	URL           string
	ExpiresIn     string
}

var invoiceLinkHTML = template.Must(template.New("invoice").Parse(`<p>Bonjour {{.PatientName}},</p>
<p>Vous trouverez votre facture <strong>{{.InvoiceNumber}}</strong> d'un montant de {{.Total}} € en suivant ce lien :</p>
<p><a href="{{.URL}}">Télécharger la facture</a></p>
{{if .ExpiresIn}}<p>Ce lien expire dans {{.ExpiresIn}}.</p>{{end}}
<p>{{.PracticeName}}</p>`))

// SendInvoiceLink emails a download link for an issued invoice.
func (s *Service) SendInvoiceLink(ctx context.Context, link InvoiceLink) (string, error) {
	if strings.TrimSpace(link.To) == "" {
		return "", errors.New("notify: recipient required")
	}
	html, err := render(invoiceLinkHTML, link)
	if err != nil {
		return "", err
	}
	text := fmt.Sprintf("Bonjour %s,\n\nVotre facture %s (%s €) est disponible : %s\n\n%s",
		link.PatientName, link.InvoiceNumber, link.Total, link.URL, link.PracticeName)
	id, err := s.email.Send(ctx, EmailMessage{
		To:      link.To,
		ToName:  link.PatientName,
		Subject: fmt.Sprintf("Votre facture %s", link.InvoiceNumber),
		Body:    text,
		HTML:    html,
	})
	if err != nil {
		return "", err
	}
	s.logger.Info("invoice link sent", "invoice_number", link.InvoiceNumber, "message_id", id)
	return id, nil
}

// Welcome describes a newly created team account.
type Welcome struct {
	To                string
	FirstName         string
	Group             string
	TemporaryPassword string
	LoginURL          string
}

var welcomeHTML = template.Must(template.New("welcome").Parse(`<p>Bonjour {{.FirstName}},</p>
<p>Un compte a été créé pour vous ({{.Group}}).</p>
{{if .TemporaryPassword}}<p>Mot de passe provisoire : <code>{{.TemporaryPassword}}</code></p>{{end}}
{{if .LoginURL}}<p><a href="{{.LoginURL}}">Se connecter</a></p>{{end}}`))

// SendWelcome emails a new team member their account details.
func (s *Service) SendWelcome(ctx context.Context, w Welcome) (string, error) {
	html, err := render(welcomeHTML, w)
	if err != nil {
		return "", err
	}
	text := fmt.Sprintf("Bonjour %s,\n\nUn compte a été créé pour vous (%s).", w.FirstName, w.Group)
	if w.LoginURL != "" {
		text += "\nConnexion : " + w.LoginURL
	}
	return s.email.Send(ctx, EmailMessage{
		To:      w.To,
		ToName:  w.FirstName,
		Subject: "Bienvenue",
		Body:    text,
		HTML:    html,
	})
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("notify: render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}
