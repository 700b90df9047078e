// Package pdf produces, stores and shares invoice documents.
package pdf

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/Clem69B/deglingos-app-sub000/internal/blobstore"
	"github.com/Clem69B/deglingos-app-sub000/internal/clinic"
	"github.com/Clem69B/deglingos-app-sub000/internal/invoices"
	"github.com/Clem69B/deglingos-app-sub000/internal/notify"
	"github.com/Clem69B/deglingos-app-sub000/internal/patients"
	"github.com/Clem69B/deglingos-app-sub000/internal/shared"
	"github.com/Clem69B/deglingos-app-sub000/pkg/logging"
)

const contentType = "application/pdf"

type InvoiceSource interface {
	Get(ctx context.Context, id string) (invoices.Invoice, error)
}

type PatientSource interface {
	Get(ctx context.Context, id string) (patients.Patient, error)
}

type ProfileSource interface {
	Get(ctx context.Context) (clinic.Profile, error)
}

// Converter turns HTML into PDF bytes.
type Converter interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// Mailer sends invoice links.
type Mailer interface {
	SendInvoiceLink(ctx context.Context, link notify.InvoiceLink) (string, error)
}

type GenerateResult struct {
	Success bool   `json:"success"`
	PDFURL  string `json:"pdfUrl,omitempty"`
	Message string `json:"message"`
}

type DownloadResult struct {
	Success     bool   `json:"success"`
	DownloadURL string `json:"downloadUrl,omitempty"`
	Message     string `json:"message"`
}

type EmailResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Message   string `json:"message"`
}

type Options struct {
	Invoices   InvoiceSource
	Patients   PatientSource
	Profile    ProfileSource
	Converter  Converter
	Blobs      blobstore.Store
	Mailer     Mailer
	PresignTTL time.Duration
	Logger     *logging.Logger
}

type Generator struct {
	invoices   InvoiceSource
	patients   PatientSource
	profile    ProfileSource
	converter  Converter
	blobs      blobstore.Store
	mailer     Mailer
	presignTTL time.Duration
	logger     *logging.Logger
}

func NewGenerator(opts Options) *Generator {
	if opts.Invoices == nil || opts.Converter == nil || opts.Blobs == nil {
		panic("pdf: invoices, converter and blobs are required")
	}
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = 15 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	return &Generator{
		invoices:   opts.Invoices,
		patients:   opts.Patients,
		profile:    opts.Profile,
		converter:  opts.Converter,
		blobs:      opts.Blobs,
		mailer:     opts.Mailer,
		presignTTL: opts.PresignTTL,
		logger:     opts.Logger.Component("pdf"),
	}
}

// Trigger generates the document in the calling goroutine. It lets the
// generator stand in as the invoices PDF trigger when no queue is configured.
func (g *Generator) Trigger(ctx context.Context, invoiceID string) error {
	_, err := g.Generate(ctx, invoiceID)
	return err
}

// Generate renders the invoice, stores it and returns a short-lived link.
func (g *Generator) Generate(ctx context.Context, id string) (GenerateResult, error) {
	inv, err := g.invoices.Get(ctx, id)
	if err != nil {
		return GenerateResult{Message: "invoice could not be loaded"}, err
	}
	doc := Document{Invoice: inv}
	if g.profile != nil {
		if doc.Practice, err = g.profile.Get(ctx); err != nil {
			return GenerateResult{Message: "practice profile could not be loaded"}, err
		}
	}
	g.fillPatient(ctx, &doc)

	html, err := RenderHTML(doc)
	if err != nil {
		return GenerateResult{Message: "invoice could not be rendered"}, err
	}
	data, err := g.converter.RenderHTML(ctx, html)
	if err != nil {
		return GenerateResult{Message: "PDF conversion failed"}, err
	}
	path := ObjectPath(inv)
	if err := g.blobs.Put(ctx, path, data, contentType); err != nil {
		return GenerateResult{Message: "PDF could not be stored"}, err
	}
	url, err := g.blobs.PresignGetURL(ctx, path, g.presignTTL)
	if err != nil {
		return GenerateResult{Message: "PDF stored but no link could be issued"}, err
	}
	g.logger.Info("invoice pdf generated", "invoice_id", id, "invoice_number", inv.InvoiceNumber, "path", path, "bytes", len(data))
	return GenerateResult{Success: true, PDFURL: url, Message: "PDF generated"}, nil
}

func (g *Generator) fillPatient(ctx context.Context, doc *Document) {
	if g.patients == nil || doc.Invoice.PatientID == "" {
		return
	}
	p, err := g.patients.Get(ctx, doc.Invoice.PatientID)
	if err != nil {
		g.logger.Warn("patient lookup failed for invoice pdf", "invoice_id", doc.Invoice.ID, "patient_id", doc.Invoice.PatientID, "error", err)
		return
	}
	doc.PatientName = p.DisplayName()
	doc.PatientAddress = strings.TrimSpace(strings.Join([]string{p.Address, strings.TrimSpace(p.PostalCode + " " + p.City)}, ", "))
	doc.PatientAddress = strings.Trim(doc.PatientAddress, ", ")
}

// Download issues a link to the stored document of an issued invoice.
func (g *Generator) Download(ctx context.Context, id string) (DownloadResult, error) {
	inv, err := g.invoices.Get(ctx, id)
	if err != nil {
		return DownloadResult{Message: "invoice could not be loaded"}, err
	}
	if inv.Status == invoices.StatusDraft {
		return DownloadResult{Message: "draft invoices have no document"},
			shared.InvalidField(invoices.FieldStatus, "draft invoices have no document")
	}
	path, err := g.locate(ctx, inv)
	if err != nil {
		return DownloadResult{Message: "no document has been generated for this invoice"}, err
	}
	url, err := g.blobs.PresignGetURL(ctx, path, g.presignTTL)
	if err != nil {
		return DownloadResult{Message: "no link could be issued"}, err
	}
	return DownloadResult{Success: true, DownloadURL: url, Message: "download ready"}, nil
}

// EmailInvoice sends the document link to to, or to the patient's address
// when to is empty. A missing document is generated first.
func (g *Generator) EmailInvoice(ctx context.Context, id, to string) (EmailResult, error) {
	if g.mailer == nil {
		return EmailResult{Message: "email is not configured"}, errors.New("pdf: mailer not configured")
	}
	inv, err := g.invoices.Get(ctx, id)
	if err != nil {
		return EmailResult{Message: "invoice could not be loaded"}, err
	}
	if inv.Status == invoices.StatusDraft {
		return EmailResult{Message: "draft invoices cannot be sent"},
			shared.InvalidField(invoices.FieldStatus, "draft invoices cannot be sent")
	}

	doc := Document{Invoice: inv}
	g.fillPatient(ctx, &doc)
	if to == "" && g.patients != nil {
		if p, err := g.patients.Get(ctx, inv.PatientID); err == nil {
			to = p.Email
		}
	}
	if to == "" {
		return EmailResult{Message: "no recipient address"}, shared.InvalidField("to", "is required")
	}

	path, err := g.locate(ctx, inv)
	if isMissingDocument(err) {
		if _, genErr := g.Generate(ctx, id); genErr != nil {
			return EmailResult{Message: "PDF generation failed"}, genErr
		}
		path, err = ObjectPath(inv), nil
	}
	if err != nil {
		return EmailResult{Message: "document could not be located"}, err
	}
	url, err := g.blobs.PresignGetURL(ctx, path, g.presignTTL)
	if err != nil {
		return EmailResult{Message: "no link could be issued"}, err
	}

	practice := clinic.Profile{}
	if g.profile != nil {
		if p, err := g.profile.Get(ctx); err == nil {
			practice = p
		}
	}
	msgID, err := g.mailer.SendInvoiceLink(ctx, notify.InvoiceLink{
		To:            to,
		PatientName:   doc.PatientName,
		PracticeName:  practice.Name,
		InvoiceNumber: inv.InvoiceNumber,
		Total:         inv.Total.String(),
		URL:           url,
		ExpiresIn:     g.presignTTL.String(),
	})
	if err != nil {
		return EmailResult{Message: "email could not be sent"}, err
	}
	return EmailResult{Success: true, MessageID: msgID, Message: "email sent"}, nil
}

// locate finds the stored document, preferring the path for the current
// invoice number and falling back to the newest object under the invoice.
func (g *Generator) locate(ctx context.Context, inv invoices.Invoice) (string, error) {
	path := ObjectPath(inv)
	_, err := g.blobs.Stat(ctx, path)
	if err == nil {
		return path, nil
	}
	if !errors.Is(err, blobstore.ErrNotFound) {
		return "", err
	}
	objs, err := g.blobs.List(ctx, objectPrefix(inv.ID))
	if err != nil {
		return "", err
	}
	if len(objs) == 0 {
		return "", &shared.NotFoundError{Entity: "invoice document", ID: inv.ID}
	}
	sort.Slice(objs, func(i, j int) bool { return objs[i].LastModified.After(objs[j].LastModified) })
	return objs[0].Path, nil
}

func isMissingDocument(err error) bool {
	var nf *shared.NotFoundError
	return errors.As(err, &nf) && nf.Entity == "invoice document"
}

var _ invoices.PDFTrigger = (*Generator)(nil)
