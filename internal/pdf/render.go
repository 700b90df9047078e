package pdf

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"github.com/Clem69B/deglingos-app-sub000/internal/clinic"
	"github.com/Clem69B/deglingos-app-sub000/internal/invoices"
	"github.com/Clem69B/deglingos-app-sub000/internal/shared"
)

//go:embed templates/*.html
var templateFS embed.FS

var invoiceTemplate = template.Must(template.ParseFS(templateFS, "templates/invoice.html"))

var paymentLabels = map[invoices.PaymentMethod]string{
	invoices.PaymentCheck:        "Chèque",
	invoices.PaymentBankTransfer: "Virement",
	invoices.PaymentCash:         "Espèces",
	invoices.PaymentCard:         "Carte bancaire",
}

// Document is everything printed on an invoice.
type Document struct {
	Invoice        invoices.Invoice
	Practice       clinic.Profile
	PatientName    string
	PatientAddress string
}

type view struct {
	Document
	Date          string
	DueDate       string
	Total         string
	Designation   string
	PaymentMethod string
	VATNotice     string
	Draft         bool
	Paid          bool
	PaidOn        string
}

// RenderHTML fills the invoice template.
func RenderHTML(doc Document) (string, error) {
	v := view{
		Document:      doc,
		Date:          frenchDate(doc.Invoice.Date),
		DueDate:       frenchDate(doc.Invoice.DueDate),
		Total:         doc.Invoice.Total.String(),
		Designation:   "Séance d'ostéopathie",
		PaymentMethod: paymentLabels[doc.Invoice.PaymentMethod],
		VATNotice:     clinic.VATNotice,
		Draft:         doc.Invoice.Status == invoices.StatusDraft,
		Paid:          doc.Invoice.Status == invoices.StatusPaid && doc.Invoice.PaidAt != nil,
	}
	if v.Paid {
		v.PaidOn = doc.Invoice.PaidAt.Format("02/01/2006")
	}
	var buf bytes.Buffer
	if err := invoiceTemplate.Execute(&buf, v); err != nil {
		return "", fmt.Errorf("pdf: render invoice %s: %w", doc.Invoice.ID, err)
	}
	return buf.String(), nil
}

func frenchDate(iso string) string {
	t, err := shared.ParseDate(iso)
	if err != nil {
		return iso
	}
	return t.Format("02/01/2006")
}

// ObjectPath is where the PDF of an invoice is stored.
func ObjectPath(inv invoices.Invoice) string {
	return fmt.Sprintf("invoices/%s/%s.pdf", inv.ID, inv.InvoiceNumber)
}

func objectPrefix(id string) string {
	return fmt.Sprintf("invoices/%s/", id)
}
