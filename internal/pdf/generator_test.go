package pdf

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clem69B/deglingos-app-sub000/internal/blobstore"
	"github.com/Clem69B/deglingos-app-sub000/internal/clinic"
	"github.com/Clem69B/deglingos-app-sub000/internal/invoices"
	"github.com/Clem69B/deglingos-app-sub000/internal/notify"
	"github.com/Clem69B/deglingos-app-sub000/internal/patients"
	"github.com/Clem69B/deglingos-app-sub000/internal/shared"
	"github.com/Clem69B/deglingos-app-sub000/pkg/logging"
)

type invoiceMap map[string]invoices.Invoice

func (m invoiceMap) Get(_ context.Context, id string) (invoices.Invoice, error) {
	inv, ok := m[id]
	if !ok {
		return invoices.Invoice{}, &shared.NotFoundError{Entity: "invoice", ID: id}
	}
	return inv, nil
}

type patientMap map[string]patients.Patient

func (m patientMap) Get(_ context.Context, id string) (patients.Patient, error) {
	p, ok := m[id]
	if !ok {
		return patients.Patient{}, &shared.NotFoundError{Entity: "patient", ID: id}
	}
	return p, nil
}

type staticProfile clinic.Profile

func (p staticProfile) Get(context.Context) (clinic.Profile, error) { return clinic.Profile(p), nil }

type fakeConverter struct {
	html  []string
	err   error
	calls int
}

func (f *fakeConverter) RenderHTML(_ context.Context, html string) ([]byte, error) {
	f.calls++
	f.html = append(f.html, html)
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-1.7"), nil
}

type fakeMailer struct{ links []notify.InvoiceLink }

func (f *fakeMailer) SendInvoiceLink(_ context.Context, l notify.InvoiceLink) (string, error) {
	f.links = append(f.links, l)
	return "msg-1", nil
}

type fixture struct {
	gen       *Generator
	blobs     *blobstore.Memory
	converter *fakeConverter
	mailer    *fakeMailer
	invoices  invoiceMap
}

func newFixture() *fixture {
	paidAt := time.Date(2026, 10, 12, 9, 0, 0, 0, time.UTC)
	f := &fixture{
		blobs:     blobstore.NewMemory(),
		converter: &fakeConverter{},
		mailer:    &fakeMailer{},
		invoices: invoiceMap{
			"inv-draft":   {ID: "inv-draft", InvoiceNumber: "F2026-0001", PatientID: "p-1", Date: "2026-10-01", DueDate: "2026-10-31", Status: invoices.StatusDraft, Total: shared.MustMoney("60")},
			"inv-pending": {ID: "inv-pending", InvoiceNumber: "F2026-0002", PatientID: "p-1", Date: "2026-10-02", DueDate: "2026-11-01", Status: invoices.StatusPending, Total: shared.MustMoney("65.5"), PaymentMethod: invoices.PaymentCheck},
			"inv-paid":    {ID: "inv-paid", InvoiceNumber: "F2026-0003", PatientID: "p-1", Date: "2026-10-03", DueDate: "2026-11-02", Status: invoices.StatusPaid, IsPaid: true, PaidAt: &paidAt, Total: shared.MustMoney("70")},
		},
	}
	f.gen = NewGenerator(Options{
		Invoices:   f.invoices,
		Patients:   patientMap{"p-1": {ID: "p-1", FirstName: "Marie", LastName: "Dupont", Email: "marie@example.com", City: "Lyon", PostalCode: "69003"}},
		Profile:    staticProfile{Name: "Cabinet Deglingos", SIRET: "12345678901234"},
		Converter:  f.converter,
		Blobs:      f.blobs,
		Mailer:     f.mailer,
		PresignTTL: 10 * time.Minute,
		Logger:     logging.Discard(),
	})
	return f
}

func TestGenerate_StoresDocumentAndReturnsLink(t *testing.T) {
	f := newFixture()
	res, err := f.gen.Generate(context.Background(), "inv-pending")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Contains(t, res.PDFURL, "invoices%2Finv-pending%2FF2026-0002.pdf")

	data, err := f.blobs.Get(context.Background(), "invoices/inv-pending/F2026-0002.pdf")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(data))

	html := f.converter.html[0]
	assert.Contains(t, html, "Facture F2026-0002")
	assert.Contains(t, html, "Marie Dupont")
	assert.Contains(t, html, "65.50 €")
	assert.Contains(t, html, "02/10/2026")
	assert.Contains(t, html, "Chèque")
	assert.Contains(t, html, clinic.VATNotice)
	assert.NotContains(t, html, "BROUILLON")
}

func TestGenerate_Failures(t *testing.T) {
	f := newFixture()
	_, err := f.gen.Generate(context.Background(), "missing")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	f.converter.err = errors.New("gotenberg down")
	res, err := f.gen.Generate(context.Background(), "inv-pending")
	assert.Error(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "PDF conversion failed", res.Message)
}

func TestRenderHTML_DraftAndPaidMarks(t *testing.T) {
	f := newFixture()
	html, err := RenderHTML(Document{Invoice: f.invoices["inv-draft"]})
	require.NoError(t, err)
	assert.Contains(t, html, "BROUILLON")

	html, err = RenderHTML(Document{Invoice: f.invoices["inv-paid"]})
	require.NoError(t, err)
	assert.Contains(t, html, "Acquittée le 12/10/2026")
}

func TestDownload(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.gen.Download(ctx, "inv-draft")
	assert.ErrorIs(t, err, shared.ErrValidation)

	res, err := f.gen.Download(ctx, "inv-pending")
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.False(t, res.Success)

	_, err = f.gen.Generate(ctx, "inv-pending")
	require.NoError(t, err)
	res, err = f.gen.Download(ctx, "inv-pending")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.DownloadURL)
}

func TestDownload_FallsBackToEarlierNumber(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	require.NoError(t, f.blobs.Put(ctx, "invoices/inv-pending/F2026-0099.pdf", []byte("%PDF"), contentType))

	res, err := f.gen.Download(ctx, "inv-pending")
	require.NoError(t, err)
	assert.True(t, strings.Contains(res.DownloadURL, "F2026-0099"))
}

func TestEmailInvoice_GeneratesMissingDocument(t *testing.T) {
	f := newFixture()
	res, err := f.gen.EmailInvoice(context.Background(), "inv-paid", "")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, f.converter.calls)
	require.Len(t, f.mailer.links, 1)
	link := f.mailer.links[0]
	assert.Equal(t, "marie@example.com", link.To)
	assert.Equal(t, "Cabinet Deglingos", link.PracticeName)
	assert.Equal(t, "70.00", link.Total)

	_, err = f.gen.EmailInvoice(context.Background(), "inv-draft", "x@example.com")
	assert.ErrorIs(t, err, shared.ErrValidation)
}
