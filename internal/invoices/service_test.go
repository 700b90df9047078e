package invoices

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clem69B/deglingos-app-sub000/internal/optimistic"
	"github.com/Clem69B/deglingos-app-sub000/internal/records"
	"github.com/Clem69B/deglingos-app-sub000/internal/shared"
	"github.com/Clem69B/deglingos-app-sub000/internal/tasks"
	"github.com/Clem69B/deglingos-app-sub000/pkg/logging"
)

type fakePDF struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakePDF) Trigger(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id)
	return f.err
}

func (f *fakePDF) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeAudit struct {
	mu          sync.Mutex
	transitions []Transition
}

func (f *fakeAudit) RecordTransition(_ context.Context, t Transition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitions = append(f.transitions, t)
	return nil
}

type fakeFeed struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeFeed) Publish(eventType string, _ any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
}

type fakeConsultations struct {
	src    FromConsultation
	linked map[string]string
}

func (f *fakeConsultations) ForInvoice(_ context.Context, id string) (FromConsultation, error) {
	if id != "c-1" {
		return FromConsultation{}, &shared.NotFoundError{Entity: "consultation", ID: id}
	}
	return f.src, nil
}

func (f *fakeConsultations) LinkInvoice(_ context.Context, consultationID, invoiceID string) error {
	f.linked[consultationID] = invoiceID
	return nil
}

type fixture struct {
	backend *records.MemoryBackend
	table   *records.Table[Invoice]
	svc     *Service
	pdf     *fakePDF
	audit   *fakeAudit
	feed    *fakeFeed
	runner  *tasks.Runner
	consult *fakeConsultations
	updates int
}

var fixedNow = time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend := records.NewMemoryBackend()
	f := &fixture{
		backend: backend,
		table:   records.NewTable[Invoice](backend, "invoices"),
		pdf:     &fakePDF{},
		audit:   &fakeAudit{},
		feed:    &fakeFeed{},
		runner:  tasks.NewRunner(logging.Discard(), nil, time.Second),
		consult: &fakeConsultations{linked: map[string]string{}},
	}
	backend.SetFault(func(op records.Op, table, _ string) error {
		if op == records.OpUpdate && table == "invoices" {
			f.updates++
		}
		return nil
	})
	f.svc = NewService(f.table, Config{PaymentTermDays: 30, CacheTTL: time.Minute}, Deps{
		Numbers:       NewSequence(backend, "counters"),
		PDF:           f.pdf,
		Audit:         f.audit,
		Publisher:     f.feed,
		Consultations: f.consult,
		Tasks:         f.runner,
		Logger:        logging.Discard(),
		Now:           func() time.Time { return fixedNow },
	})
	return f
}

func (f *fixture) seed(t *testing.T, inv Invoice) Invoice {
	t.Helper()
	if inv.Date == "" {
		inv.Date = "2026-09-01"
	}
	if inv.DueDate == "" {
		inv.DueDate = "2026-10-01"
	}
	if inv.InvoiceNumber == "" {
		inv.InvoiceNumber = "F2026-9" + inv.ID
	}
	if inv.Status == StatusPaid && inv.PaidAt == nil {
		paid := fixedNow.Add(-48 * time.Hour)
		inv.PaidAt = &paid
		inv.IsPaid = true
	}
	stored, err := f.table.Create(context.Background(), inv)
	require.NoError(t, err)
	return stored
}

func (f *fixture) stored(t *testing.T, id string) Invoice {
	t.Helper()
	inv, err := f.table.Get(context.Background(), id)
	require.NoError(t, err)
	return inv
}

func TestMarkAsPending_FromDraftTriggersOnePDF(t *testing.T) {
	f := newFixture(t)
	f.seed(t, Invoice{ID: "inv-1", Status: StatusDraft, Total: shared.MustMoney("60")})

	got, err := f.svc.MarkAsPending(context.Background(), "inv-1")
	require.NoError(t, err)
	f.runner.Wait()

	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, StatusPending, f.stored(t, "inv-1").Status)
	assert.Equal(t, []string{"inv-1"}, f.pdf.Calls())
}

func TestMarkAsPending_NonDraftDoesNotTriggerPDF(t *testing.T) {
	for _, status := range []Status{StatusPending, StatusOverdue, StatusPaid} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t)
			f.seed(t, Invoice{ID: "inv-1", Status: status})

			got, err := f.svc.MarkAsPending(context.Background(), "inv-1")
			require.NoError(t, err)
			f.runner.Wait()

			assert.Equal(t, StatusPending, got.Status)
			assert.False(t, got.IsPaid)
			assert.Nil(t, got.PaidAt)
			assert.Empty(t, f.pdf.Calls())
		})
	}
}

func TestMarkAsPending_PDFFailureKeepsTransition(t *testing.T) {
	f := newFixture(t)
	f.pdf.err = errors.New("gotenberg unavailable")
	f.seed(t, Invoice{ID: "inv-1", Status: StatusDraft})

	got, err := f.svc.MarkAsPending(context.Background(), "inv-1")
	require.NoError(t, err)
	f.runner.Wait()

	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, StatusPending, f.stored(t, "inv-1").Status)
	assert.Len(t, f.pdf.Calls(), 1)
}

func TestMarkAsPending_StaleDraftDoesNotTriggerSecondPDF(t *testing.T) {
	f := newFixture(t)
	f.seed(t, Invoice{ID: "inv-1", Status: StatusDraft})
	_, err := f.svc.Get(context.Background(), "inv-1")
	require.NoError(t, err)

	_, err = f.table.Update(context.Background(), "inv-1", records.Fields{FieldStatus: StatusPending}, nil)
	require.NoError(t, err)

	got, err := f.svc.MarkAsPending(context.Background(), "inv-1")
	require.NoError(t, err)
	f.runner.Wait()

	assert.Equal(t, StatusPending, got.Status)
	assert.Empty(t, f.pdf.Calls())
}

func TestMarkAsPending_StaleIssuedCopyStillTriggersPDF(t *testing.T) {
	f := newFixture(t)
	f.seed(t, Invoice{ID: "inv-1", Status: StatusPending})
	_, err := f.svc.Get(context.Background(), "inv-1")
	require.NoError(t, err)

	_, err = f.table.Update(context.Background(), "inv-1", records.Fields{FieldStatus: StatusDraft}, nil)
	require.NoError(t, err)

	got, err := f.svc.MarkAsPending(context.Background(), "inv-1")
	require.NoError(t, err)
	f.runner.Wait()

	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, []string{"inv-1"}, f.pdf.Calls())
}

func TestMarkAsPaid_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.seed(t, Invoice{ID: "inv-1", Status: StatusPending})

	first, err := f.svc.MarkAsPaid(context.Background(), "inv-1")
	require.NoError(t, err)
	second, err := f.svc.MarkAsPaid(context.Background(), "inv-1")
	require.NoError(t, err)

	assert.Equal(t, StatusPaid, second.Status)
	assert.True(t, second.IsPaid)
	require.NotNil(t, second.PaidAt)
	assert.True(t, first.PaidAt.Equal(*second.PaidAt))
	assert.NoError(t, second.Check("2026-10-15"))
}

func TestMarkAsPaid_RejectsDraftBeforeWriting(t *testing.T) {
	f := newFixture(t)
	f.seed(t, Invoice{ID: "inv-1", Status: StatusDraft})

	_, err := f.svc.MarkAsPaid(context.Background(), "inv-1")
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, 0, f.updates)
	assert.Equal(t, StatusDraft, f.stored(t, "inv-1").Status)
}

func TestUnmarkAsPaid_ClearsPaymentAndDeposit(t *testing.T) {
	f := newFixture(t)
	deposit := "2026-10-10"
	f.seed(t, Invoice{ID: "inv-1", Status: StatusPaid, PaymentMethod: PaymentCheck, IsDeposited: true, DepositDate: &deposit})

	got, err := f.svc.UnmarkAsPaid(context.Background(), "inv-1")
	require.NoError(t, err)

	stored := f.stored(t, "inv-1")
	for _, inv := range []Invoice{got, stored} {
		assert.Equal(t, StatusPending, inv.Status)
		assert.False(t, inv.IsPaid)
		assert.Nil(t, inv.PaidAt)
		assert.False(t, inv.IsDeposited)
		assert.Nil(t, inv.DepositDate)
	}
}

func TestUnmarkAsPaid_RejectsDraftAndOverdue(t *testing.T) {
	for _, status := range []Status{StatusDraft, StatusOverdue} {
		f := newFixture(t)
		f.seed(t, Invoice{ID: "inv-1", Status: status})
		_, err := f.svc.UnmarkAsPaid(context.Background(), "inv-1")
		assert.ErrorIs(t, err, ErrIllegalTransition, status)
	}
}

func TestUpdateField_TotalResetsIssuedUnpaidInvoices(t *testing.T) {
	tests := []struct {
		status Status
		want   Status
	}{
		{StatusPending, StatusDraft},
		{StatusOverdue, StatusDraft},
		{StatusDraft, StatusDraft},
		{StatusPaid, StatusPaid},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			f := newFixture(t)
			f.seed(t, Invoice{ID: "inv-1", Status: tt.status, Total: shared.MustMoney("100")})

			got, err := f.svc.UpdateField(context.Background(), "inv-1", FieldTotal, "150")
			require.NoError(t, err)
			assert.Equal(t, 1, f.updates, "status and total go out in one write")

			stored := f.stored(t, "inv-1")
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, tt.want, stored.Status)
			assert.Equal(t, "150.00", stored.Total.String())
			assert.NoError(t, stored.Check("2026-10-15"))
		})
	}
}

func TestUpdateField_RemoteFailureRevertsLocalCopy(t *testing.T) {
	f := newFixture(t)
	f.seed(t, Invoice{ID: "inv-1", Status: StatusDraft, Total: shared.MustMoney("100")})
	_, err := f.svc.Get(context.Background(), "inv-1")
	require.NoError(t, err)

	rejected := errors.New("network unreachable")
	f.backend.SetFault(func(op records.Op, _, _ string) error {
		if op == records.OpUpdate {
			return rejected
		}
		return nil
	})

	_, err = f.svc.UpdateField(context.Background(), "inv-1", FieldTotal, 150.0)
	var oerr *optimistic.Error
	require.ErrorAs(t, err, &oerr)
	assert.ErrorIs(t, err, rejected)

	local, ok := f.svc.Cache().Peek("inv-1")
	require.True(t, ok)
	assert.Equal(t, "100.00", local.Total.String())
}

func TestUpdateField_StaleLocalStatusIsRejectedByStore(t *testing.T) {
	f := newFixture(t)
	f.seed(t, Invoice{ID: "inv-1", Status: StatusPending, Total: shared.MustMoney("100")})
	_, err := f.svc.Get(context.Background(), "inv-1")
	require.NoError(t, err)

	paidAt := fixedNow
	_, err = f.table.Update(context.Background(), "inv-1", records.Fields{
		FieldStatus: StatusPaid, FieldIsPaid: true, FieldPaidAt: paidAt,
	}, nil)
	require.NoError(t, err)

	_, err = f.svc.UpdateField(context.Background(), "inv-1", FieldTotal, "150")
	assert.ErrorIs(t, err, records.ErrConditionFailed)
	assert.Equal(t, StatusPaid, f.stored(t, "inv-1").Status)
}

func TestUpdateField_RetryAfterConflictUsesStoredCopy(t *testing.T) {
	f := newFixture(t)
	f.seed(t, Invoice{ID: "inv-1", Status: StatusPending, Total: shared.MustMoney("100")})
	_, err := f.svc.Get(context.Background(), "inv-1")
	require.NoError(t, err)

	_, err = f.table.Update(context.Background(), "inv-1", records.Fields{FieldStatus: StatusOverdue}, nil)
	require.NoError(t, err)

	_, err = f.svc.UpdateField(context.Background(), "inv-1", FieldTotal, "150")
	require.ErrorIs(t, err, records.ErrConditionFailed)
	_, cached := f.svc.Cache().Peek("inv-1")
	assert.False(t, cached)

	got, err := f.svc.UpdateField(context.Background(), "inv-1", FieldTotal, "150")
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, got.Status)
	assert.Equal(t, "150.00", got.Total.String())
	assert.Equal(t, StatusDraft, f.stored(t, "inv-1").Status)
}

func TestUpdateField_PaymentMethodIsNormalised(t *testing.T) {
	f := newFixture(t)
	f.seed(t, Invoice{ID: "inv-1", Status: StatusPending})

	got, err := f.svc.UpdateField(context.Background(), "inv-1", FieldPaymentMethod, " check ")
	require.NoError(t, err)
	assert.Equal(t, PaymentCheck, got.PaymentMethod)

	got, err = f.svc.UpdateField(context.Background(), "inv-1", FieldPaymentMethod, nil)
	require.NoError(t, err)
	assert.Equal(t, PaymentMethod(""), got.PaymentMethod)
}

func TestUpdateField_ValidationHappensBeforeWriting(t *testing.T) {
	tests := []struct {
		name  string
		field string
		value any
	}{
		{"not editable", FieldStatus, "PAID"},
		{"negative total", FieldTotal, "-5"},
		{"bad date", FieldDate, "2026-13-01"},
		{"due before date", FieldDueDate, "2026-08-01"},
		{"unknown payment method", FieldPaymentMethod, "BITCOIN"},
		{"empty number", FieldInvoiceNumber, " "},
		{"non string notes", FieldNotes, 12.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.seed(t, Invoice{ID: "inv-1", Status: StatusDraft})
			_, err := f.svc.UpdateField(context.Background(), "inv-1", tt.field, tt.value)
			assert.ErrorIs(t, err, shared.ErrValidation)
			assert.Equal(t, 0, f.updates)
		})
	}
}

func TestUpdateField_DepositedInvoiceKeepsCheck(t *testing.T) {
	f := newFixture(t)
	deposit := "2026-10-10"
	f.seed(t, Invoice{ID: "inv-1", Status: StatusPaid, PaymentMethod: PaymentCheck, IsDeposited: true, DepositDate: &deposit})

	_, err := f.svc.UpdateField(context.Background(), "inv-1", FieldPaymentMethod, "cash")
	assert.ErrorIs(t, err, shared.ErrValidation)

	got, err := f.svc.UpdateField(context.Background(), "inv-1", FieldPaymentReference, "CHQ 0042")
	require.NoError(t, err)
	assert.Equal(t, "CHQ 0042", got.PaymentReference)
}

func TestUpdateField_DuplicateNumber(t *testing.T) {
	f := newFixture(t)
	f.seed(t, Invoice{ID: "inv-1", InvoiceNumber: "F2026-0001", Status: StatusDraft})
	f.seed(t, Invoice{ID: "inv-2", InvoiceNumber: "F2026-0002", Status: StatusDraft})

	_, err := f.svc.UpdateField(context.Background(), "inv-2", FieldInvoiceNumber, "F2026-0001")
	assert.ErrorIs(t, err, shared.ErrValidation)

	got, err := f.svc.UpdateField(context.Background(), "inv-2", FieldInvoiceNumber, "F2026-0002")
	require.NoError(t, err)
	assert.Equal(t, "F2026-0002", got.InvoiceNumber)
}

func TestMutations_MissingInvoice(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.MarkAsPaid(context.Background(), "ghost")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCreate_NumbersAndDueDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, CreateInput{PatientID: "p-1", Date: "2026-10-01", Total: shared.MustMoney("60")})
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, CreateInput{PatientID: "p-1", Total: shared.MustMoney("60")})
	require.NoError(t, err)

	assert.Equal(t, "F2026-0001", first.InvoiceNumber)
	assert.Equal(t, "F2026-0002", second.InvoiceNumber)
	assert.Equal(t, StatusDraft, first.Status)
	assert.Equal(t, "2026-10-31", first.DueDate)
	assert.Equal(t, "2026-10-15", second.Date)
	assert.Equal(t, "2026-11-14", second.DueDate)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, CreateInput{Total: shared.MustMoney("60")})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "patientId")

	_, err = f.svc.Create(ctx, CreateInput{PatientID: "p-1", Date: "2026-10-10", DueDate: "2026-10-01"})
	assert.ErrorIs(t, err, shared.ErrValidation)

	f.seed(t, Invoice{ID: "inv-1", InvoiceNumber: "F2026-0100"})
	_, err = f.svc.Create(ctx, CreateInput{PatientID: "p-1", InvoiceNumber: "F2026-0100"})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateFromConsultation(t *testing.T) {
	f := newFixture(t)
	f.consult.src = FromConsultation{PatientID: "p-7", Date: "2026-10-12", Amount: shared.MustMoney("70"), Reason: "Lombalgie"}

	inv, err := f.svc.CreateFromConsultation(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, "p-7", inv.PatientID)
	assert.Equal(t, "c-1", inv.ConsultationID)
	assert.Equal(t, "70.00", inv.Total.String())
	assert.Equal(t, inv.ID, f.consult.linked["c-1"])

	f.consult.src.InvoiceID = inv.ID
	_, err = f.svc.CreateFromConsultation(context.Background(), "c-1")
	assert.ErrorIs(t, err, ErrAlreadyInvoiced)

	_, err = f.svc.CreateFromConsultation(context.Background(), "c-404")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestList_Filters(t *testing.T) {
	f := newFixture(t)
	f.seed(t, Invoice{ID: "a", InvoiceNumber: "F2026-0001", PatientID: "p-1", Status: StatusPending, Date: "2026-09-01"})
	f.seed(t, Invoice{ID: "b", InvoiceNumber: "F2026-0002", PatientID: "p-2", Status: StatusPending, Date: "2026-10-01", DueDate: "2026-10-31"})
	f.seed(t, Invoice{ID: "c", InvoiceNumber: "F2026-0003", PatientID: "p-1", Status: StatusPaid, Date: "2026-10-05", DueDate: "2026-11-04"})

	got, _, err := f.svc.List(context.Background(), ListQuery{PatientID: "p-1"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, _, err = f.svc.List(context.Background(), ListQuery{Status: StatusPending, From: "2026-09-15"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)

	got, _, err = f.svc.List(context.Background(), ListQuery{Search: "0003"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].ID)

	_, _, err = f.svc.List(context.Background(), ListQuery{Status: "LOST"})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	f.seed(t, Invoice{ID: "inv-1", Status: StatusDraft})
	_, err := f.svc.Get(context.Background(), "inv-1")
	require.NoError(t, err)

	gone, err := f.svc.Delete(context.Background(), "inv-1")
	require.NoError(t, err)
	require.NotNil(t, gone)
	_, cached := f.svc.Cache().Peek("inv-1")
	assert.False(t, cached)
	assert.Contains(t, f.feed.events, EventDeleted)

	again, err := f.svc.Delete(context.Background(), "inv-1")
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestStatusChangesAreAudited(t *testing.T) {
	f := newFixture(t)
	f.seed(t, Invoice{ID: "inv-1", InvoiceNumber: "F2026-0042", Status: StatusDraft})

	_, err := f.svc.MarkAsPending(context.Background(), "inv-1")
	require.NoError(t, err)
	_, err = f.svc.UpdateField(context.Background(), "inv-1", FieldNotes, "relance envoyée")
	require.NoError(t, err)
	f.runner.Wait()

	require.Len(t, f.audit.transitions, 1)
	tr := f.audit.transitions[0]
	assert.Equal(t, StatusDraft, tr.From)
	assert.Equal(t, StatusPending, tr.To)
	assert.Equal(t, ActorUser, tr.Actor)
	assert.Equal(t, "F2026-0042", tr.InvoiceNumber)
	assert.Len(t, f.feed.events, 2)
}

func TestInvariantsHoldAcrossOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, Invoice{ID: "inv-1", Status: StatusDraft, PaymentMethod: PaymentCheck, Total: shared.MustMoney("50")})

	steps := []func() error{
		func() error { _, err := f.svc.MarkAsPending(ctx, "inv-1"); return err },
		func() error { _, err := f.svc.MarkAsPaid(ctx, "inv-1"); return err },
		func() error { _, err := f.svc.UpdateField(ctx, "inv-1", FieldTotal, "55"); return err },
		func() error { _, err := f.svc.UnmarkAsPaid(ctx, "inv-1"); return err },
		func() error { _, err := f.svc.UpdateField(ctx, "inv-1", FieldTotal, "60"); return err },
		func() error { _, err := f.svc.MarkAsPending(ctx, "inv-1"); return err },
		func() error { _, err := f.svc.MarkAsPaid(ctx, "inv-1"); return err },
		func() error { _, err := f.svc.MarkAsPaid(ctx, "inv-1"); return err },
	}
	for i, step := range steps {
		require.NoError(t, step(), "step %d", i)
		assert.NoError(t, f.stored(t, "inv-1").Check("2026-10-15"), "step %d", i)
	}
	f.runner.Wait()
}
