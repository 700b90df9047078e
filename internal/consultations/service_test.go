package consultations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clem69B/deglingos-app-sub000/internal/records"
	"github.com/Clem69B/deglingos-app-sub000/internal/shared"
	"github.com/Clem69B/deglingos-app-sub000/pkg/logging"
)

func newService() *Service {
	return NewService(records.NewTable[Consultation](records.NewMemoryBackend(), "consultations"), logging.Discard())
}

func TestCreateListAndUpdate(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	c, err := svc.Create(ctx, Input{PatientID: "p-1", Date: "2026-10-12", Duration: 45, Reason: "Cervicalgie", Price: shared.MustMoney("60")})
	require.NoError(t, err)
	_, err = svc.Create(ctx, Input{PatientID: "p-2", Date: "2026-10-13", Duration: 30, Price: shared.MustMoney("55")})
	require.NoError(t, err)

	mine, _, err := svc.List(ctx, ListQuery{PatientID: "p-1"})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, c.ID, mine[0].ID)

	recent, _, err := svc.List(ctx, ListQuery{From: "2026-10-13"})
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	updated, err := svc.Update(ctx, c.ID, Input{PatientID: "p-1", Date: "2026-10-12", Duration: 60, Price: shared.MustMoney("70")})
	require.NoError(t, err)
	assert.Equal(t, 60, updated.Duration)
	assert.Equal(t, "70.00", updated.Price.String())

	_, err = svc.Update(ctx, "ghost", Input{PatientID: "p-1", Date: "2026-10-12"})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCreateValidation(t *testing.T) {
	svc := newService()
	_, err := svc.Create(context.Background(), Input{Date: "12/10/2026", Duration: -1})

	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "patientId")
	assert.Contains(t, verr.Fields, "date")
	assert.Contains(t, verr.Fields, "duration")

	_, err = svc.Create(context.Background(), Input{PatientID: "p", Date: "2026-10-12", Price: shared.MustMoney("-1")})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestInvoiceLinkIsSetOnce(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	c, err := svc.Create(ctx, Input{PatientID: "p-1", Date: "2026-10-12", Price: shared.MustMoney("60"), Reason: "Lombalgie"})
	require.NoError(t, err)

	src, err := svc.ForInvoice(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "p-1", src.PatientID)
	assert.Equal(t, "60.00", src.Amount.String())
	assert.Empty(t, src.InvoiceID)

	require.NoError(t, svc.LinkInvoice(ctx, c.ID, "inv-1"))
	assert.ErrorIs(t, svc.LinkInvoice(ctx, c.ID, "inv-2"), ErrInvoiceLinked)
	assert.ErrorIs(t, svc.LinkInvoice(ctx, "ghost", "inv-3"), shared.ErrNotFound)

	src, err = svc.ForInvoice(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "inv-1", src.InvoiceID)
}
