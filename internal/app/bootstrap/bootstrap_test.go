package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/Clem69B/deglingos-app-sub000/internal/config"
	"github.com/Clem69B/deglingos-app-sub000/internal/editguard"
	"github.com/Clem69B/deglingos-app-sub000/internal/invoices"
	"github.com/Clem69B/deglingos-app-sub000/internal/notify"
	"github.com/Clem69B/deglingos-app-sub000/internal/patients"
	"github.com/Clem69B/deglingos-app-sub000/internal/records"
	"github.com/Clem69B/deglingos-app-sub000/internal/shared"
	"github.com/Clem69B/deglingos-app-sub000/pkg/logging"
)

func memoryConfig() *appconfig.Config {
	return &appconfig.Config{
		UseMemoryStore:     true,
		InvoicesTable:      "invoices",
		PatientsTable:      "patients",
		ConsultationsTable: "consultations",
		UserProfilesTable:  "user_profiles",
		CountersTable:      "counters",
		PaymentTermDays:    30,
		CacheTTL:           time.Minute,
		PracticeName:       "Cabinet Deglingos",
		EmailProvider:      "stub",
	}
}

func TestBuildRedisClient(t *testing.T) {
	assert.Nil(t, BuildRedisClient(context.Background(), &appconfig.Config{}, logging.Discard(), true))
	assert.Nil(t, BuildRedisClient(context.Background(), nil, logging.Discard(), true))

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: addr}, logging.Discard(), true)
	require.NotNil(t, client)
	defer client.Close()
	assert.NoError(t, client.Ping(context.Background()).Err())

	mr.Close()
	assert.Nil(t, BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: addr}, logging.Discard(), true))
}

func TestBuildPostgresDisabled(t *testing.T) {
	pool, db, err := BuildPostgres(context.Background(), &appconfig.Config{}, logging.Discard())
	require.NoError(t, err)
	assert.Nil(t, pool)
	assert.Nil(t, db)
}

func TestBuildEmailSender(t *testing.T) {
	cfg := &appconfig.Config{EmailProvider: "sendgrid"}
	_, isStub := BuildEmailSender(aws.Config{}, cfg, logging.Discard()).(*notify.StubEmailSender)
	assert.True(t, isStub, "sendgrid without key falls back to the stub")

	cfg.SendGridAPIKey = "SG.test"
	_, isSendGrid := BuildEmailSender(aws.Config{}, cfg, logging.Discard()).(*notify.SendGridSender)
	assert.True(t, isSendGrid)

	cfg.EmailProvider = "ses"
	_, isSES := BuildEmailSender(aws.Config{}, cfg, logging.Discard()).(*notify.SESSender)
	assert.True(t, isSES)
}

func TestBuildWithoutOptionalInfrastructure(t *testing.T) {
	svc := Build(memoryConfig(), Infra{Logger: logging.Discard(), Registry: prometheus.NewRegistry()})
	defer svc.Close(context.Background())

	_, isMemory := svc.Backend.(*records.MemoryBackend)
	assert.True(t, isMemory)
	_, isMemoryEdits := svc.Edits.(*editguard.MemoryRegistry)
	assert.True(t, isMemoryEdits)
	assert.Nil(t, svc.Documents)
	assert.Nil(t, svc.Audit)
	assert.Nil(t, svc.History)
	assert.Nil(t, svc.Team)

	profile, err := svc.Practice.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Cabinet Deglingos", profile.Name)
}

func TestBuildWiresTheInvoiceWorkflow(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := BuildRedisClient(ctx, &appconfig.Config{RedisAddr: mr.Addr()}, logging.Discard(), false)
	defer client.Close()

	today := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	svc := Build(memoryConfig(), Infra{
		Logger:   logging.Discard(),
		Registry: prometheus.NewRegistry(),
		Redis:    client,
		Backend:  records.NewMemoryBackend(),
		Now:      func() time.Time { return today },
	})
	defer svc.Close(ctx)

	_, isRedisEdits := svc.Edits.(*editguard.RedisRegistry)
	assert.True(t, isRedisEdits)

	patient, err := svc.Patients.Create(ctx, patients.CreateInput{FirstName: "Marie", LastName: "Dupont"})
	require.NoError(t, err)

	inv, err := svc.Invoices.Create(ctx, invoices.CreateInput{
		PatientID:     patient.ID,
		Date:          "2026-09-01",
		DueDate:       "2026-10-01",
		Total:         shared.MustMoney("60"),
		PaymentMethod: invoices.PaymentCheck,
	})
	require.NoError(t, err)
	assert.Equal(t, "F2026-0001", inv.InvoiceNumber)

	_, err = svc.Invoices.MarkAsPending(ctx, inv.ID)
	require.NoError(t, err)

	report, err := svc.Sweeper.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)

	got, err := svc.Invoices.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoices.StatusOverdue, got.Status)

	entries, err := svc.Deposits.ListUndeposited(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries, "only paid check invoices wait for deposit")

	_, err = svc.Invoices.MarkAsPaid(ctx, inv.ID)
	require.NoError(t, err)
	entries, err = svc.Deposits.ListUndeposited(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Marie Dupont", entries[0].PatientName)
}
