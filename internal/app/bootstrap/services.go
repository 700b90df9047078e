package bootstrap

import (
	"context"
	"database/sql"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/Clem69B/deglingos-app-sub000/internal/audit"
	"github.com/Clem69B/deglingos-app-sub000/internal/blobstore"
	"github.com/Clem69B/deglingos-app-sub000/internal/clinic"
	appconfig "github.com/Clem69B/deglingos-app-sub000/internal/config"
	"github.com/Clem69B/deglingos-app-sub000/internal/consultations"
	"github.com/Clem69B/deglingos-app-sub000/internal/deposits"
	"github.com/Clem69B/deglingos-app-sub000/internal/editguard"
	"github.com/Clem69B/deglingos-app-sub000/internal/events"
	"github.com/Clem69B/deglingos-app-sub000/internal/invoices"
	"github.com/Clem69B/deglingos-app-sub000/internal/notify"
	"github.com/Clem69B/deglingos-app-sub000/internal/observability/metrics"
	"github.com/Clem69B/deglingos-app-sub000/internal/patients"
	"github.com/Clem69B/deglingos-app-sub000/internal/pdf"
	"github.com/Clem69B/deglingos-app-sub000/internal/records"
	"github.com/Clem69B/deglingos-app-sub000/internal/sweep"
	"github.com/Clem69B/deglingos-app-sub000/internal/tasks"
	"github.com/Clem69B/deglingos-app-sub000/internal/team"
	"github.com/Clem69B/deglingos-app-sub000/pkg/logging"
)

// Infra carries the already opened connections. Nil members disable the
// features that depend on them.
type Infra struct {
	AWS      aws.Config
	Redis    *redis.Client
	Pool     *pgxpool.Pool
	DB       *sql.DB
	Registry prometheus.Registerer
	Logger   *logging.Logger

	// Backend overrides the store picked from config. Tests use it.
	Backend records.Backend
	// Cognito overrides the client built from AWS.
	Cognito team.CognitoAPI
	// Now overrides the clock of the invoice workflow and the sweep.
	Now func() time.Time
}

// Services is the assembled application. Optional members are nil when
// their backing infrastructure is not configured.
type Services struct {
	Backend       records.Backend
	Invoices      *invoices.Service
	Patients      *patients.Service
	Consultations *consultations.Service
	Deposits      *deposits.Tracker
	Sweeper       *sweep.Sweeper
	Practice      *clinic.Store
	Edits         editguard.Registry
	Hub           *events.Hub
	Tasks         *tasks.Runner

	Documents *pdf.Generator
	Converter *pdf.GotenbergClient
	Audit     *audit.Store
	History   *sweep.PostgresHistory
	Team      *team.Directory

	InvoiceTable *records.Table[invoices.Invoice]
}

// Build assembles every service from cfg and infra.
func Build(cfg *appconfig.Config, infra Infra) *Services {
	logger := infra.Logger
	if logger == nil {
		logger = logging.Default()
	}
	reg := infra.Registry

	backend := infra.Backend
	if backend == nil {
		backend = BuildRecordBackend(infra.AWS, cfg, metrics.NewStoreMetrics(reg), logger)
	}
	invoiceMetrics := metrics.NewInvoiceMetrics(reg)
	runner := tasks.NewRunner(logger, metrics.NewTaskMetrics(reg), 0)

	s := &Services{
		Backend:      backend,
		Tasks:        runner,
		InvoiceTable: records.NewTable[invoices.Invoice](backend, cfg.InvoicesTable),
		Practice:     clinic.NewStore(infra.Redis, practiceDefaults(cfg)),
		Hub:          events.NewHub(cfg.CORSAllowedOrigins, logger),
	}
	if infra.Redis != nil {
		s.Edits = editguard.NewRedisRegistry(infra.Redis, 0)
	} else {
		s.Edits = editguard.NewMemoryRegistry()
	}
	if infra.Pool != nil {
		s.Audit = audit.NewStore(infra.Pool)
	}
	if infra.DB != nil {
		s.History = sweep.NewPostgresHistory(infra.DB)
	}

	s.Patients = patients.NewService(
		records.NewTable[patients.Patient](backend, cfg.PatientsTable),
		cfg.CacheTTL,
		patients.NewNameCache(infra.Redis, cfg.PatientNameTTL),
		invoiceMetrics,
		logger,
	)
	s.Consultations = consultations.NewService(records.NewTable[consultations.Consultation](backend, cfg.ConsultationsTable), logger)

	mailer := notify.NewService(BuildEmailSender(infra.AWS, cfg, logger), logger)
	if cfg.GotenbergURL != "" {
		s.Converter = pdf.NewGotenbergClient(cfg.GotenbergURL, 0)
		s.Documents = pdf.NewGenerator(pdf.Options{
			Invoices:   s.InvoiceTable,
			Patients:   s.Patients,
			Profile:    s.Practice,
			Converter:  s.Converter,
			Blobs:      buildBlobStore(infra.AWS, cfg, logger),
			Mailer:     mailer,
			PresignTTL: cfg.PresignTTL,
			Logger:     logger,
		})
	}

	deps := invoices.Deps{
		Numbers:       invoices.NewSequence(backend, cfg.CountersTable),
		Publisher:     s.Hub,
		Consultations: s.Consultations,
		Tasks:         runner,
		Metrics:       invoiceMetrics,
		Logger:        logger,
		Now:           infra.Now,
	}
	switch {
	case cfg.PDFQueueURL != "":
		deps.PDF = pdf.NewQueueTrigger(sqs.NewFromConfig(infra.AWS), cfg.PDFQueueURL)
	case s.Documents != nil:
		deps.PDF = s.Documents
	}
	if s.Audit != nil {
		deps.Audit = s.Audit
	}
	s.Invoices = invoices.NewService(s.InvoiceTable, invoices.Config{
		PaymentTermDays: cfg.PaymentTermDays,
		CacheTTL:        cfg.CacheTTL,
	}, deps)

	s.Deposits = deposits.NewTracker(s.InvoiceTable, s.Patients, s.Invoices, cfg.DepositConcurrency, metrics.NewDepositMetrics(reg), logger)

	sweepOpts := sweep.Options{
		Concurrency: cfg.SweepConcurrency,
		Refresher:   s.Invoices,
		Metrics:     metrics.NewSweepMetrics(reg),
		Logger:      logger,
		Now:         infra.Now,
	}
	if s.History != nil {
		sweepOpts.History = s.History
	}
	if s.Audit != nil {
		sweepOpts.Audit = s.Audit
	}
	s.Sweeper = sweep.New(s.InvoiceTable, sweepOpts)

	cognito := infra.Cognito
	if cognito == nil && cfg.CognitoUserPoolID != "" {
		cognito = cognitoidentityprovider.NewFromConfig(infra.AWS)
	}
	if cognito != nil {
		s.Team = team.NewDirectory(cognito, team.Options{
			UserPoolID: cfg.CognitoUserPoolID,
			LoginURL:   cfg.WelcomeEmailLogin,
			Profiles:   records.NewTable[team.Profile](backend, cfg.UserProfilesTable),
			Welcome:    mailer,
			Tasks:      runner,
			Logger:     logger,
		})
	}
	return s
}

// Close waits for detached tasks and releases pooled connections.
func (s *Services) Close(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.Tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func buildBlobStore(awsCfg aws.Config, cfg *appconfig.Config, logger *logging.Logger) blobstore.Store {
	if cfg.DocumentsBucket == "" {
		logger.Warn("no documents bucket configured; invoice PDFs are kept in memory")
		return blobstore.NewMemory()
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.AWSEndpointOverride != "" {
			o.UsePathStyle = true
		}
	})
	return blobstore.NewS3Store(client, s3.NewPresignClient(client), cfg.DocumentsBucket, logger)
}

func practiceDefaults(cfg *appconfig.Config) clinic.Profile {
	return clinic.Profile{
		Name:            cfg.PracticeName,
		Address:         cfg.PracticeAddress,
		SIRET:           cfg.PracticeSIRET,
		Email:           cfg.EmailFromAddress,
		PaymentTermDays: cfg.PaymentTermDays,
	}
}
