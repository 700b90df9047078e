package notify

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clem69B/deglingos-app-sub000/pkg/logging"
)

type mockSendGrid struct {
	last   *mail.SGMailV3
	status int
	err    error
}

func (m *mockSendGrid) SendWithContext(_ context.Context, email *mail.SGMailV3) (*rest.Response, error) {
	m.last = email
	if m.err != nil {
		return nil, m.err
	}
	return &rest.Response{StatusCode: m.status, Headers: http.Header{"X-Message-Id": []string{"sg-123"}}}, nil
}

type mockSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (m *mockSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	m.input = in
	if m.err != nil {
		return nil, m.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-456")}, nil
}

func TestNewSendGridSender_NilWithoutAPIKey(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{FromEmail: "cabinet@example.com"}, nil)
	if sender != nil {
		t.Error("expected nil sender when API key is empty")
	}
}

func TestNewSendGridSender_DefaultFromName(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{APIKey: "test-key", FromEmail: "cabinet@example.com"}, nil)
	if sender == nil {
		t.Fatal("expected non-nil sender")
	}
	if sender.fromName != defaultFromName {
		t.Errorf("expected default from name, got %q", sender.fromName)
	}
}

func TestSendGridSender_Send(t *testing.T) {
	mock := &mockSendGrid{status: http.StatusAccepted}
	sender := newSendGridSender(mock, SendGridConfig{FromEmail: "cabinet@example.com"}, logging.Discard())

	id, err := sender.Send(context.Background(), EmailMessage{To: "marie@example.com", Subject: "Facture", Body: "texte"})
	require.NoError(t, err)
	assert.Equal(t, "sg-123", id)
	assert.Equal(t, "Facture", mock.last.Subject)

	mock.status = http.StatusBadRequest
	_, err = sender.Send(context.Background(), EmailMessage{To: "marie@example.com"})
	assert.Error(t, err)
}

func TestSendGridSender_Send_NilClient(t *testing.T) {
	sender := &SendGridSender{}
	if _, err := sender.Send(context.Background(), EmailMessage{To: "marie@example.com"}); err == nil {
		t.Error("expected error when client is nil")
	}
}

func TestSESSender_Send(t *testing.T) {
	mock := &mockSES{}
	sender := NewSESSender(mock, SESConfig{FromEmail: "cabinet@example.com", FromName: "Cabinet"}, logging.Discard())

	id, err := sender.Send(context.Background(), EmailMessage{To: "marie@example.com", Subject: "Facture", Body: "texte", HTML: "<p>html</p>"})
	require.NoError(t, err)
	assert.Equal(t, "ses-456", id)
	assert.Equal(t, "Cabinet <cabinet@example.com>", aws.ToString(mock.input.FromEmailAddress))
	assert.Equal(t, "<p>html</p>", aws.ToString(mock.input.Content.Simple.Body.Html.Data))

	mock.err = errors.New("throttled")
	_, err = sender.Send(context.Background(), EmailMessage{To: "marie@example.com"})
	assert.ErrorContains(t, err, "throttled")
}

func TestStubEmailSender_Send(t *testing.T) {
	id, err := NewStubEmailSender(nil).Send(context.Background(), EmailMessage{To: "marie@example.com"})
	require.NoError(t, err)
	assert.Contains(t, id, "stub-")
}
