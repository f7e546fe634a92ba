package mailer

import (
	"context"
	"errors"
	"testing"

	"github.com/resend/resend-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type emailsStub struct {
	got *resend.SendEmailRequest
	err error
}

func (s *emailsStub) SendWithContext(_ context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error) {
	s.got = params
	if s.err != nil {
		return nil, s.err
	}
	return &resend.SendEmailResponse{Id: "msg-1"}, nil
}

func TestResendSenderSend(t *testing.T) {
	stub := &emailsStub{}
	sender := newResendSender(stub, "Coach Desk <desk@example.com>", nil)

	id, err := sender.Send(context.Background(), Message{To: []string{"s@example.com"}, Subject: "hi", HTML: "<p>x</p>", ReplyTo: "admin@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)
	assert.Equal(t, "Coach Desk <desk@example.com>", stub.got.From)
	assert.Equal(t, "admin@example.com", stub.got.ReplyTo)
}

func TestResendSenderErrors(t *testing.T) {
	sender := newResendSender(&emailsStub{err: errors.New("boom")}, "from@example.com", nil)

	_, err := sender.Send(context.Background(), Message{})
	assert.ErrorIs(t, err, ErrNoRecipients)

	_, err = sender.Send(context.Background(), Message{To: []string{"x@example.com"}})
	assert.ErrorContains(t, err, "boom")
}
