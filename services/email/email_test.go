package emailsvc

import (
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cornelabs/lms/core"
	logsvc "github.com/cornelabs/lms/services/logger"
)

func newMessage() *core.EmailMessage {
	return &core.EmailMessage{
		To:      []mail.Address{{Name: "Ada", Address: "ada@test.io"}, {Address: "grace@test.io"}},
		Cc:      []mail.Address{{Address: "cc@test.io"}},
		Subject: "Hello",
		BodyStr: "Plain body",
	}
}

func newConfig() *core.Config {
	return &core.Config{
		TestMode:         true,
		AppName:          "LMS",
		DefaultFromEmail: mail.Address{Name: "LMS", Address: "noreply@lms.test"},
	}
}

func TestNewService(t *testing.T) {
	conf := newConfig()
	logger := logsvc.NewLogger(conf, "TEST")

	assert.IsType(t, &consoleService{}, NewService(conf, logger))

	conf.SendgridApiKey = "SG.key"
	assert.IsType(t, &sendgridService{}, NewService(conf, logger))
}

func Test_consoleService_format(t *testing.T) {
	conf := newConfig()
	svc := NewConsoleService(conf, logsvc.NewLogger(conf, "TEST")).(*consoleService)

	msg := newMessage()
	msg.HTMLContent = "<p>HTML body</p>"
	require.NoError(t, msg.Render())

	body, err := svc.format(*msg)
	require.NoError(t, err)
	assert.Contains(t, body, "From: \"LMS\" <noreply@lms.test>\r\n")
	assert.Contains(t, body, "Subject: [LMS] Hello\r\n")
	assert.Contains(t, body, "To: \"Ada\" <ada@test.io>, <grace@test.io>\r\n")
	assert.Contains(t, body, "CC: <cc@test.io>\r\n")
	assert.NotContains(t, body, "BCC:")
	assert.Contains(t, body, "Content-Type: multipart/alternative; boundary=")
	assert.Contains(t, body, "Plain body")
	assert.Contains(t, body, "<p>HTML body</p>")
	assert.True(t, strings.Index(body, "text/plain") < strings.Index(body, "text/html"))
}

func TestConsoleServiceMock(t *testing.T) {
	conf := newConfig()
	svc := NewConsoleServiceMock(conf, logsvc.NewLogger(conf, "TEST"))

	noRecipient := newMessage()
	noRecipient.To, noRecipient.Cc = nil, nil
	unknownTemplate := &core.EmailMessage{To: []mail.Address{{Address: "x@test.io"}}, TemplateName: "lol"}

	svc.SendMessages(newMessage(), noRecipient, unknownTemplate)
	msgs := svc.SentMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Plain body", msgs[0].TextContent)

	svc.Reset()
	assert.Empty(t, svc.SentMessages())
}

func Test_sendgridService_prepare(t *testing.T) {
	conf := newConfig()
	conf.SendgridApiKey = "SG.key"
	svc := NewSendgridService(conf, logsvc.NewLogger(conf, "TEST")).(*sendgridService)

	msg := newMessage()
	msg.Bcc = []mail.Address{{Address: "bcc@test.io"}}
	require.NoError(t, msg.Render())

	m := svc.prepare(*msg)
	assert.Equal(t, "noreply@lms.test", m.From.Address)
	require.Len(t, m.Personalizations, 1)
	p := m.Personalizations[0]
	assert.Equal(t, "[LMS] Hello", p.Subject)
	require.Len(t, p.To, 2)
	assert.Equal(t, "ada@test.io", p.To[0].Address)
	require.Len(t, p.CC, 1)
	require.Len(t, p.BCC, 1)
	require.Len(t, m.Content, 1)
	assert.Equal(t, "text/plain", m.Content[0].Type)
	assert.Equal(t, "Plain body", m.Content[0].Value)
}
