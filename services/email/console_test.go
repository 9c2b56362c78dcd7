package emailsvc

import (
	"bytes"
	"net/mail"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/congress/core"
	appfs "github.com/trezcool/congress/fs"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

func TestConsoleServiceMock_SendMessages(t *testing.T) {
	conf := core.NewTestConfig(t.TempDir())
	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, true, nopLogger{})
	svc := NewConsoleServiceMock(conf, nopLogger{})

	welcome := &core.EmailMessage{
		To:           []mail.Address{{Name: "Ada", Address: "ada@test.test"}},
		Subject:      "Welcome",
		TemplateName: "welcome",
		TemplateData: map[string]string{"AppName": conf.AppName, "EventName": conf.EventName, "Name": "Ada"},
	}
	withAttachment := &core.EmailMessage{
		To:      []mail.Address{{Address: "bob@test.test"}},
		Subject: "Files",
		BodyStr: "see attached",
	}
	require.NoError(t, withAttachment.Attach(bytes.NewReader([]byte("%PDF-1.3")), "diploma.pdf"))
	noRecipient := &core.EmailMessage{Subject: "Lost", BodyStr: "nobody"}
	badTemplate := &core.EmailMessage{
		To:           []mail.Address{{Address: "eve@test.test"}},
		TemplateName: "welcome",
		TemplateData: map[string]string{}, // missing keys
	}

	svc.SendMessages(welcome, withAttachment, noRecipient, badTemplate)

	sent := svc.SentMessages()
	require.Len(t, sent, 2)

	assert.Contains(t, sent[0].TextContent, "Hello Ada,")
	assert.Contains(t, sent[0].TextContent, "Test Congress")
	assert.Contains(t, sent[0].TextContent, conf.FrontendBaseURL)
	assert.Contains(t, sent[0].HTMLContent, "<p>Hello Ada,</p>")

	assert.Equal(t, "see attached", sent[1].TextContent)
	require.Len(t, sent[1].Attachments, 1)
	assert.Equal(t, "application/pdf", sent[1].Attachments[0].ContentType)
	assert.Equal(t, "JVBERi0xLjM=", sent[1].Attachments[0].Content.String())

	svc.Reset()
	assert.Empty(t, svc.SentMessages())
}

func TestConsoleService_Build(t *testing.T) {
	conf := core.NewTestConfig(t.TempDir())
	svc := NewConsoleService(conf, nopLogger{}).(*consoleService)

	msg := core.EmailMessage{
		To:          []mail.Address{{Name: "Ada", Address: "ada@test.test"}},
		Subject:     "Hi",
		TextContent: "plain",
		HTMLContent: "<b>html</b>",
	}
	require.NoError(t, msg.Attach(bytes.NewReader([]byte("png")), "a.png", "image/png"))

	body, err := svc.build(msg)
	require.NoError(t, err)
	assert.Contains(t, body, "Subject: [Congress] Hi")
	assert.Contains(t, body, `To: "Ada" <ada@test.test>`)
	assert.Contains(t, body, "multipart/mixed")
	assert.Contains(t, body, "plain")
	assert.Contains(t, body, "<b>html</b>")
	assert.Contains(t, body, "attachment; filename=a.png")
}

func TestConsoleServiceMock_Send(t *testing.T) {
	conf := core.NewTestConfig(t.TempDir())
	svc := NewConsoleServiceMock(conf, nopLogger{})
	msg := func() *core.EmailMessage {
		return &core.EmailMessage{To: []mail.Address{{Address: "ada@test.test"}}, Subject: "Hi", BodyStr: "hello"}
	}

	assert.NoError(t, svc.Send(msg()))
	assert.Equal(t, core.ErrEmptyEmail, svc.Send(&core.EmailMessage{Subject: "nobody"}))

	failure := errors.New("provider down")
	svc.FailWith(failure)
	assert.Equal(t, failure, svc.Send(msg()))

	svc.FailWith(nil)
	svc.SendMessages(msg())
	svc.Wait()
	assert.Len(t, svc.SentMessages(), 2)
}
