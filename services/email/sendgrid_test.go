package emailsvc

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/congress/core"
)

func TestNew(t *testing.T) {
	conf := core.NewTestConfig(t.TempDir())

	_, ok := New(conf, nopLogger{}).(*consoleService)
	assert.True(t, ok, "no API key: console")

	conf.SendgridApiKey = "SG.key"
	_, ok = New(conf, nopLogger{}).(*sendgridService)
	assert.True(t, ok, "API key: sendgrid")

	conf.Debug = true
	_, ok = New(conf, nopLogger{}).(*consoleService)
	assert.True(t, ok, "debug: console")
}

func TestSendgridService_Build(t *testing.T) {
	conf := core.NewTestConfig(t.TempDir())
	svc := NewSendgridService(conf, nopLogger{}).(*sendgridService)

	msg := core.EmailMessage{
		To:           []mail.Address{{Name: "Ada", Address: "ada@test.test"}},
		Bcc:          []mail.Address{{Address: "archive@test.test"}},
		Subject:      "Your diploma",
		TemplateName: "diploma",
		TextContent:  "congrats",
		HTMLContent:  "<p>congrats</p>",
	}
	require.NoError(t, msg.Attach(bytes.NewReader([]byte("%PDF-1.3")), "diploma.pdf", "application/pdf"))

	m := svc.build(msg)
	assert.Equal(t, "noreply@localhost", m.From.Address)
	require.Len(t, m.Personalizations, 1)
	p := m.Personalizations[0]
	assert.Equal(t, "[Congress] Your diploma", p.Subject)
	require.Len(t, p.To, 1)
	assert.Equal(t, "ada@test.test", p.To[0].Address)
	require.Len(t, p.BCC, 1)

	assert.Equal(t, []string{"diploma"}, m.Categories)
	require.Len(t, m.Content, 2)
	assert.Equal(t, "text/plain", m.Content[0].Type)
	assert.Equal(t, "text/html", m.Content[1].Type)

	require.Len(t, m.Attachments, 1)
	at := m.Attachments[0]
	assert.Equal(t, "diploma.pdf", at.Filename)
	assert.Equal(t, "application/pdf", at.Type)
	assert.Equal(t, "attachment", at.Disposition)
	assert.Equal(t, "JVBERi0xLjM=", at.Content)
}

func TestSendgridService_Send(t *testing.T) {
	var (
		calls  int32
		status int32 = http.StatusAccepted
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/v3/mail/send", r.URL.Path)
		w.WriteHeader(int(atomic.LoadInt32(&status)))
	}))
	defer srv.Close()

	conf := core.NewTestConfig(t.TempDir())
	conf.SendgridApiKey = "SG.key"
	svc := NewSendgridService(conf, nopLogger{}).(*sendgridService)
	svc.client.BaseURL = srv.URL + "/v3/mail/send"

	newMsg := func() *core.EmailMessage {
		return &core.EmailMessage{
			To:      []mail.Address{{Address: "ada@test.test"}},
			Subject: "Hi",
			BodyStr: "hello",
		}
	}

	assert.NoError(t, svc.Send(newMsg()))
	assert.Equal(t, core.ErrEmptyEmail, svc.Send(&core.EmailMessage{Subject: "nobody"}))

	atomic.StoreInt32(&status, http.StatusBadRequest)
	err := svc.Send(newMsg())
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "status: 400")
	}

	// async sends are all done once Wait returns
	atomic.StoreInt32(&status, http.StatusAccepted)
	atomic.StoreInt32(&calls, 0)
	svc.SendMessages(newMsg(), newMsg(), newMsg())
	svc.Wait()
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}
