package core_test

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/codedays/core"
	appfs "github.com/trezcool/codedays/fs"
	testutil "github.com/trezcool/codedays/tests"
)

func TestEmailMessage_Render(t *testing.T) {
	conf := core.NewTestConfig()
	conf.Server.BaseURL = "http://codedays.test"
	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, conf, testutil.NewLogger(conf))

	msg := &core.EmailMessage{
		Subject:      "Reset",
		TemplateName: "password_reset",
		TemplateData: map[string]interface{}{"Username": "alice", "Path": "/auth/reset/tok", "Minutes": 30},
	}
	require.NoError(t, msg.Render())
	assert.True(t, msg.HasContent())
	assert.Contains(t, msg.TextContent, "Hi alice,")
	assert.Contains(t, msg.TextContent, "http://codedays.test/auth/reset/tok")
	assert.Contains(t, msg.HTMLContent, "alice")

	plain := &core.EmailMessage{BodyStr: "hello"}
	require.NoError(t, plain.Render())
	assert.Equal(t, "hello", plain.TextContent)
	assert.Empty(t, plain.HTMLContent)

	unknown := &core.EmailMessage{TemplateName: "nope"}
	require.NoError(t, unknown.Render())
	assert.False(t, unknown.HasContent())
}

func TestParseEmailTemplates_missingKey(t *testing.T) {
	fsys := fstest.MapFS{
		"mail/_base.txt": {Data: []byte(`{{block "content" .}}{{end}}`)},
		"mail/hello.txt": {Data: []byte(`{{define "content"}}Hi {{.Data.Name}}{{end}}`)},
		"mail/_skip.txt": {Data: []byte(`ignored`)},
		"mail/notes.md":  {Data: []byte(`ignored`)},
	}
	conf := core.NewTestConfig()
	core.ParseEmailTemplates(fsys, "mail", conf, testutil.NewLogger(conf))

	msg := &core.EmailMessage{TemplateName: "hello", TemplateData: map[string]string{"Name": "bob"}}
	require.NoError(t, msg.Render())
	assert.Equal(t, "Hi bob", msg.TextContent)
	assert.Empty(t, msg.HTMLContent)

	msg = &core.EmailMessage{TemplateName: "hello", TemplateData: map[string]string{}}
	assert.Error(t, msg.Render())
}
