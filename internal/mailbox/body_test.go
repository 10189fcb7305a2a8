package mailbox

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawMessage(headers string, body string) []byte {
	return []byte(headers + "\r\n\r\n" + body)
}

func TestExtractBodyPlainText(t *testing.T) {
	raw := rawMessage(strings.Join([]string{
		"From: Job Alerts <alerts@jobs.example>",
		"Subject: 3 new jobs for you",
		"Message-Id: <abc123@jobs.example>",
		"Content-Type: text/plain; charset=utf-8",
	}, "\r\n"), "SRE at Acme\r\nhttps://acme.com/jobs/1\r\n")

	p := extractBody(raw)
	assert.Equal(t, "abc123@jobs.example", p.MessageID)
	assert.Equal(t, "3 new jobs for you", p.Subject)
	assert.Equal(t, "alerts@jobs.example", p.From)
	assert.Equal(t, "SRE at Acme https://acme.com/jobs/1", p.Body)
}

func TestExtractBodyPrefersPlainOverHTML(t *testing.T) {
	body := strings.Join([]string{
		"--b1",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"plain version",
		"--b1",
		"Content-Type: text/html; charset=utf-8",
		"",
		"<html><body><p>html version with much more text</p></body></html>",
		"--b1--",
		"",
	}, "\r\n")
	raw := rawMessage(strings.Join([]string{
		"From: alerts@jobs.example",
		"Subject: alert",
		"Content-Type: multipart/alternative; boundary=b1",
	}, "\r\n"), body)

	p := extractBody(raw)
	assert.Equal(t, "plain version", p.Body)
}

func TestExtractBodyHTMLOnly(t *testing.T) {
	body := "<html><head><style>p{color:red}</style></head>" +
		"<body><script>alert(1)</script><p>SRE &amp; Platform at Acme</p></body></html>"
	raw := rawMessage(strings.Join([]string{
		"From: alerts@jobs.example",
		"Subject: alert",
		"Content-Type: text/html; charset=utf-8",
	}, "\r\n"), body)

	p := extractBody(raw)
	assert.Equal(t, "SRE & Platform at Acme", p.Body)
	assert.NotContains(t, p.Body, "alert(1)")
	assert.NotContains(t, p.Body, "color:red")
}

func TestExtractBodyNestedMultipart(t *testing.T) {
	inner := strings.Join([]string{
		"--in",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"nested plain part",
		"--in--",
		"",
	}, "\r\n")
	body := strings.Join([]string{
		"--out",
		"Content-Type: multipart/alternative; boundary=in",
		"",
		inner,
		"--out",
		"Content-Type: application/pdf",
		"",
		"%PDF-fake",
		"--out--",
		"",
	}, "\r\n")
	raw := rawMessage(strings.Join([]string{
		"From: alerts@jobs.example",
		"Subject: alert",
		"Content-Type: multipart/mixed; boundary=out",
	}, "\r\n"), body)

	p := extractBody(raw)
	assert.Equal(t, "nested plain part", p.Body)
}

func TestExtractBodyDecodesTransferEncodings(t *testing.T) {
	b64 := base64.StdEncoding.EncodeToString([]byte("base64 body text"))
	raw := rawMessage(strings.Join([]string{
		"From: alerts@jobs.example",
		"Subject: alert",
		"Content-Type: text/plain; charset=utf-8",
		"Content-Transfer-Encoding: base64",
	}, "\r\n"), b64)
	assert.Equal(t, "base64 body text", extractBody(raw).Body)

	raw = rawMessage(strings.Join([]string{
		"From: alerts@jobs.example",
		"Subject: alert",
		"Content-Type: text/plain; charset=utf-8",
		"Content-Transfer-Encoding: quoted-printable",
	}, "\r\n"), "caf=C3=A9 engineer")
	assert.Equal(t, "café engineer", extractBody(raw).Body)
}

func TestExtractBodyDecodesEncodedSubject(t *testing.T) {
	raw := rawMessage(strings.Join([]string{
		"From: alerts@jobs.example",
		"Subject: =?UTF-8?Q?caf=C3=A9_jobs?=",
		"Content-Type: text/plain",
	}, "\r\n"), "body")
	assert.Equal(t, "café jobs", extractBody(raw).Subject)
}

func TestExtractBodyMalformedNeverFails(t *testing.T) {
	p := extractBody([]byte("complete   garbage\twithout headers"))
	assert.Equal(t, "complete garbage without headers", p.Body)
	assert.Empty(t, p.MessageID)

	assert.Equal(t, parsedMessage{}, extractBody(nil))

	// Multipart declared but boundary missing body parts: degrades, no panic.
	raw := rawMessage(strings.Join([]string{
		"From: alerts@jobs.example",
		"Subject: alert",
		"Content-Type: multipart/alternative; boundary=nope",
	}, "\r\n"), "no parts here")
	assert.NotPanics(t, func() { extractBody(raw) })
}

func TestSanitizeHTMLIdempotent(t *testing.T) {
	in := "<div>Senior&nbsp;Go&nbsp;Engineer &mdash; <b>Acme</b></div>"
	once := SanitizeHTML(in)
	require.NotEmpty(t, once)
	assert.Equal(t, once, SanitizeHTML(once))
}

func TestSyntheticMessageIDStable(t *testing.T) {
	a := syntheticMessageID("alerts@jobs.example", "3 new jobs", 42)
	b := syntheticMessageID("alerts@jobs.example", "3 new jobs", 42)
	c := syntheticMessageID("alerts@jobs.example", "3 new jobs", 43)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, strings.HasPrefix(a, "synthetic-"))
}
