package server

import (
	"strings"
	"testing"
	"time"

	"github.com/carloslauriano/draftmail/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func crlf(s string) string {
	return strings.ReplaceAll(s, "\n", "\r\n")
}

func TestParseMessagePlain(t *testing.T) {
	raw := crlf(`From: Sender <sender@example.com>
To: Ana <ana@example.com>, bob@example.com
Cc: carol@example.com
Subject: =?utf-8?q?Ol=C3=A1?= there
Content-Type: text/plain; charset=utf-8

Hello Ana,
see you soon.
`)

	got, err := ParseMessage(strings.NewReader(raw), []string{"ana@example.com", "Bob@example.com", "dave@example.com"})
	require.NoError(t, err)

	assert.Equal(t, storage.NewEmail{
		To:      "ana@example.com, bob@example.com",
		Cc:      "carol@example.com",
		Bcc:     "dave@example.com",
		Subject: "Olá there",
		Body:    "Hello Ana,\r\nsee you soon.",
	}, got)
}

func TestParseMessageFallbacks(t *testing.T) {
	raw := crlf(`From: sender@example.com

just a body
`)

	got, err := ParseMessage(strings.NewReader(raw), []string{"x@example.com"})
	require.NoError(t, err)

	assert.Equal(t, "x@example.com", got.To)
	assert.Empty(t, got.Bcc)
	assert.Equal(t, NoSubject, got.Subject)
	assert.Equal(t, "just a body", got.Body)
}

func TestParseMessageMultipart(t *testing.T) {
	raw := crlf(`To: a@example.com
Subject: Report
Content-Type: multipart/mixed; boundary="outer"

--outer
Content-Type: multipart/alternative; boundary="inner"

--inner
Content-Type: text/html; charset=utf-8

<p>html <b>version</b></p>
--inner
Content-Type: text/plain; charset=utf-8
Content-Transfer-Encoding: quoted-printable

plain =
version
--inner--
--outer
Content-Type: text/plain
Content-Disposition: attachment; filename="notes.txt"

attachment text
--outer--
`)

	got, err := ParseMessage(strings.NewReader(raw), nil)
	require.NoError(t, err)
	assert.Equal(t, "plain version", got.Body)
}

func TestParseMessageHTMLOnly(t *testing.T) {
	raw := crlf(`To: a@example.com
Subject: Promo
Content-Type: text/html; charset=utf-8

<html><body><p>Fast setup</p><p>Clear results</p></body></html>
`)

	got, err := ParseMessage(strings.NewReader(raw), nil)
	require.NoError(t, err)
	assert.Contains(t, got.Body, "Fast setup")
	assert.Contains(t, got.Body, "Clear results")
	assert.NotContains(t, got.Body, "<p>")
}

func TestParseMessageBadContentType(t *testing.T) {
	raw := crlf(`To: a@example.com
Subject: Broken
Content-Type: multipart/mixed

body
`)

	_, err := ParseMessage(strings.NewReader(raw), nil)
	assert.Error(t, err)
}

func TestRenderMessageRoundTrip(t *testing.T) {
	cc := "c@example.com"
	e := &storage.Email{
		ID:        7,
		To:        "a@example.com",
		Cc:        &cc,
		Subject:   "Olá",
		Body:      "Line one\nLine two",
		CreatedAt: time.Date(2024, 6, 5, 13, 46, 20, 0, time.UTC),
	}

	raw, err := RenderMessage(e, "drafts.test")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Message-Id: "+MessageID(e, "drafts.test"))
	assert.Contains(t, string(raw), "Date: Wed, 05 Jun 2024 13:46:20 +0000")

	back, err := ParseMessage(strings.NewReader(string(raw)), nil)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", back.To)
	assert.Equal(t, "c@example.com", back.Cc)
	assert.Equal(t, "Olá", back.Subject)
	assert.Equal(t, "Line one\r\nLine two", back.Body)
}

func TestMessageIDStable(t *testing.T) {
	a := MessageID(&storage.Email{ID: 1}, "d.test")
	assert.Equal(t, a, MessageID(&storage.Email{ID: 1, Subject: "changed"}, "d.test"))
	assert.NotEqual(t, a, MessageID(&storage.Email{ID: 2}, "d.test"))
	assert.True(t, strings.HasSuffix(a, "@d.test>"))
}
