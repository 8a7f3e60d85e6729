package server

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/carloslauriano/draftmail/storage"
	"github.com/emersion/go-message/textproto"
	"github.com/google/uuid"
	"github.com/jaytaylor/html2text"
	"github.com/pkg/errors"
)

// NoSubject é usado quando a mensagem recebida não tem assunto
const NoSubject = "(no subject)"

// messageIDSpace gera Message-IDs estáveis a partir do id do email
var messageIDSpace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("draftmail"))

var wordDecoder = mime.WordDecoder{}

// ParseMessage converte uma mensagem RFC 5322 em um novo email.
// envelope são os destinatários do RCPT TO; os que não aparecem em To/Cc viram Bcc.
func ParseMessage(r io.Reader, envelope []string) (storage.NewEmail, error) {
	br := bufio.NewReader(r)
	hdr, err := textproto.ReadHeader(br)
	if err != nil {
		return storage.NewEmail{}, errors.Wrap(err, "could not read message header")
	}

	to := addressList(hdr.Get("To"))
	cc := addressList(hdr.Get("Cc"))
	if len(to) == 0 {
		to = envelope
	}

	var bcc []string
	known := make(map[string]bool, len(to)+len(cc))
	for _, a := range append(append([]string{}, to...), cc...) {
		known[strings.ToLower(a)] = true
	}
	for _, a := range envelope {
		if !known[strings.ToLower(a)] {
			bcc = append(bcc, a)
			known[strings.ToLower(a)] = true
		}
	}

	subject := decodeWords(hdr.Get("Subject"))
	if strings.TrimSpace(subject) == "" {
		subject = NoSubject
	}

	body, err := plainText(br, hdr.Get("Content-Type"), hdr.Get("Content-Transfer-Encoding"))
	if err != nil {
		return storage.NewEmail{}, err
	}

	return storage.NewEmail{
		To:      strings.Join(to, ", "),
		Cc:      strings.Join(cc, ", "),
		Bcc:     strings.Join(bcc, ", "),
		Subject: subject,
		Body:    strings.TrimSpace(body),
	}, nil
}

// addressList extrai os endereços de um cabeçalho; se não for uma lista válida, devolve o texto cru
func addressList(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	addrs, err := mail.ParseAddressList(value)
	if err != nil {
		return []string{decodeWords(value)}
	}

	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.Address)
	}
	return out
}

func decodeWords(s string) string {
	decoded, err := wordDecoder.DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}

func decodeTransfer(r io.Reader, encoding string) io.Reader {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "quoted-printable":
		return quotedprintable.NewReader(r)
	case "base64":
		return base64.NewDecoder(base64.StdEncoding, r)
	default:
		return r
	}
}

// plainText escolhe o corpo legível da mensagem:
// a primeira parte text/plain; senão a primeira text/html convertida em texto.
// Anexos são ignorados.
func plainText(r io.Reader, contentType, encoding string) (string, error) {
	var text, html string
	found := false

	var resolve func(r io.Reader, cType, cEncoding, cDisposition string) error
	resolve = func(r io.Reader, cType, cEncoding, cDisposition string) error {
		if cDisposition != "" {
			disposition, params, err := mime.ParseMediaType(cDisposition)
			if err == nil && (disposition == "attachment" || params["filename"] != "") {
				return nil
			}
		}

		mediaType := "text/plain"
		var params map[string]string
		if cType != "" {
			var err error
			mediaType, params, err = mime.ParseMediaType(cType)
			if err != nil {
				return errors.Wrapf(err, "could not parse media type from %s", cType)
			}
		}

		if strings.HasPrefix(mediaType, "multipart/") {
			boundary := params["boundary"]
			if boundary == "" {
				return errors.New("multipart message without boundary")
			}

			parts := multipart.NewReader(r, boundary)
			for !found {
				part, err := parts.NextRawPart()
				if err == io.EOF {
					return nil
				} else if err != nil {
					return errors.Wrap(err, "could not read multipart section")
				}

				err = resolve(part,
					part.Header.Get("Content-Type"),
					part.Header.Get("Content-Transfer-Encoding"),
					part.Header.Get("Content-Disposition"),
				)
				if err != nil {
					return err
				}
			}
			return nil
		}

		switch mediaType {
		case "text/plain":
			value, err := io.ReadAll(decodeTransfer(r, cEncoding))
			if err != nil {
				return errors.Wrap(err, "could not continue reading body")
			}
			text = string(value)
			found = true
		case "text/html":
			if html != "" {
				return nil
			}
			value, err := io.ReadAll(decodeTransfer(r, cEncoding))
			if err != nil {
				return errors.Wrap(err, "could not continue reading body")
			}
			html = string(value)
		}
		return nil
	}

	if err := resolve(r, contentType, encoding, ""); err != nil {
		return "", err
	}

	if found {
		return text, nil
	}
	if html != "" {
		value, err := html2text.FromString(html, html2text.Options{OmitLinks: true})
		if err != nil {
			return "", errors.Wrap(err, "could not convert html body")
		}
		return value, nil
	}
	return "", nil
}

// MessageID retorna o Message-ID estável do email
func MessageID(e *storage.Email, domain string) string {
	id := uuid.NewSHA1(messageIDSpace, []byte(strconv.FormatInt(e.ID, 10)))
	return fmt.Sprintf("<%s@%s>", id, domain)
}

// RenderMessage escreve o email como uma mensagem RFC 5322 em texto puro
func RenderMessage(e *storage.Email, domain string) ([]byte, error) {
	var h textproto.Header
	h.Set("Message-Id", MessageID(e, domain))
	h.Set("Date", e.CreatedAt.Format(time.RFC1123Z))
	h.Set("To", e.To)
	if e.Cc != nil {
		h.Set("Cc", *e.Cc)
	}
	if e.Bcc != nil {
		h.Set("Bcc", *e.Bcc)
	}
	h.Set("Subject", mime.QEncoding.Encode("utf-8", e.Subject))
	h.Set("Mime-Version", "1.0")
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	var buf bytes.Buffer
	if err := textproto.WriteHeader(&buf, h); err != nil {
		return nil, fmt.Errorf("falha ao escrever cabeçalho: %w", err)
	}

	qp := quotedprintable.NewWriter(&buf)
	body := strings.ReplaceAll(strings.ReplaceAll(e.Body, "\r\n", "\n"), "\n", "\r\n")
	if _, err := io.WriteString(qp, body); err != nil {
		return nil, fmt.Errorf("falha ao escrever corpo: %w", err)
	}
	if err := qp.Close(); err != nil {
		return nil, fmt.Errorf("falha ao escrever corpo: %w", err)
	}
	return buf.Bytes(), nil
}
