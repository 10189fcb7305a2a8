package mailbox

import (
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"html"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/emersion/go-imap/v2"
)

const maxBodyBytes = 6 << 20

type parsedMessage struct {
	MessageID string
	Subject   string
	From      string
	Body      string
}

// extractBody turns raw RFC822 bytes into a sanitized plain-text body plus
// the headers the pipeline cares about. It never fails: malformed or missing
// structure yields an empty body.
func extractBody(raw []byte) parsedMessage {
	if len(raw) == 0 {
		return parsedMessage{}
	}

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		// Not parseable as a message; sanitize the raw bytes best-effort.
		return parsedMessage{Body: sanitizeText(string(raw))}
	}

	var p parsedMessage
	p.MessageID = strings.Trim(strings.TrimSpace(msg.Header.Get("Message-Id")), "<>")
	if p.MessageID == "" {
		p.MessageID = strings.Trim(strings.TrimSpace(msg.Header.Get("Message-ID")), "<>")
	}
	p.Subject = decodeRFC2047(msg.Header.Get("Subject"))
	if from, err := mail.ParseAddress(msg.Header.Get("From")); err == nil {
		p.From = from.Address
	} else {
		p.From = strings.TrimSpace(msg.Header.Get("From"))
	}

	bodyRaw, _ := io.ReadAll(io.LimitReader(msg.Body, maxBodyBytes))
	plain, htmlPart := extractTextParts(msg.Header, bodyRaw)

	switch {
	case plain != "":
		p.Body = sanitizeText(plain)
	case htmlPart != "":
		p.Body = SanitizeHTML(htmlPart)
	default:
		p.Body = ""
	}
	return p
}

// extractTextParts walks the MIME structure recursively, preferring
// text/plain and text/html leaf parts and keeping the longest of each.
// Missing boundaries or broken parts degrade to whatever decoded, never an
// error.
func extractTextParts(h mail.Header, body []byte) (plain, htmlPart string) {
	ct := h.Get("Content-Type")
	cte := strings.ToLower(strings.TrimSpace(h.Get("Content-Transfer-Encoding")))

	mediaType, params, err := mime.ParseMediaType(ct)
	if err != nil {
		return string(decodeTransferEncoding(body, cte)), ""
	}
	mediaType = strings.ToLower(mediaType)

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return string(decodeTransferEncoding(body, cte)), ""
		}
		mr := multipart.NewReader(bytes.NewReader(body), boundary)

		var bestPlain, bestHTML string
		for {
			part, err := mr.NextPart()
			if err != nil {
				break
			}
			partCTE := strings.ToLower(strings.TrimSpace(part.Header.Get("Content-Transfer-Encoding")))
			pMedia, _, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
			pMedia = strings.ToLower(pMedia)

			b, _ := io.ReadAll(io.LimitReader(part, maxBodyBytes))
			b = decodeTransferEncoding(b, partCTE)

			if strings.HasPrefix(pMedia, "multipart/") {
				pl, ht := extractTextParts(mail.Header(part.Header), b)
				if len(pl) > len(bestPlain) {
					bestPlain = pl
				}
				if len(ht) > len(bestHTML) {
					bestHTML = ht
				}
				continue
			}

			switch {
			case strings.HasPrefix(pMedia, "text/plain"):
				if len(b) > len(bestPlain) {
					bestPlain = string(b)
				}
			case strings.HasPrefix(pMedia, "text/html"):
				if len(b) > len(bestHTML) {
					bestHTML = string(b)
				}
			}
		}
		return bestPlain, bestHTML
	}

	s := decodeTransferEncoding(body, cte)
	if strings.HasPrefix(mediaType, "text/html") {
		return "", string(s)
	}
	return string(s), ""
}

func decodeTransferEncoding(b []byte, cte string) []byte {
	switch cte {
	case "base64":
		dec := base64.NewDecoder(base64.StdEncoding, bytes.NewReader(b))
		out, _ := io.ReadAll(io.LimitReader(dec, maxBodyBytes))
		return out
	case "quoted-printable":
		dec := quotedprintable.NewReader(bytes.NewReader(b))
		out, _ := io.ReadAll(io.LimitReader(dec, maxBodyBytes))
		return out
	default:
		return b
	}
}

func decodeRFC2047(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	dec := new(mime.WordDecoder)
	out, err := dec.DecodeHeader(s)
	if err != nil {
		return s
	}
	return out
}

var reTags = regexp.MustCompile(`(?is)<[^>]+>`)

// SanitizeHTML strips tags, decodes entities and collapses whitespace. The
// result is stable under a second pass (sanitize(sanitize(x)) == sanitize(x)).
func SanitizeHTML(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		// Regex fallback for input the tokenizer rejects outright.
		return sanitizeText(html.UnescapeString(reTags.ReplaceAllString(s, " ")))
	}
	doc.Find("script, style, head").Remove()
	return sanitizeText(doc.Text())
}

func sanitizeText(s string) string {
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}

func syntheticMessageID(from, subject string, uid imap.UID) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("from:%s|sub:%s|uid:%d", from, subject, uid)))
	return "synthetic-" + hex.EncodeToString(sum[:])
}
