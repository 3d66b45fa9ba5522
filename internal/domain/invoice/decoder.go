package invoice

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/turtacn/nfe-ingest/pkg/errors"
)

// Namespace is the XML namespace of the NF-e schema.
const Namespace = "http://www.portalfiscal.inf.br/nfe"

// Decoder turns a raw base64 payload into a DecodedDocument. It has no state
// and is safe for concurrent use.
type Decoder struct{}

// NewDecoder returns a Decoder.
func NewDecoder() *Decoder { return &Decoder{} }

// Decode unwraps the base64 envelope and extracts the issue date (dhEmi), the
// emitter CNPJ (emit/CNPJ) and the invoice number (nNF). The first occurrence
// of each field in document order wins.
//
// A missing or malformed dhEmi yields year "0000" and month "00"; a missing
// or non-numeric emit/CNPJ yields "00000000000000". Neither is an error. Invalid base64,
// invalid UTF-8, malformed XML, or a payload with no NF-e element at all is.
func (Decoder) Decode(raw string) (*DecodedDocument, error) {
	content, err := base64.StdEncoding.DecodeString(stripSpace(raw))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDecodeBase64, "invalid base64 payload")
	}
	if !utf8.Valid(content) {
		return nil, apperrors.New(apperrors.CodeDecodeEncoding, "decoded payload is not valid UTF-8")
	}

	fields, err := scanFields(content)
	if err != nil {
		return nil, err
	}

	doc := &DecodedDocument{
		IssueYear:      UnknownYear,
		IssueMonth:     UnknownMonth,
		EmitterID:      UnknownEmitter,
		DocumentNumber: fields.number,
		Content:        content,
	}
	if day, ok := issueDay(fields.issuedAt); ok {
		doc.IssuedOn = day
		doc.IssueYear = day[0:4]
		doc.IssueMonth = day[5:7]
	}
	if isDigits(fields.emitter) {
		doc.EmitterID = fields.emitter
	}
	return doc, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

type nfeFields struct {
	issuedAt string
	emitter  string
	number   string
}

// scanFields streams the XML once, tracking the path of NF-e elements.
func scanFields(content []byte) (*nfeFields, error) {
	dec := xml.NewDecoder(bytes.NewReader(content))
	// The bytes are already known to be UTF-8 whatever the prolog declares.
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) { return input, nil }

	var (
		out       nfeFields
		path      []string
		text      strings.Builder
		capturing string
		sawNFe    bool
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeDecodeXML, "malformed XML")
		}

		switch t := tok.(type) {
		case xml.StartElement:
			local := ""
			if t.Name.Space == Namespace {
				sawNFe = true
				local = t.Name.Local
			}
			path = append(path, local)
			if capturing != "" {
				continue
			}
			switch {
			case local == "dhEmi" && out.issuedAt == "":
				capturing = local
			case local == "nNF" && out.number == "":
				capturing = local
			case local == "CNPJ" && out.emitter == "" && len(path) >= 2 && path[len(path)-2] == "emit":
				capturing = local
			}
			if capturing != "" {
				text.Reset()
			}
		case xml.CharData:
			if capturing != "" && len(path) > 0 && path[len(path)-1] == capturing {
				text.Write(t)
			}
		case xml.EndElement:
			if len(path) == 0 {
				continue
			}
			closing := path[len(path)-1]
			path = path[:len(path)-1]
			if capturing == "" || closing != capturing {
				continue
			}
			value := strings.TrimSpace(text.String())
			switch capturing {
			case "dhEmi":
				out.issuedAt = value
			case "nNF":
				out.number = value
			case "CNPJ":
				out.emitter = value
			}
			capturing = ""
		}
	}

	if !sawNFe {
		return nil, apperrors.New(apperrors.CodeNotFiscalDocument, "payload has no element in the NF-e namespace")
	}
	return &out, nil
}

// issueDay validates the date part of a dhEmi timestamp.
func issueDay(dhEmi string) (string, bool) {
	if len(dhEmi) < len(DateLayout) {
		return "", false
	}
	day := dhEmi[:len(DateLayout)]
	if _, err := time.Parse(DateLayout, day); err != nil {
		return "", false
	}
	return day, true
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, s)
}
