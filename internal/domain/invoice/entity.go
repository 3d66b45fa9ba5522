// Package invoice holds the NF-e ingestion domain: taxpayer identifiers, query
// windows, decoded documents, dedup fingerprints and the ledger contract.
package invoice

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode"

	apperrors "github.com/turtacn/nfe-ingest/pkg/errors"
)

// TaxpayerIDLength is the number of digits in a normalized CNPJ.
const TaxpayerIDLength = 14

// DateLayout is the day format used by the document API and by QueryWindow.
const DateLayout = "2006-01-02"

// Sentinels used when a document lacks a usable issue date or emitter.
const (
	UnknownYear    = "0000"
	UnknownMonth   = "00"
	UnknownEmitter = "00000000000000"
)

// TaxpayerID is a normalized 14-digit CNPJ.
type TaxpayerID string

func (id TaxpayerID) String() string { return string(id) }

// NormalizeTaxpayerID strips every non-digit from raw and accepts the result
// only when exactly 14 digits remain.
func NormalizeTaxpayerID(raw string) (TaxpayerID, error) {
	var sb strings.Builder
	sb.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	digits := sb.String()
	if len(digits) != TaxpayerIDLength {
		return "", apperrors.InvalidIdentifier(raw)
	}
	return TaxpayerID(digits), nil
}

// NormalizeTaxpayerIDs partitions raw values into valid identifiers, in input
// order and without duplicates, and the rejected raw values. Blank values are
// dropped silently.
func NormalizeTaxpayerIDs(raw []string) (valid []TaxpayerID, rejected []string) {
	seen := make(map[TaxpayerID]struct{}, len(raw))
	for _, r := range raw {
		if strings.TrimFunc(r, unicode.IsSpace) == "" {
			continue
		}
		id, err := NormalizeTaxpayerID(r)
		if err != nil {
			rejected = append(rejected, r)
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		valid = append(valid, id)
	}
	return valid, rejected
}

// QueryWindow is one (identifier, day) retrieval unit.
type QueryWindow struct {
	TaxpayerID TaxpayerID
	Date       time.Time
}

// Day returns the window date formatted as YYYY-MM-DD.
func (w QueryWindow) Day() string { return w.Date.Format(DateLayout) }

func (w QueryWindow) String() string { return w.TaxpayerID.String() + "@" + w.Day() }

// TrailingWindows returns days windows for id ending the day before runDate,
// oldest first. runDate's clock time is ignored.
func TrailingWindows(id TaxpayerID, runDate time.Time, days int) []QueryWindow {
	if days <= 0 {
		return nil
	}
	y, m, d := runDate.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, runDate.Location())
	windows := make([]QueryWindow, 0, days)
	for back := days; back >= 1; back-- {
		windows = append(windows, QueryWindow{TaxpayerID: id, Date: today.AddDate(0, 0, -back)})
	}
	return windows
}

// DedupKey is the content fingerprint of a raw (still encoded) document.
type DedupKey string

func (k DedupKey) String() string { return string(k) }

// FingerprintOf returns the hex SHA-256 of the raw base64 text as returned by
// the API, before any decoding.
func FingerprintOf(raw string) DedupKey {
	sum := sha256.Sum256([]byte(raw))
	return DedupKey(hex.EncodeToString(sum[:]))
}

// DecodedDocument carries the fields extracted from one NF-e plus its bytes.
type DecodedDocument struct {
	IssuedOn       string // YYYY-MM-DD, empty when dhEmi is missing or malformed
	IssueYear      string
	IssueMonth     string
	EmitterID      string
	DocumentNumber string // empty when the document has no nNF
	Content        []byte
}

// HasNumber reports whether the document carried an nNF.
func (d *DecodedDocument) HasNumber() bool { return d.DocumentNumber != "" }

var monthNames = map[string]string{
	"01": "Janeiro",
	"02": "Fevereiro",
	"03": "Marco",
	"04": "Abril",
	"05": "Maio",
	"06": "Junho",
	"07": "Julho",
	"08": "Agosto",
	"09": "Setembro",
	"10": "Outubro",
	"11": "Novembro",
	"12": "Dezembro",
}

// MonthName maps a two-digit month to its Portuguese folder name. Unknown keys,
// including the "00" sentinel, are returned unchanged.
func MonthName(month string) string {
	if name, ok := monthNames[month]; ok {
		return name
	}
	return month
}

// IngestedDocument describes a document that was stored and recorded as new
// during a run. It is what post-ingest sinks receive.
type IngestedDocument struct {
	RunID        string
	Key          DedupKey
	Window       QueryWindow
	Index        int    // 1-based position within its page
	Path         string // full path written by the storage writer
	RelativePath string // path below the storage root
	Document     *DecodedDocument
	IngestedAt   time.Time
}
