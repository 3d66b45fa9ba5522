package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/turtacn/nfe-ingest/pkg/errors"
)

// XmlTypeNFe selects NF-e documents.
const XmlTypeNFe = 1

// NotFoundMarker is the phrase the API puts in a 404 body when the query
// matched no documents.
const NotFoundMarker = "Nenhum arquivo XML localizado"

// Outcome classifies a page request.
type Outcome string

const (
	// OutcomeSuccess is an HTTP 200 with a parsed (possibly empty) page.
	OutcomeSuccess Outcome = "success"
	// OutcomeEmpty is the API's 404 "no documents located" reply.
	OutcomeEmpty Outcome = "empty"
	// OutcomeFailed is any other reply or a transport failure.
	OutcomeFailed Outcome = "failure"
)

// PageRequest is the JSON body of a BaixarXmlsV2 call.
type PageRequest struct {
	XmlType           int    `json:"XmlType"`
	Take              int    `json:"Take"`
	Skip              int    `json:"Skip"`
	DataEmissaoInicio string `json:"DataEmissaoInicio"`
	DataEmissaoFim    string `json:"DataEmissaoFim"`
	CnpjEmit          string `json:"CnpjEmit"`
	Downloadevent     bool   `json:"Downloadevent"`
}

// Page is the result of one classified page request.
type Page struct {
	CNPJ      string
	Date      string
	Skip      int
	Outcome   Outcome
	Documents []string // base64 payloads, in API order
	Attempts  int
}

// Len returns the number of documents on the page.
func (p *Page) Len() int { return len(p.Documents) }

// FetchPage requests one page of NF-e documents emitted by cnpj on date
// (YYYY-MM-DD), starting at skip.
//
// A 200 reply yields OutcomeSuccess. A 404 whose body is a JSON array with the
// not-found marker in its first element yields OutcomeEmpty without retrying.
// Anything else, transport failures included, is retried up to the configured
// attempt ceiling with a fixed delay; exhaustion returns a CodeRetrievalFailed
// error together with a Page reporting OutcomeFailed. A 200 body that is not
// JSON returns CodePageMalformed immediately.
func (c *Client) FetchPage(ctx context.Context, cnpj, date string, skip int) (*Page, error) {
	payload, err := marshal(PageRequest{
		XmlType:           XmlTypeNFe,
		Take:              c.pageSize,
		Skip:              skip,
		DataEmissaoInicio: date,
		DataEmissaoFim:    date,
		CnpjEmit:          cnpj,
		Downloadevent:     false,
	})
	if err != nil {
		return nil, err
	}

	page := &Page{CNPJ: cnpj, Date: date, Skip: skip, Outcome: OutcomeFailed}
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			c.observer.ObserveRetry()
			c.logger.Infof("sieg: waiting %v before attempt %d/%d for cnpj=%s date=%s skip=%d",
				c.retryDelay, attempt, c.maxAttempts, cnpj, date, skip)
			if err := c.sleep(ctx, c.retryDelay); err != nil {
				return page, apperrors.Wrap(err, apperrors.CodeCanceled, "retry wait interrupted")
			}
		}
		page.Attempts = attempt

		start := time.Now()
		resp, err := c.post(ctx, payload)
		elapsed := time.Since(start)

		if err != nil {
			c.observer.ObserveAttempt(string(OutcomeFailed), elapsed)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return page, apperrors.Wrap(ctxErr, apperrors.CodeCanceled, "request interrupted")
			}
			c.logger.Warnf("sieg: attempt %d/%d failed for cnpj=%s date=%s: %v", attempt, c.maxAttempts, cnpj, date, err)
			lastErr = err
			continue
		}

		switch {
		case resp.status == http.StatusOK:
			docs, err := parseDocuments(resp.body)
			if err != nil {
				c.observer.ObserveAttempt(string(OutcomeFailed), elapsed)
				return page, err.WithDetail(fmt.Sprintf("cnpj=%s date=%s skip=%d", cnpj, date, skip))
			}
			c.observer.ObserveAttempt(string(OutcomeSuccess), elapsed)
			page.Outcome = OutcomeSuccess
			page.Documents = docs
			c.logger.Debugf("sieg: cnpj=%s date=%s skip=%d returned %d documents", cnpj, date, skip, len(docs))
			return page, nil

		case resp.status == http.StatusNotFound && isNotFoundMarker(resp.body):
			c.observer.ObserveAttempt(string(OutcomeEmpty), elapsed)
			page.Outcome = OutcomeEmpty
			c.logger.Debugf("sieg: no documents for cnpj=%s date=%s", cnpj, date)
			return page, nil
		}

		c.observer.ObserveAttempt(string(OutcomeFailed), elapsed)
		apiErr := &APIError{StatusCode: resp.status, Body: string(resp.body), RequestID: resp.requestID}
		c.logger.Warnf("sieg: attempt %d/%d for cnpj=%s date=%s returned HTTP %d",
			attempt, c.maxAttempts, cnpj, date, resp.status)
		lastErr = apperrors.Wrap(apiErr, apperrors.CodePermanentAPI, "unexpected status")
	}

	c.logger.Errorf("sieg: all %d attempts failed for cnpj=%s date=%s skip=%d", c.maxAttempts, cnpj, date, skip)
	return page, apperrors.Wrap(lastErr, apperrors.CodeRetrievalFailed, "page retrieval failed").
		WithDetail(fmt.Sprintf("cnpj=%s date=%s skip=%d attempts=%d", cnpj, date, skip, c.maxAttempts))
}

// pageBody is the success body. Entries that are not strings are dropped.
type pageBody struct {
	Xmls json.RawMessage `json:"xmls"`
}

func parseDocuments(body []byte) ([]string, *apperrors.AppError) {
	var pb pageBody
	if err := json.Unmarshal(body, &pb); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodePageMalformed, "response body is not a JSON object")
	}
	if len(pb.Xmls) == 0 || string(pb.Xmls) == "null" {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(pb.Xmls, &items); err != nil {
		// Same as the API returning no list at all.
		return nil, nil
	}
	docs := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			docs = append(docs, s)
		}
	}
	return docs, nil
}

func isNotFoundMarker(body []byte) bool {
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil || len(items) == 0 {
		return false
	}
	var first string
	if err := json.Unmarshal(items[0], &first); err != nil {
		return false
	}
	return strings.Contains(first, NotFoundMarker)
}
