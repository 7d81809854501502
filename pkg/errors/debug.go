package errors

import (
	stdErrors "errors"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"google.golang.org/api/googleapi"
)

// ErrorDump is what a failed command prints to stderr for the operator.
type ErrorDump struct {
	Message   string `json:"message"`
	Code      Code   `json:"code"`
	ExitCode  int    `json:"exit_code"`
	Retryable bool   `json:"retryable"`
	Details   any    `json:"details,omitempty"`

	Chain []string `json:"chain,omitempty"`

	Upstream *UpstreamError `json:"upstream,omitempty"`
}

// UpstreamError is the driver or API error found at the bottom of a chain.
type UpstreamError struct {
	Source     string `json:"source"`
	Status     int    `json:"status,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Location   string `json:"location,omitempty"`
	Constraint string `json:"constraint,omitempty"`
	Table      string `json:"table,omitempty"`
	Message    string `json:"message"`
}

// Dump flattens err for display. Untyped errors are reported as internal.
func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	code := CodeOf(err)
	meta := MetadataFor(code)
	d := ErrorDump{
		Message:   err.Error(),
		Code:      code,
		ExitCode:  meta.ExitCode,
		Retryable: meta.Retryable,
		Upstream:  upstreamOf(err),
	}
	if typed := As(err); typed != nil {
		d.Details = typed.Details()
	}
	for e := err; e != nil; e = stdErrors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	return d
}

func upstreamOf(err error) *UpstreamError {
	var bqErr *bigquery.Error
	if stdErrors.As(err, &bqErr) {
		return &UpstreamError{Source: "bigquery", Reason: bqErr.Reason, Location: bqErr.Location, Message: bqErr.Message}
	}

	var apiErr *googleapi.Error
	if stdErrors.As(err, &apiErr) {
		up := &UpstreamError{Source: "google", Status: apiErr.Code, Message: apiErr.Message}
		if len(apiErr.Errors) > 0 {
			up.Reason = apiErr.Errors[0].Reason
		}
		return up
	}

	var pgxErr *pgconn.PgError
	if stdErrors.As(err, &pgxErr) {
		return &UpstreamError{
			Source:     "postgres",
			Reason:     pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Message:    pgxErr.Message,
		}
	}

	var pqErr *pq.Error
	if stdErrors.As(err, &pqErr) {
		return &UpstreamError{
			Source:     "postgres",
			Reason:     string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Message:    pqErr.Message,
		}
	}

	var liteErr sqlite3.Error
	if stdErrors.As(err, &liteErr) {
		return &UpstreamError{Source: "sqlite", Reason: liteErr.ExtendedCode.Error(), Message: liteErr.Error()}
	}

	return nil
}
