package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// maxDumpChain bounds the chain so a cyclic or very deep wrap cannot flood a
// log line.
const maxDumpChain = 16

// ErrorDump is the log-friendly view of an error chain.
type ErrorDump struct {
	TopMessage string `json:"top_message"`
	Code       Code   `json:"code,omitempty"`

	Chain []string `json:"chain,omitempty"`

	PGCode       string `json:"pg_code,omitempty"`
	PGClass      string `json:"pg_class,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGColumn     string `json:"pg_column,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
	PGMessage    string `json:"pg_message,omitempty"`
}

// Dump flattens err for logging. Joined errors are walked depth first, and
// the first postgres error found fills the PG fields.
func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}

	walk(err, func(e error) {
		if len(d.Chain) < maxDumpChain {
			d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
		}
	})

	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		d.PGCode = pgxErr.Code
		d.PGConstraint = pgxErr.ConstraintName
		d.PGTable = pgxErr.TableName
		d.PGColumn = pgxErr.ColumnName
		d.PGDetail = pgxErr.Detail
		d.PGMessage = pgxErr.Message
	} else {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			d.PGCode = string(pqErr.Code)
			d.PGConstraint = pqErr.Constraint
			d.PGTable = pqErr.Table
			d.PGColumn = pqErr.Column
			d.PGDetail = pqErr.Detail
			d.PGMessage = pqErr.Message
		}
	}
	if d.PGCode != "" {
		d.PGClass = pq.ErrorCode(d.PGCode).Class().Name()
	}
	return d
}

func walk(err error, visit func(error)) {
	for depth := 0; err != nil && depth < maxDumpChain; depth++ {
		visit(err)
		switch e := err.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range e.Unwrap() {
				walk(inner, visit)
			}
			return
		default:
			err = errors.Unwrap(err)
		}
	}
}
