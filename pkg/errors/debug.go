package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrorDump is the log view of an error: its typed code, the unwrapped chain and,
// when a Postgres driver produced it, the server-side diagnostics.
type ErrorDump struct {
	Message   string
	Code      Code
	Retryable bool
	Chain     []string
	Postgres  *PostgresDiagnostics
}

// PostgresDiagnostics holds the fields both pgx and lib/pq report.
type PostgresDiagnostics struct {
	SQLState   string
	Message    string
	Detail     string
	Table      string
	Constraint string
}

// Dump unwraps err for logging. A nil error yields an empty dump.
func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{Message: err.Error(), Postgres: postgresDiagnostics(err)}
	if typed := As(err); typed != nil {
		d.Code = typed.Code()
		d.Retryable = typed.Retryable()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	return d
}

// Fields flattens the dump into logger fields, leaving out what is empty.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{"error": d.Message}
	if d.Code != "" {
		fields["error_code"] = string(d.Code)
		fields["retryable"] = d.Retryable
	}
	if len(d.Chain) > 1 {
		fields["error_chain"] = d.Chain
	}
	if pg := d.Postgres; pg != nil {
		fields["pg_code"] = pg.SQLState
		fields["pg_message"] = pg.Message
		for key, value := range map[string]string{
			"pg_detail":     pg.Detail,
			"pg_table":      pg.Table,
			"pg_constraint": pg.Constraint,
		} {
			if value != "" {
				fields[key] = value
			}
		}
	}
	return fields
}

func postgresDiagnostics(err error) *PostgresDiagnostics {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &PostgresDiagnostics{
			SQLState:   pgErr.Code,
			Message:    pgErr.Message,
			Detail:     pgErr.Detail,
			Table:      pgErr.TableName,
			Constraint: pgErr.ConstraintName,
		}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &PostgresDiagnostics{
			SQLState:   string(pqErr.Code),
			Message:    pqErr.Message,
			Detail:     pqErr.Detail,
			Table:      pqErr.Table,
			Constraint: pqErr.Constraint,
		}
	}
	return nil
}
