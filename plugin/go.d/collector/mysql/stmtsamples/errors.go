// SPDX-License-Identifier: GPL-3.0-or-later

package stmtsamples

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

const (
	errCodeDBAccessDenied     = 1044 // ER_DBACCESS_DENIED_ERROR
	errCodeNoDB               = 1046 // ER_NO_DB_ERROR
	errCodeBadDB              = 1049 // ER_BAD_DB_ERROR
	errCodeSPDoesNotExist     = 1305 // ER_SP_DOES_NOT_EXIST
	errCodeProcAccessDenied   = 1370 // ER_PROCACCESS_DENIED_ERROR
	errCodeOptionPreventsStmt = 1290 // ER_OPTION_PREVENTS_STATEMENT (read-only)
)

type errorClass int

const (
	// errorClassOther is anything that did not come from the server.
	errorClassOther errorClass = iota
	errorClassRetryable
	errorClassNonRetryable
)

// nonRetryableErrorCodes won't resolve without someone changing grants or
// creating the missing schema/procedure.
var nonRetryableErrorCodes = map[uint16]bool{
	errCodeDBAccessDenied:   true,
	errCodeNoDB:             true,
	errCodeBadDB:            true,
	errCodeSPDoesNotExist:   true,
	errCodeProcAccessDenied: true,
}

func classifyError(err error) errorClass {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return errorClassOther
	}
	if nonRetryableErrorCodes[myErr.Number] {
		return errorClassNonRetryable
	}
	return errorClassRetryable
}

func isMySQLErrorCode(err error, code uint16) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == code
}
