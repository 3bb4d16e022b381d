// SPDX-License-Identifier: GPL-3.0-or-later

package stmtsamples

import (
	"context"

	"github.com/netdata/netdata/go/stmtsampler/plugin/go.d/pkg/sqlquery"
)

const queryShowSessionLogVariables = `
SHOW SESSION VARIABLES
WHERE
  Variable_name LIKE 'sql_log_off'
  OR Variable_name LIKE 'slow_query_log';`

// sessionLogSwitch turns one server-side log off for the current session
// when the variable still has the value in enabled.
type sessionLogSwitch struct {
	variable string
	enabled  string
	disable  string
	// required switches failing turn DisableSessionQueryLog off for good
	required bool
}

var sessionLogSwitches = []sessionLogSwitch{
	// needs SUPER or SYSTEM_VARIABLES_ADMIN
	{variable: "sql_log_off", enabled: "OFF", disable: "SET SESSION sql_log_off='ON';", required: true},
	{variable: "slow_query_log", enabled: "ON", disable: "SET SESSION slow_query_log='OFF';"},
}

// disableSessionQueryLog keeps the sampler's own EXPLAINs and
// performance_schema reads out of the general and slow query logs.
func (s *Sampler) disableSessionQueryLog(ctx context.Context, conn dbConn) {
	vars := make(map[string]string, len(sessionLogSwitches))
	var name string

	_, err := sqlquery.QueryRows(ctx, conn, queryShowSessionLogVariables, func(column, value string, _ bool) {
		switch column {
		case "Variable_name":
			name = value
		case "Value":
			vars[name] = value
		}
	})
	if err != nil {
		s.Debugf("failed to read session log variables: %v", err)
		return
	}

	for _, sw := range sessionLogSwitches {
		if vars[sw.variable] != sw.enabled {
			continue
		}
		if _, err := conn.ExecContext(ctx, sw.disable); err != nil {
			if sw.required {
				s.Infof("failed to disable session log (%s): %v", sw.variable, err)
				s.DisableSessionQueryLog = false
			} else {
				s.Debugf("failed to disable session log (%s): %v", sw.variable, err)
			}
		}
	}
}
