// SPDX-License-Identifier: GPL-3.0-or-later

package sqlobfuscate

import (
	"fmt"

	"github.com/valyala/fastjson"
)

// keys of EXPLAIN FORMAT=JSON output that carry SQL fragments with literals
var planSQLKeys = map[string]bool{
	"attached_condition": true,
	"index_condition":    true,
	"having_condition":   true,
	"pushed_condition":   true,
	"table_condition":    true,
	"condition":          true,
}

// keys whose values depend on table statistics rather than on plan shape
var planVolatileKeys = map[string]bool{
	"cost_info":              true,
	"rows_examined_per_scan": true,
	"rows_produced_per_join": true,
	"filtered":               true,
	"data_read_per_join":     true,
	"query_cost":             true,
	"prefix_cost":            true,
	"read_cost":              true,
	"eval_cost":              true,
	"sort_cost":              true,
}

// ObfuscateExecPlan obfuscates SQL fragments embedded in a JSON plan. With
// normalize set, statistics-dependent values are replaced as well so that
// identical plan shapes produce identical output.
func (o *Obfuscator) ObfuscateExecPlan(plan string, normalize bool) (string, error) {
	var p fastjson.Parser
	v, err := p.Parse(plan)
	if err != nil {
		return "", fmt.Errorf("parse execution plan: %w", err)
	}

	var a fastjson.Arena
	o.walkPlan(&a, v, normalize)

	return string(v.MarshalTo(nil)), nil
}

func (o *Obfuscator) walkPlan(a *fastjson.Arena, v *fastjson.Value, normalize bool) {
	switch v.Type() {
	case fastjson.TypeArray:
		for _, item := range v.GetArray() {
			o.walkPlan(a, item, normalize)
		}
	case fastjson.TypeObject:
		obj := v.GetObject()

		replace := make(map[string]*fastjson.Value)
		obj.Visit(func(key []byte, val *fastjson.Value) {
			k := string(key)
			switch {
			case normalize && planVolatileKeys[k]:
				replace[k] = a.NewString("?")
			case planSQLKeys[k] && val.Type() == fastjson.TypeString:
				replace[k] = a.NewString(o.obfuscateFragment(string(val.GetStringBytes())))
			default:
				o.walkPlan(a, val, normalize)
			}
		})

		for k, nv := range replace {
			obj.Set(k, nv)
		}
	}
}
