// Package normalize rewrites every column of a loaded table into one of two
// kinds, integer or text, producing a new table.
//
// Every value first goes through CleanText. Flag columns then map yes/no
// tokens to 1/0, integer columns parse base-10, date columns are reduced to
// YYYY-MM-DD, and the remaining text columns store MissingText for recognized
// missing tokens. The ordinal column is copied verbatim, so normalizing an
// already normalized table is a no-op.
package normalize

import "tableflow/internal/ddl"

// Rules declares how columns are typed. Columns not named anywhere are text.
// A date or force-text column is text even when also listed as a flag or
// integer column.
type Rules struct {
	Flags     []string `json:"flags,omitempty" yaml:"flags,omitempty"`
	Integers  []string `json:"integers,omitempty" yaml:"integers,omitempty"`
	Dates     []string `json:"dates,omitempty" yaml:"dates,omitempty"`
	LegalName string   `json:"legal_name,omitempty" yaml:"legal_name,omitempty"`
	Text      []string `json:"text,omitempty" yaml:"text,omitempty"`
}

// DefaultRules returns the rule set of the standard-essential patent
// declaration dataset.
func DefaultRules() Rules {
	return Rules{
		Flags: []string{
			"Explicitely_Disclosed",
			"Normalized_Patent",
			"2G", "3G", "4G", "5G",
			"DECL_IS_PROP_FLAG",
			"LICD_DEC_PREP_TO_GRANT_FLAG",
			"LICD_REC_CONDI_FLAG",
			"Ess_To_Standard",
			"Ess_To_Project",
		},
		Dates:     []string{"IPRD_SIGNATURE_DATE", "Reflected_Date", "PBPA_APP_DATE"},
		LegalName: "COMP_LEGAL_NAME",
	}
}

// rule is the per-column conversion selected by Rules.
type rule int

const (
	ruleText rule = iota
	ruleFlag
	ruleInt
	ruleDate
	ruleLegalName
)

func (r rule) kind() ddl.Kind {
	if r == ruleFlag || r == ruleInt {
		return ddl.Integer
	}
	return ddl.Text
}

func (r rule) apply(clean string) any {
	switch r {
	case ruleFlag:
		return Flag(clean)
	case ruleInt:
		return Int(clean)
	case ruleDate:
		return Text(DateOnly(clean))
	case ruleLegalName:
		return LegalName(clean)
	default:
		return Text(clean)
	}
}

func (r Rules) ruleFor(col string) rule {
	switch {
	case contains(r.Dates, col):
		return ruleDate
	case r.LegalName != "" && col == r.LegalName:
		return ruleLegalName
	case contains(r.Text, col):
		return ruleText
	case contains(r.Flags, col):
		return ruleFlag
	case contains(r.Integers, col):
		return ruleInt
	default:
		return ruleText
	}
}

// Kind reports the kind col takes after normalization.
func (r Rules) Kind(col string) ddl.Kind { return r.ruleFor(col).kind() }

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
