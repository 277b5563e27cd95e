// Package tags normalizes free-form external status tags into the fixed
// internal pipeline vocabulary, per tenant.
package tags

import "strings"

// Stage is the closed set of pipeline stages.
type Stage string

const (
	StageNewLead      Stage = "NewLead"
	StageQualifying   Stage = "Qualifying"
	StageQualified    Stage = "Qualified"
	StageFollowUp     Stage = "FollowUp"
	StageDisqualified Stage = "Disqualified"
)

// Stages lists every stage in pipeline order.
func Stages() []Stage {
	return []Stage{StageNewLead, StageQualifying, StageQualified, StageFollowUp, StageDisqualified}
}

// stageAliases holds the spellings tenant tables use for internal_stage,
// compacted by compactStage.
var stageAliases = map[string]Stage{
	"newlead":        StageNewLead,
	"new":            StageNewLead,
	"novolead":       StageNewLead,
	"novo":           StageNewLead,
	"qualifying":     StageQualifying,
	"qualificando":   StageQualifying,
	"emqualificacao": StageQualifying,
	"qualified":      StageQualified,
	"qualificado":    StageQualified,
	"followup":       StageFollowUp,
	"acompanhamento": StageFollowUp,
	"retorno":        StageFollowUp,
	"disqualified":   StageDisqualified,
	"desqualificado": StageDisqualified,
}

func compactStage(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch r {
		case ' ', '_', '-', '.':
			continue
		case 'ç':
			r = 'c'
		case 'ã', 'á', 'â':
			r = 'a'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ParseStage maps a raw internal_stage value onto the enumeration. It is
// total: unrecognized input yields StageNewLead, false.
func ParseStage(raw string) (Stage, bool) {
	if s, ok := stageAliases[compactStage(raw)]; ok {
		return s, true
	}
	return StageNewLead, false
}
