package tags

import (
	"sort"
	"strings"

	"tenantdash/pkg/backend"
)

type TagMapping struct {
	TenantID     string `json:"tenant_id"`
	ExternalTag  string `json:"external_tag"`
	Stage        Stage  `json:"internal_stage"`
	DisplayLabel string `json:"display_label"`
	Description  string `json:"description,omitempty"`
	DisplayOrder int    `json:"display_order"`
	Active       bool   `json:"active"`
}

func tagKey(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// Table is a loaded, immutable mapping table for one tenant. All lookups are
// pure.
type Table struct {
	mappings []TagMapping
	byTag    map[string]int
}

// NewTable keeps only active mappings and orders them by display order; rows
// with equal order keep their input order. When two rows share an external
// tag case-insensitively the first one wins.
func NewTable(ms []TagMapping) *Table {
	t := &Table{byTag: map[string]int{}}
	for _, m := range ms {
		if m.Active {
			t.mappings = append(t.mappings, m)
		}
	}
	sort.SliceStable(t.mappings, func(i, j int) bool {
		return t.mappings[i].DisplayOrder < t.mappings[j].DisplayOrder
	})
	for i, m := range t.mappings {
		k := tagKey(m.ExternalTag)
		if k == "" {
			continue
		}
		if _, dup := t.byTag[k]; !dup {
			t.byTag[k] = i
		}
	}
	return t
}

// Mappings returns a copy of the ordered rows.
func (t *Table) Mappings() []TagMapping {
	if t == nil {
		return nil
	}
	return append([]TagMapping(nil), t.mappings...)
}

func (t *Table) lookup(tag string) (TagMapping, bool) {
	if t == nil {
		return TagMapping{}, false
	}
	i, ok := t.byTag[tagKey(tag)]
	if !ok {
		return TagMapping{}, false
	}
	return t.mappings[i], true
}

// StageOf falls back to StageNewLead for empty or unmapped tags.
func (t *Table) StageOf(tag string) Stage {
	if m, ok := t.lookup(tag); ok {
		return m.Stage
	}
	return StageNewLead
}

// LabelOf falls back to the raw tag.
func (t *Table) LabelOf(tag string) string {
	if m, ok := t.lookup(tag); ok && m.DisplayLabel != "" {
		return m.DisplayLabel
	}
	return tag
}

// StagesByOrder returns the distinct stages present, each ranked by the
// minimum display order of its mappings. Ties go to the stage that appears
// first in the ordered table.
func (t *Table) StagesByOrder() []Stage {
	if t == nil {
		return nil
	}
	type rank struct {
		stage Stage
		min   int
		first int
	}
	seen := map[Stage]*rank{}
	var ranks []*rank
	for i, m := range t.mappings {
		r, ok := seen[m.Stage]
		if !ok {
			r = &rank{stage: m.Stage, min: m.DisplayOrder, first: i}
			seen[m.Stage] = r
			ranks = append(ranks, r)
			continue
		}
		if m.DisplayOrder < r.min {
			r.min = m.DisplayOrder
		}
	}
	sort.SliceStable(ranks, func(i, j int) bool {
		if ranks[i].min != ranks[j].min {
			return ranks[i].min < ranks[j].min
		}
		return ranks[i].first < ranks[j].first
	})
	out := make([]Stage, len(ranks))
	for i, r := range ranks {
		out[i] = r.stage
	}
	return out
}

// fromRow converts a backend row. ok is false when internal_stage was not
// recognized and the row was degraded to StageNewLead.
func fromRow(row backend.TagMappingRow) (m TagMapping, ok bool) {
	stage, ok := ParseStage(row.InternalStage)
	m = TagMapping{
		TenantID:     row.TenantID,
		ExternalTag:  strings.TrimSpace(row.ExternalTag),
		Stage:        stage,
		DisplayLabel: row.DisplayLabel,
		DisplayOrder: row.DisplayOrder,
		Active:       row.Active,
	}
	if row.Description != nil {
		m.Description = *row.Description
	}
	return m, ok
}
