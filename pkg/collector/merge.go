package collector

// mergeState tracks field ownership while one target's inputs are assembled.
// Direct writers always win over indirect ones; among direct writers the last
// one wins for scalars and list fields concatenate in edge order.
type mergeState struct {
	inputs map[string]interface{}

	// directWritten marks fields owned by a direct writer; indirect writes
	// never touch them.
	directWritten map[string]bool

	// listField marks fields assembled by list concatenation.
	listField map[string]bool

	// contributors records (source, field) pairs per list field so
	// provenance can be emitted once a merge actually happens.
	contributors map[string][]provenanceEntry
}

type provenanceEntry struct {
	sourceID string
	field    string
}

func newMergeState() *mergeState {
	return &mergeState{
		inputs:        make(map[string]interface{}),
		directWritten: make(map[string]bool),
		listField:     make(map[string]bool),
		contributors:  make(map[string][]provenanceEntry),
	}
}

// writeDirect performs an unconditional direct write. Scalar fields follow
// last-writer-wins; list fields concatenate in edge order. Every direct write
// is also recorded under the {source_id}_{field} alias.
func (s *mergeState) writeDirect(field string, value interface{}, sourceID string, list bool) {
	if list {
		s.mergeList(field, value, sourceID)
	} else {
		s.inputs[field] = value
	}
	s.directWritten[field] = true
	s.inputs[sourceID+"_"+field] = value
}

// writeIndirect performs a conditional write: only fields nobody has assigned
// yet are filled. Callers iterate ancestors closest-first, so the first
// indirect writer is the closest one.
func (s *mergeState) writeIndirect(field string, value interface{}) {
	if _, exists := s.inputs[field]; exists {
		return
	}
	s.inputs[field] = value
}

// mergeList concatenates list contributions in write order and surfaces
// provenance once a second contributor merges in.
func (s *mergeState) mergeList(field string, value interface{}, sourceID string) {
	incoming := toList(value)

	if !s.listField[field] {
		s.inputs[field] = incoming
		s.listField[field] = true
		s.contributors[field] = []provenanceEntry{{sourceID: sourceID, field: field}}
		return
	}

	existing, _ := s.inputs[field].([]interface{})
	merged := make([]interface{}, 0, len(existing)+len(incoming))
	merged = append(merged, existing...)
	merged = append(merged, incoming...)
	s.inputs[field] = merged

	s.contributors[field] = append(s.contributors[field], provenanceEntry{sourceID: sourceID, field: field})
	s.emitProvenance()
}

// emitProvenance rebuilds the _provenance metadata key from every list field
// that has more than one contributor.
func (s *mergeState) emitProvenance() {
	var entries []interface{}
	for _, field := range sortedContributorFields(s.contributors) {
		list := s.contributors[field]
		if len(list) < 2 {
			continue
		}
		for _, entry := range list {
			entries = append(entries, map[string]interface{}{
				"source_id": entry.sourceID,
				"field":     entry.field,
			})
		}
	}
	if entries != nil {
		s.inputs[ProvenanceKey] = entries
	}
}

func sortedContributorFields(m map[string][]provenanceEntry) []string {
	fields := make([]string, 0, len(m))
	for f := range m {
		fields = append(fields, f)
	}
	// small n; insertion sort keeps this allocation-free beyond the slice
	for i := 1; i < len(fields); i++ {
		key := fields[i]
		j := i - 1
		for j >= 0 && fields[j] > key {
			fields[j+1] = fields[j]
			j--
		}
		fields[j+1] = key
	}
	return fields
}

// toList coerces a value into a list: lists pass through, anything else wraps
// into a single-element list.
func toList(value interface{}) []interface{} {
	if list, ok := value.([]interface{}); ok {
		return list
	}
	return []interface{}{value}
}
