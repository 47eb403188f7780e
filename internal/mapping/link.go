package mapping

import (
	"go.uber.org/zap"
)

// LinkOutput reports the result of a Link call. Linked and Skipped are
// populated even when Status is "error" so a caller can see partial progress.
type LinkOutput struct {
	Status      string `json:"status"`
	Linked      []int  `json:"linked"`
	Skipped     []int  `json:"skipped"`
	TargetStart *int   `json:"target_start,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Link joins a source stage's row indices to newly assigned target indices.
// The allocator continues from the highest targetIndexField value already in
// the mapping, so target indices are unique and strictly increasing across
// calls. Source indices with no matching lead are skipped silently; leads
// already linked are reported in Skipped without advancing the allocator.
// Rerunning with the same source indices is therefore idempotent.
func (s *Store) Link(sourceIndexField string, sourceIndices []int, targetIndexField string) LinkOutput {
	m, err := s.Load()
	if err != nil {
		return LinkOutput{Status: "error", Linked: []int{}, Skipped: []int{}, Error: err.Error()}
	}

	maxTarget := -1
	for _, lead := range m.Leads {
		if idx, ok := lead.Index(targetIndexField); ok && idx > maxTarget {
			maxTarget = idx
		}
	}
	next := maxTarget + 1

	bySource := make(map[int]Lead, len(m.Leads))
	for _, lead := range m.Leads {
		if idx, ok := lead.Index(sourceIndexField); ok {
			if _, dup := bySource[idx]; !dup {
				bySource[idx] = lead
			}
		}
	}

	linked := []int{}
	skipped := []int{}
	for _, src := range sourceIndices {
		lead, ok := bySource[src]
		if !ok {
			zap.L().Debug("link: source index not in mapping, skipping",
				zap.String("source_index_field", sourceIndexField),
				zap.Int("source_index", src),
			)
			continue
		}
		if _, already := lead.Index(targetIndexField); already {
			skipped = append(skipped, src)
			continue
		}
		lead[targetIndexField] = next
		linked = append(linked, src)
		next++
	}

	// A failed save reports partial progress; rerunning is cheap because
	// already-linked indices land in Skipped next time.
	if err := s.Save(m); err != nil {
		return LinkOutput{Status: "error", Linked: linked, Skipped: skipped, Error: err.Error()}
	}

	out := LinkOutput{Status: "success", Linked: linked, Skipped: skipped}
	if len(linked) > 0 {
		start := maxTarget + 1
		out.TargetStart = &start
	}

	zap.L().Info("indices linked",
		zap.String("source_index_field", sourceIndexField),
		zap.String("target_index_field", targetIndexField),
		zap.Int("linked", len(linked)),
		zap.Int("skipped", len(skipped)),
	)

	return out
}
