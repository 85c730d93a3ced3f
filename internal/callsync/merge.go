package callsync

import "callmon-api/internal/domain"

// mergeResult summarizes one merge pass for logging and metrics.
type mergeResult struct {
	added           int
	updated         int
	inconsistent    int
	inconsistentIDs []string
}

// mergeHistory folds a fetched history batch into the authoritative
// log, keyed by call identifier. The merge is idempotent: applying the
// same batch twice yields the same log.
//
// Rules:
//   - unknown identifiers are inserted as observed;
//   - a terminal status always wins over active;
//   - an already-terminal record is never regressed to active, and
//     never overwritten with a different terminal status — the
//     disagreement is reported as an inconsistency and the existing
//     record (with its ticket linkage, if any) stands;
//   - the ticket identifier is preserved unconditionally; the PBX
//     never reports it.
func mergeHistory(log map[string]domain.Call, history []domain.Call) mergeResult {
	var res mergeResult

	for _, incoming := range history {
		existing, ok := log[incoming.ID]
		if !ok {
			incoming.TicketID = ""
			log[incoming.ID] = incoming
			res.added++
			continue
		}

		merged, outcome := mergeCall(existing, incoming)
		switch outcome {
		case outcomeUpdated:
			log[incoming.ID] = merged
			res.updated++
		case outcomeInconsistent:
			res.inconsistent++
			res.inconsistentIDs = append(res.inconsistentIDs, incoming.ID)
		case outcomeUnchanged:
		}
	}

	return res
}

type mergeOutcome int

const (
	outcomeUnchanged mergeOutcome = iota
	outcomeUpdated
	outcomeInconsistent
)

func mergeCall(existing, incoming domain.Call) (domain.Call, mergeOutcome) {
	if !existing.Status.Terminal() {
		// Active record: adopt whatever the PBX reports now, keeping
		// only the locally-owned ticket linkage.
		incoming.TicketID = existing.TicketID
		if !incoming.Status.Terminal() {
			incoming.DurationSeconds = nil
		}
		if incoming == existing {
			return existing, outcomeUnchanged
		}
		return incoming, outcomeUpdated
	}

	// Existing record is terminal.
	if !incoming.Status.Terminal() {
		// A stale active view of a call we already know ended.
		return existing, outcomeUnchanged
	}

	if incoming.Status != existing.Status {
		// Two disagreeing terminal observations for one identifier.
		// Keep the first one: overwriting could orphan a ticket that
		// was linked against it.
		return existing, outcomeInconsistent
	}

	// Same terminal status: late-arriving fields may fill in.
	changed := false
	if existing.DurationSeconds == nil && incoming.DurationSeconds != nil {
		d := *incoming.DurationSeconds
		existing.DurationSeconds = &d
		changed = true
	}
	if existing.RecordingURL == "" && incoming.RecordingURL != "" {
		existing.RecordingURL = incoming.RecordingURL
		changed = true
	}
	if !changed {
		return existing, outcomeUnchanged
	}
	return existing, outcomeUpdated
}
