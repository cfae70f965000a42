package weights

import "github.com/google/uuid"

// Snapshot is an immutable copy of a study's weight state, taken at the start
// of an aggregation run. Later weight edits never affect a run already holding
// an earlier snapshot.
type Snapshot struct {
	StudyID    uuid.UUID
	Version    int64
	PrimaryICP *uuid.UUID
	weights    map[uuid.UUID]float64
}

func NewSnapshot(studyID uuid.UUID, version int64, primaryICP *uuid.UUID, weights map[uuid.UUID]float64) Snapshot {
	copied := make(map[uuid.UUID]float64, len(weights))
	for id, w := range weights {
		copied[id] = w
	}
	var icp *uuid.UUID
	if primaryICP != nil {
		v := *primaryICP
		icp = &v
	}
	return Snapshot{StudyID: studyID, Version: version, PrimaryICP: icp, weights: copied}
}

// Get returns the persona's weight, defaulting to 1.0 when unset.
func (s Snapshot) Get(personaID uuid.UUID) float64 {
	if w, ok := s.weights[personaID]; ok {
		return w
	}
	return 1.0
}

// Has reports whether the persona has an explicit override row.
func (s Snapshot) Has(personaID uuid.UUID) bool {
	_, ok := s.weights[personaID]
	return ok
}

func (s Snapshot) Len() int { return len(s.weights) }
