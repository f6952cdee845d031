package pipeline

// InsertStage rewires newStage to depend on afterStageID, and repoints any
// existing stage that previously depended on afterStageID to depend on
// newStage instead. The whole operation is atomic: if the rewired graph
// fails cycle detection or slice validation, it returns nil and the error,
// and p itself is left unchanged.
func (p *Pipeline) InsertStage(newStage StageConfig, afterStageID string) (*Pipeline, error) {
	if _, ok := p.stages[afterStageID]; !ok {
		return nil, &UnknownDependencyError{StageID: newStage.ID, DependsOn: afterStageID}
	}
	if _, dup := p.stages[newStage.ID]; dup {
		return nil, &DuplicateStageError{StageID: newStage.ID}
	}

	rewired := make([]StageConfig, 0, len(p.stages)+1)

	inserted := newStage
	inserted.DependsOn = append(append([]string(nil), newStage.DependsOn...), afterStageID)
	rewired = append(rewired, inserted)

	for _, id := range p.order {
		st := p.stages[id]
		newDeps := make([]string, 0, len(st.DependsOn))
		for _, dep := range st.DependsOn {
			if dep == afterStageID {
				newDeps = append(newDeps, newStage.ID)
			} else {
				newDeps = append(newDeps, dep)
			}
		}
		st.DependsOn = newDeps
		rewired = append(rewired, st)
	}

	next, err := New(rewired)
	if err != nil {
		// Rollback: the caller's existing Pipeline is untouched because New
		// builds a fresh Pipeline rather than mutating p in place.
		return nil, err
	}
	return next, nil
}
