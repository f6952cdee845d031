package pipeline

// CrossValidate reports every stage that references a worker or gate not
// present in the given known sets. It never mutates the pipeline.
func (p *Pipeline) CrossValidate(knownWorkers, knownGates []string) []error {
	workers := make(map[string]bool, len(knownWorkers))
	for _, w := range knownWorkers {
		workers[w] = true
	}
	gates := make(map[string]bool, len(knownGates))
	for _, g := range knownGates {
		gates[g] = true
	}

	var errs []error
	for _, id := range p.order {
		st := p.stages[id]
		if st.Worker != "" && !workers[st.Worker] {
			errs = append(errs, &UnregisteredWorkerError{StageID: st.ID, WorkerID: st.Worker})
		}
		if st.Gate != "" && !gates[st.Gate] {
			errs = append(errs, &UnregisteredGateError{StageID: st.ID, GateID: st.Gate})
		}
	}
	return errs
}
