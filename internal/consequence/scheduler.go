package consequence

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// DecayScheduler periodically decays the confidence of every record in a
// domain, using a standard cron expression. It is optional glue: nothing
// in Memory itself depends on it, and a caller that never constructs one
// gets no background decay at all.
type DecayScheduler struct {
	cron   *cron.Cron
	memory *Memory
	log    *slog.Logger
}

// NewDecayScheduler builds a scheduler around memory. Call Start to begin
// running the scheduled decay jobs, and Stop to halt them.
func NewDecayScheduler(memory *Memory, log *slog.Logger) *DecayScheduler {
	if log == nil {
		log = slog.Default()
	}
	return &DecayScheduler{cron: cron.New(), memory: memory, log: log}
}

// ScheduleDomainDecay registers a standard cron expression that decays
// every record in domain by amount, on each tick, attributed to
// "run-auditor" (the only caller DecayConfidence accepts).
func (d *DecayScheduler) ScheduleDomainDecay(cronExpr, domain string, amount float64) (cron.EntryID, error) {
	return d.cron.AddFunc(cronExpr, func() {
		records, err := d.memory.GetByDomain(domain)
		if err != nil {
			d.log.Error("decay scheduler: list domain records failed", "domain", domain, "error", err)
			return
		}
		for _, r := range records {
			if _, err := d.memory.DecayConfidence(r.ID, amount, runAuditorCaller); err != nil {
				d.log.Error("decay scheduler: decay failed", "recordId", r.ID, "error", err)
			}
		}
	})
}

// Start begins running scheduled decay jobs in the background.
func (d *DecayScheduler) Start() { d.cron.Start() }

// Stop halts the scheduler and waits for any running job to finish.
func (d *DecayScheduler) Stop() { <-d.cron.Stop().Done() }
