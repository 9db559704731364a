package tokenlife

import "time"

// startSweeper runs the periodic cleanup of expired concurrency-gate
// entries. Redis-held state (denylist, token-set records, chain counters)
// expires through key TTLs and needs no sweep. The sweep runs concurrently
// with all engine operations and never pauses them.
func (e *Engine) startSweeper() {
	if e.config.Sweep.Interval <= 0 {
		return
	}

	e.sweepStop = make(chan struct{})
	e.sweepWG.Add(1)

	go func() {
		defer e.sweepWG.Done()
		ticker := time.NewTicker(e.config.Sweep.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				e.gate.Sweep(e.now(), e.config.Refresh.GracePeriod)
			case <-e.sweepStop:
				return
			}
		}
	}()
}

func (e *Engine) stopSweeper() {
	if e.sweepStop == nil {
		return
	}
	close(e.sweepStop)
	e.sweepWG.Wait()
}
