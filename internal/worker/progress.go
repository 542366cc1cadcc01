package worker

import (
	"context"
	"log"
	"time"

	"github.com/yourorg/skill-scanner/internal/scanner"
)

func derivePct(stage string) int {
	switch stage {
	case "start":
		return 5
	case scanner.StageFetch:
		return 10
	case scanner.StageDiscover:
		return 25
	case scanner.StagePreScan:
		return 35
	case scanner.StageAnalyze:
		return 60
	case scanner.StageSubmit:
		return 90
	case scanner.StageDone:
		return 100
	default:
		return 50
	}
}

type stageEvent struct {
	stage, detail string
}

// TrackProgress records flow stages for jobID on a background goroutine so a
// slow store never stalls the scan. When the buffer is full new events are
// dropped; progress only moves forward, so a later stage covers them. stop
// drains pending events and waits for the goroutine to exit.
func TrackProgress(ctx context.Context, st ProgressStore, jobID string) (report scanner.Reporter, stop func()) {
	events := make(chan stageEvent, 32)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for evt := range events {
			uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			if err := st.UpdateProgress(uctx, jobID, derivePct(evt.stage), evt.stage+": "+evt.detail); err != nil {
				log.Printf("job %s: update progress failed: %v", jobID, err)
			}
			cancel()
		}
	}()
	report = func(stage, detail string) {
		select {
		case events <- stageEvent{stage: stage, detail: detail}:
		default:
			log.Printf("job %s: progress backlog full, dropping %s event", jobID, stage)
		}
	}
	return report, func() {
		close(events)
		<-done
	}
}
