package core

import "context"

// installTask is the shared contract of the HTTP Install Task (F) and
// Stream Install Task (G): a single unit of work the Install Scheduler
// runs to completion, tracking its own progress (spec §9 "InstallTaskConfig
// polymorphism" - implemented here as a single interface rather than a
// tagged variant).
type installTask interface {
	sourceIndex() int
	progressValue() int64
	progressMax() int64
	repair(ctx context.Context) error
}
