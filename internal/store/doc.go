// Package store owns all SQLite persistence for slidecast: decks, slides,
// scripts, per-slide media assets, jobs (which double as the durable queue
// entries), and per-provider service health flags.
//
// Job rows carry both the queue-transport state (queued/claimed/heartbeat)
// and the lifecycle-tracker state (status, progress, error, timestamps);
// the Mark* methods implement the tracker contract and touch nothing beyond
// the job row; deck and slide state belongs to the stage processors.
package store
