// Package pipeline runs the end-to-end conversion as a fixed sequence of
// stages:
//
//	Preflight → Consolidate → Dispatch → Merge
//
// Preflight validates the configuration and resolves the worker executable.
// Consolidate flattens the texture tree into the shared texture folder.
// Dispatch partitions the geometry files into batches and runs one worker
// per batch through the bounded process pool. Merge runs a single worker
// over every batch artifact to produce the final artifact.
//
// Consolidate and Dispatch can be skipped; --only-merge implies both. A
// failed batch downgrades the run to PartialSuccess, while missing geometry,
// zero artifacts or a failed merge abort it.
//
// Files:
//   - runner.go: Orchestrator and the stage sequence.
//   - stages.go: the body of each stage.
//   - discover.go: geometry/texture/artifact scans.
//   - options.go: per-run Options and their normalization.
//   - errors.go: StageError and sentinel errors.
//   - stats.go: Run and StageResult.
//   - logs.go: batch log pruning and archiving.
//   - summary.go: end-of-run report.
package pipeline
