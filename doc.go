// Package histonet classifies 1-D histograms with small neural networks and
// times runs of the external evelyze analysis routine.
//
// Three classifier architectures share one interface: a fully-connected
// network, a three-stage 1-D convolutional network, and a convolutional
// encoder followed by attention pooling. Each maps a (batch, bins) input to
// (batch, classes) logits. Parameters use dotted names so checkpoints stay
// readable across versions.
//
// # Architecture Overview
//
//   - Tensors: Flat float32 storage in cache-aligned slices
//   - Kernels: In-place activations and allocation-free compute loops
//   - Runtime: Bounded worker pool that runs chunked batches in input order
//   - Analysis: Timed, parameterised invocation of evelyze with run history
//
// # Basic Usage
//
//	// Write a model config and an initialised checkpoint
//	histonet init --arch cnn --bins 120 --classes 3
//
//	// Classify histograms, one per CSV line
//	histonet predict histograms.csv
//
//	// Time the analysis and record the run
//	evelyze --folder t/
//
// From Go:
//
//	clf, err := model.New(model.ArchAttention, 120, 3, 1)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	engine, err := runtime.NewEngine(clf, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	preds, err := engine.Execute(ctx, histograms)
//
// # Package Structure
//
//   - core: Tensors, aligned storage, checkpoint framing
//   - kernels: Compute kernels and host CPU detection
//   - model: Classifiers, layers, registry, checkpoints, prediction decoding
//   - runtime: Parallel batch and streaming inference engine
//   - dataset: CSV and binary histogram readers
//   - analysis: evelyze parameters, clocks and the timing driver
//   - history: sqlite store of driver runs
//   - config: YAML model and analysis configuration
//   - logging: Colored slog handler for the command-line tools
//   - cli: Commands behind cmd/histonet, cmd/evelyze and cmd/histperf
package histonet
