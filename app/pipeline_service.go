// Package app orchestrates the training and scoring pipelines over the
// domain and the ports. Services own sequencing and run accounting; all
// statistics, feature and model logic stays in the domain packages.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"offerctr/domain/core"
	"offerctr/domain/ensemble"
	"offerctr/domain/feature"
	"offerctr/domain/resample"
	"offerctr/domain/table"
	"offerctr/internal"
	"offerctr/internal/dataset"
	"offerctr/internal/eval"
	"offerctr/internal/metrics"
	"offerctr/ports"
)

// PipelineService runs the end-to-end training pipeline: chunked loading,
// leakage-safe featurization, selection, resampling, the seeded ensemble
// fit, held-out evaluation and run persistence.
type PipelineService struct {
	source      ports.TableSourcePort
	booster     ports.BoosterPort
	resampler   ports.ResamplerPort
	scorer      ports.ImportanceScorerPort
	rejectSink  ports.RejectSinkPort
	predictions ports.PredictionSinkPort
	runs        ports.RunStorePort
	snapshots   ports.SnapshotStorePort // optional; nil disables warm start and state export
	logger      *internal.Logger
}

// NewPipelineService creates a pipeline service. The snapshot store may be
// nil, in which case every run starts cold and exports nothing.
func NewPipelineService(
	source ports.TableSourcePort,
	booster ports.BoosterPort,
	resampler ports.ResamplerPort,
	scorer ports.ImportanceScorerPort,
	rejectSink ports.RejectSinkPort,
	predictions ports.PredictionSinkPort,
	runs ports.RunStorePort,
	snapshots ports.SnapshotStorePort,
) *PipelineService {
	return &PipelineService{
		source:      source,
		booster:     booster,
		resampler:   resampler,
		scorer:      scorer,
		rejectSink:  rejectSink,
		predictions: predictions,
		runs:        runs,
		snapshots:   snapshots,
		logger:      internal.NewDefaultLogger().Component("pipeline"),
	}
}

// TrainRequest defines one training run. Offers and Transactions are
// optional side inputs: offers join onto every interaction chunk,
// transactions feed the spend ledger before any interaction is featurized.
type TrainRequest struct {
	Interactions ports.TableRequest
	Offers       *dataset.AuxTable
	Transactions *ports.TableRequest

	Loader    dataset.Config
	Assembler feature.Config
	Selector  feature.Selector
	Ensemble  ensemble.Config
	Method    resample.Method

	// ValidationFraction is the newest share of rows held out for
	// evaluation, strictly inside (0,1)
	ValidationFraction float64

	// Workers caps concurrent member fits; zero means GOMAXPROCS
	Workers int

	// SnapshotName addresses persisted statistic state. WarmStart loads it
	// before training when the config hash matches; state is exported under
	// the same name after a completed run.
	SnapshotName string
	WarmStart    bool
}

// TrainResult is the outcome of one completed run
type TrainResult struct {
	RunID     core.RunID      `json:"run_id"`
	Metrics   eval.Result     `json:"metrics"`
	Counts    ports.RunCounts `json:"counts"`
	Columns   []string        `json:"columns"`
	RuntimeMs int64           `json:"runtime_ms"`

	// Artifact carries the fitted state for in-process scoring
	Artifact *TrainedArtifact `json:"-"`
}

// TrainedArtifact is everything scoring needs: the assembler frozen at the
// training watermark, the column selection, and the fitted members with
// their combination weights.
type TrainedArtifact struct {
	RunID      core.RunID
	Assembler  *feature.Assembler
	Selection  feature.Selection
	SchemaHash core.SchemaHash
	Members    []ensemble.Member
	Weights    map[core.ModelID]float64
}

// Train executes the full pipeline. The run manifest is saved as running
// first, then updated to completed or failed; per-record rejects flow to the
// reject sink throughout and never abort the run.
func (s *PipelineService) Train(ctx context.Context, req TrainRequest) (*TrainResult, error) {
	start := time.Now()

	assembler, err := feature.New(req.Assembler)
	if err != nil {
		return nil, fmt.Errorf("building assembler: %w", err)
	}

	runID := core.RunID(core.NewID())
	configHash := s.fingerprint(req)

	manifest := ports.RunManifest{
		RunID:        runID,
		Status:       ports.RunRunning,
		StartedAt:    core.Now(),
		ConfigHash:   configHash,
		ResampleName: req.Method.Name,
	}
	if err := s.runs.SaveManifest(ctx, manifest); err != nil {
		return nil, fmt.Errorf("saving run manifest: %w", err)
	}
	s.logger.Info("run %s started, resample=%s, members=%d",
		runID, req.Method.Name, len(req.Ensemble.Members()))

	result, err := s.execute(ctx, runID, configHash, assembler, req)
	if err != nil {
		s.markFailed(ctx, manifest, err)
		metrics.RecordRunFinished(string(ports.RunFailed))
		return nil, err
	}

	completedAt := core.Now()
	manifest.Status = ports.RunCompleted
	manifest.CompletedAt = &completedAt
	manifest.SchemaHash = result.Artifact.SchemaHash
	manifest.Columns = result.Columns
	manifest.Counts = result.Counts
	manifest.Metrics = &ports.RunMetrics{AUC: result.Metrics.AUC, LogLoss: result.Metrics.LogLoss}
	for _, m := range result.Artifact.Members {
		manifest.Members = append(manifest.Members, m.ID)
	}
	if err := s.runs.UpdateManifest(ctx, manifest); err != nil {
		return nil, fmt.Errorf("completing run manifest: %w", err)
	}
	metrics.RecordRunFinished(string(ports.RunCompleted))

	result.RuntimeMs = time.Since(start).Milliseconds()
	s.logger.Info("run %s completed in %dms, auc=%.4f, log_loss=%.4f",
		runID, result.RuntimeMs, result.Metrics.AUC, result.Metrics.LogLoss)
	return result, nil
}

// execute is the fallible middle of Train; any error here marks the run
// failed.
func (s *PipelineService) execute(
	ctx context.Context,
	runID core.RunID,
	configHash core.ConfigHash,
	assembler *feature.Assembler,
	req TrainRequest,
) (*TrainResult, error) {
	loader, err := dataset.New(s.source, req.Loader)
	if err != nil {
		return nil, fmt.Errorf("building loader: %w", err)
	}

	if req.Offers != nil {
		if err := loader.LoadAux(ctx, *req.Offers); err != nil {
			return nil, fmt.Errorf("loading offer table: %w", err)
		}
		metrics.UpdateBytesHeld(loader.HeldBytes())
	}

	var counts ports.RunCounts

	// The spend ledger ingests the full transaction history before any
	// interaction is featurized. Ledger lookups are strictly prior to the
	// asked timestamp, so resident future transactions cannot leak.
	if req.Transactions != nil {
		rejected, err := s.ingestTransactions(ctx, runID, loader, assembler, *req.Transactions)
		if err != nil {
			return nil, err
		}
		counts.RejectedRows += rejected
	}

	var pending *ports.SnapshotBundle
	if req.WarmStart {
		pending = s.loadWarmState(ctx, req.SnapshotName, configHash)
	}

	master, labels, lastEvent, err := s.featurize(ctx, runID, loader, assembler, req, pending, &counts)
	if err != nil {
		return nil, err
	}

	split, err := TimeOrderedSplit(master, labels, req.ValidationFraction)
	if err != nil {
		return nil, err
	}
	counts.TrainRows = split.Train.Len()
	counts.EvalRows = split.Validation.Len()

	// Selection runs on the natural training distribution, before any
	// resampling, and the surviving contract is frozen for both sides.
	selection, err := req.Selector.Select(split.Train, split.TrainLabels, s.scorer)
	if err != nil {
		return nil, fmt.Errorf("feature selection: %w", err)
	}
	schemaHash := selection.Schema().Hash()
	s.logger.Info("run %s selected %d of %d columns", runID, len(selection.Columns), master.Schema.Width())

	train, err := selection.Apply(split.Train)
	if err != nil {
		return nil, err
	}
	validation, err := selection.Apply(split.Validation)
	if err != nil {
		return nil, err
	}

	trainLabels := split.TrainLabels
	if !req.Method.IsNone() {
		resampled, err := s.resampler.Resample(ctx, ports.ResampleRequest{
			Matrix: train,
			Labels: trainLabels,
			Method: req.Method,
			Seed:   req.Ensemble.BaseSeed,
		})
		if err != nil {
			return nil, fmt.Errorf("resampling: %w", err)
		}
		s.logger.Info("run %s resampled %d -> %d training rows via %s",
			runID, resampled.SourceRows, resampled.ResultRows, req.Method.Name)
		train, trainLabels = resampled.Matrix, resampled.Labels
	}
	counts.ResampledRows = train.Len()

	members, weights, err := s.fitEnsemble(ctx, req, train, trainLabels, schemaHash)
	if err != nil {
		return nil, err
	}

	scored, combined, err := scoreRows(validation, members, weights)
	if err != nil {
		return nil, err
	}
	evaluated, err := eval.Evaluate(combined, split.ValidationLabels)
	if err != nil {
		return nil, fmt.Errorf("evaluating held-out rows: %w", err)
	}
	s.logger.Info("held-out evaluation: auc=%.4f, log_loss=%.4f over %d rows",
		evaluated.AUC, evaluated.LogLoss, validation.Len())
	if err := s.predictions.WritePredictions(ctx, runID, scored); err != nil {
		return nil, fmt.Errorf("writing predictions: %w", err)
	}
	metrics.RecordPredictionsWritten(len(scored))

	if s.snapshots != nil && req.SnapshotName != "" && !lastEvent.IsZero() {
		if err := s.exportState(ctx, assembler, req.SnapshotName, configHash, lastEvent); err != nil {
			return nil, err
		}
	}

	return &TrainResult{
		RunID:   runID,
		Metrics: evaluated,
		Counts:  counts,
		Columns: selection.Columns,
		Artifact: &TrainedArtifact{
			RunID:      runID,
			Assembler:  assembler,
			Selection:  selection,
			SchemaHash: schemaHash,
			Members:    members,
			Weights:    weights,
		},
	}, nil
}

// ingestTransactions streams the transaction table into the spend ledger
func (s *PipelineService) ingestTransactions(
	ctx context.Context,
	runID core.RunID,
	loader *dataset.Loader,
	assembler *feature.Assembler,
	req ports.TableRequest,
) (int, error) {
	stream, err := loader.Stream(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("opening transactions: %w", err)
	}
	defer stream.Close()

	var rejected int
	for {
		batch, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rejected, fmt.Errorf("reading transactions: %w", err)
		}
		rejects, err := assembler.IngestTransactions(batch)
		if err != nil {
			return rejected, fmt.Errorf("ingesting transactions: %w", err)
		}
		rejected += s.sinkRejects(ctx, runID, rejects)
	}
	return rejected, nil
}

// featurize streams the interaction table through the assembler, folding
// accepted rows into one chronologically ordered matrix. Warm state, when
// present, is restored lazily against the first batch's first event so the
// watermark guard sees the real boundary.
func (s *PipelineService) featurize(
	ctx context.Context,
	runID core.RunID,
	loader *dataset.Loader,
	assembler *feature.Assembler,
	req TrainRequest,
	pending *ports.SnapshotBundle,
	counts *ports.RunCounts,
) (*feature.Matrix, []float64, core.Timestamp, error) {
	stream, err := loader.Stream(ctx, req.Interactions)
	if err != nil {
		return nil, nil, core.Timestamp{}, fmt.Errorf("opening interactions: %w", err)
	}
	defer stream.Close()

	master := feature.NewMatrix(assembler.Schema())
	var labels []float64
	var lastEvent core.Timestamp

	for {
		batch, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, lastEvent, fmt.Errorf("reading interactions: %w", err)
		}
		if batch.Rows() == 0 {
			continue
		}

		if pending != nil {
			first, err := s.firstEvent(batch, req.Assembler.TimestampColumn)
			if err != nil {
				return nil, nil, lastEvent, err
			}
			if err := assembler.RestoreSnapshots(pending.Keyed, first); err != nil {
				return nil, nil, lastEvent, fmt.Errorf("restoring warm state: %w", err)
			}
			s.logger.Info("run %s warm-started from watermark %s", runID, pending.Watermark)
			pending = nil
		}

		matrix, batchLabels, rejects, err := assembler.FeaturizeTrain(batch)
		if err != nil {
			return nil, nil, lastEvent, fmt.Errorf("featurizing interactions: %w", err)
		}
		counts.RejectedRows += s.sinkRejects(ctx, runID, rejects)

		for i, row := range matrix.Rows {
			if err := master.Append(feature.Row{RecordID: matrix.RecordIDs[i], Values: row}); err != nil {
				return nil, nil, lastEvent, err
			}
		}
		labels = append(labels, batchLabels...)
		counts.LoadedRows += batch.Rows()

		if ts, err := s.lastEvent(batch, req.Assembler.TimestampColumn); err == nil {
			lastEvent = ts
		}

		metrics.RecordRowsLoaded(batch.Rows())
		metrics.RecordBatchLoaded()
		metrics.UpdateBytesHeld(loader.HeldBytes())
	}

	if master.Len() == 0 {
		return nil, nil, lastEvent, fmt.Errorf("no interaction rows survived featurization")
	}
	return master, labels, lastEvent, nil
}

// fitEnsemble fits every (config, seed) member concurrently. Each fit is
// seeded and deterministic, so concurrency changes wall time only.
func (s *PipelineService) fitEnsemble(
	ctx context.Context,
	req TrainRequest,
	train *feature.Matrix,
	labels []float64,
	schemaHash core.SchemaHash,
) ([]ensemble.Member, map[core.ModelID]float64, error) {
	specs := req.Ensemble.Members()
	workers := req.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	members := make([]ensemble.Member, len(specs))
	var mu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)

	for i, spec := range specs {
		i, spec := i, spec
		eg.Go(func() error {
			fitStart := time.Now()
			model, err := s.booster.Fit(egCtx, ports.FitRequest{
				Matrix: train,
				Labels: labels,
				Config: spec.Config,
				Seed:   spec.Seed,
			})
			if err != nil {
				return fmt.Errorf("fitting %s: %w", spec.ID, err)
			}
			metrics.RecordFitDuration(time.Since(fitStart).Seconds())
			s.logger.Debug("member %s fitted %d rounds in %v", spec.ID, model.Rounds(), time.Since(fitStart))

			mu.Lock()
			members[i] = ensemble.Member{
				ID:         spec.ID,
				ConfigName: spec.Config.Name,
				Seed:       spec.Seed,
				SchemaHash: schemaHash,
				Model:      model,
			}
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}

	weights := make(map[core.ModelID]float64, len(specs))
	for _, spec := range specs {
		weights[spec.ID] = req.Ensemble.MemberWeight(spec.Config.Name)
	}
	return members, weights, nil
}

// loadWarmState fetches persisted statistic state. Missing state or a
// config drift both mean a cold start, never a failed run.
func (s *PipelineService) loadWarmState(ctx context.Context, name string, configHash core.ConfigHash) *ports.SnapshotBundle {
	if s.snapshots == nil || name == "" {
		return nil
	}
	bundle, err := s.snapshots.Load(ctx, name)
	if err != nil {
		if core.IsNotFoundError(err) {
			s.logger.Info("no snapshot %s, starting cold", name)
		} else {
			s.logger.Warn("loading snapshot %s failed, starting cold: %v", name, err)
		}
		return nil
	}
	if bundle.ConfigHash != configHash {
		s.logger.Warn("snapshot %s was built under a different config, starting cold", name)
		return nil
	}
	return bundle
}

// exportState persists every engine's statistics at the training watermark
func (s *PipelineService) exportState(
	ctx context.Context,
	assembler *feature.Assembler,
	name string,
	configHash core.ConfigHash,
	asOf core.Timestamp,
) error {
	keyed, err := assembler.ExportSnapshots(asOf)
	if err != nil {
		return fmt.Errorf("exporting statistic state: %w", err)
	}
	bundle := ports.SnapshotBundle{Keyed: keyed, Watermark: asOf, ConfigHash: configHash}
	if err := s.snapshots.Save(ctx, name, bundle); err != nil {
		return fmt.Errorf("saving snapshot %s: %w", name, err)
	}
	s.logger.Info("exported statistic state %s at watermark %s", name, asOf)
	return nil
}

// sinkRejects forwards rejects to the sink and the rejection counters.
// Sink failures are logged, not fatal: losing an audit row is better than
// losing the run.
func (s *PipelineService) sinkRejects(ctx context.Context, runID core.RunID, rejects []core.RejectedRecord) int {
	if len(rejects) == 0 {
		return 0
	}
	byStage := make(map[string]int)
	for _, r := range rejects {
		byStage[r.Stage]++
	}
	for stage, n := range byStage {
		metrics.RecordRowsRejected(stage, n)
	}
	if err := s.rejectSink.WriteRejects(ctx, runID, rejects); err != nil {
		s.logger.Warn("writing %d rejects failed: %v", len(rejects), err)
	}
	return len(rejects)
}

func (s *PipelineService) markFailed(ctx context.Context, manifest ports.RunManifest, cause error) {
	completedAt := core.Now()
	manifest.Status = ports.RunFailed
	manifest.CompletedAt = &completedAt
	manifest.FailureReason = cause.Error()
	if err := s.runs.UpdateManifest(ctx, manifest); err != nil {
		s.logger.Error("marking run %s failed: %v", manifest.RunID, err)
	}
	s.logger.Error("run %s failed: %v", manifest.RunID, cause)
}

// fingerprint hashes everything that shapes statistic state and the feature
// contract. Two runs share warm state only when these match.
func (s *PipelineService) fingerprint(req TrainRequest) core.ConfigHash {
	keys := make([]string, len(req.Assembler.KeySpecs))
	for i, ks := range req.Assembler.KeySpecs {
		keys[i] = ks.Name
	}
	return core.ComputeConfigHash(map[string]interface{}{
		"ensemble":            string(req.Ensemble.Hash()),
		"resample":            req.Method.Name,
		"half_life":           req.Assembler.Engine.HalfLife.String(),
		"smoothing_alpha":     req.Assembler.Smoother.Alpha,
		"key_specs":           keys,
		"hash_buckets":        req.Assembler.CategoryHashBuckets,
		"numeric_columns":     req.Assembler.NumericColumns,
		"categorical_columns": req.Assembler.CategoricalColumns,
		"variance_threshold":  req.Selector.VarianceThreshold,
		"top_k":               req.Selector.TopK,
		"validation_fraction": req.ValidationFraction,
	})
}

// firstEvent reads the timestamp of the first row in a batch. Batches
// arrive ordered by the timestamp column, so this is the restore boundary.
func (s *PipelineService) firstEvent(b *table.Batch, column string) (core.Timestamp, error) {
	col, ok := b.Column(column)
	if !ok {
		return core.Timestamp{}, fmt.Errorf("timestamp column %s not in batch", column)
	}
	return col.TimeAt(0), nil
}

// lastEvent reads the timestamp of the last row in a batch
func (s *PipelineService) lastEvent(b *table.Batch, column string) (core.Timestamp, error) {
	col, ok := b.Column(column)
	if !ok {
		return core.Timestamp{}, fmt.Errorf("timestamp column %s not in batch", column)
	}
	return col.TimeAt(b.Rows() - 1), nil
}
