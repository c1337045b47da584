package worker

import (
	"context"
	"fmt"

	"github.com/h51assets/h51/internal/backend"
	"github.com/h51assets/h51/internal/domain"
	"github.com/h51assets/h51/internal/registry"
)

// runAnalyze implements §4.8: load the asset and its blob once, then run
// each requested analyzer in order, writing its result to
// asset.meta[asset_type][name] via an atomic $set after every step so
// partial progress survives a mid-pipeline failure.
func (w *Worker) runAnalyze(ctx context.Context, task *domain.Task) error {
	if task.Analyze == nil {
		return fmt.Errorf("analyze task %s: missing payload", task.ID)
	}

	asset, err := w.deps.Assets.GetByID(ctx, task.AssetID)
	if err != nil {
		return fmt.Errorf("load asset: %w", err)
	}
	account, err := w.deps.Accounts.GetByID(ctx, task.AccountID)
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}

	be, err := backend.Resolve(account.Backend(asset.Secure), w.deps.Backend)
	if err != nil {
		return fmt.Errorf("resolve backend: %w", err)
	}
	blob, err := be.Retrieve(ctx, asset.StoreKey())
	if err != nil {
		return fmt.Errorf("retrieve blob: %w", err)
	}

	history := make([]registry.AnalyzerCall, 0, len(task.Analyze.Analyzers))
	for _, call := range task.Analyze.Analyzers {
		analyzer, ok := w.deps.Registry.Analyzer(asset.Type, call.Name)
		if !ok {
			return fmt.Errorf("unknown analyzer %q for asset type %q", call.Name, asset.Type)
		}

		result, err := analyzer.Analyze(ctx, call.Settings, asset, blob, history)
		if err != nil {
			return fmt.Errorf("analyzer %q: %w", call.Name, err)
		}

		if err := w.deps.Assets.SetMeta(ctx, asset.ID, asset.Type, call.Name, result); err != nil {
			return fmt.Errorf("persist meta for %q: %w", call.Name, err)
		}
		history = append(history, registry.AnalyzerCall{Name: call.Name, Result: result})
	}

	return nil
}
