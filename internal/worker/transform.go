package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/h51assets/h51/internal/backend"
	"github.com/h51assets/h51/internal/domain"
	"github.com/h51assets/h51/internal/registry"
)

func bytesReaderFor(b []byte) io.Reader { return bytes.NewReader(b) }

// runTransform implements §4.9: load the asset and blob once, thread a
// *registry.FrameState through each requested transform in order, and on
// the final (encoding) transform run the StoreVariation contract — resolve
// the destination backend, bump the variation's version, atomically $set
// it on the asset row, delete the superseded blob, and bump stats.
func (w *Worker) runTransform(ctx context.Context, task *domain.Task) error {
	if task.GenerateVariation == nil {
		return fmt.Errorf("generate_variation task %s: missing payload", task.ID)
	}
	payload := task.GenerateVariation

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

	state := &registry.FrameState{Kind: registry.FrameNone}
	history := make([]registry.TransformCall, 0, len(payload.Transforms))

	for _, call := range payload.Transforms {
		transform, ok := w.deps.Registry.Transform(asset.Type, call.Name)
		if !ok {
			return fmt.Errorf("unknown transform %q for asset type %q", call.Name, asset.Type)
		}
		if state.Kind == registry.FrameEncoded {
			return fmt.Errorf("transform %q: pipeline already encoded, no further transform may run", call.Name)
		}

		next, err := transform.Apply(ctx, call.Settings, asset, blob, payload.VariationName, state, history)
		if err != nil {
			return fmt.Errorf("transform %q: %w", call.Name, err)
		}
		state = next
		history = append(history, registry.TransformCall{Name: call.Name, Settings: call.Settings})
	}

	if state.Kind != registry.FrameEncoded {
		return fmt.Errorf("transform pipeline for %q ended without encoding a final variation", payload.VariationName)
	}

	return w.storeVariation(ctx, account, asset, payload.VariationName, state, be)
}

// storeVariation is the _store_variation contract: resolve the prior
// variation's version, bump it, write the new blob under the versioned key,
// atomically $set the variation entry, delete the superseded blob on
// rollover, and increment the account's variation stat.
func (w *Worker) storeVariation(ctx context.Context, account *domain.Account, asset *domain.Asset, name string, state *registry.FrameState, be backend.Backend) error {
	prior, hadPrior := asset.Variations[name]

	v := domain.Variation{
		ContentType: state.ContentType,
		Ext:         state.EncodedExt,
		Meta:        map[string]any{"length": int64(len(state.Encoded))},
		Version:     domain.NextVersion(prior.Version),
	}

	key := asset.VariationStoreKey(name, v)
	if err := be.Store(ctx, key, bytesReaderFor(state.Encoded), v.ContentType); err != nil {
		return fmt.Errorf("store variation blob: %w", err)
	}

	prevStored, existed, err := w.deps.Assets.SetVariation(ctx, asset.ID, name, v)
	if err != nil {
		return fmt.Errorf("persist variation: %w", err)
	}

	var oldLength int64
	if existed && hadPrior {
		oldLength = prevStored.Length()
		oldKey := asset.VariationStoreKey(name, prevStored)
		if oldKey != key {
			if err := be.Delete(ctx, oldKey); err != nil {
				w.deps.Logger.LogTaskEvent(ctx, asset.ID, "variation_blob_cleanup_failed", err)
			}
		}
	}

	variationsDelta := int64(1)
	if hadPrior {
		variationsDelta = 0
	}
	now := time.Now()
	if err := w.deps.Stats.Inc(ctx, account.ID, domain.StatVariations, variationsDelta, now); err != nil {
		return err
	}
	return w.deps.Stats.Inc(ctx, account.ID, domain.StatLength, int64(len(state.Encoded))-oldLength, now)
}
