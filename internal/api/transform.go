package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/h51assets/h51/internal/domain"
	"github.com/h51assets/h51/internal/eventbus"

	apierr "github.com/h51assets/h51/infrastructure/errors"
)

// transformRequest is the body for `PUT /assets/{uid}/variations`. The bulk
// variant additionally reads Local/TransformsByUID, mirroring analyzeRequest:
// when Local is true TransformsByUID must define the pipeline for every
// targeted uid exactly; otherwise Transforms is applied to every targeted
// asset (the "global" mode).
type transformRequest struct {
	VariationName   string                              `json:"variation_name"`
	Transforms      []domain.CapabilityCall             `json:"transforms"`
	TransformsByUID map[string][]domain.CapabilityCall  `json:"transforms_by_uid,omitempty"`
	Local           bool                                `json:"local,omitempty"`
	NotificationURL string                              `json:"notification_url,omitempty"`
	// UIDs is only read by the bulk variant.
	UIDs []string `json:"uids,omitempty"`
}

// transformResult is the synchronous-await response shape: the asset's uid
// and its (now updated) variations, matching the original's
// `{'uid': ..., 'variations': ...}` write.
type transformResult struct {
	UID        string                       `json:"uid"`
	Variations map[string]domain.Variation `json:"variations"`
}

// handleTransform implements `PUT /assets/{uid}/variations` (§4.6, §4.9,
// §6): validates the transform pipeline (non-empty, exactly one trailing
// final transform) and the variation name slug, subscribes to the task's
// terminal event before submitting it, then either fire-and-forget (when
// notification_url is set) or awaits completion and returns the asset's
// updated variations.
func (s *Server) handleTransform(w http.ResponseWriter, r *http.Request) {
	account := AccountFromContext(r.Context())
	asset := s.loadAsset(w, r)
	if asset == nil {
		return
	}

	var req transformRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.InvalidRequest("malformed JSON body", nil))
		return
	}

	task, ok := s.buildTransformTask(w, account.ID, asset, req.VariationName, req.Transforms, req.NotificationURL)
	if !ok {
		return
	}

	sub := s.Events.Subscribe(task.ID)
	defer s.Events.Unsubscribe(sub)

	if err := s.Queue.Submit(r.Context(), task); err != nil {
		writeError(w, apierr.Internal("submit task", err))
		return
	}

	if req.NotificationURL != "" {
		writeJSON(w, http.StatusAccepted, taskAcceptedResponse{TaskID: task.ID})
		return
	}

	ctx, cancel := s.awaitContext(r.Context())
	defer cancel()
	outcome := s.awaitTask(ctx, sub)
	if outcome.connectionLost || outcome.errReason != "" {
		writeAwaitError(w, outcome)
		return
	}

	updated, err := s.Assets.GetByID(r.Context(), asset.ID)
	if err != nil {
		writeError(w, apierr.NotFound("asset expired whilst being transformed"))
		return
	}
	writeJSON(w, http.StatusOK, transformResult{UID: updated.UID, Variations: updated.Variations})
}

// handleTransformBulk implements the bulk `transform` variant from §6/§12: a
// per-uid transform pipeline (Local) or one shared pipeline applied to every
// targeted asset, which then must all share an asset_type (the transform
// original does not exempt base type `file` from this check the way analyze
// does, since a generated variation's transforms are asset_type-specific).
func (s *Server) handleTransformBulk(w http.ResponseWriter, r *http.Request) {
	account := AccountFromContext(r.Context())

	var req transformRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.InvalidRequest("malformed JSON body", nil))
		return
	}
	if len(req.UIDs) == 0 {
		writeError(w, apierr.InvalidRequest("uids must be non-empty", nil))
		return
	}
	if len(req.UIDs) > s.Cfg.Limits.MaxVariationsPerReq {
		writeError(w, apierr.InvalidRequest("too many uids in one bulk request", map[string][]string{
			"uids": {"exceeds max_variations_per_request"},
		}))
		return
	}

	assets := make([]*domain.Asset, 0, len(req.UIDs))
	for _, uid := range req.UIDs {
		asset, err := s.Assets.GetByUID(r.Context(), account.ID, uid)
		if err != nil {
			continue
		}
		assets = append(assets, asset)
	}

	slug := domain.SlugVariationName(req.VariationName)
	if slug == "" || slug != req.VariationName {
		writeError(w, apierr.InvalidRequest("invalid variation name", map[string][]string{
			"variation_name": {"must match [-_a-z0-9]+"},
		}))
		return
	}

	transformsByUID, ok := s.resolveBulkTransforms(w, req, assets)
	if !ok {
		return
	}

	type submitted struct {
		uid  string
		task *domain.Task
		sub  *eventbus.Subscription
	}
	subs := make([]submitted, 0, len(assets))
	taskIDs := make([]string, 0, len(assets))

	for _, asset := range assets {
		task := newTransformTask(account.ID, asset, slug, transformsByUID[asset.UID], req.NotificationURL)
		sub := s.Events.Subscribe(task.ID)
		if err := s.Queue.Submit(r.Context(), task); err != nil {
			s.Events.Unsubscribe(sub)
			writeError(w, apierr.Internal("submit task", err))
			return
		}
		subs = append(subs, submitted{uid: asset.UID, task: task, sub: sub})
		taskIDs = append(taskIDs, task.ID)
	}
	defer func() {
		for _, s2 := range subs {
			s.Events.Unsubscribe(s2.sub)
		}
	}()

	if req.NotificationURL != "" {
		writeJSON(w, http.StatusAccepted, map[string][]string{"task_ids": taskIDs})
		return
	}

	ctx, cancel := s.awaitContext(r.Context())
	defer cancel()

	reasons := map[string][]string{}
	for _, s2 := range subs {
		outcome := s.awaitTask(ctx, s2.sub)
		if outcome.connectionLost {
			reasons[s2.uid] = []string{"connection lost"}
		} else if outcome.errReason != "" {
			reasons[s2.uid] = []string{outcome.errReason}
		}
	}
	if len(reasons) > 0 {
		writeAwaitErrors(w, reasons)
		return
	}

	results := make([]transformResult, 0, len(subs))
	for _, s2 := range subs {
		updated, err := s.Assets.GetByID(r.Context(), s2.task.AssetID)
		if err != nil {
			continue
		}
		results = append(results, transformResult{UID: updated.UID, Variations: updated.Variations})
	}
	writeJSON(w, http.StatusOK, map[string][]transformResult{"results": results})
}

// resolveBulkTransforms applies the local/global dispatch rule: in local
// mode every targeted uid must have its own transform list with no
// mismatched keys; in global mode one validated list is shared across every
// asset, which must all share a single asset_type.
func (s *Server) resolveBulkTransforms(w http.ResponseWriter, req transformRequest, assets []*domain.Asset) (map[string][]domain.CapabilityCall, bool) {
	if req.Local {
		uids := map[string]struct{}{}
		for _, a := range assets {
			uids[a.UID] = struct{}{}
		}
		if len(uids) != len(req.TransformsByUID) {
			writeError(w, apierr.InvalidRequest("each uid must be assigned a list of transforms", nil))
			return nil, false
		}
		for uid := range uids {
			if _, ok := req.TransformsByUID[uid]; !ok {
				writeError(w, apierr.InvalidRequest("each uid must be assigned a list of transforms", nil))
				return nil, false
			}
		}

		out := make(map[string][]domain.CapabilityCall, len(assets))
		for _, a := range assets {
			normalized, fieldErrs := s.Registry.ValidateTransforms(a.Type, req.TransformsByUID[a.UID])
			if fieldErrs != nil {
				writeError(w, apierr.InvalidRequest("invalid transform pipeline", fieldErrs))
				return nil, false
			}
			out[a.UID] = normalized
		}
		return out, true
	}

	assetType, ok := sharedTransformAssetType(assets)
	if !ok {
		writeError(w, apierr.InvalidRequest("all assets must be of the same type", nil))
		return nil, false
	}
	normalized, fieldErrs := s.Registry.ValidateTransforms(assetType, req.Transforms)
	if fieldErrs != nil {
		writeError(w, apierr.InvalidRequest("invalid transform pipeline", fieldErrs))
		return nil, false
	}
	out := make(map[string][]domain.CapabilityCall, len(assets))
	for _, a := range assets {
		out[a.UID] = normalized
	}
	return out, true
}

// sharedTransformAssetType reports the single asset_type every asset in
// assets shares, or false when more than one distinct type is present. Unlike
// sharedAssetType (analyze's version), this does not special-case
// AssetTypeFile: the Python original's TransformManyHandler.put builds its
// asset_types set with no file-exclusion filter.
func sharedTransformAssetType(assets []*domain.Asset) (domain.AssetType, bool) {
	types := map[domain.AssetType]struct{}{}
	for _, a := range assets {
		types[a.Type] = struct{}{}
	}
	if len(types) != 1 {
		return "", false
	}
	for t := range types {
		return t, true
	}
	return "", false
}

// buildTransformTask validates the variation name slug and the transform
// pipeline against the registry for asset.Type, and constructs (but does not
// submit) the GenerateVariation task.
func (s *Server) buildTransformTask(w http.ResponseWriter, accountID string, asset *domain.Asset, variationName string, calls []domain.CapabilityCall, notificationURL string) (*domain.Task, bool) {
	slug := domain.SlugVariationName(variationName)
	if slug == "" || slug != variationName {
		writeError(w, apierr.InvalidRequest("invalid variation name", map[string][]string{
			"variation_name": {"must match [-_a-z0-9]+"},
		}))
		return nil, false
	}

	normalized, fieldErrs := s.Registry.ValidateTransforms(asset.Type, calls)
	if fieldErrs != nil {
		writeError(w, apierr.InvalidRequest("invalid transform pipeline", fieldErrs))
		return nil, false
	}
	return newTransformTask(accountID, asset, slug, normalized, notificationURL), true
}

// newTransformTask constructs (but does not submit) the GenerateVariation
// task from an already-validated transform pipeline and variation slug, used
// by the bulk path where resolveBulkTransforms has already run each pipeline
// through the registry.
func newTransformTask(accountID string, asset *domain.Asset, slug string, calls []domain.CapabilityCall, notificationURL string) *domain.Task {
	return &domain.Task{
		ID:              domain.NewTaskID(domain.TaskKindGenerateVariation),
		Kind:            domain.TaskKindGenerateVariation,
		AccountID:       accountID,
		AssetID:         asset.ID,
		NotificationURL: notificationURL,
		CreatedAtUnix:   time.Now().Unix(),
		GenerateVariation: &domain.GenerateVariationPayload{
			VariationName: slug,
			Transforms:    calls,
		},
	}
}
