package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/h51assets/h51/internal/domain"
	"github.com/h51assets/h51/internal/eventbus"

	apierr "github.com/h51assets/h51/infrastructure/errors"
)

// analyzeRequest is the PUT/POST body for `POST /assets/{uid}/analyze`. The
// bulk variant additionally reads Local/PerUIDAnalyzers: when Local is true
// AnalyzersByUID must define the pipeline for every targeted uid exactly
// (§12's "exact uid↔payload key match"); otherwise Analyzers is applied to
// every targeted asset (the "global" mode).
type analyzeRequest struct {
	Analyzers       []domain.CapabilityCall             `json:"analyzers"`
	AnalyzersByUID  map[string][]domain.CapabilityCall  `json:"analyzers_by_uid,omitempty"`
	Local           bool                                `json:"local,omitempty"`
	NotificationURL string                              `json:"notification_url,omitempty"`
	// UIDs is only read by the bulk variant.
	UIDs []string `json:"uids,omitempty"`
}

type taskAcceptedResponse struct {
	TaskID string `json:"task_id"`
}

// analyzeResult is the synchronous-await response shape: the asset's uid
// and its (now updated) meta, matching the original's
// `{'uid': ..., 'meta': ...}` write.
type analyzeResult struct {
	UID  string                    `json:"uid"`
	Meta map[string]map[string]any `json:"meta"`
}

// handleAnalyze implements `POST /assets/{uid}/analyze` (§4.6, §6): validate
// the requested analyzer pipeline against the registry, subscribe to the
// task's terminal event before submitting it (the subscribe-before-enqueue
// primitive from §9), then either fire-and-forget (when notification_url is
// set) or await the task's completion and return the asset's updated meta.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	account := AccountFromContext(r.Context())
	asset := s.loadAsset(w, r)
	if asset == nil {
		return
	}

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.InvalidRequest("malformed JSON body", nil))
		return
	}

	task, ok := s.buildAnalyzeTask(w, account.ID, asset, req.Analyzers, req.NotificationURL)
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
		writeError(w, apierr.NotFound("asset expired whilst being analyzed"))
		return
	}
	writeJSON(w, http.StatusOK, analyzeResult{UID: updated.UID, Meta: updated.Meta})
}

// handleAnalyzeBulk implements the bulk `analyze` variant from §6/§12: a
// per-uid analyzer pipeline (Local) or one shared pipeline applied to every
// targeted asset, which then must all share an asset_type or base type
// `file`.
func (s *Server) handleAnalyzeBulk(w http.ResponseWriter, r *http.Request) {
	account := AccountFromContext(r.Context())

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.InvalidRequest("malformed JSON body", nil))
		return
	}
	if len(req.UIDs) == 0 {
		writeError(w, apierr.InvalidRequest("uids must be non-empty", nil))
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

	analyzersByUID, ok := s.resolveBulkAnalyzers(w, req, assets)
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
		task := newAnalyzeTask(account.ID, asset, analyzersByUID[asset.UID], req.NotificationURL)
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

	results := make([]analyzeResult, 0, len(subs))
	for _, s2 := range subs {
		updated, err := s.Assets.GetByID(r.Context(), s2.task.AssetID)
		if err != nil {
			continue
		}
		results = append(results, analyzeResult{UID: updated.UID, Meta: updated.Meta})
	}
	writeJSON(w, http.StatusOK, map[string][]analyzeResult{"results": results})
}

// resolveBulkAnalyzers applies the local/global dispatch rule: in local
// mode every targeted uid must have its own analyzer list with no
// mismatched keys; in global mode one validated list is shared across every
// asset, which must all share an asset_type or base type `file`.
func (s *Server) resolveBulkAnalyzers(w http.ResponseWriter, req analyzeRequest, assets []*domain.Asset) (map[string][]domain.CapabilityCall, bool) {
	if req.Local {
		uids := map[string]struct{}{}
		for _, a := range assets {
			uids[a.UID] = struct{}{}
		}
		if len(uids) != len(req.AnalyzersByUID) {
			writeError(w, apierr.InvalidRequest("each uid must be assigned a list of analyzers", nil))
			return nil, false
		}
		for uid := range uids {
			if _, ok := req.AnalyzersByUID[uid]; !ok {
				writeError(w, apierr.InvalidRequest("each uid must be assigned a list of analyzers", nil))
				return nil, false
			}
		}

		out := make(map[string][]domain.CapabilityCall, len(assets))
		for _, a := range assets {
			normalized, fieldErrs := s.Registry.ValidateAnalyzers(a.Type, req.AnalyzersByUID[a.UID])
			if fieldErrs != nil {
				writeError(w, apierr.InvalidRequest("invalid analyzer pipeline", fieldErrs))
				return nil, false
			}
			out[a.UID] = normalized
		}
		return out, true
	}

	assetType, ok := sharedAssetType(assets)
	if !ok {
		writeError(w, apierr.InvalidRequest("all assets must be of the same type / base type (file)", nil))
		return nil, false
	}
	normalized, fieldErrs := s.Registry.ValidateAnalyzers(assetType, req.Analyzers)
	if fieldErrs != nil {
		writeError(w, apierr.InvalidRequest("invalid analyzer pipeline", fieldErrs))
		return nil, false
	}
	out := make(map[string][]domain.CapabilityCall, len(assets))
	for _, a := range assets {
		out[a.UID] = normalized
	}
	return out, true
}

// sharedAssetType reports the single asset_type every non-`file` asset in
// assets shares, defaulting to `file` when none do, or false when more than
// one distinct non-`file` type is present (§4.6/§12).
func sharedAssetType(assets []*domain.Asset) (domain.AssetType, bool) {
	types := map[domain.AssetType]struct{}{}
	for _, a := range assets {
		if a.Type != domain.AssetTypeFile {
			types[a.Type] = struct{}{}
		}
	}
	if len(types) > 1 {
		return "", false
	}
	for t := range types {
		return t, true
	}
	return domain.AssetTypeFile, true
}

// buildAnalyzeTask validates calls against the registry for asset.Type and
// constructs (but does not submit) the Analyze task.
func (s *Server) buildAnalyzeTask(w http.ResponseWriter, accountID string, asset *domain.Asset, calls []domain.CapabilityCall, notificationURL string) (*domain.Task, bool) {
	normalized, fieldErrs := s.Registry.ValidateAnalyzers(asset.Type, calls)
	if fieldErrs != nil {
		writeError(w, apierr.InvalidRequest("invalid analyzer pipeline", fieldErrs))
		return nil, false
	}
	return newAnalyzeTask(accountID, asset, normalized, notificationURL), true
}

// newAnalyzeTask constructs (but does not submit) the Analyze task from an
// already-validated analyzer pipeline, used by the bulk path where
// resolveBulkAnalyzers has already run each pipeline through the registry.
func newAnalyzeTask(accountID string, asset *domain.Asset, calls []domain.CapabilityCall, notificationURL string) *domain.Task {
	return &domain.Task{
		ID:              domain.NewTaskID(domain.TaskKindAnalyze),
		Kind:            domain.TaskKindAnalyze,
		AccountID:       accountID,
		AssetID:         asset.ID,
		NotificationURL: notificationURL,
		CreatedAtUnix:   time.Now().Unix(),
		Analyze:         &domain.AnalyzePayload{Analyzers: calls},
	}
}
