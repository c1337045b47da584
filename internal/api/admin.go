package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	apierr "github.com/h51assets/h51/infrastructure/errors"
)

var adminUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// adminWorkersStatusResponse is the body of `GET /admin/workers/status`,
// backing h51ctl's `control-workers status` subcommand.
type adminWorkersStatusResponse struct {
	Pending []string `json:"pending"`
	Running []string `json:"running"`
}

func (s *Server) handleAdminWorkersStatus(w http.ResponseWriter, r *http.Request) {
	pending, err := s.Queue.PendingIDs(r.Context())
	if err != nil {
		writeError(w, apierr.Internal("list pending tasks", err))
		return
	}
	running, err := s.Queue.RunningIDs(r.Context())
	if err != nil {
		writeError(w, apierr.Internal("list running tasks", err))
		return
	}
	writeJSON(w, http.StatusOK, adminWorkersStatusResponse{Pending: pending, Running: running})
}

// handleAdminClearTasks implements `assets clear-tasks`: deletes every task
// record the queue currently holds, pending or running, used to recover
// from a corrupted or stuck queue.
func (s *Server) handleAdminClearTasks(w http.ResponseWriter, r *http.Request) {
	pending, err := s.Queue.PendingIDs(r.Context())
	if err != nil {
		writeError(w, apierr.Internal("list pending tasks", err))
		return
	}
	running, err := s.Queue.RunningIDs(r.Context())
	if err != nil {
		writeError(w, apierr.Internal("list running tasks", err))
		return
	}
	cleared := 0
	for _, id := range append(pending, running...) {
		if err := s.Queue.Delete(r.Context(), id); err == nil {
			cleared++
		}
	}
	writeJSON(w, http.StatusOK, map[string]int{"cleared": cleared})
}

// handleAdminPurge implements `assets purge`: deletes up to 500 asset rows
// whose expiry has already passed per call, the on-demand counterpart to the
// daily cron pass in cmd/h51server. Only the rows are deleted; their blobs
// are not removed from storage.
func (s *Server) handleAdminPurge(w http.ResponseWriter, r *http.Request) {
	const purgeBatchSize = 500
	expired, err := s.Assets.ListExpired(r.Context(), purgeBatchSize)
	if err != nil {
		writeError(w, apierr.Internal("list expired assets", err))
		return
	}
	purged := 0
	for _, a := range expired {
		if err := s.Assets.Delete(r.Context(), a.ID); err == nil {
			purged++
		}
	}
	writeJSON(w, http.StatusOK, map[string]int{"purged": purged})
}

// handleAdminMonitorTasks implements `assets monitor-tasks`: upgrades to a
// websocket and pushes the queue's pending/running snapshot once a second
// until the client disconnects, giving an operator a live view of queue
// depth without polling the REST endpoint themselves.
func (s *Server) handleAdminMonitorTasks(w http.ResponseWriter, r *http.Request) {
	conn, err := adminUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Logger.WithContext(r.Context()).WithError(err).Warn("monitor-tasks upgrade failed")
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			pending, err := s.Queue.PendingIDs(r.Context())
			if err != nil {
				return
			}
			running, err := s.Queue.RunningIDs(r.Context())
			if err != nil {
				return
			}
			if err := conn.WriteJSON(adminWorkersStatusResponse{Pending: pending, Running: running}); err != nil {
				return
			}
		}
	}
}
