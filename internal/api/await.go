package api

import (
	"context"
	"net/http"

	"github.com/h51assets/h51/internal/domain"
	"github.com/h51assets/h51/internal/eventbus"

	apierr "github.com/h51assets/h51/infrastructure/errors"
)

// awaitContext bounds a synchronous await on the event bus by the server's
// configured request timeout, since handlers waiting on the bus are
// otherwise subject to no deadline but the client's own patience (§4.7,
// §9's subscribe-before-enqueue primitive).
func (s *Server) awaitContext(parent context.Context) (context.Context, context.CancelFunc) {
	if s.Cfg.Server.RequestTimeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, s.Cfg.Server.RequestTimeout)
}

// awaitOutcome is what came back for one subscribed task: either it
// completed, it errored with a reason, or the wait itself failed
// (bus disconnect or request timeout, both surfaced as connection_lost).
type awaitOutcome struct {
	connectionLost bool
	errReason      string
}

func (s *Server) awaitTask(ctx context.Context, sub *eventbus.Subscription) awaitOutcome {
	ev, err := s.Events.Await(ctx, sub)
	if err != nil {
		return awaitOutcome{connectionLost: true}
	}
	if ev.Type == domain.EventTaskError {
		return awaitOutcome{errReason: ev.Reason}
	}
	return awaitOutcome{}
}

// writeAwaitError renders the error_type a failed await maps to: per-spec
// `connection_lost` for a lost bus/timed-out wait, or a 500 `error` with the
// worker's own failure reason.
func writeAwaitError(w http.ResponseWriter, outcome awaitOutcome) {
	if outcome.connectionLost {
		writeError(w, apierr.ConnectionLost("lost connection to the event bus while awaiting task completion"))
		return
	}
	writeError(w, apierr.TaskError(outcome.errReason))
}

// writeAwaitErrors renders the bulk form: per-uid reasons collected into
// arg_errors on a single 500 `error`, matching the original's
// `errors[task_names[i]] = [reason]` aggregation.
func writeAwaitErrors(w http.ResponseWriter, reasons map[string][]string) {
	err := apierr.TaskError("one or more tasks failed")
	err.ArgErrors = reasons
	writeJSON(w, err.HTTPStatus, err)
}
