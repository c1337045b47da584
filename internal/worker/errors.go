package worker

import (
	"fmt"

	"github.com/h51assets/h51/internal/domain"
)

func errUnknownTaskKind(kind domain.TaskKind) error {
	return fmt.Errorf("worker: unknown task kind %q", kind)
}
