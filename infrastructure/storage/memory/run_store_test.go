package memory

import (
	"testing"

	"github.com/felixgeelhaar/recon-go/domain/run"
	"github.com/felixgeelhaar/recon-go/infrastructure/storage/storetest"
)

func TestRunStore(t *testing.T) {
	t.Parallel()

	storetest.RunStore(t, func(t *testing.T) run.Store {
		return NewRunStore()
	})
}
