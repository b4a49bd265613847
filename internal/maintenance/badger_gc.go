package maintenance

import (
	"context"
	"errors"

	badgerdb "github.com/dgraph-io/badger/v4"
)

// RunBadgerGC runs value-log garbage collection rounds until Badger reports
// nothing left to rewrite.
func (r *Runner) RunBadgerGC(ctx context.Context) error {
	rounds := 0
	for {
		err := r.storage.RunValueLogGC(0.5)
		if err != nil {
			if errors.Is(err, badgerdb.ErrNoRewrite) {
				break
			}
			return err
		}
		rounds++
	}

	if rounds > 0 {
		r.logger.Info().Int("rounds", rounds).Msg("Badger value log GC completed")
	}
	return nil
}
