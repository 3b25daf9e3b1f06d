package engine

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/starknet-replay/orchestrator/pkg/model"
)

// presyncOutcome is the result of the first-iteration-only reconciliation
// between the target's pre-confirmed block and the source chain (spec
// §4.5 "Pre-sync alignment").
type presyncOutcome struct {
	// done is true when the requested range is already fully replayed;
	// the caller should complete immediately without entering the loop.
	done bool

	// startBlock is where the main loop should begin.
	startBlock model.BlockPosition

	// alreadyInjected is the hash prefix to skip on startBlock's
	// injection step, when the target's pre-confirmed block already
	// carries some of it.
	alreadyInjected []common.Hash
}

// presync inspects the target's current pre-confirmed block against
// syncFrom/syncTo and decides where the loop should actually begin,
// per the table in spec §4.5. It is called once, before the first
// iteration of a freshly started run (not on recovery re-entry, which
// already supplies an explicit action).
func (e *Engine) presync(ctx context.Context, syncFrom, syncTo model.BlockPosition) (presyncOutcome, error) {
	pre, err := e.deps.Target.GetPreConfirmed(ctx)
	if err != nil {
		return presyncOutcome{}, err
	}

	p := pre.Number
	y := len(pre.Transactions)

	if p < syncFrom {
		return presyncOutcome{}, fmt.Errorf("pre-sync inconsistency: target pre-confirmed block %d is behind requested start %d", p, syncFrom)
	}

	if p > syncTo {
		return presyncOutcome{done: true}, nil
	}

	if y == 0 {
		return presyncOutcome{startBlock: p}, nil
	}

	source, err := e.deps.Source.GetBlock(ctx, p)
	if err != nil {
		return presyncOutcome{}, err
	}
	x := len(source.Transactions)

	switch {
	case y < x:
		hashes := make([]common.Hash, y)
		for i := 0; i < y; i++ {
			hashes[i] = pre.Transactions[i].Hash
		}
		return presyncOutcome{startBlock: p, alreadyInjected: hashes}, nil
	case y == x:
		if err := e.deps.Target.AdminCloseBlock(ctx); err != nil {
			return presyncOutcome{}, err
		}
		return presyncOutcome{startBlock: p + 1}, nil
	default:
		return presyncOutcome{}, fmt.Errorf("pre-sync inconsistency at block %d: target has %d injected transactions but source block only has %d", p, y, x)
	}
}
