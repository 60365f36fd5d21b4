package controller

import (
	"fmt"

	"github.com/nkllon/swarmctl/pkg/types"
)

// swarmTransitions encodes the swarm lifecycle:
// initializing -> active -> (scaling <-> active) -> stopping -> stopped.
// The error state is reachable from anywhere; stopped is terminal.
var swarmTransitions = map[types.SwarmStatus][]types.SwarmStatus{
	types.SwarmStatusInitializing: {types.SwarmStatusActive, types.SwarmStatusStopping},
	types.SwarmStatusActive:       {types.SwarmStatusScaling, types.SwarmStatusStopping},
	types.SwarmStatusScaling:      {types.SwarmStatusActive, types.SwarmStatusStopping},
	types.SwarmStatusStopping:     {types.SwarmStatusStopped},
	types.SwarmStatusError:        {types.SwarmStatusStopping, types.SwarmStatusStopped},
	types.SwarmStatusStopped:      {},
}

// ValidSwarmTransition reports whether a swarm may move between the
// given states
func ValidSwarmTransition(from, to types.SwarmStatus) bool {
	if to == types.SwarmStatusError {
		return from != types.SwarmStatusStopped
	}
	for _, allowed := range swarmTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// transitionSwarm applies a validated status change. Emergency
// shutdown does not go through here; it forces stopped directly.
func transitionSwarm(swarm *types.SwarmState, to types.SwarmStatus) error {
	if !ValidSwarmTransition(swarm.Status, to) {
		return fmt.Errorf("%w: swarm %s cannot move %s -> %s",
			ErrInvalidTransition, swarm.SwarmID, swarm.Status, to)
	}
	swarm.Status = to
	return nil
}
