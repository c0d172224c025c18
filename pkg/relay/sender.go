package relay

import "github.com/codeGROOVE-dev/issue-pilot/pkg/types"

// IsBot reports whether actor is a bot whose events must be ignored.
func IsBot(actor types.Actor) bool {
	return actor.Kind() == types.ActorBot
}
