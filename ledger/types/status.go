package types

import "github.com/pkg/errors"

// ChannelStatus is the lifecycle status of a ledger or virtual channel.
type ChannelStatus byte

const (
	StatusUnopened ChannelStatus = iota
	StatusProposed
	StatusPendingJoin
	StatusOpen
	StatusFastClosing
	StatusDisputing
	StatusSettling
	StatusClosed
)

var statusNames = []string{
	"Unopened",
	"Proposed",
	"PendingJoin",
	"Open",
	"FastClosing",
	"Disputing",
	"Settling",
	"Closed",
}

func (s ChannelStatus) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "Unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (s ChannelStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *ChannelStatus) UnmarshalText(text []byte) error {
	for i, name := range statusNames {
		if name == string(text) {
			*s = ChannelStatus(i)
			return nil
		}
	}
	return errors.Errorf("unknown channel status %q", text)
}

// Ledger channel: Unopened -> PendingJoin -> Open -> (FastClosing | Disputing) -> Closed.
// A refused fast close falls back to Disputing. An unjoined channel can be
// reclaimed directly.
var lcTransitions = map[ChannelStatus][]ChannelStatus{
	StatusUnopened:    {StatusPendingJoin},
	StatusPendingJoin: {StatusOpen, StatusClosed},
	StatusOpen:        {StatusOpen, StatusFastClosing, StatusDisputing},
	StatusFastClosing: {StatusClosed, StatusDisputing},
	StatusDisputing:   {StatusClosed},
}

// Virtual channel: Proposed -> PendingJoin -> Open -> (FastClosing | Disputing) -> Closed.
// The dispute path goes through Settling once the channel is seeded on chain.
var vcTransitions = map[ChannelStatus][]ChannelStatus{
	StatusUnopened:    {StatusProposed},
	StatusProposed:    {StatusPendingJoin},
	StatusPendingJoin: {StatusOpen},
	StatusOpen:        {StatusOpen, StatusFastClosing, StatusDisputing},
	StatusFastClosing: {StatusClosed, StatusDisputing},
	StatusDisputing:   {StatusSettling, StatusClosed},
	StatusSettling:    {StatusClosed},
}

// CanTransitionLC returns true if a ledger channel may move from -> to.
func CanTransitionLC(from, to ChannelStatus) bool {
	return canTransition(lcTransitions, from, to)
}

// CanTransitionVC returns true if a virtual channel may move from -> to.
func CanTransitionVC(from, to ChannelStatus) bool {
	return canTransition(vcTransitions, from, to)
}

func canTransition(table map[ChannelStatus][]ChannelStatus, from, to ChannelStatus) bool {
	for _, s := range table[from] {
		if s == to {
			return true
		}
	}
	return false
}
