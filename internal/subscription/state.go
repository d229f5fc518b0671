package subscription

// keyState tracks the lifecycle of one key's polling loop.
//
//	Unregistered → Starting → Polling → Stopping → Unregistered
//
// Starting→Polling happens only after the first successful poll; failures
// keep the loop in Starting with backoff. Stopping is entered when the
// listener count reaches zero. A listener attaching while Stopping cancels
// the teardown: the state returns to Starting and a fresh loop takes over
// once the old one has wound down.
type keyState int

const (
	stateStarting keyState = iota
	statePolling
	stateStopping
)

func (s keyState) String() string {
	switch s {
	case stateStarting:
		return "starting"
	case statePolling:
		return "polling"
	case stateStopping:
		return "stopping"
	}
	return "unregistered"
}
