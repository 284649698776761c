package hsk

// State is a phase of the HSK derivation state machine.
type State int

const (
	// StateInitiation is the idle state before any ceremony starts.
	StateInitiation State = iota
	// StateAwaitingInsertion waits for the user to present and tap the key.
	StateAwaitingInsertion
	// StateDerivingKey runs the key derivation over proof-of-possession.
	StateDerivingKey
	// StateVerifying runs a fresh assertion round-trip against a binding.
	StateVerifying
	// StateComplete is the successful terminal state.
	StateComplete
	// StateError is the failed terminal state.
	StateError
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateInitiation:
		return "initiation"
	case StateAwaitingInsertion:
		return "awaitingInsertion"
	case StateDerivingKey:
		return "derivingKey"
	case StateVerifying:
		return "verifying"
	case StateComplete:
		return "complete"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state ends a ceremony.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateError
}

// subscriberBuffer bounds how many transitions a slow subscriber can lag
// behind before transitions are dropped for it.
const subscriberBuffer = 16

// transition moves the machine to next and notifies subscribers in order.
// Callers must hold e.mu.
func (e *Engine) transition(next State) {
	e.state = next
	for _, sub := range e.subs {
		select {
		case sub <- next:
		default:
		}
	}
}

// Subscribe returns a channel that receives every subsequent state
// transition in order.
func (e *Engine) Subscribe() <-chan State {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch := make(chan State, subscriberBuffer)
	e.subs = append(e.subs, ch)
	return ch
}

// CurrentState returns the machine's current state.
func (e *Engine) CurrentState() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}
