package engine

// Effect is one outbound side effect the run coordinator must execute.
// The reducer never talks to the tracker itself; it returns an ordered
// effect list so transitions stay testable without I/O.
type Effect interface{ isEffect() }

// PostNotice posts an ephemeral message rendered from the catalog key.
type PostNotice struct {
	Key  string
	Data map[string]any
}

// DeleteMessage removes a consumed command message from the thread.
type DeleteMessage struct {
	MessageID string
}

// UpsertCanonical rewrites the canonical thread message in place with the
// rendered body plus a fresh board snapshot for the game's current position.
type UpsertCanonical struct {
	Key  string
	Data map[string]any
}

// CloseThread rewrites the canonical message with the final body (board
// included) and closes the thread.
type CloseThread struct {
	Key  string
	Data map[string]any
}

// AddLabel attaches a label to the thread; adding an existing label is a no-op.
type AddLabel struct {
	Name string
}

// RemoveLabel detaches a label; removing an absent label is a no-op.
type RemoveLabel struct {
	Name string
}

// Assign adds a participant as an assignee of the thread.
type Assign struct {
	Participant string
}

func (PostNotice) isEffect()      {}
func (DeleteMessage) isEffect()   {}
func (UpsertCanonical) isEffect() {}
func (CloseThread) isEffect()     {}
func (AddLabel) isEffect()        {}
func (RemoveLabel) isEffect()     {}
func (Assign) isEffect()          {}
