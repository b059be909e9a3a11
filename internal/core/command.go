package core

// MutationKind describes what a queued registry mutation does.
type MutationKind int

const (
	// MutationQuery looks a lobby up without changing anything.
	MutationQuery MutationKind = iota
	// MutationAddClient appends a client to a lobby.
	MutationAddClient
	// MutationRemoveLobby evicts every member and deletes the lobby.
	MutationRemoveLobby
	// MutationDetachClient drops a client whose connection ended, without notifying it.
	MutationDetachClient
)

func (k MutationKind) String() string {
	switch k {
	case MutationQuery:
		return "query"
	case MutationAddClient:
		return "add-client"
	case MutationRemoveLobby:
		return "remove-lobby"
	case MutationDetachClient:
		return "detach-client"
	default:
		return "unknown"
	}
}

// Mutation is an entry of the coordinator queue.
// Done, when set, is called exactly once after the mutation is applied with the
// affected lobby, or nil when the lobby did not exist at drain time.
type Mutation struct {
	Kind    MutationKind
	LobbyID string
	Client  *Client
	Done    func(*Lobby)
}
