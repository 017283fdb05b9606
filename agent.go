package eventsourcing

// AgentType tells what kind of actor caused an event
type AgentType string

const (
	AgentUser      AgentType = "user"
	AgentSystem    AgentType = "system"
	AgentAnonymous AgentType = "anonymous"
)

// Agent is the actor an event is attributed to. It is stored with every event and never
// interpreted by the engine.
type Agent struct {
	Type AgentType
	ID   string
}

// User returns the agent of the user with the given id
func User(id string) Agent {
	return Agent{Type: AgentUser, ID: id}
}

// System returns the agent of an internal process
func System(name string) Agent {
	return Agent{Type: AgentSystem, ID: name}
}

// Anonymous returns the agent used when the actor is unknown
func Anonymous() Agent {
	return Agent{Type: AgentAnonymous}
}
