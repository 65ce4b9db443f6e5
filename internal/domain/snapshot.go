package domain

// Collection names one of the live collections of the ledger store.
type Collection string

const (
	CollectionUsers          Collection = "users"
	CollectionAgents         Collection = "agents"
	CollectionTransactions   Collection = "transactions"
	CollectionDepositMethods Collection = "deposit_methods"
	CollectionSettings       Collection = "settings"
)

// AllCollections lists every live collection in a stable order.
var AllCollections = []Collection{
	CollectionUsers,
	CollectionAgents,
	CollectionTransactions,
	CollectionDepositMethods,
	CollectionSettings,
}

// ParseCollection maps a collection name to its Collection value.
func ParseCollection(name string) (Collection, bool) {
	for _, c := range AllCollections {
		if string(c) == name {
			return c, true
		}
	}
	return "", false
}

// Snapshot is the in-memory copy of the ledger store collections as last pushed.
// Version increases by one on every push, whichever collection it touched.
type Snapshot struct {
	Version        uint64          `json:"version"`
	Users          []User          `json:"users"`
	Agents         []Agent         `json:"agents"`
	Transactions   []Transaction   `json:"transactions"`
	DepositMethods []DepositMethod `json:"deposit_methods"`
	Settings       Settings        `json:"settings"`
}

// FindTransaction returns the transaction with the given id.
func (s Snapshot) FindTransaction(id string) (Transaction, bool) {
	for _, tx := range s.Transactions {
		if tx.ID == id {
			return tx, true
		}
	}
	return Transaction{}, false
}

// FindAgent returns the agent with the given id.
func (s Snapshot) FindAgent(id string) (Agent, bool) {
	for _, agent := range s.Agents {
		if agent.ID == id {
			return agent, true
		}
	}
	return Agent{}, false
}

// FindUserByID returns the user with the given id.
func (s Snapshot) FindUserByID(id string) (User, bool) {
	if id == "" {
		return User{}, false
	}
	for _, user := range s.Users {
		if user.ID == id {
			return user, true
		}
	}
	return User{}, false
}

// FindUserByEmail returns the first user registered with the given email.
func (s Snapshot) FindUserByEmail(email string) (User, bool) {
	if email == "" {
		return User{}, false
	}
	for _, user := range s.Users {
		if user.Email == email {
			return user, true
		}
	}
	return User{}, false
}
