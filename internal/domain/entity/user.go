package entity

import (
	"time"
)

type Role string

const (
	RoleSupport Role = "support"
	RoleClient  Role = "client"
)

func (r Role) Valid() bool {
	return r == RoleSupport || r == RoleClient
}

// User is created out of band by the provisioning tool and never mutated by chat flows.
type User struct {
	Username string `json:"username" firestore:"-"`
	// Password holds a bcrypt hash, or plaintext for legacy records.
	Password  string    `json:"-" firestore:"password"`
	Role      Role      `json:"role" firestore:"role"`
	CreatedAt time.Time `json:"created_at" firestore:"createdAt"`
}

// Identity is what a successful login persists on the client side.
type Identity struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

func (i Identity) IsSupport() bool {
	return i.Role == RoleSupport
}

// CanAccessConversation reports whether the identity may read or write the
// conversation keyed by clientUsername. Support reaches every conversation
// except one keyed by its own name; a client only its own.
func (i Identity) CanAccessConversation(clientUsername string) bool {
	if i.IsSupport() {
		return clientUsername != "" && clientUsername != i.Username
	}
	return i.Role == RoleClient && i.Username == clientUsername
}
