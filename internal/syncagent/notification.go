package syncagent

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/aidanlsb/assetcat/internal/project"
)

// Kind is the type of a project change notification.
type Kind int

const (
	Deleted Kind = iota + 1
	Moved
	Imported
)

func (k Kind) String() string {
	switch k {
	case Deleted:
		return "deleted"
	case Moved:
		return "moved"
	case Imported:
		return "imported"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	switch k {
	case Deleted, Moved, Imported:
		return []byte(k.String()), nil
	}
	return nil, fmt.Errorf("unknown notification kind %d", int(k))
}

// UnmarshalText implements encoding.TextUnmarshaler. "changed" is accepted
// as an alias of "imported".
func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "deleted":
		*k = Deleted
	case "moved":
		*k = Moved
	case "imported", "changed":
		*k = Imported
	default:
		return fmt.Errorf("unknown notification kind %q", text)
	}
	return nil
}

// Notification is one change reported by the host project.
type Notification struct {
	Kind      Kind      `json:"kind"`
	Container uuid.UUID `json:"container"`
	OldPath   string    `json:"old_path,omitempty"`
	NewPath   string    `json:"new_path,omitempty"`
}

func (n Notification) String() string {
	switch n.Kind {
	case Moved:
		return fmt.Sprintf("moved %s: %s -> %s", n.Container, n.OldPath, n.NewPath)
	case Deleted:
		return fmt.Sprintf("deleted %s: %s", n.Container, n.OldPath)
	default:
		return fmt.Sprintf("%s %s: %s", n.Kind, n.Container, n.NewPath)
	}
}

// FromChanges converts reconciled project changes to notifications,
// keeping their order.
func FromChanges(changes []project.Change) []Notification {
	out := make([]Notification, 0, len(changes))
	for _, c := range changes {
		var k Kind
		switch c.Kind {
		case project.ChangeDeleted:
			k = Deleted
		case project.ChangeMoved:
			k = Moved
		default:
			k = Imported
		}
		out = append(out, Notification{Kind: k, Container: c.Container, OldPath: c.OldPath, NewPath: c.NewPath})
	}
	return out
}
