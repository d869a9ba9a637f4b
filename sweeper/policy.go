package sweeper

import (
	"fmt"
	"strings"
	"time"

	"github.com/infogrid/netmesh/common/types"
	"github.com/infogrid/netmesh/netmesh"
)

// Kind of a sweep policy.
type Kind uint8

const (
	// KindExpires selects replicas past their expiry time.
	KindExpires Kind = iota + 1
	// KindNotReadFor selects replicas not read for a duration.
	KindNotReadFor
	// KindPredicate selects replicas by a caller supplied function.
	KindPredicate
)

func (k Kind) String() string {
	switch k {
	case KindExpires:
		return "expires"
	case KindNotReadFor:
		return "not-read-for"
	case KindPredicate:
		return "predicate"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Predicate decides for a replica at now, in milliseconds.
type Predicate func(obj *netmesh.MeshObject, now int64) bool

// Policy decides which replicas are no longer needed. Policies have no side
// effects.
type Policy struct {
	Kind      Kind
	MaxUnread time.Duration
	Predicate Predicate
}

func Expires() Policy { return Policy{Kind: KindExpires} }

func NotReadFor(d time.Duration) Policy { return Policy{Kind: KindNotReadFor, MaxUnread: d} }

func WithPredicate(fn Predicate) Policy { return Policy{Kind: KindPredicate, Predicate: fn} }

// Any selects a replica if one of the policies does.
func Any(policies ...Policy) Policy {
	return WithPredicate(func(obj *netmesh.MeshObject, now int64) bool {
		for _, p := range policies {
			if p.ShouldBeDeleted(obj, now) {
				return true
			}
		}
		return false
	})
}

// ShouldBeDeleted reports whether obj may be removed at now (milliseconds).
func (p Policy) ShouldBeDeleted(obj *netmesh.MeshObject, now int64) bool {
	switch p.Kind {
	case KindExpires:
		exp := obj.TimeExpires()
		return exp != types.NeverExpires && now >= exp
	case KindNotReadFor:
		last := max(obj.TimeRead(), obj.TimeCreated())
		return now-last >= p.MaxUnread.Milliseconds()
	case KindPredicate:
		return p.Predicate != nil && p.Predicate(obj, now)
	default:
		return false
	}
}

// Orphaned selects replicas that can no longer reach their home replica, or
// that lost the route to their lock while not holding it.
func Orphaned(obj *netmesh.MeshObject, _ int64) bool {
	if obj.IsHomeReplica() {
		return false
	}
	return obj.HomeRouteLost() || (!obj.HasLock() && obj.LockRouteLost())
}

// ParsePolicy builds a policy from a comma separated list of names:
// expires, not-read-for and orphaned.
func ParsePolicy(names string, maxUnread time.Duration) (Policy, error) {
	var policies []Policy
	for _, name := range strings.Split(names, ",") {
		switch strings.TrimSpace(name) {
		case "":
		case KindExpires.String():
			policies = append(policies, Expires())
		case KindNotReadFor.String():
			if maxUnread <= 0 {
				return Policy{}, fmt.Errorf("policy %s needs a positive max-unread", KindNotReadFor)
			}
			policies = append(policies, NotReadFor(maxUnread))
		case "orphaned":
			policies = append(policies, WithPredicate(Orphaned))
		default:
			return Policy{}, fmt.Errorf("unknown sweep policy %q", name)
		}
	}
	switch len(policies) {
	case 0:
		return Policy{}, fmt.Errorf("empty sweep policy %q", names)
	case 1:
		return policies[0], nil
	}
	return Any(policies...), nil
}
