package api

import "context"

// Gate decides whether actor may schedule notifications for owner.
type Gate interface {
	Allow(ctx context.Context, actor, owner string) bool
}

type AllowAll struct{}

func (AllowAll) Allow(context.Context, string, string) bool { return true }

// Operators lets users schedule for themselves and listed operators
// schedule for anyone.
type Operators map[string]bool

func NewOperators(ids []string) Operators {
	o := Operators{}
	for _, id := range ids {
		if id != "" {
			o[id] = true
		}
	}
	return o
}

func (o Operators) Allow(_ context.Context, actor, owner string) bool {
	if actor == "" {
		return false
	}
	return actor == owner || o[actor]
}
