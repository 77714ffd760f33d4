package arena

import "fmt"

// Scope is a save/restore marker over an arena's cursors, giving
// stack-discipline temporary allocation. Everything allocated after Begin
// is reclaimed by the matching End.
//
// Scopes on the same arena must close in strict LIFO order; End panics
// otherwise. Scopes on different arenas are independent and may interleave
// freely.
type Scope struct {
	a        *Arena
	id       int
	savedPos int
	savedStr int
}

// Begin opens a scratch scope, recording the current cursor positions.
func (a *Arena) Begin() Scope {
	a.scratchDepth++
	return Scope{
		a:        a,
		id:       a.scratchDepth,
		savedPos: a.allocPos,
		savedStr: a.strPos,
	}
}

// End closes the scope, rewinding both cursors to where Begin found them.
// Closing a scope that is not the innermost open scope is a logic bug and
// panics.
func (s Scope) End() {
	a := s.a
	if a == nil {
		panic("arena: End on zero scratch scope")
	}
	if s.id != a.scratchDepth {
		panic(fmt.Sprintf("arena: scratch scope %d closed at depth %d (not LIFO)", s.id, a.scratchDepth))
	}
	a.scratchDepth--
	a.allocPos = s.savedPos
	a.strPos = s.savedStr
	if a.eager {
		a.decommitExcess()
	}
}
