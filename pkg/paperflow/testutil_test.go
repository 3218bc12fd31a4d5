package paperflow

import (
	"context"
	"errors"

	"github.com/randalmurphal/paperflow/pkg/paperflow/checkpoint"
)

// Counter is a minimal state for arithmetic tests.
type Counter struct {
	Value int
}

// State records which nodes ran.
type State struct {
	Step     int
	Progress []string
	Done     bool
	GoLeft   bool
	Count    int
}

func increment(_ Context, s Counter) (Counter, error) {
	s.Value++
	return s, nil
}

func passthrough[S any](_ Context, s S) (S, error) {
	return s, nil
}

func makeTrackingNode(name string) NodeFunc[State] {
	return func(_ Context, s State) (State, error) {
		s.Progress = append(s.Progress, name)
		return s, nil
	}
}

func makeFailingNode(err error) NodeFunc[State] {
	return func(_ Context, s State) (State, error) {
		return s, err
	}
}

func makePanicNode(value any) NodeFunc[State] {
	return func(Context, State) (State, error) {
		panic(value)
	}
}

func testCtx() Context {
	return NewContext(context.Background())
}

func linearCounterGraph(n int) *Graph[Counter] {
	g := NewGraph[Counter]()
	ids := make([]string, n)
	for i := range n {
		ids[i] = "inc" + string(rune('a'+i))
		g.AddNode(ids[i], increment)
	}
	for i := 0; i < n-1; i++ {
		g.AddEdge(ids[i], ids[i+1])
	}
	return g.AddEdge(ids[n-1], END).SetEntry(ids[0])
}

var errStoreDown = errors.New("store down")

// failingStore rejects every write.
type failingStore struct {
	*checkpoint.MemoryStore
}

func newFailingStore() *failingStore {
	return &failingStore{MemoryStore: checkpoint.NewMemoryStore()}
}

func (failingStore) Save(context.Context, string, string, []byte) error {
	return errStoreDown
}
