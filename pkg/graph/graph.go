// Package graph implements a small state-machine workflow engine.
// Nodes read the current state and return a delta; a caller-supplied
// reducer folds deltas back into the state. Routing between nodes is
// either a fixed edge or a router function evaluated on the merged
// state.
package graph

import (
	"context"
	"fmt"
)

// End is the terminal routing target.
const End = "__end__"

// maxHops bounds a single run so a miswired graph cannot loop forever.
const maxHops = 50

// NodeFunc executes one step. It must not mutate the state it
// receives; all changes go through the returned delta.
type NodeFunc[S, D any] func(ctx context.Context, state S) (D, error)

// Router picks the next node from the merged state.
type Router[S any] func(state S) string

// Reducer folds a delta into the state and returns the new state.
type Reducer[S, D any] func(state S, delta D) S

type Graph[S, D any] struct {
	reducer    Reducer[S, D]
	nodes      map[string]NodeFunc[S, D]
	edges      map[string]string
	routers    map[string]Router[S]
	entryPoint string
	nodeOrder  []string
}

func New[S, D any](reducer Reducer[S, D]) *Graph[S, D] {
	return &Graph[S, D]{
		reducer: reducer,
		nodes:   make(map[string]NodeFunc[S, D]),
		edges:   make(map[string]string),
		routers: make(map[string]Router[S]),
	}
}

func (g *Graph[S, D]) AddNode(name string, fn NodeFunc[S, D]) *Graph[S, D] {
	g.nodes[name] = fn
	g.nodeOrder = append(g.nodeOrder, name)
	return g
}

// AddEdge wires an unconditional transition from one node to another.
func (g *Graph[S, D]) AddEdge(from, to string) *Graph[S, D] {
	g.edges[from] = to
	return g
}

// AddConditionalEdge wires a router that picks the next node at
// runtime. A node has either an edge or a router, not both.
func (g *Graph[S, D]) AddConditionalEdge(from string, router Router[S]) *Graph[S, D] {
	g.routers[from] = router
	return g
}

func (g *Graph[S, D]) SetEntryPoint(name string) *Graph[S, D] {
	g.entryPoint = name
	return g
}

// Compile validates the graph wiring and returns a Runner.
func (g *Graph[S, D]) Compile() (*Runner[S, D], error) {
	if g.reducer == nil {
		return nil, fmt.Errorf("graph: reducer is required")
	}
	if g.entryPoint == "" {
		return nil, fmt.Errorf("graph: entry point is not set")
	}
	if _, ok := g.nodes[g.entryPoint]; !ok {
		return nil, fmt.Errorf("graph: entry point %q is not a node", g.entryPoint)
	}
	for from, to := range g.edges {
		if _, ok := g.nodes[from]; !ok {
			return nil, fmt.Errorf("graph: edge source %q is not a node", from)
		}
		if to != End {
			if _, ok := g.nodes[to]; !ok {
				return nil, fmt.Errorf("graph: edge target %q is not a node", to)
			}
		}
	}
	for _, name := range g.nodeOrder {
		_, hasEdge := g.edges[name]
		_, hasRouter := g.routers[name]
		if hasEdge && hasRouter {
			return nil, fmt.Errorf("graph: node %q has both an edge and a router", name)
		}
		if !hasEdge && !hasRouter {
			return nil, fmt.Errorf("graph: node %q has no outgoing transition", name)
		}
	}
	return &Runner[S, D]{graph: g}, nil
}

// Runner executes a compiled graph.
type Runner[S, D any] struct {
	graph *Graph[S, D]
}

// Event reports one completed node during a streamed run.
type Event[S any] struct {
	Node  string
	State S
	Err   error
}

// Invoke runs the graph to completion and returns the final state.
func (r *Runner[S, D]) Invoke(ctx context.Context, state S) (S, error) {
	current := r.graph.entryPoint
	for hop := 0; hop < maxHops; hop++ {
		if err := ctx.Err(); err != nil {
			return state, err
		}

		node := r.graph.nodes[current]
		delta, err := node(ctx, state)
		if err != nil {
			return state, fmt.Errorf("node %s: %w", current, err)
		}
		state = r.graph.reducer(state, delta)

		next, err := r.next(current, state)
		if err != nil {
			return state, err
		}
		if next == End {
			return state, nil
		}
		current = next
	}
	return state, fmt.Errorf("graph: exceeded %d hops without reaching the end", maxHops)
}

// Stream runs the graph and emits an event after every node. The
// channel closes when the run ends; a terminal error is delivered as
// the last event.
func (r *Runner[S, D]) Stream(ctx context.Context, state S) <-chan Event[S] {
	events := make(chan Event[S])
	go func() {
		defer close(events)
		current := r.graph.entryPoint
		for hop := 0; hop < maxHops; hop++ {
			if err := ctx.Err(); err != nil {
				events <- Event[S]{Node: current, State: state, Err: err}
				return
			}

			node := r.graph.nodes[current]
			delta, err := node(ctx, state)
			if err != nil {
				events <- Event[S]{Node: current, State: state, Err: fmt.Errorf("node %s: %w", current, err)}
				return
			}
			state = r.graph.reducer(state, delta)
			events <- Event[S]{Node: current, State: state}

			next, err := r.next(current, state)
			if err != nil {
				events <- Event[S]{Node: current, State: state, Err: err}
				return
			}
			if next == End {
				return
			}
			current = next
		}
		events <- Event[S]{State: state, Err: fmt.Errorf("graph: exceeded %d hops without reaching the end", maxHops)}
	}()
	return events
}

func (r *Runner[S, D]) next(current string, state S) (string, error) {
	if to, ok := r.graph.edges[current]; ok {
		return to, nil
	}
	router := r.graph.routers[current]
	target := router(state)
	if target == End {
		return End, nil
	}
	if _, ok := r.graph.nodes[target]; !ok {
		return "", fmt.Errorf("graph: router at %s returned unknown node %q", current, target)
	}
	return target, nil
}
