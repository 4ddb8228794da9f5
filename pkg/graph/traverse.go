package graph

// Visitor is called once for every node a Walk reaches, including the
// start node. Returning false stops the walk from descending through
// that node's relationships, without stopping the walk elsewhere (spec
// §4.12).
type Visitor func(node *Node) (descend bool, err error)

// Walk performs a depth-first traversal starting at start, following
// relType relationships in the given direction, visiting each (type,
// key) at most once regardless of how many paths reach it (spec §4.12).
// It lists edges through the public Node/RelFactory surface, and loads
// each neighbor with Engine.GetNode reached through the current node's
// unexported engine field, which callers outside this package cannot do.
//
// Grounded on the teacher's Neighbors-based graph walk (pkg/nornicdb's
// traversal helper in the retrieval pack), generalized from a
// fixed-direction neighbor fetch to the engine's relationship factory.
func Walk(start *Node, relType string, dir Direction, visit Visitor) error {
	seen := map[string]struct{}{nodeVisitKey(start): {}}
	return walk(start, relType, dir, visit, seen)
}

func walk(node *Node, relType string, dir Direction, visit Visitor, seen map[string]struct{}) error {
	descend, err := visit(node)
	if err != nil {
		return err
	}
	if !descend {
		return nil
	}

	rels, err := edgesForDirection(node, relType, dir)
	if err != nil {
		return err
	}

	for _, rel := range rels {
		next := otherEndpoint(rel, node)
		key := endpointVisitKey(next)
		if _, visited := seen[key]; visited {
			continue
		}
		seen[key] = struct{}{}

		neighbor, err := node.engine.GetNode(next.Type, next.Key)
		if err != nil {
			return err
		}
		if err := walk(neighbor, relType, dir, visit, seen); err != nil {
			return err
		}
	}
	return nil
}

// Direction selects which side of a relType relationship Walk follows.
type Direction int

const (
	// Outgoing follows relationships where the current node is the source.
	Outgoing Direction = iota
	// Incoming follows relationships where the current node is the target.
	Incoming
	// Either follows both directions.
	Either
)

func edgesForDirection(node *Node, relType string, dir Direction) ([]*Relationship, error) {
	factory := node.Edges(relType)
	switch dir {
	case Outgoing:
		return factory.Outgoing()
	case Incoming:
		return factory.Incoming()
	default:
		return factory.All()
	}
}

func otherEndpoint(rel *Relationship, from *Node) EndpointRef {
	if rel.Source.Type == from.Type && rel.Source.Key == from.Key {
		return rel.Target
	}
	return rel.Source
}

func nodeVisitKey(n *Node) string {
	return n.Type + "\x00" + n.Key
}

func endpointVisitKey(ref EndpointRef) string {
	return ref.Type + "\x00" + ref.Key
}
