package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halvardix/colgraph/pkg/codec"
	"github.com/halvardix/colgraph/pkg/kvstore"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New("", kvstore.NewMemoryBackend())
	require.NoError(t, err)
	return e
}

func mustCreateNode(t *testing.T, e *Engine, nodeType, key string, attrs Attrs) *Node {
	t.Helper()
	n, err := e.CreateNode(nodeType, key, attrs)
	require.NoError(t, err)
	return n
}

// Scenario 1 (spec §8): spiderpig/cow friend relationship.
func TestScenarioFriendRelationship(t *testing.T) {
	e := newTestEngine(t)

	spiderpig := mustCreateNode(t, e, "test_type", "spiderpig", Attrs{"sound": codec.String("oink")})
	cow := mustCreateNode(t, e, "test_type", "cow", Attrs{"sound": codec.String("moo")})

	rel, err := spiderpig.Edges("friend").Create(cow, "spiderpig_cow_alliance", Attrs{"best": codec.Bool(false)})
	require.NoError(t, err)
	assert.Equal(t, "spiderpig_cow_alliance", rel.Key)

	out, err := spiderpig.Edges("friend").Outgoing()
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "cow", out[0].Target.Key)
	assert.Equal(t, "spiderpig_cow_alliance", out[0].Key)

	in, err := cow.Edges("friend").Incoming()
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, "spiderpig", in[0].Source.Key)

	contains, err := spiderpig.Edges("friend").Contains("cow")
	require.NoError(t, err)
	assert.True(t, contains)

	rels, err := e.HasRelationship(spiderpig, "cow", "friend")
	require.NoError(t, err)
	require.Len(t, rels, 1)
}

// Scenario 2 (spec §8): a second, differently-keyed friend edge.
func TestScenarioSecondFriendRelationship(t *testing.T) {
	e := newTestEngine(t)

	spiderpig := mustCreateNode(t, e, "test_type", "spiderpig", Attrs{"sound": codec.String("oink")})
	cow := mustCreateNode(t, e, "test_type", "cow", Attrs{"sound": codec.String("moo")})
	homer := mustCreateNode(t, e, "simpson", "homer", Attrs{"sound": codec.String("Doh")})

	_, err := spiderpig.Edges("friend").Create(cow, "spiderpig_cow_alliance", Attrs{"best": codec.Bool(false)})
	require.NoError(t, err)
	_, err = spiderpig.Edges("friend").Create(homer, "loves", Attrs{"AKA": codec.String("Harry Plopper")})
	require.NoError(t, err)

	count, err := spiderpig.Edges("friend").Len()
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	all, err := spiderpig.Edges("friend").All()
	require.NoError(t, err)
	keys := map[string]bool{}
	for _, r := range all {
		keys[r.Target.Key] = true
	}
	assert.True(t, keys["cow"])
	assert.True(t, keys["homer"])
}

// Scenario 3 (spec §8): deleting a node cleans up adjacency, pair
// index, and reference-node membership on every side.
func TestScenarioDeleteNodeCleansAdjacency(t *testing.T) {
	e := newTestEngine(t)

	spiderpig := mustCreateNode(t, e, "test_type", "spiderpig", Attrs{"sound": codec.String("oink")})
	cow := mustCreateNode(t, e, "test_type", "cow", Attrs{"sound": codec.String("moo")})
	homer := mustCreateNode(t, e, "simpson", "homer", Attrs{"sound": codec.String("Doh")})

	_, err := spiderpig.Edges("friend").Create(cow, "spiderpig_cow_alliance", nil)
	require.NoError(t, err)
	_, err = spiderpig.Edges("friend").Create(homer, "loves", nil)
	require.NoError(t, err)

	require.NoError(t, spiderpig.Delete())

	cowIn, err := cow.Edges("friend").Incoming()
	require.NoError(t, err)
	assert.Empty(t, cowIn)

	homerIn, err := homer.Edges("friend").Incoming()
	require.NoError(t, err)
	assert.Empty(t, homerIn)

	// Pair-index markers pointing at the deleted node must be gone too.
	rels, err := e.HasRelationship(cow, "spiderpig", "friend")
	require.NoError(t, err)
	assert.Empty(t, rels)

	_, err = e.GetNode("test_type", "spiderpig")
	assert.ErrorIs(t, err, ErrNodeNotFound)

	ref, err := e.GetReferenceNode("test_type")
	require.NoError(t, err)
	instances, err := ref.Edges(RelInstance).Outgoing()
	require.NoError(t, err)
	for _, r := range instances {
		assert.NotEqual(t, "spiderpig", r.Target.Key)
	}
}

// Scenario 4 (spec §8): reference-node idempotence.
func TestScenarioReferenceNodeIdempotent(t *testing.T) {
	e := newTestEngine(t)

	first, err := e.GetReferenceNode("simpson")
	require.NoError(t, err)
	second, err := e.GetReferenceNode("simpson")
	require.NoError(t, err)

	assert.Equal(t, first.Key, second.Key)
	assert.Equal(t, TypeReference, second.Type)
	v, ok := second.Get(attrReferenceMarker)
	require.True(t, ok)
	s, isString := v.RawString()
	require.True(t, isString)
	assert.Equal(t, "reference", s)
}

// Scenario 5 (spec §8): codec round-trip through a stored node.
func TestScenarioCodecRoundTrip(t *testing.T) {
	e := newTestEngine(t)

	n := mustCreateNode(t, e, "test_type", "mixed", Attrs{
		"a": codec.Bool(true),
		"b": codec.Int(7),
		"c": codec.Float(3.5),
		"d": codec.String("hi"),
	})
	reloaded, err := e.GetNode(n.Type, n.Key)
	require.NoError(t, err)

	av, _ := reloaded.Get("a")
	bv, _ := reloaded.Get("b")
	cv, _ := reloaded.Get("c")
	dv, _ := reloaded.Get("d")

	ab, _ := av.Bool()
	bi, _ := bv.Int()
	cf, _ := cv.Float()

	assert.True(t, ab)
	assert.Equal(t, int64(7), bi)
	assert.InDelta(t, 3.5, cf, 0.0001)
	assert.Equal(t, "hi", dv.AsString())
}

// Scenario 6 (spec §8): batch rollback.
func TestScenarioBatchRollback(t *testing.T) {
	e := newTestEngine(t)

	scope, err := e.Begin()
	require.NoError(t, err)

	_, err = e.CreateNode("test_type", "a", nil)
	require.NoError(t, err)
	_, err = e.CreateNode("test_type", "b", nil)
	require.NoError(t, err)

	scope.Discard()

	_, err = e.GetNode("test_type", "a")
	assert.ErrorIs(t, err, ErrNodeNotFound)
	_, err = e.GetNode("test_type", "b")
	assert.ErrorIs(t, err, ErrNodeNotFound)

	scope2, err := e.Begin()
	require.NoError(t, err)
	_, err = e.CreateNode("test_type", "c", nil)
	require.NoError(t, err)
	require.NoError(t, scope2.Commit())

	got, err := e.GetNode("test_type", "c")
	require.NoError(t, err)
	assert.Equal(t, "c", got.Key)
}

func TestBatchesDoNotNest(t *testing.T) {
	e := newTestEngine(t)

	scope, err := e.Begin()
	require.NoError(t, err)
	defer scope.Discard()

	_, err = e.Begin()
	assert.ErrorIs(t, err, ErrUsage)
}

func TestCreateRelationshipPreservesCallerAttrs(t *testing.T) {
	e := newTestEngine(t)
	a := mustCreateNode(t, e, "test_type", "a", nil)
	b := mustCreateNode(t, e, "test_type", "b", nil)

	rel, err := a.Edges("knows").Create(b, "", Attrs{"since": codec.Int(2020)})
	require.NoError(t, err)

	v, ok := rel.Get("since")
	require.True(t, ok)
	n, isInt := v.Int()
	require.True(t, isInt)
	assert.Equal(t, int64(2020), n)

	// A freshly generated key must be a non-empty opaque string.
	assert.NotEmpty(t, rel.Key)
}

func TestDeleteRelationshipClearsBothSidesAndPairIndex(t *testing.T) {
	e := newTestEngine(t)
	a := mustCreateNode(t, e, "test_type", "a", nil)
	b := mustCreateNode(t, e, "test_type", "b", nil)

	rel, err := a.Edges("knows").Create(b, "r1", nil)
	require.NoError(t, err)

	require.NoError(t, rel.Delete())

	out, err := a.Edges("knows").Outgoing()
	require.NoError(t, err)
	assert.Empty(t, out)

	in, err := b.Edges("knows").Incoming()
	require.NoError(t, err)
	assert.Empty(t, in)

	rels, err := e.HasRelationship(a, "b", "knows")
	require.NoError(t, err)
	assert.Empty(t, rels)

	// Re-delete is reported as RelationshipNotFound, not silently ignored.
	err = rel.Delete()
	assert.ErrorIs(t, err, ErrRelationshipNotFound)
}

// Saving a node propagates changed attributes into every adjacency
// entry on both its outgoing and incoming edges (spec §4.9, §8 laws).
func TestSaveNodePropagatesToNeighbors(t *testing.T) {
	e := newTestEngine(t)
	a := mustCreateNode(t, e, "test_type", "a", Attrs{"mood": codec.String("calm")})
	b := mustCreateNode(t, e, "test_type", "b", nil)
	c := mustCreateNode(t, e, "test_type", "c", nil)

	_, err := a.Edges("knows").Create(b, "ab", nil)
	require.NoError(t, err)
	_, err = c.Edges("knows").Create(a, "ca", nil)
	require.NoError(t, err)

	a.Set("mood", codec.String("excited"))
	require.NoError(t, a.Commit())

	outB, err := b.Edges("knows").Incoming()
	require.NoError(t, err)
	require.Len(t, outB, 1)
	mood, ok := outB[0].SourceAttrs["mood"]
	require.True(t, ok)
	assert.Equal(t, "excited", mood.AsString())

	inC, err := c.Edges("knows").Outgoing()
	require.NoError(t, err)
	require.Len(t, inC, 1)
	mood2, ok := inC[0].TargetAttrs["mood"]
	require.True(t, ok)
	assert.Equal(t, "excited", mood2.AsString())
}

func TestRelationshipTypeSlicingIsExact(t *testing.T) {
	e := newTestEngine(t)
	a := mustCreateNode(t, e, "test_type", "a", nil)
	b := mustCreateNode(t, e, "test_type", "b", nil)

	_, err := a.Edges("friend").Create(b, "r1", nil)
	require.NoError(t, err)
	_, err = a.Edges("friendly").Create(b, "r2", nil)
	require.NoError(t, err)

	friends, err := a.Edges("friend").Outgoing()
	require.NoError(t, err)
	require.Len(t, friends, 1)
	assert.Equal(t, "r1", friends[0].Key)
}

func TestCreateDuplicateNodeIsAlreadyExists(t *testing.T) {
	e := newTestEngine(t)
	mustCreateNode(t, e, "test_type", "dup", nil)

	_, err := e.CreateNode("test_type", "dup", nil)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestValidateNameRejectsReservedDelimiter(t *testing.T) {
	e := newTestEngine(t)
	a := mustCreateNode(t, e, "test_type", "a", nil)
	b := mustCreateNode(t, e, "test_type", "b", nil)

	_, err := a.Edges("bad\x1ftype").Create(b, "", nil)
	assert.ErrorIs(t, err, ErrUsage)
}
