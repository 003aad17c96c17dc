package store_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoutsense/entitycache/pkg/normalize"
	"github.com/scoutsense/entitycache/pkg/schema"
	"github.com/scoutsense/entitycache/pkg/store"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	return store.New(schema.Default())
}

func user(id int, first, last string) map[string]any {
	return map[string]any{
		"id":        id,
		"firstName": first,
		"lastName":  last,
		"email":     fmt.Sprintf("%s@example.com", first),
	}
}

func research(id, productID int) map[string]any {
	return map[string]any{
		"id":            id,
		"productId":     productID,
		"researchSteps": []any{},
		"createdAt":     "2024-01-01T00:00:00Z",
	}
}

func researchStep(id, researchID int) map[string]any {
	return map[string]any{
		"id":         id,
		"researchId": researchID,
		"name":       fmt.Sprintf("Research Step %d", id),
		"status":     "PENDING",
		"order":      id,
	}
}

func ids(t *testing.T, list any) []any {
	t.Helper()
	items, ok := list.([]any)
	require.True(t, ok, "expected a list, got %T", list)
	out := make([]any, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		require.True(t, ok, "expected an entity, got %T", item)
		out = append(out, m["id"])
	}
	return out
}

func TestStore_SetAndGet(t *testing.T) {
	s := newStore(t)

	u := user(1, "John", "Doe")
	require.NoError(t, s.Set(schema.User, u))
	assert.Equal(t, u, s.Get(schema.User, "1"))

	users := []any{user(2, "Jane", "Smith"), user(3, "Ada", "Lovelace")}
	require.NoError(t, s.Set(schema.User, users))
	assert.Equal(t, users[0], s.Get(schema.User, "2"))
	assert.Equal(t, users[1], s.Get(schema.User, "3"))

	assert.Nil(t, s.Get(schema.User, "404"))
}

func TestStore_SetStruct(t *testing.T) {
	type member struct {
		ID        int    `json:"id"`
		FirstName string `json:"firstName"`
	}
	s := newStore(t)

	require.NoError(t, s.Set(schema.User, []member{{ID: 1, FirstName: "John"}, {ID: 2, FirstName: "Jane"}}))

	assert.Equal(t, "Jane", s.Get(schema.User, "2")["firstName"])
	assert.Equal(t, 2, s.Snapshot().Len(schema.User))
}

func TestStore_NestedEntities(t *testing.T) {
	s := newStore(t)
	idea := map[string]any{
		"id":          1,
		"title":       "Test Idea",
		"rank":        1,
		"sources":     []any{},
		"painPoints":  []any{},
		"comments":    []any{},
		"painPointId": 1,
	}
	painPoint := map[string]any{
		"id":       1,
		"title":    "Test Pain Point",
		"severity": 80,
		"ideas":    []any{idea},
		"sources":  []any{},
		"comments": []any{},
		"features": []any{},
	}
	product := map[string]any{
		"id":         1,
		"name":       "Product 1",
		"researches": []any{},
		"companyId":  1,
		"painPoints": []any{painPoint},
	}

	require.NoError(t, s.Set(schema.Product, product))

	got := s.Get(schema.Product, "1")
	require.NotNil(t, got)
	assert.Equal(t, "Product 1", got["name"])
	assert.Equal(t, []any{}, got["researches"])
	points := got["painPoints"].([]any)
	require.Len(t, points, 1)
	pp := points[0].(map[string]any)
	assert.Equal(t, "Test Pain Point", pp["title"])
	assert.Equal(t, []any{1}, ids(t, pp["ideas"]))

	gotIdea := s.Get(schema.Idea, "1")
	require.NotNil(t, gotIdea)
	assert.Equal(t, "Test Idea", gotIdea["title"])
	assert.Equal(t, 1, gotIdea["painPointId"])
	assert.Equal(t, 1, gotIdea["painPoint"].(map[string]any)["id"], "reference filled from painPointId")
}

func TestStore_DuplicatesAreDropped(t *testing.T) {
	product := map[string]any{"id": 1, "name": "Product 1", "researches": []any{}, "companyId": 1}
	company := map[string]any{
		"id":          1,
		"name":        "Company 1",
		"products":    []any{product, product},
		"memberships": []any{},
	}

	t.Run("initial set", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(schema.User, user(1, "John", "Doe")))
		require.NoError(t, s.Set(schema.Company, company))

		assert.Equal(t, "Product 1", s.Get(schema.Product, "1")["name"])
		assert.Equal(t, []any{1}, ids(t, s.Get(schema.Company, "1")["products"]))
	})

	t.Run("subsequent set", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(schema.Company, company))
		require.NoError(t, s.Set(schema.Company, company))

		assert.Equal(t, []any{1}, ids(t, s.Get(schema.Company, "1")["products"]))
	})
}

func TestStore_NestedSetBuildsReferences(t *testing.T) {
	s := newStore(t)
	r := research(1, 1)
	r["researchSteps"] = []any{researchStep(1, 1)}

	require.NoError(t, s.Set(schema.Research, r))

	raw, ok := s.Snapshot().Lookup(schema.Research, "1")
	require.True(t, ok)
	assert.Equal(t, "1", raw["product"], "reference filled from productId")

	got := s.Get(schema.Research, "1")
	assert.NotContains(t, got, "product", "product 1 is not stored")
	steps := got["researchSteps"].([]any)
	require.Len(t, steps, 1)
	assert.Equal(t, "Research Step 1", steps[0].(map[string]any)["name"])

	step := s.Get(schema.ResearchStep, "1")
	assert.Equal(t, "PENDING", step["status"])
	assert.Equal(t, 1, step["research"].(map[string]any)["id"])
}

func TestStore_RelationshipsAreSymmetricInEitherOrder(t *testing.T) {
	t.Run("parent first", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(schema.Research, research(1, 1)))
		require.NoError(t, s.Set(schema.ResearchStep, researchStep(1, 1)))

		assert.Equal(t, []any{1}, ids(t, s.Get(schema.Research, "1")["researchSteps"]))
	})

	t.Run("child first", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(schema.ResearchStep, researchStep(1, 1)))
		require.NoError(t, s.Set(schema.ResearchStep, researchStep(2, 1)))
		require.NoError(t, s.Set(schema.Research, research(1, 1)))

		assert.Equal(t, []any{1, 2}, ids(t, s.Get(schema.Research, "1")["researchSteps"]))
	})
}

func TestStore_InverseCollectionsHoldIDStrings(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Set(schema.ResearchStep, researchStep(2, 1)))
	require.NoError(t, s.Set(schema.Research, research(1, 1)))
	require.NoError(t, s.Set(schema.ResearchStep, researchStep(1, 1)))

	raw, ok := s.Snapshot().Lookup(schema.Research, "1")
	require.True(t, ok)
	assert.ElementsMatch(t, []any{"1", "2"}, raw["researchSteps"])
}

func TestStore_ProductCollectsResearches(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.Set(schema.Company, map[string]any{"id": 1, "name": "Company 1", "products": []any{}}))
	require.NoError(t, s.Set(schema.Product, map[string]any{"id": 1, "name": "Product 1", "researches": []any{}, "companyId": 1}))
	require.NoError(t, s.Set(schema.Research, research(1, 1)))
	require.NoError(t, s.Set(schema.ResearchStep, researchStep(1, 1)))

	r := s.Get(schema.Research, "1")
	assert.Equal(t, []any{1}, ids(t, r["researchSteps"]))
	assert.Equal(t, 1, r["product"].(map[string]any)["id"])

	require.NoError(t, s.Set(schema.Research, research(2, 1)))

	p := s.Get(schema.Product, "1")
	assert.Equal(t, []any{1, 2}, ids(t, p["researches"]))
	assert.Equal(t, []any{1}, ids(t, s.Get(schema.Company, "1")["products"]))
}

func TestStore_ProductLinkedThroughNestedCompany(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Set(schema.Company, map[string]any{
		"id": 1, "name": "Company 1", "products": []any{}, "memberships": []any{},
	}))

	require.NoError(t, s.Set(schema.Product, map[string]any{
		"id": 1, "name": "Product 1", "researches": []any{}, "company": map[string]any{"id": 1},
	}))
	require.NoError(t, s.Set(schema.Product, map[string]any{
		"id": 2, "name": "Product 2", "researches": []any{}, "company": map[string]any{"id": 1},
	}))

	company := s.Get(schema.Company, "1")
	assert.Equal(t, "Company 1", company["name"], "nested {id} does not erase stored fields")
	assert.Equal(t, []any{}, company["memberships"])
	assert.Equal(t, []any{1, 2}, ids(t, company["products"]))

	product := s.Get(schema.Product, "1")
	assert.Equal(t, "Company 1", product["company"].(map[string]any)["name"])
}

func TestStore_MergeUnionsCollections(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Set(schema.Research, []any{research(1, 0), research(2, 0), research(3, 0)}))

	require.NoError(t, s.Set(schema.Product, map[string]any{
		"id": 1, "name": "first", "description": "kept", "researches": []any{map[string]any{"id": 2}, "1"},
	}))
	require.NoError(t, s.Set(schema.Product, map[string]any{
		"id": 1, "name": "second", "researches": []any{3, "2"},
	}))

	raw, ok := s.Snapshot().Lookup(schema.Product, "1")
	require.True(t, ok)
	assert.Equal(t, []any{"2", "1", "3"}, raw["researches"])
	assert.Equal(t, "second", raw["name"], "scalar fields: last write wins")
	assert.Equal(t, "kept", raw["description"])
}

func TestStore_CommentLinksToPainPoint(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Set(schema.PainPoint, map[string]any{
		"id": 1, "title": "Test Pain Point", "ideas": []any{}, "comments": []any{}, "features": []any{},
	}))

	require.NoError(t, s.Set(schema.Comment, map[string]any{
		"id":            1,
		"content":       "Test comment",
		"painPointId":   1,
		"productIdeaId": nil,
		"authorId":      1,
		"author":        user(1, "John", "Doe"),
		"painPoint":     map[string]any{"id": 1},
	}))

	pp := s.Get(schema.PainPoint, "1")
	assert.Equal(t, "Test Pain Point", pp["title"])
	comments := pp["comments"].([]any)
	require.Len(t, comments, 1)
	assert.Equal(t, "Test comment", comments[0].(map[string]any)["content"])

	c := s.Get(schema.Comment, "1")
	assert.Nil(t, c["productIdeaId"])
	assert.NotContains(t, c, "idea")
	assert.Equal(t, user(1, "John", "Doe"), c["author"])
	assert.Equal(t, "John", s.Get(schema.User, "1")["firstName"], "author is hoisted")
}

func TestStore_SetIsIdempotent(t *testing.T) {
	s := newStore(t)
	payload := map[string]any{
		"id":         1,
		"name":       "Product 1",
		"companyId":  1,
		"researches": []any{research(1, 1)},
	}

	require.NoError(t, s.Set(schema.Product, payload))
	before := s.Snapshot()

	require.NoError(t, s.Set(schema.Product, payload))
	after := s.Snapshot()

	assert.Equal(t, before.Version(), after.Version())
	assert.Same(t, before, after)
}

func TestStore_RemoveAndClear(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Set(schema.User, user(1, "John", "Doe")))
	require.NoError(t, s.Set(schema.Product, map[string]any{"id": 1, "name": "Product 1"}))

	s.Remove(schema.User, "1")
	assert.Nil(t, s.Get(schema.User, "1"))

	assert.NotPanics(t, func() { s.Remove(schema.User, "non-existent") })

	s.Clear()
	assert.Nil(t, s.Get(schema.Product, "1"))
	for _, et := range schema.Default().Types() {
		assert.Zero(t, s.Snapshot().Len(et), et.String())
	}
}

func TestStore_RemovedReferenceIsDroppedOnRead(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Set(schema.Research, research(1, 0)))
	require.NoError(t, s.Set(schema.ResearchStep, []any{researchStep(1, 1), researchStep(2, 1)}))

	s.Remove(schema.ResearchStep, "1")

	assert.Equal(t, []any{2}, ids(t, s.Get(schema.Research, "1")["researchSteps"]))
}

func TestStore_AllIsOrderedByID(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Set(schema.User, []any{user(10, "c", "c"), user(2, "b", "b"), user(1, "a", "a")}))

	all := s.All(schema.User)
	require.Len(t, all, 3)
	assert.Equal(t, []any{1, 2, 10}, []any{all[0]["id"], all[1]["id"], all[2]["id"]})
	assert.Empty(t, s.All(schema.Feature))
}

func TestStore_Errors(t *testing.T) {
	s := newStore(t)

	err := s.Set(schema.EntityType("bogus"), map[string]any{"id": 1})
	assert.ErrorIs(t, err, store.ErrUnknownEntityType)
	assert.True(t, store.IsConfigurationError(err))

	err = s.Set(schema.User, "text")
	assert.ErrorIs(t, err, store.ErrInvalidPayload)

	err = s.Set(schema.User, []any{user(1, "John", "Doe"), 2})
	assert.ErrorIs(t, err, store.ErrInvalidPayload)
	assert.Nil(t, s.Get(schema.User, "1"), "a failed set writes nothing")

	assert.NoError(t, s.Set(schema.User, nil))
}

func TestStore_CustomRegistry(t *testing.T) {
	reg := schema.MustRegistry(
		schema.Define(schema.User, map[string]schema.Relation{"memberships": schema.Many(schema.Membership)}),
		schema.Define(schema.Membership, nil),
	)
	s := store.New(reg)
	require.NoError(t, s.Set(schema.User, map[string]any{"id": 1, "memberships": []any{map[string]any{"id": 5}}}))
	assert.Equal(t, []any{"5"}, mustLookup(t, s, schema.User, "1")["memberships"])
}

func mustLookup(t *testing.T, s *store.Store, et schema.EntityType, id string) normalize.Entity {
	t.Helper()
	e, ok := s.Snapshot().Lookup(et, id)
	require.True(t, ok, "%s %s not stored", et, id)
	return e
}

func TestStore_SnapshotsAreImmutable(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Set(schema.Research, research(1, 0)))
	old := s.Snapshot()

	require.NoError(t, s.Set(schema.ResearchStep, researchStep(1, 1)))
	require.NoError(t, s.Set(schema.Research, map[string]any{"id": 1, "name": "renamed"}))

	assert.Equal(t, []any{}, mustLookupIn(t, old, schema.Research, "1")["researchSteps"])
	assert.NotContains(t, mustLookupIn(t, old, schema.Research, "1"), "name")
	assert.False(t, old.Has(schema.ResearchStep, "1"))
	assert.Equal(t, old.Version()+2, s.Snapshot().Version())

	got := s.Get(schema.Research, "1")
	got["name"] = "mutated"
	assert.Equal(t, "renamed", s.Get(schema.Research, "1")["name"])
}

func mustLookupIn(t *testing.T, snap *store.Snapshot, et schema.EntityType, id string) normalize.Entity {
	t.Helper()
	e, ok := snap.Lookup(et, id)
	require.True(t, ok)
	return e
}

func TestStore_Subscribe(t *testing.T) {
	s := newStore(t)

	var versions []uint64
	unsubscribe := s.Subscribe(func(snap *store.Snapshot) {
		versions = append(versions, snap.Version())
	})
	assert.Equal(t, 1, s.Subscribers())

	require.NoError(t, s.Set(schema.User, user(1, "John", "Doe")))
	require.NoError(t, s.Set(schema.User, user(1, "John", "Doe")))
	s.Remove(schema.User, "missing")
	s.Remove(schema.User, "1")
	s.Clear()

	assert.Equal(t, []uint64{1, 2, 3}, versions, "unchanged writes do not notify")

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 0, s.Subscribers())

	require.NoError(t, s.Set(schema.User, user(2, "Jane", "Smith")))
	assert.Len(t, versions, 3)
}

func TestStore_ListenerMayWrite(t *testing.T) {
	s := newStore(t)
	s.Subscribe(func(snap *store.Snapshot) {
		if snap.Has(schema.User, "1") && !snap.Has(schema.User, "2") {
			require.NoError(t, s.Set(schema.User, user(2, "Jane", "Smith")))
		}
	})

	require.NoError(t, s.Set(schema.User, user(1, "John", "Doe")))
	assert.NotNil(t, s.Get(schema.User, "2"))
}

func TestStore_ConcurrentWriters(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Set(schema.Research, research(1, 0)))

	const writers = 20
	var wg sync.WaitGroup
	for i := 1; i <= writers; i++ {
		wg.Add(2)
		go func(id int) {
			defer wg.Done()
			assert.NoError(t, s.Set(schema.ResearchStep, researchStep(id, 1)))
		}(i)
		go func() {
			defer wg.Done()
			_ = s.Get(schema.Research, "1")
		}()
	}
	wg.Wait()

	assert.Equal(t, writers, s.Snapshot().Len(schema.ResearchStep))
	steps := mustLookup(t, s, schema.Research, "1")["researchSteps"].([]any)
	assert.Len(t, steps, writers)
}
