package annotate

import (
	"math/rand"
	"testing"

	"planner/api/internal/catalog"
)

func TestBookmarkedElsewhereScenario(t *testing.T) {
	x1, x2, _ := twoPlacements()
	b := NewBookmarkIndex()

	b.Toggle(x1)
	if !b.BookmarkedElsewhere(x2) {
		t.Fatal("expected x2 to see x1's bookmark")
	}
	if b.BookmarkedElsewhere(x1) {
		t.Fatal("x1 must not count its own bookmark")
	}

	b.Toggle(x1)
	if b.BookmarkedElsewhere(x2) {
		t.Fatal("expected cleared bookmark to disappear from x2")
	}
}

func TestApplyFromElsewhereOnlyTouchesTarget(t *testing.T) {
	x1, x2, _ := twoPlacements()
	b := NewBookmarkIndex()
	b.Set(x1, true)

	b.ApplyFromElsewhere(x2)
	if !b.IsBookmarked(x2) || !b.IsBookmarked(x1) {
		t.Fatal("expected both bookmarked")
	}
	b.ApplyFromElsewhere(x2)
	if !b.BookmarkedElsewhere(x2) || !b.BookmarkedElsewhere(x1) {
		t.Fatal("expected each to see the other")
	}
}

func TestToggleAllForGroup(t *testing.T) {
	course := &catalog.TopicCourse{Code: "BIO100"}
	t1 := course.AddTopic("T1", "")
	t2 := course.AddTopic("T2", "")
	t3 := course.AddTopic("T3", "")
	group := []catalog.Target{t1, t2, t3}
	b := NewBookmarkIndex()
	b.Set(t2, true)

	b.ToggleAllForGroup(group)
	for _, target := range group {
		if !b.IsBookmarked(target) {
			t.Fatalf("expected %s bookmarked after first toggle", target.InstanceKey())
		}
	}

	b.ToggleAllForGroup(group)
	for _, target := range group {
		if b.IsBookmarked(target) {
			t.Fatalf("expected %s cleared after second toggle", target.InstanceKey())
		}
	}
}

func TestToggleAllForGroupDecidesDirectionOnce(t *testing.T) {
	// Two placements of one topic in the same group: if the direction were
	// re-evaluated per item, the second would flip back.
	x1, x2, _ := twoPlacements()
	b := NewBookmarkIndex()
	b.Set(x2, true)

	b.ToggleAllForGroup([]catalog.Target{x1, x2, nil})
	if !b.IsBookmarked(x1) || !b.IsBookmarked(x2) {
		t.Fatal("expected every member bookmarked")
	}
}

func TestClearAll(t *testing.T) {
	x1, x2, ds := twoPlacements()
	b := NewBookmarkIndex()
	b.Set(x1, true)
	b.Set(x2, true)

	b.ClearAll(ds.Instances())
	if b.IsBookmarked(x1) || b.IsBookmarked(x2) || b.BookmarkedElsewhere(x1) {
		t.Fatal("expected every flag cleared")
	}
	if len(b.Bookmarked()) != 0 {
		t.Fatalf("expected no bookmarks, got %v", b.Bookmarked())
	}
}

func TestBookmarkIgnoresStaleTargets(t *testing.T) {
	b := NewBookmarkIndex()
	var stale *catalog.Topic
	b.Toggle(stale)
	b.Toggle(nil)
	b.ApplyFromElsewhere(stale)
	b.ToggleAllForGroup([]catalog.Target{stale, nil})
	if b.IsBookmarked(stale) || b.BookmarkedElsewhere(stale) {
		t.Fatal("stale target must read as not bookmarked")
	}
}

func TestCoursesNeverBookmarkedElsewhere(t *testing.T) {
	a := &catalog.LeafCourse{Code: "A"}
	same := &catalog.LeafCourse{Code: "A"}
	b := NewBookmarkIndex()
	b.Set(a, true)
	if b.BookmarkedElsewhere(same) {
		t.Fatal("courses have no shared identity")
	}
}

func TestBookmarkCountMatchesFullRecompute(t *testing.T) {
	a := &catalog.TopicCourse{Code: "A"}
	c := &catalog.TopicCourse{Code: "C"}
	for _, course := range []*catalog.TopicCourse{a, c} {
		course.AddTopic("T1", "")
		course.AddTopic("T2", "")
	}
	a.AddTopic("T1", "dup placement")
	ds := &catalog.Dataset{Items: []catalog.Item{a, c, &catalog.LeafCourse{Code: "L"}}}
	instances := ds.Instances()

	scan := func(b *BookmarkIndex, self catalog.Target) bool {
		for _, other := range instances {
			if other == self || other.SharedID() == "" {
				continue
			}
			if other.SharedID() == self.SharedID() && b.IsBookmarked(other) {
				return true
			}
		}
		return false
	}

	rng := rand.New(rand.NewSource(3))
	b := NewBookmarkIndex()
	for step := 0; step < 1000; step++ {
		switch rng.Intn(4) {
		case 0:
			b.Toggle(instances[rng.Intn(len(instances))])
		case 1:
			b.ApplyFromElsewhere(instances[rng.Intn(len(instances))])
		case 2:
			b.ToggleAllForGroup(instances[:rng.Intn(len(instances))+1])
		default:
			b.ClearAll(instances[rng.Intn(len(instances)):])
		}
		for _, target := range instances {
			if got, want := b.BookmarkedElsewhere(target), scan(b, target); got != want {
				t.Fatalf("step %d: BookmarkedElsewhere(%s) = %v, scan = %v", step, target.InstanceKey(), got, want)
			}
		}
	}
}
