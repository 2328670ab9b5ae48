package reactive

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rxdoc/internal/ir"
)

func committed(t *testing.T) *State {
	t.Helper()
	return NewCommitted(ir.StoredDocument{
		ID:   "p-1",
		Rev:  "1-a",
		Data: ir.Object{"passportId": ir.String("p-1"), "firstName": ir.String("test")},
	})
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for value")
	}
	var zero T
	return zero
}

func requireClosed[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	select {
	case _, ok := <-ch:
		require.False(t, ok, "expected closed channel")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for close")
	}
}

func requireEmpty[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected value: %v", v)
	default:
	}
}

func TestNewCommitted_CopiesData(t *testing.T) {
	data := ir.Object{"firstName": ir.String("test")}
	s := NewCommitted(ir.StoredDocument{ID: "p-1", Rev: "1-a", Data: data})

	data["firstName"] = ir.String("mutated")
	v, ok := s.Committed("firstName")
	require.True(t, ok)
	assert.Equal(t, ir.String("test"), v)
	assert.Equal(t, "1-a", s.Revision())
	assert.Equal(t, "p-1", s.ID())
}

func TestReadsReturnCopies(t *testing.T) {
	s := NewCommitted(ir.StoredDocument{ID: "p-1", Rev: "1-a", Data: ir.Object{
		"tags": ir.Array{ir.String("a")},
	}})

	data := s.Data()
	data["tags"] = ir.Array{}
	v, _ := s.Committed("tags")
	v.(ir.Array)[0] = ir.String("z")

	assert.True(t, ir.Equal(ir.Array{ir.String("a")}, s.Data()["tags"]))
}

func TestObserveField_EmitsCurrentThenChanges(t *testing.T) {
	s := committed(t)
	sub := s.ObserveField("firstName")
	defer sub.Cancel()

	first := recv(t, sub.C())
	assert.Equal(t, ir.String("test"), first.Value)
	assert.True(t, first.Present)

	s.Commit("2-b", ir.Object{"passportId": ir.String("p-1"), "firstName": ir.String("foobar")})
	next := recv(t, sub.C())
	assert.Equal(t, ir.String("foobar"), next.Value)
	assert.Equal(t, "2-b", next.Rev)
}

func TestObserveField_SkipsUnchangedField(t *testing.T) {
	s := committed(t)
	sub := s.ObserveField("firstName")
	defer sub.Cancel()
	recv(t, sub.C())

	s.Commit("2-b", ir.Object{
		"passportId": ir.String("p-1"),
		"firstName":  ir.String("test"),
		"lastName":   ir.String("new"),
	})
	requireEmpty(t, sub.C())
}

func TestObserveField_MissingField(t *testing.T) {
	s := committed(t)
	sub := s.ObserveField("lastName")
	defer sub.Cancel()

	v := recv(t, sub.C())
	assert.False(t, v.Present)
	assert.Nil(t, v.Value)
}

func TestSubscription_KeepsLatestOnly(t *testing.T) {
	s := committed(t)
	sub := s.ObserveField("firstName")
	defer sub.Cancel()

	for i, name := range []string{"a", "b", "c"} {
		s.Commit(string(rune('2'+i))+"-x", ir.Object{"firstName": ir.String(name)})
	}

	v := recv(t, sub.C())
	assert.Equal(t, ir.String("c"), v.Value)
	requireEmpty(t, sub.C())
}

func TestCommit_SameRevisionIsNoop(t *testing.T) {
	s := committed(t)
	sub := s.Observe()
	defer sub.Cancel()
	recv(t, sub.C())

	s.Commit("1-a", ir.Object{"firstName": ir.String("other")})
	requireEmpty(t, sub.C())
	v, _ := s.Committed("firstName")
	assert.Equal(t, ir.String("test"), v)
}

func TestCommit_DoesNotAliasCallerData(t *testing.T) {
	s := committed(t)
	data := ir.Object{"firstName": ir.String("foobar")}
	s.Commit("2-b", data)

	data["firstName"] = ir.String("mutated")
	v, _ := s.Committed("firstName")
	assert.Equal(t, ir.String("foobar"), v)
}

func TestMarkDeleted_CompletesSubscriptions(t *testing.T) {
	s := committed(t)
	field := s.ObserveField("firstName")
	doc := s.Observe()
	recv(t, field.C())
	recv(t, doc.C())

	s.MarkDeleted("2-b")

	final := recv(t, doc.C())
	assert.True(t, final.Deleted)
	assert.Equal(t, "2-b", final.Rev)
	requireClosed(t, doc.C())
	requireClosed(t, field.C())

	assert.True(t, s.Deleted())
	v, ok := s.Committed("firstName")
	require.True(t, ok, "last values stay readable")
	assert.Equal(t, ir.String("test"), v)

	// Writes after removal are ignored.
	s.Commit("3-c", ir.Object{"firstName": ir.String("zombie")})
	v, _ = s.Committed("firstName")
	assert.Equal(t, ir.String("test"), v)
}

func TestObserve_AfterDeleteIsClosed(t *testing.T) {
	s := committed(t)
	s.MarkDeleted("2-b")

	sub := s.Observe()
	last := recv(t, sub.C())
	assert.True(t, last.Deleted)
	requireClosed(t, sub.C())
}

func TestCancel(t *testing.T) {
	s := committed(t)
	sub := s.ObserveField("firstName")
	recv(t, sub.C())

	sub.Cancel()
	requireClosed(t, sub.C())
	sub.Cancel() // idempotent

	s.Commit("2-b", ir.Object{"firstName": ir.String("foobar")})
}

func TestClose(t *testing.T) {
	s := committed(t)
	sub := s.Observe()
	recv(t, sub.C())

	s.Close()
	requireClosed(t, sub.C())
	assert.False(t, s.Deleted())
}

func TestConcurrentCommitsAndReads(t *testing.T) {
	s := New("p-1")
	sub := s.Observe()
	defer sub.Cancel()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			s.Commit(string(rune('a'+i)), ir.Object{"n": ir.Int(int64(i))})
		}(i)
		go func() {
			defer wg.Done()
			_ = s.Data()
			_ = s.Revision()
		}()
	}
	wg.Wait()

	snap := s.Snapshot()
	assert.Contains(t, snap.Data, "n")
}
