package session

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/internal/testutil"
)

// Interface compliance (compile-time assertion)
var _ core.SessionService = (*InMemoryService)(nil)

func TestInMemoryService_CreateGeneratesID(t *testing.T) {
	svc := NewInMemoryService()
	ctx := context.Background()

	sess, err := svc.Create(ctx, "app", "user", "", nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if sess.ID == "" {
		t.Fatal("expected generated session id")
	}

	got, err := svc.Get(ctx, "app", "user", sess.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ID != sess.ID {
		t.Errorf("Get returned id %q, want %q", got.ID, sess.ID)
	}
}

func TestInMemoryService_CreateDuplicate(t *testing.T) {
	svc := NewInMemoryService()
	ctx := context.Background()

	if _, err := svc.Create(ctx, "app", "user", "s1", nil); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	_, err := svc.Create(ctx, "app", "user", "s1", nil)
	if !errors.Is(err, core.ErrSessionExists) {
		t.Errorf("expected ErrSessionExists, got %v", err)
	}

	// Same id under a different user is a different session.
	if _, err := svc.Create(ctx, "app", "other", "s1", nil); err != nil {
		t.Errorf("Create() for different user error = %v", err)
	}
}

func TestInMemoryService_GetNotFound(t *testing.T) {
	svc := NewInMemoryService()
	if _, err := svc.Get(context.Background(), "app", "user", "missing"); !errors.Is(err, core.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestInMemoryService_AppendEventPersistsDelta(t *testing.T) {
	svc := NewInMemoryService()
	ctx := context.Background()

	sess, err := svc.Create(ctx, "app", "user", "s1", nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	ev := testutil.NewEventBuilder().
		Invocation("e-1").
		AssistantText("done").
		StateDelta(map[string]any{
			"result":                        42,
			core.StateTempPrefix + "buffer": "gone",
		}).
		Build()

	stored, err := svc.AppendEvent(ctx, sess, ev)
	if err != nil {
		t.Fatalf("AppendEvent() error = %v", err)
	}
	if _, ok := stored.Actions.StateDelta[core.StateTempPrefix+"buffer"]; ok {
		t.Error("temp key survived in stored event delta")
	}

	got, err := svc.Get(ctx, "app", "user", "s1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if v, _ := got.GetState("result"); v != 42 {
		t.Errorf("state result = %v, want 42", v)
	}
	if _, ok := got.GetState(core.StateTempPrefix + "buffer"); ok {
		t.Error("temp key persisted in session state")
	}
	if got.EventCount() != 1 {
		t.Errorf("event count = %d, want 1", got.EventCount())
	}
}

func TestInMemoryService_AppendEventPartialUntouched(t *testing.T) {
	svc := NewInMemoryService()
	ctx := context.Background()

	sess, _ := svc.Create(ctx, "app", "user", "s1", nil)

	ev := testutil.NewEventBuilder().
		Invocation("e-1").
		AssistantText("chunk").
		Partial(true).
		StateDelta(map[string]any{"ignored": true}).
		Build()

	if _, err := svc.AppendEvent(ctx, sess, ev); err != nil {
		t.Fatalf("AppendEvent() error = %v", err)
	}
	if sess.EventCount() != 0 {
		t.Errorf("partial event was appended, count = %d", sess.EventCount())
	}
	if _, ok := sess.GetState("ignored"); ok {
		t.Error("partial event delta was applied")
	}
}

func TestInMemoryService_ScopedStateSharing(t *testing.T) {
	svc := NewInMemoryService()
	ctx := context.Background()

	a, _ := svc.Create(ctx, "app", "alice", "s1", nil)

	ev := testutil.NewEventBuilder().
		Invocation("e-1").
		AssistantText("ok").
		StateDelta(map[string]any{
			core.StateAppPrefix + "theme": "dark",
			core.StateUserPrefix + "tier": "pro",
			"local":                       1,
		}).
		Build()
	if _, err := svc.AppendEvent(ctx, a, ev); err != nil {
		t.Fatalf("AppendEvent() error = %v", err)
	}

	// Another session of the same user sees both scopes.
	b, err := svc.Create(ctx, "app", "alice", "s2", nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if v, _ := b.GetState(core.StateAppPrefix + "theme"); v != "dark" {
		t.Errorf("app-scoped key not shared, got %v", v)
	}
	if v, _ := b.GetState(core.StateUserPrefix + "tier"); v != "pro" {
		t.Errorf("user-scoped key not shared, got %v", v)
	}
	if _, ok := b.GetState("local"); ok {
		t.Error("session-scoped key leaked across sessions")
	}

	// A different user of the same app sees only the app scope.
	c, _ := svc.Create(ctx, "app", "bob", "s3", nil)
	if v, _ := c.GetState(core.StateAppPrefix + "theme"); v != "dark" {
		t.Errorf("app-scoped key not shared across users, got %v", v)
	}
	if _, ok := c.GetState(core.StateUserPrefix + "tier"); ok {
		t.Error("user-scoped key leaked across users")
	}
}

func TestInMemoryService_GetNarrowing(t *testing.T) {
	svc := NewInMemoryService()
	ctx := context.Background()

	sess, _ := svc.Create(ctx, "app", "user", "s1", nil)
	for i := 0; i < 5; i++ {
		ev := testutil.NewEventBuilder().Invocation("e-1").AssistantText("msg").Build()
		if _, err := svc.AppendEvent(ctx, sess, ev); err != nil {
			t.Fatalf("AppendEvent() error = %v", err)
		}
	}

	narrowed, err := svc.Get(ctx, "app", "user", "s1", core.WithNumRecentEvents(2))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if narrowed.EventCount() != 2 {
		t.Errorf("narrowed count = %d, want 2", narrowed.EventCount())
	}

	// Narrowing must not disturb the stored log.
	full, _ := svc.Get(ctx, "app", "user", "s1")
	if full.EventCount() != 5 {
		t.Errorf("stored count = %d, want 5", full.EventCount())
	}
}

func TestInMemoryService_ListAndDelete(t *testing.T) {
	svc := NewInMemoryService()
	ctx := context.Background()

	s1, _ := svc.Create(ctx, "app", "user", "s1", map[string]any{"k": "v"})
	svc.Create(ctx, "app", "user", "s2", nil)
	ev := testutil.NewEventBuilder().Invocation("e-1").AssistantText("hello").Build()
	svc.AppendEvent(ctx, s1, ev)

	listed, err := svc.List(ctx, "app", "user")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("List() returned %d sessions, want 2", len(listed))
	}
	for _, l := range listed {
		if l.EventCount() != 0 {
			t.Errorf("listed session %s carries events", l.ID)
		}
		if len(l.StateMap()) != 0 {
			t.Errorf("listed session %s carries state", l.ID)
		}
	}

	if err := svc.Delete(ctx, "app", "user", "s1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := svc.Get(ctx, "app", "user", "s1"); !errors.Is(err, core.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound after delete, got %v", err)
	}
	if err := svc.Delete(ctx, "app", "user", "gone"); err != nil {
		t.Errorf("Delete() of absent session error = %v", err)
	}
}

// TestReplayReconstructsState checks that folding the stored events' state
// deltas over an empty map, in log order, reproduces the materialized session
// state for arbitrary delta sequences (last writer wins per key, temp keys
// never stored).
func TestReplayReconstructsState(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("replaying the log reproduces the state", prop.ForAll(
		func(deltas []map[string]any) bool {
			svc := NewInMemoryService()
			ctx := context.Background()

			sess, err := svc.Create(ctx, "app", "user", "s1", nil)
			if err != nil {
				return false
			}

			var wantIDs []string
			for _, delta := range deltas {
				ev := testutil.NewEventBuilder().
					Invocation("e-1").
					AssistantText("step").
					StateDelta(delta).
					Build()
				stored, err := svc.AppendEvent(ctx, sess, ev)
				if err != nil {
					return false
				}
				wantIDs = append(wantIDs, stored.ID)
			}

			got, err := svc.Get(ctx, "app", "user", "s1")
			if err != nil {
				return false
			}

			events := got.GetEvents()
			if len(events) != len(wantIDs) {
				return false
			}
			replayed := map[string]any{}
			for i, ev := range events {
				if ev.ID != wantIDs[i] {
					return false
				}
				for k, v := range ev.Actions.StateDelta {
					if core.IsTempStateKey(k) {
						return false // temp keys must never be stored
					}
					replayed[k] = v
				}
			}
			return reflect.DeepEqual(replayed, got.StateMap())
		},
		genDeltaSequence(),
	))

	properties.TestingRun(t)
}

// --- Generators ---

type deltaEntry struct {
	Key   string
	Value any
}

func genDeltaEntry() gopter.Gen {
	return gopter.CombineGens(
		genStateKey(),
		genStateValue(),
	).Map(func(vals []any) deltaEntry {
		return deltaEntry{Key: vals[0].(string), Value: vals[1]}
	})
}

func genDelta() gopter.Gen {
	return gen.SliceOfN(2, genDeltaEntry()).Map(func(entries []deltaEntry) map[string]any {
		m := make(map[string]any, len(entries))
		for _, e := range entries {
			m[e.Key] = e.Value
		}
		return m
	})
}

func genDeltaSequence() gopter.Gen {
	return gen.SliceOfN(6, genDelta()).Map(func(deltas []map[string]any) []map[string]any {
		return deltas
	})
}

func genStateKey() gopter.Gen {
	return gen.OneConstOf(
		"counter",
		"status",
		"result",
		core.StateAppPrefix+"theme",
		core.StateUserPrefix+"tier",
		core.StateTempPrefix+"scratch",
	)
}

func genStateValue() gopter.Gen {
	return gen.OneConstOf("alpha", "beta", 1, 2, true)
}
