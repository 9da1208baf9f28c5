package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hausd/itd/internal/engine"
)

const (
	alice engine.PersonID = 0
	bob   engine.PersonID = 1
)

// fakeStore scripts the three engine calls Dispatcher needs, so dispatch
// logic is exercised without a real engine/Redis.
type fakeStore struct {
	present map[engine.PersonID]struct{}
	splits  []engine.Split
	names   map[engine.PersonID]string
}

func (f *fakeStore) PresentAt(ctx context.Context, t engine.T) (map[engine.PersonID]struct{}, error) {
	return f.present, nil
}

func (f *fakeStore) Splits(ctx context.Context, min, max engine.T) ([]engine.Split, error) {
	return f.splits, nil
}

func (f *fakeStore) NameOf(ctx context.Context, id engine.PersonID) (string, error) {
	return f.names[id], nil
}

func scenario1Splits() []engine.Split {
	jan1 := engine.T(0)
	feb1 := jan1 + 31*86400
	mar1 := feb1 + 28*86400
	apr1 := mar1 + 31*86400
	return []engine.Split{
		{TMin: jan1, TMax: feb1, Present: map[engine.PersonID]struct{}{alice: {}}},
		{TMin: feb1, TMax: mar1, Present: map[engine.PersonID]struct{}{alice: {}, bob: {}}},
		{TMin: mar1, TMax: apr1, Present: map[engine.PersonID]struct{}{bob: {}}},
	}
}

func testNames() map[engine.PersonID]string {
	return map[engine.PersonID]string{alice: "alice", bob: "bob"}
}

func TestDispatchEchoesQuery(t *testing.T) {
	d := New(&fakeStore{names: testNames()})
	reply := d.Dispatch(context.Background(), "2022-01-01 2022-04-01", time.Time{})
	require.Contains(t, reply, "# 2022-01-01 2022-04-01\n")
}

func TestDispatchSplitsModifier(t *testing.T) {
	d := New(&fakeStore{splits: scenario1Splits(), names: testNames()})
	reply := d.Dispatch(context.Background(), "* 2022-01-01 2022-04-01", time.Time{})

	require.Contains(t, reply, "2678400 alice\n")
	require.Contains(t, reply, "2419200 alice bob\n")
	require.Contains(t, reply, "2678400 bob\n")
}

func TestDispatchDefaultModifierUnion(t *testing.T) {
	d := New(&fakeStore{splits: scenario1Splits(), names: testNames()})
	reply := d.Dispatch(context.Background(), "2022-01-01 2022-04-01", time.Time{})

	require.Contains(t, reply, "alice\n")
	require.Contains(t, reply, "bob\n")
}

func TestDispatchAlwaysPresentModifier(t *testing.T) {
	d := New(&fakeStore{
		names: testNames(),
		splits: []engine.Split{
			{Present: map[engine.PersonID]struct{}{alice: {}}},
			{Present: map[engine.PersonID]struct{}{alice: {}, bob: {}}},
		},
	})
	reply := d.Dispatch(context.Background(), "+ 2022-01-15 2022-02-15", time.Time{})

	body := reply[len("# + 2022-01-15 2022-02-15\n"):]
	require.Equal(t, "alice\n", body)
}

func TestDispatchPointQuery(t *testing.T) {
	d := New(&fakeStore{
		present: map[engine.PersonID]struct{}{alice: {}},
		names:   testNames(),
	})
	reply := d.Dispatch(context.Background(), "2023-01-01", time.Time{})

	body := reply[len("# 2023-01-01\n"):]
	require.Equal(t, "alice\n", body)
}

func TestDispatchPointQueryEmpty(t *testing.T) {
	d := New(&fakeStore{present: map[engine.PersonID]struct{}{}, names: testNames()})
	reply := d.Dispatch(context.Background(), "2023-07-01", time.Time{})

	body := reply[len("# 2023-07-01\n"):]
	require.Equal(t, "", body)
}

func TestDispatchMalformedQueryProducesEmptyAnswer(t *testing.T) {
	d := New(&fakeStore{names: testNames()})
	reply := d.Dispatch(context.Background(), "this has way too many tokens in it", time.Time{})

	require.Equal(t, "# this has way too many tokens in it\n", reply)
}

func TestDispatchNowToken(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d := New(&fakeStore{present: map[engine.PersonID]struct{}{alice: {}}, names: testNames()})
	reply := d.Dispatch(context.Background(), "now", at)

	require.Equal(t, "# now\nalice\n", reply)
}

func TestSplitModifierParsing(t *testing.T) {
	mod, rest := splitModifier("* 2022-01-01 2022-04-01")
	require.Equal(t, modSplits, mod)
	require.Equal(t, "2022-01-01 2022-04-01", rest)

	mod, rest = splitModifier("+ 2022-01-15 2022-02-15")
	require.Equal(t, modAlways, mod)
	require.Equal(t, "2022-01-15 2022-02-15", rest)

	mod, rest = splitModifier("2022-01-01 2022-04-01")
	require.Equal(t, modDefault, mod)
	require.Equal(t, "2022-01-01 2022-04-01", rest)
}
