package explore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotecxy/legado2-sub001/crawler/script"
	"github.com/dotecxy/legado2-sub001/crawler/source"
)

func TestSingleFlight(t *testing.T) {
	c := NewCache(0)
	key := Key("https://a.com", "rule")
	var calls int32

	const callers = 32
	results := make([]any, callers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			v, err := c.GetOrCompute(key, func() (any, error) {
				atomic.AddInt32(&calls, 1)
				time.Sleep(20 * time.Millisecond)
				return &[]source.ExploreKind{{Title: "A"}}, nil
			})
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
}

func TestDistinctKeysComputeSeparately(t *testing.T) {
	c := NewCache(time.Minute)
	var calls int32
	for i := 0; i < 3; i++ {
		for _, k := range []string{"a", "b"} {
			v, err := c.GetOrCompute(Key(k, ""), func() (any, error) {
				atomic.AddInt32(&calls, 1)
				return k, nil
			})
			require.NoError(t, err)
			assert.Equal(t, k, v)
		}
	}
	assert.Equal(t, int32(2), calls)
}

func TestErrorsAreNotCached(t *testing.T) {
	c := NewCache(0)
	calls := 0
	fn := func() (any, error) {
		calls++
		if calls == 1 {
			return nil, fmt.Errorf("boom")
		}
		return "ok", nil
	}
	_, err := c.GetOrCompute("k", fn)
	assert.Error(t, err)
	v, err := c.GetOrCompute("k", fn)
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	c.Invalidate("k")
	_, _ = c.GetOrCompute("k", fn)
	assert.Equal(t, 3, calls)
}

func TestKeyIsStable(t *testing.T) {
	assert.Equal(t, Key("https://a.com", "x"), Key("https://a.com", "x"))
	assert.NotEqual(t, Key("https://a.com", "x"), Key("https://a.com", "y"))
	assert.Len(t, Key("", ""), 32)
}

func TestParseKinds(t *testing.T) {
	ctx := context.Background()
	lua := script.NewLuaEvaluator(&script.LuaEvaluatorConfig{Timeout: time.Second})

	tests := []struct {
		name    string
		explore string
		want    []source.ExploreKind
	}{
		{
			name:    "lines",
			explore: "玄幻::/cat/1.html\n都市::/cat/2.html&&完本::/full/{{page}}\n\n",
			want: []source.ExploreKind{
				{Title: "玄幻", URL: "/cat/1.html"},
				{Title: "都市", URL: "/cat/2.html"},
				{Title: "完本", URL: "/full/{{page}}"},
			},
		},
		{
			name:    "header entry",
			explore: "分类\n热门::/hot",
			want:    []source.ExploreKind{{Title: "分类"}, {Title: "热门", URL: "/hot"}},
		},
		{
			name:    "json",
			explore: `[{"title":"A","url":"/a"},{"title":"","url":"/x"},{"title":"B"}]`,
			want:    []source.ExploreKind{{Title: "A", URL: "/a"}, {Title: "B"}},
		},
		{
			name:    "script",
			explore: `@js:"S1::/s1\nS2::" .. baseUrl .. "/s2"`,
			want:    []source.ExploreKind{{Title: "S1", URL: "/s1"}, {Title: "S2", URL: "https://a.com/s2"}},
		},
		{name: "empty", explore: "  ", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &source.BookSource{URL: "https://a.com", ExploreURL: tt.explore}
			got, err := ParseKinds(ctx, lua, src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseKinds(ctx, nil, &source.BookSource{ExploreURL: "@js:1"})
	assert.Error(t, err)
}
