package uid

import (
	"regexp"
	"sync"
	"testing"
	"time"

	. "github.com/bytedance/mockey"
	"github.com/google/uuid"
	"github.com/hatlonely/korm/ref"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 {
	return &v
}

func TestSnowflakeGenerator(t *testing.T) {
	Convey("测试 snowflake", t, func() {
		g, err := NewSnowflakeGeneratorWithOptions(&SnowflakeOptions{DatacenterID: int64Ptr(3), WorkerID: int64Ptr(17)})
		So(err, ShouldBeNil)

		id1 := g.Generate()
		id2 := g.Generate()
		So(id2, ShouldBeGreaterThan, id1)

		ts, datacenterID, workerID, _ := g.Parse(id1)
		So(datacenterID, ShouldEqual, 3)
		So(workerID, ShouldEqual, 17)
		So(time.Since(ts), ShouldBeLessThan, time.Minute)

		Convey("并发生成不重复", func() {
			var mu sync.Mutex
			ids := map[int64]struct{}{}
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for j := 0; j < 1000; j++ {
						id := g.Generate()
						mu.Lock()
						ids[id] = struct{}{}
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			So(ids, ShouldHaveLength, 8000)
		})
	})

	Convey("测试非法配置", t, func() {
		_, err := NewSnowflakeGeneratorWithOptions(&SnowflakeOptions{WorkerID: int64Ptr(32)})
		So(err, ShouldNotBeNil)
		_, err = NewSnowflakeGeneratorWithOptions(&SnowflakeOptions{DatacenterID: int64Ptr(-1)})
		So(err, ShouldNotBeNil)
		_, err = NewSnowflakeGeneratorWithOptions(&SnowflakeOptions{Epoch: "2020-01-01"})
		So(err, ShouldNotBeNil)
	})

	PatchConvey("测试时钟固定和回拨", t, func() {
		now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
		Mock(time.Now).To(func() time.Time { return now }).Build()

		g, err := NewSnowflakeGeneratorWithOptions(&SnowflakeOptions{DatacenterID: int64Ptr(0), WorkerID: int64Ptr(0)})
		So(err, ShouldBeNil)

		var last int64
		for i := 0; i <= maxSequence+1; i++ {
			id := g.Generate()
			So(id, ShouldBeGreaterThan, last)
			last = id
		}
		ts, _, _, seq := g.Parse(last)
		So(ts, ShouldEqual, now.Add(time.Millisecond))
		So(seq, ShouldEqual, 0)

		now = now.Add(-time.Second)
		So(g.Generate(), ShouldBeGreaterThan, last)
	})
}

func TestUUIDGenerator(t *testing.T) {
	hyphens := regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	plain := regexp.MustCompile(`^[0-9a-f]{32}$`)

	tests := []struct {
		name    string
		options *UUIDOptions
		version uuid.Version
		pattern *regexp.Regexp
	}{
		{name: "默认 v4", options: nil, version: 4, pattern: hyphens},
		{name: "v1", options: &UUIDOptions{Version: "v1", WithHyphens: true}, version: 1, pattern: hyphens},
		{name: "v6", options: &UUIDOptions{Version: "v6", WithHyphens: true}, version: 6, pattern: hyphens},
		{name: "v7 无连字符", options: &UUIDOptions{Version: "v7"}, version: 7, pattern: plain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewUUIDGeneratorWithOptions(tt.options)
			require.NoError(t, err)
			s := g.Generate()
			assert.Regexp(t, tt.pattern, s)
			u, err := uuid.Parse(s)
			require.NoError(t, err)
			assert.Equal(t, tt.version, u.Version())
			assert.NotEqual(t, s, g.Generate())
		})
	}

	_, err := NewUUIDGeneratorWithOptions(&UUIDOptions{Version: "v5"})
	assert.Error(t, err)
}

func TestNewGeneratorWithOptions(t *testing.T) {
	Convey("测试通过配置创建", t, func() {
		ig, err := NewIntGeneratorWithOptions(&ref.TypeOptions{
			Namespace: "github.com/hatlonely/korm/uid",
			Type:      "SnowflakeGenerator",
			Options:   &SnowflakeOptions{WorkerID: int64Ptr(1), DatacenterID: int64Ptr(1)},
		})
		So(err, ShouldBeNil)
		So(ig.Generate(), ShouldBeGreaterThan, 0)

		sg, err := NewStrGeneratorWithOptions(&ref.TypeOptions{
			Namespace: "github.com/hatlonely/korm/uid",
			Type:      "UUIDGenerator",
			Options:   &UUIDOptions{Version: "v7", WithHyphens: true},
		})
		So(err, ShouldBeNil)
		So(sg.Generate(), ShouldHaveLength, 36)

		_, err = NewIntGeneratorWithOptions(&ref.TypeOptions{Namespace: "github.com/hatlonely/korm/uid", Type: "UUIDGenerator"})
		So(err, ShouldNotBeNil)

		ig, err = NewIntGeneratorWithOptions(nil)
		So(err, ShouldBeNil)
		So(ig, ShouldNotBeNil)
		sg, err = NewStrGeneratorWithOptions(nil)
		So(err, ShouldBeNil)
		So(sg.Generate(), ShouldHaveLength, 36)
	})
}
