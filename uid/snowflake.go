package uid

import (
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const (
	sequenceBits   = 12
	workerBits     = 5
	datacenterBits = 5

	maxSequence     = (1 << sequenceBits) - 1
	maxWorkerID     = (1 << workerBits) - 1
	maxDatacenterID = (1 << datacenterBits) - 1

	workerShift     = sequenceBits
	datacenterShift = sequenceBits + workerBits
	timestampShift  = sequenceBits + workerBits + datacenterBits
)

// 2020-01-01 00:00:00 UTC
var defaultEpoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

type SnowflakeOptions struct {
	// DatacenterID 和 WorkerID 为 nil 时从本机 IPv4 地址推断
	DatacenterID *int64 `cfg:"datacenterId" validate:"omitempty,gte=0,lte=31"`
	WorkerID     *int64 `cfg:"workerId" validate:"omitempty,gte=0,lte=31"`
	// Epoch 起始时间，RFC3339 格式
	Epoch string `cfg:"epoch" def:"2020-01-01T00:00:00Z"`
}

// SnowflakeGenerator 1 位符号 + 41 位毫秒时间戳 + 5 位数据中心 + 5 位机器 + 12 位序列号
//
// 时钟回拨时沿用上一次的时间戳，同一毫秒序列号用尽时借用下一毫秒，保证单调递增。
type SnowflakeGenerator struct {
	mu            sync.Mutex
	epoch         int64
	datacenterID  int64
	workerID      int64
	lastTimestamp int64
	sequence      int64
}

func NewSnowflakeGeneratorWithOptions(options *SnowflakeOptions) (*SnowflakeGenerator, error) {
	if options == nil {
		options = &SnowflakeOptions{}
	}
	epoch := defaultEpoch
	if options.Epoch != "" {
		t, err := time.Parse(time.RFC3339, options.Epoch)
		if err != nil {
			return nil, errors.Wrapf(err, "parse epoch %q failed", options.Epoch)
		}
		epoch = t
	}

	datacenterID, workerID := machineIDFromIP()
	if options.DatacenterID != nil {
		datacenterID = *options.DatacenterID
	}
	if options.WorkerID != nil {
		workerID = *options.WorkerID
	}
	if datacenterID < 0 || datacenterID > maxDatacenterID {
		return nil, errors.Errorf("datacenterId should be in [0, %d], got %d", maxDatacenterID, datacenterID)
	}
	if workerID < 0 || workerID > maxWorkerID {
		return nil, errors.Errorf("workerId should be in [0, %d], got %d", maxWorkerID, workerID)
	}

	return &SnowflakeGenerator{
		epoch:         epoch.UnixMilli(),
		datacenterID:  datacenterID,
		workerID:      workerID,
		lastTimestamp: -1,
	}, nil
}

// machineIDFromIP 取第一个非回环 IPv4 地址的后两个字节
func machineIDFromIP() (int64, int64) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return 0, 0
	}
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipv4 := ipnet.IP.To4(); ipv4 != nil {
				return int64(ipv4[2]) & maxDatacenterID, int64(ipv4[3]) & maxWorkerID
			}
		}
	}
	return 0, 0
}

func (g *SnowflakeGenerator) Generate() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts := time.Now().UnixMilli() - g.epoch
	if ts < g.lastTimestamp {
		ts = g.lastTimestamp
	}
	if ts == g.lastTimestamp {
		g.sequence = (g.sequence + 1) & maxSequence
		if g.sequence == 0 {
			ts = g.lastTimestamp + 1
		}
	} else {
		g.sequence = 0
	}
	g.lastTimestamp = ts

	return ts<<timestampShift | g.datacenterID<<datacenterShift | g.workerID<<workerShift | g.sequence
}

// Parse 拆分 id 为生成时间、数据中心、机器和序列号
func (g *SnowflakeGenerator) Parse(id int64) (time.Time, int64, int64, int64) {
	ts := id >> timestampShift
	return time.UnixMilli(ts + g.epoch),
		(id >> datacenterShift) & maxDatacenterID,
		(id >> workerShift) & maxWorkerID,
		id & maxSequence
}
