// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package transmux

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/q191201771/lalfmp4/pkg/amf0"
	"github.com/q191201771/lalfmp4/pkg/avc"
	"github.com/q191201771/lalfmp4/pkg/base"
	"github.com/q191201771/lalfmp4/pkg/flv"
	"github.com/q191201771/lalfmp4/pkg/h2645"
	"github.com/q191201771/lalfmp4/pkg/loader"
	"github.com/q191201771/naza/pkg/assert"
)

var (
	goldenSps = []byte{0x67, 0x42, 0xc0, 0x1e, 0xda, 0x02, 0x80, 0xf6, 0x40}
	goldenPps = []byte{0x68, 0xce, 0x3c, 0x80}
	goldenAsc = []byte{0x12, 0x10}

	idrNalu   = []byte{0x65, 0x88, 0x84, 0x00}
	interNalu = []byte{0x41, 0x9a, 0x02}
	aacFrame  = []byte{0x21, 0x00, 0x49, 0x90}
)

// buildFlv 生成音视频flv流。视频25fps，每2秒一个关键帧；音频44100Hz
//
// @return kfPos: 关键帧时间戳（毫秒）对应的video tag在流中的位置
func buildFlv(t *testing.T, durationMs int64) ([]byte, map[int64]int64) {
	return buildFlvWithIndex(t, durationMs, true)
}

// buildFlvWithIndex
//
// @param seqHeaderEntry: keyframes索引的第一项是否为sequence header。
//
//	为false时第一项就是0ms的关键帧，demuxer跳过它之后，索引从2000ms开始
func buildFlvWithIndex(t *testing.T, durationMs int64, seqHeaderEntry bool) ([]byte, map[int64]int64) {
	dcr, err := avc.BuildDecoderConfigurationRecord(goldenSps, goldenPps)
	assert.Equal(t, nil, err)

	build := func(positions []int64) ([]byte, map[int64]int64) {
		// 第一项对应的是sequence header，demuxer会跳过
		var times, filepositions []interface{}
		if seqHeaderEntry {
			times = append(times, float64(0))
			filepositions = append(filepositions, float64(positions[0]))
		}
		for i, pos := range positions {
			times = append(times, float64(i*2))
			filepositions = append(filepositions, float64(pos))
		}

		b := flv.PackHeader(true, true)
		metadata, err := flv.PackMetadata(amf0.ObjectPairArray{
			{Key: "duration", Value: float64(durationMs) / 1000},
			{Key: "width", Value: float64(640)},
			{Key: "height", Value: float64(480)},
			{Key: "framerate", Value: float64(25)},
			{Key: "hasAudio", Value: true},
			{Key: "hasVideo", Value: true},
			{Key: "keyframes", Value: amf0.ObjectPairArray{
				{Key: "times", Value: times},
				{Key: "filepositions", Value: filepositions},
			}},
		})
		assert.Equal(t, nil, err)
		b = append(b, metadata...)
		b = append(b, flv.PackAacSeqHeader(0, goldenAsc)...)
		b = append(b, flv.PackVideoSeqHeader(flv.CodecIdAvc, 0, dcr)...)

		kfPos := make(map[int64]int64)
		audioIndex := int64(0)
		for ts := int64(0); ts < durationMs; ts += 40 {
			for {
				ats := audioIndex * 1024 * 1000 / 44100
				if ats >= ts+40 || ats >= durationMs {
					break
				}
				b = append(b, flv.PackAacRaw(uint32(ats), aacFrame)...)
				audioIndex++
			}
			if ts%2000 == 0 {
				kfPos[ts] = int64(len(b))
				b = append(b, flv.PackVideoNalu(flv.CodecIdAvc, uint32(ts), 0, true, h2645.JoinNaluAvcc(idrNalu))...)
			} else {
				b = append(b, flv.PackVideoNalu(flv.CodecIdAvc, uint32(ts), 0, false, h2645.JoinNaluAvcc(interNalu))...)
			}
		}
		return b, kfPos
	}

	// metadata的大小和关键帧位置的值无关，所以先生成一次拿到关键帧位置
	n := int((durationMs + 1999) / 2000)
	_, kfPos := build(make([]int64, n))
	positions := make([]int64, n)
	for i := range positions {
		positions[i] = kfPos[int64(i)*2000]
	}
	return build(positions)
}

// ----- memory source -------------------------------------------------------------------------------------------------

type memorySource struct {
	data     []byte
	r        loader.Range
	pos      int64
	observer loader.IByteSourceObserver
	working  bool
	aborted  bool
}

func (s *memorySource) Open(ds loader.DataSource, r loader.Range) error {
	s.r = r
	s.pos = r.From
	s.working = true
	return nil
}

func (s *memorySource) Abort() {
	s.working = false
	s.aborted = true
}

func (s *memorySource) IsWorking() bool {
	return s.working
}

func (s *memorySource) Type() string {
	return "memory"
}

// deliver 按chunkSize回调数据，直到limit（不包含，-1表示不限制）或者数据结尾，到达结尾时回调OnComplete
func (s *memorySource) deliver(chunkSize int, limit int64) {
	end := int64(len(s.data))
	if limit >= 0 && limit < end {
		end = limit
	}
	for s.pos < end && !s.aborted {
		n := min(int64(chunkSize), end-s.pos)
		chunk := append([]byte(nil), s.data[s.pos:s.pos+n]...)
		s.observer.OnDataArrival(chunk, s.pos, s.pos+n-s.r.From)
		s.pos += n
	}
	if s.pos == int64(len(s.data)) && s.working {
		s.working = false
		s.observer.OnComplete(s.r.From, s.pos-1)
	}
}

type memorySourceFactory struct {
	files   map[string][]byte
	sources []*memorySource
}

func (f *memorySourceFactory) create(ds loader.DataSource, config loader.SourceConfig, observer loader.IByteSourceObserver) (loader.IByteSource, error) {
	data, ok := f.files[ds.Url]
	if !ok {
		return nil, base.ErrInvalidUrl
	}
	s := &memorySource{data: data, observer: observer}
	f.sources = append(f.sources, s)
	return s, nil
}

func (f *memorySourceFactory) last() *memorySource {
	return f.sources[len(f.sources)-1]
}

// ----- recorder ------------------------------------------------------------------------------------------------------

type recorder struct {
	DummyObserver

	mu         sync.Mutex
	events     []string
	inits      []base.InitSegment
	medias     []base.MediaSegment
	mediaInfos []base.MediaInfo
	seekpoints []int64
	ioErrs     []*base.IoError
	demuxErrs  []*base.DemuxError
	stats      []StatisticsInfo
	completed  int

	onComplete func()
}

func (r *recorder) add(event string) {
	r.events = append(r.events, event)
}

func (r *recorder) OnIoError(err *base.IoError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.add("io_error")
	r.ioErrs = append(r.ioErrs, err)
}

func (r *recorder) OnDemuxError(err *base.DemuxError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.add("demux_error")
	r.demuxErrs = append(r.demuxErrs, err)
}

func (r *recorder) OnInitSegment(seg base.InitSegment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.add(fmt.Sprintf("init:%s", seg.Type))
	r.inits = append(r.inits, seg)
}

func (r *recorder) OnMediaSegment(seg base.MediaSegment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.add(fmt.Sprintf("media:%s", seg.Type))
	r.medias = append(r.medias, seg)
}

func (r *recorder) OnLoadingComplete() {
	r.mu.Lock()
	r.add("complete")
	r.completed++
	fn := r.onComplete
	r.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (r *recorder) OnMediaInfo(mi base.MediaInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.add("mediainfo")
	r.mediaInfos = append(r.mediaInfos, mi)
}

func (r *recorder) OnStatisticsInfo(info StatisticsInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = append(r.stats, info)
}

func (r *recorder) OnRecommendSeekpoint(ms int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.add("seekpoint")
	r.seekpoints = append(r.seekpoints, ms)
}

// eventsOf 只保留指定前缀的事件
func (r *recorder) eventsOf(prefixes ...string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		for _, p := range prefixes {
			if len(ev) >= len(p) && ev[:len(p)] == p {
				out = append(out, ev)
				break
			}
		}
	}
	return out
}

func (r *recorder) mediasOf(typ base.TrackType) []base.MediaSegment {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []base.MediaSegment
	for _, seg := range r.medias {
		if seg.Type == typ {
			out = append(out, seg)
		}
	}
	return out
}

func newTestController(t *testing.T, mds MediaDataSource, files map[string][]byte, r *recorder) (*Controller, *memorySourceFactory) {
	factory := &memorySourceFactory{files: files}
	config := NewConfig(func(option *Config) {
		option.EnableStashBuffer = false
		option.SourceFactory = factory.create
	})
	c, err := NewController(mds, config, r)
	assert.Equal(t, nil, err)
	return c, factory
}

// assertContinuous 同一个track的media segment时间戳首尾相接
func assertContinuous(t *testing.T, segs []base.MediaSegment) {
	for i := 1; i < len(segs); i++ {
		assert.Equal(t, segs[i-1].EndDts, segs[i].BeginDts, fmt.Sprintf("index=%d", i))
	}
}

// ---------------------------------------------------------------------------------------------------------------------

func TestController_Minimal(t *testing.T) {
	dcr, err := avc.BuildDecoderConfigurationRecord(goldenSps, goldenPps)
	assert.Equal(t, nil, err)
	b := flv.PackHeader(false, true)
	b = append(b, flv.PackVideoSeqHeader(flv.CodecIdAvc, 0, dcr)...)
	b = append(b, flv.PackVideoNalu(flv.CodecIdAvc, 0, 0, true, h2645.JoinNaluAvcc(idrNalu))...)

	var r recorder
	c, factory := newTestController(t, MediaDataSource{Url: "a.flv"}, map[string][]byte{"a.flv": b}, &r)
	c.Start()
	factory.last().deliver(4096, -1)

	// media:前缀避免匹配到mediainfo
	assert.Equal(t, []string{"init:video", "media:video", "complete"}, r.eventsOf("init:", "media:", "complete", "demux_error", "io_error"))
	seg := r.medias[0]
	assert.Equal(t, base.TrackTypeVideo, seg.Type)
	assert.Equal(t, 1, seg.SampleCount)
	assert.Equal(t, true, seg.Info.LastSample.Duration > 0)
	assert.Equal(t, seg.EndDts-seg.Info.LastSample.Duration, seg.BeginDts)
	assert.Equal(t, "avc1.42c01e", r.inits[0].Codec)

	c.Dispose()
	c.Dispose()
}

func TestController_AvStream(t *testing.T) {
	b, _ := buildFlv(t, 8000)

	var r recorder
	c, factory := newTestController(t, MediaDataSource{Url: "a.flv"}, map[string][]byte{"a.flv": b}, &r)
	c.Start()
	assert.Equal(t, true, c.IsStatisticsEnabled())
	factory.last().deliver(1000, -1)

	assert.Equal(t, 0, len(r.demuxErrs))
	assert.Equal(t, 1, r.completed)
	assert.Equal(t, false, c.IsStatisticsEnabled())
	assert.Equal(t, 2, len(r.inits))

	mi, ok := c.MediaInfo()
	assert.Equal(t, true, ok)
	assert.Equal(t, int64(8000), mi.Duration)
	assert.Equal(t, 1, mi.SegmentCount)
	assert.Equal(t, 1, len(r.mediaInfos))
	assert.Equal(t, (*base.KeyframesIndex)(nil), r.mediaInfos[0].KeyframesIndex)

	vs := r.mediasOf(base.TrackTypeVideo)
	assertContinuous(t, vs)
	assert.Equal(t, int64(0), vs[0].BeginDts)
	assert.Equal(t, int64(8000), vs[len(vs)-1].EndDts)
	count := 0
	for _, seg := range vs {
		count += seg.SampleCount
	}
	assert.Equal(t, 200, count)

	as := r.mediasOf(base.TrackTypeAudio)
	assert.Equal(t, true, len(as) > 0)
	assertContinuous(t, as)
}

func TestController_Seek(t *testing.T) {
	b, kfPos := buildFlv(t, 8000)

	var r recorder
	c, factory := newTestController(t, MediaDataSource{Url: "a.flv"}, map[string][]byte{"a.flv": b}, &r)
	c.Start()
	factory.last().deliver(4096, -1)
	assert.Equal(t, 1, r.completed)
	n := len(r.medias)

	// 5000ms所在的关键帧是4000ms，而不是6000ms
	c.Seek(5000)
	assert.Equal(t, 2, len(factory.sources))
	src := factory.last()
	assert.Equal(t, kfPos[4000], src.r.From)
	assert.Equal(t, 0, len(r.seekpoints))

	src.deliver(4096, -1)
	assert.Equal(t, []int64{4000}, r.seekpoints)
	assert.Equal(t, 2, r.completed)

	var firstVideo *base.MediaSegment
	for i := n; i < len(r.medias); i++ {
		if r.medias[i].Type == base.TrackTypeVideo {
			firstVideo = &r.medias[i]
			break
		}
	}
	assert.IsNotNil(t, firstVideo)
	assert.Equal(t, int64(4000), firstVideo.BeginDts)
	assert.Equal(t, int64(4000), firstVideo.Info.SyncPoints[0].OriginalDts)
}

func TestController_SeekBeforeFirstIndexedKeyframe(t *testing.T) {
	b, kfPos := buildFlvWithIndex(t, 8000, false)

	var r recorder
	c, factory := newTestController(t, MediaDataSource{Url: "a.flv"}, map[string][]byte{"a.flv": b}, &r)
	c.Start()
	factory.last().deliver(4096, -1)
	assert.Equal(t, 1, r.completed)
	assert.Equal(t, 0, len(r.demuxErrs))
	n := len(r.medias)

	// 索引从2000ms开始，1000ms之前没有关键帧，从第一个tag开始读
	c.Seek(1000)
	assert.Equal(t, 2, len(factory.sources))
	src := factory.last()
	assert.Equal(t, int64(flv.FlvHeaderSize+flv.PrevTagSizeFieldSize), src.r.From)

	src.deliver(4096, -1)
	assert.Equal(t, []int64{0}, r.seekpoints)
	assert.Equal(t, 2, r.completed)
	assert.Equal(t, 0, len(r.demuxErrs))

	var firstVideo *base.MediaSegment
	for i := n; i < len(r.medias); i++ {
		if r.medias[i].Type == base.TrackTypeVideo {
			firstVideo = &r.medias[i]
			break
		}
	}
	assert.IsNotNil(t, firstVideo)
	assert.Equal(t, int64(0), firstVideo.BeginDts)
	assert.Equal(t, kfPos[0], firstVideo.Info.SyncPoints[0].FilePosition)

	// 索引内的时间点不受影响
	c.Seek(5000)
	assert.Equal(t, kfPos[4000], factory.last().r.From)
}

func TestController_MultiPart(t *testing.T) {
	b, _ := buildFlv(t, 4000)
	mds := MediaDataSource{
		Parts: []MediaPart{
			{Url: "a.flv", Duration: 4000},
			{Url: "b.flv", Duration: 4000},
		},
	}

	var r recorder
	c, factory := newTestController(t, mds, map[string][]byte{"a.flv": b, "b.flv": b}, &r)
	c.Start()
	factory.last().deliver(4096, -1)
	assert.Equal(t, 0, r.completed)
	assert.Equal(t, 2, len(factory.sources))
	assert.Equal(t, 1, c.StatisticsInfo().CurrentPartIndex)
	assert.Equal(t, 2, c.StatisticsInfo().TotalPartCount)
	assert.Equal(t, "b.flv", c.StatisticsInfo().Url)

	factory.last().deliver(4096, -1)
	assert.Equal(t, 1, r.completed)

	vs := r.mediasOf(base.TrackTypeVideo)
	assertContinuous(t, vs)
	assert.Equal(t, int64(8000), vs[len(vs)-1].EndDts)

	mi, _ := c.MediaInfo()
	assert.Equal(t, int64(8000), mi.Duration)
	assert.Equal(t, 2, mi.SegmentCount)
	// 每个分片的媒体信息都会通知
	assert.Equal(t, 2, len(r.mediaInfos))
}

func TestController_PendingSeek(t *testing.T) {
	b, kfPos := buildFlv(t, 4000)
	mds := MediaDataSource{
		Parts: []MediaPart{
			{Url: "a.flv", Duration: 4000},
			{Url: "b.flv", Duration: 4000},
		},
	}

	var r recorder
	c, factory := newTestController(t, mds, map[string][]byte{"a.flv": b, "b.flv": b}, &r)
	c.Start()
	src0 := factory.last()
	src0.deliver(1000, kfPos[2000])
	assert.Equal(t, 1, len(r.mediaInfos))

	// 第二个分片还没有读取过，先读取它的媒体信息
	c.Seek(5000)
	assert.Equal(t, true, src0.aborted)
	assert.Equal(t, 2, len(factory.sources))
	src1 := factory.last()
	assert.Equal(t, int64(0), src1.r.From)

	n := len(r.medias)
	src1.deliver(4096, -1)
	// 拿到媒体信息后seek到第二个分片中4000ms（分片内0ms）的关键帧，等待期间的media segment被丢弃
	assert.Equal(t, true, src1.aborted)
	assert.Equal(t, 3, len(factory.sources))
	src2 := factory.last()
	assert.Equal(t, kfPos[0], src2.r.From)
	assert.Equal(t, n, len(r.medias))

	src2.deliver(4096, -1)
	assert.Equal(t, []int64{4000}, r.seekpoints)
	assert.Equal(t, 1, r.completed)
	for _, seg := range r.medias[n:] {
		if seg.Type == base.TrackTypeVideo {
			assert.Equal(t, int64(4000), seg.BeginDts)
			break
		}
	}
	vs := r.mediasOf(base.TrackTypeVideo)
	assert.Equal(t, int64(8000), vs[len(vs)-1].EndDts)
}

func TestController_NonFlv(t *testing.T) {
	var r recorder
	c, factory := newTestController(t, MediaDataSource{Url: "a.mp4"}, map[string][]byte{"a.mp4": []byte("this is not a flv file at all")}, &r)
	c.Start()
	src := factory.last()
	src.deliver(4096, -1)

	assert.Equal(t, 1, len(r.demuxErrs))
	assert.Equal(t, base.DemuxErrorKindFormatUnsupported, r.demuxErrs[0].Kind)
	assert.Equal(t, true, src.aborted)
	assert.Equal(t, 0, r.completed)
	assert.Equal(t, 0, len(r.inits))
}

func TestController_IoError(t *testing.T) {
	var r recorder
	c, _ := newTestController(t, MediaDataSource{Url: "notexist.flv"}, map[string][]byte{}, &r)
	c.Start()
	assert.Equal(t, 1, len(r.ioErrs))
	assert.Equal(t, base.IoErrorKindException, r.ioErrs[0].Kind)
	assert.Equal(t, false, c.IsStatisticsEnabled())
}

func TestController_PauseResume(t *testing.T) {
	b, _ := buildFlv(t, 4000)

	var r recorder
	c, factory := newTestController(t, MediaDataSource{Url: "a.flv"}, map[string][]byte{"a.flv": b}, &r)
	c.Start()
	src := factory.last()
	src.deliver(1000, 5000)

	c.Pause()
	assert.Equal(t, true, src.aborted)
	assert.Equal(t, false, c.IsStatisticsEnabled())

	c.Resume()
	assert.Equal(t, true, c.IsStatisticsEnabled())
	src = factory.last()
	// 未消费完的tag从头开始读
	assert.Equal(t, true, src.r.From <= 5000 && src.r.From > 4000)
	src.deliver(1000, -1)
	assert.Equal(t, 1, r.completed)

	vs := r.mediasOf(base.TrackTypeVideo)
	assert.Equal(t, int64(4000), vs[len(vs)-1].EndDts)
}

func TestController_NotSeekable(t *testing.T) {
	var r recorder
	c, factory := newTestController(t, MediaDataSource{Url: "a.flv"}, map[string][]byte{"a.flv": {}}, &r)
	c.Start()
	// 还没有媒体信息
	c.Seek(1000)
	assert.Equal(t, 1, len(factory.sources))
}

func TestMediaDataSource_Normalize(t *testing.T) {
	mds := MediaDataSource{
		Parts: []MediaPart{
			{Url: "a.flv", Duration: 4000},
			{Url: "b.flv", Duration: 4000},
			{Url: "c.flv", Duration: 2000},
		},
	}
	out, err := mds.normalize()
	assert.Equal(t, nil, err)
	assert.Equal(t, int64(10000), out.Duration)
	assert.Equal(t, int64(0), out.Parts[0].TimestampBase)
	assert.Equal(t, int64(4000), out.Parts[1].TimestampBase)
	assert.Equal(t, int64(8000), out.Parts[2].TimestampBase)
	// 不修改输入
	assert.Equal(t, int64(0), mds.Parts[2].TimestampBase)

	c := &Controller{mds: out}
	golden := map[int64]int{-1: 0, 0: 0, 3999: 0, 4000: 1, 9000: 2, 20000: 2}
	for ms, idx := range golden {
		assert.Equal(t, idx, c.searchPartIndexContains(ms))
	}

	out, err = MediaDataSource{Url: "a.flv", Duration: 3000, Filesize: 100}.normalize()
	assert.Equal(t, nil, err)
	assert.Equal(t, []MediaPart{{Url: "a.flv", Duration: 3000, Filesize: 100}}, out.Parts)

	_, err = MediaDataSource{}.normalize()
	assert.Equal(t, base.ErrNoMediaPart, err)
	_, err = MediaDataSource{Parts: []MediaPart{{Url: ""}}}.normalize()
	assert.Equal(t, true, errors.Is(err, base.ErrInvalidParam))

	_, err = NewController(MediaDataSource{Url: "a.flv"}, DefaultConfig(), nil)
	assert.Equal(t, base.ErrNilObserver, err)
}
