// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package remux

import (
	"math"
	"testing"

	mcfmp4 "github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/q191201771/lalfmp4/pkg/aac"
	"github.com/q191201771/lalfmp4/pkg/avc"
	"github.com/q191201771/lalfmp4/pkg/base"
	"github.com/q191201771/naza/pkg/assert"
)

var (
	goldenSps = []byte{0x67, 0x42, 0xc0, 0x1e, 0xda, 0x02, 0x80, 0xf6, 0x40}
	goldenPps = []byte{0x68, 0xce, 0x3c, 0x80}
)

type recorder struct {
	inits  []base.InitSegment
	medias []base.MediaSegment
	initAt []int // 每个init segment之前已经输出的media segment个数
}

func (r *recorder) OnInitSegment(seg base.InitSegment) {
	r.inits = append(r.inits, seg)
	r.initAt = append(r.initAt, len(r.medias))
}

func (r *recorder) OnMediaSegment(seg base.MediaSegment) {
	r.medias = append(r.medias, seg)
}

func (r *recorder) mediasOf(typ base.TrackType) []base.MediaSegment {
	var out []base.MediaSegment
	for _, m := range r.medias {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

func newTestRemuxer(t *testing.T, modOptions ...ModMp4RemuxerOption) (*Mp4Remuxer, *recorder) {
	var rec recorder
	r, err := NewMp4Remuxer(&rec, modOptions...)
	assert.Equal(t, nil, err)

	err = r.OnTrackMetadata(goldenVideoMetadata(t))
	assert.Equal(t, nil, err)

	err = r.OnTrackMetadata(base.TrackMetadata{
		Type: base.TrackTypeAudio,
		Audio: &base.AudioMetadata{
			Id:                base.AudioTrackId,
			Timescale:         base.TimescaleMs,
			SampleRate:        44100,
			ChannelCount:      2,
			Codec:             "mp4a.40.2",
			OriginalCodec:     "mp4a.40.2",
			Config:            []byte{0x12, 0x10},
			RefSampleDuration: aac.RefSampleDuration(44100),
		},
	})
	assert.Equal(t, nil, err)
	return r, &rec
}

func goldenVideoMetadata(t *testing.T) base.TrackMetadata {
	dcr, err := avc.BuildDecoderConfigurationRecord(goldenSps, goldenPps)
	assert.Equal(t, nil, err)
	cp, err := avc.ParseSps(goldenSps)
	assert.Equal(t, nil, err)
	return base.TrackMetadata{
		Type: base.TrackTypeVideo,
		Video: &base.VideoMetadata{
			Id:                base.VideoTrackId,
			Timescale:         base.TimescaleMs,
			CodecType:         base.VideoCodecTypeAvc,
			Codec:             cp.Codec,
			Params:            cp,
			ConfigRecord:      dcr,
			RefSampleDuration: 40,
		},
	}
}

func videoTrackOf(dtss ...int64) *base.VideoTrack {
	track := &base.VideoTrack{Id: base.VideoTrackId}
	for i, dts := range dtss {
		data := []byte{0, 0, 0, 1, 0x41}
		if i == 0 {
			data = []byte{0, 0, 0, 1, 0x65}
		}
		track.Append(base.VideoSample{
			Units:        []base.NaluUnit{{Type: data[4] & 0x1f, Data: data}},
			Length:       len(data),
			IsKeyframe:   i == 0,
			Dts:          dts,
			Pts:          dts,
			FilePosition: dts * 10,
		})
	}
	return track
}

func audioTrackOf(dtss ...int64) *base.AudioTrack {
	track := &base.AudioTrack{Id: base.AudioTrackId}
	for _, dts := range dtss {
		unit := []byte{0x21, 0x00, 0x49}
		track.Append(base.AudioSample{Unit: unit, Length: len(unit), Dts: dts, Pts: dts})
	}
	return track
}

func TestMp4RemuxerInitSegment(t *testing.T) {
	_, rec := newTestRemuxer(t)
	assert.Equal(t, 2, len(rec.inits))
	assert.Equal(t, "video/mp4", rec.inits[0].Container)
	assert.Equal(t, "avc1.42c01e", rec.inits[0].Codec)
	assert.Equal(t, "audio/mp4", rec.inits[1].Container)
	assert.Equal(t, "mp4a.40.2", rec.inits[1].Codec)
}

func TestMp4RemuxerVideoContinuity(t *testing.T) {
	r, rec := newTestRemuxer(t)

	// 只有一个sample时不输出，也不清空
	vt := videoTrackOf(0)
	r.Remux(nil, vt)
	assert.Equal(t, 0, len(rec.medias))
	assert.Equal(t, 1, len(vt.Samples))

	vt = videoTrackOf(0, 40, 80, 120, 160)
	r.Remux(audioTrackOf(), vt)
	assert.Equal(t, 0, len(vt.Samples))
	vs := rec.mediasOf(base.TrackTypeVideo)
	assert.Equal(t, 1, len(vs))
	assert.Equal(t, 4, vs[0].SampleCount)
	assert.Equal(t, int64(0), vs[0].BeginDts)
	assert.Equal(t, int64(160), vs[0].EndDts)
	assert.Equal(t, int64(160), r.videoNextDts)
	assert.Equal(t, 1, len(vs[0].Info.SyncPoints))
	assert.Equal(t, int64(0), vs[0].Info.SyncPoints[0].FilePosition)

	// 连续性：下一个fragment的第一个sample的dts等于上一个fragment记录的nextDts
	r.Remux(nil, videoTrackOf(200, 240, 280))
	vs = rec.mediasOf(base.TrackTypeVideo)
	assert.Equal(t, 2, len(vs))
	assert.Equal(t, vs[0].EndDts, vs[1].BeginDts)
	assert.Equal(t, 3, vs[1].SampleCount)
	assert.Equal(t, int64(280), vs[1].EndDts)
	assert.Equal(t, 2, r.VideoSegmentInfoList().Len())

	// 最后暂存的sample没有后续sample，使用参考时长
	r.FlushStashedSamples()
	vs = rec.mediasOf(base.TrackTypeVideo)
	assert.Equal(t, 3, len(vs))
	assert.Equal(t, 1, vs[2].SampleCount)
	assert.Equal(t, int64(280), vs[2].BeginDts)
	assert.Equal(t, int64(320), vs[2].EndDts)

	var parts mcfmp4.Parts
	err := parts.Unmarshal(vs[1].Data)
	assert.Equal(t, nil, err)
	assert.Equal(t, uint64(160), parts[0].Tracks[0].BaseTime)
	assert.Equal(t, 3, len(parts[0].Tracks[0].Samples))
}

func TestMp4RemuxerDtsCorrection(t *testing.T) {
	r, rec := newTestRemuxer(t)
	r.Remux(nil, videoTrackOf(1000, 1040, 1080))
	r.FlushStashedSamples()
	vs := rec.mediasOf(base.TrackTypeVideo)
	assert.Equal(t, 2, len(vs))
	assert.Equal(t, int64(0), vs[0].BeginDts)
	assert.Equal(t, int64(120), vs[1].EndDts)

	// 源时间戳有一个小于等于3的跳变，认为是连续的
	r.InsertDiscontinuity()
	r.Remux(nil, videoTrackOf(1122, 1162, 1202))
	vs = rec.mediasOf(base.TrackTypeVideo)
	assert.Equal(t, 3, len(vs))
	assert.Equal(t, int64(120), vs[2].BeginDts)
	assert.Equal(t, int64(122), vs[2].Info.OriginalBeginDts)

	// 较大的跳变保留距离
	r.FlushStashedSamples()
	r.InsertDiscontinuity()
	r.Remux(nil, videoTrackOf(2000, 2040))
	vs = rec.mediasOf(base.TrackTypeVideo)
	assert.Equal(t, 5, len(vs))
	assert.Equal(t, int64(998), vs[4].BeginDts)

	// seek之后索引被清空，直接使用源时间戳
	r.Seek()
	r.InsertDiscontinuity()
	assert.Equal(t, true, r.VideoSegmentInfoList().IsEmpty())
	r.Remux(nil, videoTrackOf(5000, 5040))
	vs = rec.mediasOf(base.TrackTypeVideo)
	assert.Equal(t, 6, len(vs))
	assert.Equal(t, int64(4000), vs[5].BeginDts)
}

func TestMp4RemuxerAudio(t *testing.T) {
	r, rec := newTestRemuxer(t)
	r.Remux(audioTrackOf(0, 23, 46, 70, 93), nil)
	as := rec.mediasOf(base.TrackTypeAudio)
	assert.Equal(t, 1, len(as))
	assert.Equal(t, 4, as[0].SampleCount)
	assert.Equal(t, int64(0), as[0].BeginDts)
	assert.Equal(t, int64(92), as[0].EndDts)

	r.Remux(audioTrackOf(116, 139), nil)
	as = rec.mediasOf(base.TrackTypeAudio)
	assert.Equal(t, 2, len(as))
	assert.Equal(t, as[0].EndDts, as[1].BeginDts)
}

func TestMp4RemuxerAudioLongRun(t *testing.T) {
	r, rec := newTestRemuxer(t, func(option *Mp4RemuxerConfig) {
		option.FixAudioTimestampGap = true
	})

	// 44100采样率的aac，源时间戳是毫秒取整的，每次只喂两帧，fragment很多
	passes := 400
	dtsOf := func(n int) int64 {
		return int64(math.Round(float64(n) * 1024000 / 44100))
	}
	for i := 0; i < passes; i++ {
		r.Remux(audioTrackOf(dtsOf(2*i), dtsOf(2*i+1)), nil)
	}

	as := rec.mediasOf(base.TrackTypeAudio)
	assert.Equal(t, passes, len(as))
	total := 0
	for i, seg := range as {
		total += seg.SampleCount
		if i > 0 {
			assert.Equal(t, as[i-1].EndDts, seg.BeginDts)
		}
	}
	// 没有补静音帧也没有丢帧，只有最后一帧还在暂存
	assert.Equal(t, 2*passes-1, total)
	assert.Equal(t, int64(18552), as[len(as)-1].EndDts)
}

func TestMp4RemuxerAudioDrop(t *testing.T) {
	r, rec := newTestRemuxer(t)
	r.Remux(audioTrackOf(0, 23, 46, 70, 93, 116, 20, 139), nil)
	as := rec.mediasOf(base.TrackTypeAudio)
	assert.Equal(t, 1, len(as))
	assert.Equal(t, 6, as[0].SampleCount)
	assert.Equal(t, int64(139), as[0].EndDts)
}

func TestMp4RemuxerAudioGap(t *testing.T) {
	golden := []struct {
		fix   bool
		count int
	}{
		{true, 13},
		{false, 4},
	}
	for _, item := range golden {
		fix := item.fix
		r, rec := newTestRemuxer(t, func(option *Mp4RemuxerConfig) {
			option.FixAudioTimestampGap = fix
		})
		r.Remux(audioTrackOf(0, 23, 46, 300, 323), nil)
		as := rec.mediasOf(base.TrackTypeAudio)
		assert.Equal(t, 1, len(as))
		assert.Equal(t, item.count, as[0].SampleCount)
	}
}

func TestMp4RemuxerForceFirstIdr(t *testing.T) {
	r, rec := newTestRemuxer(t, func(option *Mp4RemuxerConfig) {
		option.ForceFirstIdr = true
		option.IsLive = true
	})
	vt := videoTrackOf(0, 40, 80)
	vt.Samples[0].IsKeyframe = false
	r.Remux(nil, vt)
	vs := rec.mediasOf(base.TrackTypeVideo)
	assert.Equal(t, 1, len(vs))
	assert.Equal(t, 0, len(vs[0].Info.SyncPoints))
	assert.Equal(t, true, r.VideoSegmentInfoList().IsEmpty())

	var parts mcfmp4.Parts
	err := parts.Unmarshal(vs[0].Data)
	assert.Equal(t, nil, err)
	samples := parts[0].Tracks[0].Samples
	assert.Equal(t, false, samples[0].IsNonSyncSample)
	assert.Equal(t, true, samples[1].IsNonSyncSample)
}

func TestMp4RemuxerVideoConfigChange(t *testing.T) {
	r, rec := newTestRemuxer(t)
	r.Remux(nil, videoTrackOf(0, 40, 80))
	vs := rec.mediasOf(base.TrackTypeVideo)
	assert.Equal(t, 1, len(vs))

	// 新的编码配置到来，暂存的80必须用旧配置先输出
	err := r.OnTrackMetadata(goldenVideoMetadata(t))
	assert.Equal(t, nil, err)
	assert.Equal(t, 3, len(rec.inits))
	assert.Equal(t, 2, rec.initAt[2])
	vs = rec.mediasOf(base.TrackTypeVideo)
	assert.Equal(t, 2, len(vs))
	assert.Equal(t, 1, vs[1].SampleCount)
	assert.Equal(t, int64(80), vs[1].Info.FirstSample.OriginalDts)
	assert.Equal(t, (*base.VideoSample)(nil), r.videoStashedLastSample)

	// 新配置之后的第一个segment从新配置的sample开始
	r.Remux(nil, videoTrackOf(1000, 1040, 1080))
	vs = rec.mediasOf(base.TrackTypeVideo)
	assert.Equal(t, 3, len(vs))
	assert.Equal(t, 2, vs[2].SampleCount)
	assert.Equal(t, int64(1000), vs[2].Info.FirstSample.OriginalDts)
	assert.Equal(t, 1, len(vs[2].Info.SyncPoints))

	err = r.OnTrackMetadata(goldenVideoMetadata(t))
	assert.Equal(t, nil, err)
	assert.Equal(t, 4, len(rec.medias))
	assert.Equal(t, int64(1080), rec.medias[3].Info.FirstSample.OriginalDts)

	// 没有暂存sample时，新的配置不会产生额外的media segment
	err = r.OnTrackMetadata(goldenVideoMetadata(t))
	assert.Equal(t, nil, err)
	assert.Equal(t, 4, len(rec.medias))
	assert.Equal(t, 5, len(rec.inits))
}

func TestNewMp4RemuxerNilObserver(t *testing.T) {
	_, err := NewMp4Remuxer(nil)
	assert.Equal(t, base.ErrNilObserver, err)
}

func TestMp4RemuxerFlush(t *testing.T) {
	r, rec := newTestRemuxer(t)

	// track中只剩一个sample，Flush时也要输出
	vt := videoTrackOf(0)
	r.Remux(nil, vt)
	assert.Equal(t, 0, len(rec.medias))

	r.Flush(audioTrackOf(), vt)
	assert.Equal(t, 0, len(vt.Samples))
	vs := rec.mediasOf(base.TrackTypeVideo)
	assert.Equal(t, 1, len(vs))
	assert.Equal(t, 1, vs[0].SampleCount)
	assert.Equal(t, vs[0].EndDts-vs[0].Info.LastSample.Duration, vs[0].BeginDts)

	// 多个sample时，最后一个也要输出
	r.Flush(audioTrackOf(100, 123, 146), videoTrackOf(40, 80, 120))
	vs = rec.mediasOf(base.TrackTypeVideo)
	assert.Equal(t, 3, len(vs))
	assert.Equal(t, 2, vs[1].SampleCount)
	assert.Equal(t, 1, vs[2].SampleCount)
	assert.Equal(t, int64(160), vs[2].EndDts)
	as := rec.mediasOf(base.TrackTypeAudio)
	total := 0
	for _, seg := range as {
		total += seg.SampleCount
	}
	assert.Equal(t, 3, total)
}
