// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package flv_test

import (
	"fmt"
	"testing"

	"github.com/q191201771/lalfmp4/pkg/aac"
	"github.com/q191201771/lalfmp4/pkg/amf0"
	"github.com/q191201771/lalfmp4/pkg/avc"
	"github.com/q191201771/lalfmp4/pkg/base"
	"github.com/q191201771/lalfmp4/pkg/flv"
	"github.com/q191201771/lalfmp4/pkg/h2645"
	"github.com/q191201771/lalfmp4/pkg/hevc"
	"github.com/q191201771/naza/pkg/assert"
)

var (
	goldenSps = []byte{0x67, 0x42, 0xc0, 0x1e, 0xda, 0x02, 0x80, 0xf6, 0x40}
	goldenPps = []byte{0x68, 0xce, 0x3c, 0x80}
	// 44100 stereo LC
	goldenAsc = []byte{0x12, 0x10}

	goldenHevcVps = []byte{0x40, 0x01, 0x0c, 0x01, 0xff, 0xff}
	goldenHevcSps = []byte{0x42, 0x01, 0x01, 0x01, 0x40, 0x00, 0x00, 0x00, 0xB0, 0x00, 0x00, 0x00, 0x00, 0x00, 0x5D, 0xA0, 0x0A, 0x08, 0x0F, 0x10}
	goldenHevcPps = []byte{0x44, 0x01, 0xc1, 0x72}
)

type recorder struct {
	events       []string
	errs         []*base.DemuxError
	mediaInfos   []base.MediaInfo
	metadatas    []amf0.ObjectPairArray
	scriptNames  []string
	trackMetas   []base.TrackMetadata
	audioSamples []base.AudioSample
	videoSamples []base.VideoSample
}

func (r *recorder) OnError(err *base.DemuxError) {
	r.events = append(r.events, "error")
	r.errs = append(r.errs, err)
}

func (r *recorder) OnMediaInfo(mi base.MediaInfo) {
	r.events = append(r.events, "mediainfo")
	r.mediaInfos = append(r.mediaInfos, mi)
}

func (r *recorder) OnMetadataArrived(metadata amf0.ObjectPairArray) {
	r.events = append(r.events, "metadata")
	r.metadatas = append(r.metadatas, metadata)
}

func (r *recorder) OnScriptDataArrived(name string, value interface{}) {
	r.events = append(r.events, "script")
	r.scriptNames = append(r.scriptNames, name)
}

func (r *recorder) OnTrackMetadata(meta base.TrackMetadata) {
	r.events = append(r.events, "track:"+meta.Type.String())
	r.trackMetas = append(r.trackMetas, meta)
}

func (r *recorder) OnDataAvailable(audioTrack *base.AudioTrack, videoTrack *base.VideoTrack) {
	r.events = append(r.events, fmt.Sprintf("data:%d/%d", len(audioTrack.Samples), len(videoTrack.Samples)))
	r.audioSamples = append(r.audioSamples, audioTrack.Samples...)
	r.videoSamples = append(r.videoSamples, videoTrack.Samples...)
	audioTrack.Clear()
	videoTrack.Clear()
}

type streamBuilder struct {
	b []byte
}

func newStreamBuilder(hasAudio, hasVideo bool) *streamBuilder {
	return &streamBuilder{b: flv.PackHeader(hasAudio, hasVideo)}
}

// add 返回tag在流中的位置
func (sb *streamBuilder) add(tag []byte) int64 {
	pos := int64(len(sb.b))
	sb.b = append(sb.b, tag...)
	return pos
}

func goldenMetadata() amf0.ObjectPairArray {
	return amf0.ObjectPairArray{
		{Key: "duration", Value: float64(10)},
		{Key: "width", Value: float64(640)},
		{Key: "height", Value: float64(480)},
		{Key: "framerate", Value: float64(25)},
		{Key: "videodatarate", Value: float64(800)},
		{Key: "audiodatarate", Value: float64(128)},
		{Key: "hasAudio", Value: true},
		{Key: "hasVideo", Value: true},
		{Key: "keyframes", Value: amf0.ObjectPairArray{
			{Key: "times", Value: []interface{}{float64(0), float64(0), float64(2), float64(4)}},
			{Key: "filepositions", Value: []interface{}{float64(13), float64(300), float64(5000), float64(9000)}},
		}},
	}
}

func newDemuxer(t *testing.T, b []byte, r *recorder) *flv.Demuxer {
	probe := flv.Probe(b)
	assert.Equal(t, true, probe.Match)
	d, err := flv.NewDemuxer(probe, flv.DemuxerConfig{AacProfilePolicy: aac.ProfilePolicyHe}, r)
	assert.Equal(t, nil, err)
	return d
}

func buildAvStream(t *testing.T) (*streamBuilder, int64) {
	sb := newStreamBuilder(true, true)
	metadataTag, err := flv.PackMetadata(goldenMetadata())
	assert.Equal(t, nil, err)
	sb.add(metadataTag)
	sb.add(flv.PackAacSeqHeader(0, goldenAsc))
	dcr, err := avc.BuildDecoderConfigurationRecord(goldenSps, goldenPps)
	assert.Equal(t, nil, err)
	sb.add(flv.PackVideoSeqHeader(flv.CodecIdAvc, 0, dcr))
	keyPos := sb.add(flv.PackVideoNalu(flv.CodecIdAvc, 0, 0, false, h2645.JoinNaluAvcc([]byte{0x06, 0x05, 0x01}, []byte{0x65, 0x88, 0x84, 0x00})))
	sb.add(flv.PackAacRaw(0, []byte{0x21, 0x00, 0x49}))
	sb.add(flv.PackVideoNalu(flv.CodecIdAvc, 40, 40, false, h2645.JoinNaluAvcc([]byte{0x41, 0x9a, 0x02})))
	sb.add(flv.PackAacRaw(23, []byte{0x21, 0x00, 0x4a}))
	return sb, keyPos
}

func TestDemuxer_AvStream(t *testing.T) {
	sb, keyPos := buildAvStream(t)

	var r recorder
	d := newDemuxer(t, sb.b, &r)
	n := d.ParseChunks(sb.b, 0)
	assert.Equal(t, len(sb.b), n)

	assert.Equal(t, []string{"metadata", "script", "track:audio", "mediainfo", "track:video", "data:2/2"}, r.events)
	assert.Equal(t, 0, len(r.errs))
	assert.Equal(t, []string{"onMetaData"}, r.scriptNames)

	// keyframes从metadata中剔除
	assert.Equal(t, nil, r.metadatas[0].Find("keyframes"))
	assert.Equal(t, float64(10), r.metadatas[0].Find("duration"))

	am := r.trackMetas[0].Audio
	assert.Equal(t, base.AudioTrackId, am.Id)
	assert.Equal(t, 44100, am.SampleRate)
	assert.Equal(t, 2, am.ChannelCount)
	assert.Equal(t, "mp4a.40.5", am.Codec)
	assert.Equal(t, "mp4a.40.2", am.OriginalCodec)
	assert.Equal(t, 2, am.OriginalObjectType)
	assert.Equal(t, int64(10000), am.Duration)
	assert.Equal(t, aac.RefSampleDuration(44100), am.RefSampleDuration)

	vm := r.trackMetas[1].Video
	assert.Equal(t, base.VideoTrackId, vm.Id)
	assert.Equal(t, base.VideoCodecTypeAvc, vm.CodecType)
	assert.Equal(t, "avc1.42c01e", vm.Codec)
	// sps中没有帧率信息，使用metadata中的framerate
	assert.Equal(t, base.FrameRate{Fixed: true, Num: 25000, Den: 1000}, vm.Params.FrameRate)
	assert.Equal(t, float64(40), vm.RefSampleDuration)

	mi := r.mediaInfos[0]
	assert.Equal(t, `video/x-flv; codecs="avc1.42c01e,mp4a.40.2"`, mi.MimeType)
	assert.Equal(t, int64(10000), mi.Duration)
	assert.Equal(t, 640, mi.Width)
	assert.Equal(t, 480, mi.Height)
	assert.Equal(t, float64(25), mi.Fps)
	assert.Equal(t, "Baseline", mi.Profile)
	assert.Equal(t, "3.0", mi.Level)
	assert.Equal(t, "4:2:0", mi.ChromaFormat)
	assert.Equal(t, 1, mi.SarNum)
	assert.Equal(t, 1, mi.SarDen)
	assert.Equal(t, float64(800), mi.VideoDataRate)
	assert.Equal(t, float64(128), mi.AudioDataRate)
	assert.Equal(t, true, mi.IsComplete())
	assert.Equal(t, true, mi.IsSeekable())
	// 跳过了第一个关键帧
	assert.Equal(t, []int64{0, 2000, 4000}, mi.KeyframesIndex.Times)
	assert.Equal(t, []uint64{300, 5000, 9000}, mi.KeyframesIndex.FilePositions)
	assert.Equal(t, int64(0), mi.KeyframesIndex.FirstTagTime)
	assert.Equal(t, uint64(flv.FlvHeaderSize+flv.PrevTagSizeFieldSize), mi.KeyframesIndex.FirstTagPosition)
	assert.Equal(t, true, mi.VideoConfigured)

	assert.Equal(t, 2, len(r.videoSamples))
	v0 := r.videoSamples[0]
	assert.Equal(t, true, v0.IsKeyframe)
	assert.Equal(t, keyPos, v0.FilePosition)
	assert.Equal(t, 2, len(v0.Units))
	assert.Equal(t, h2645.H264NaluTypeSei, v0.Units[0].Type)
	assert.Equal(t, h2645.H264NaluTypeIdrSlice, v0.Units[1].Type)
	assert.Equal(t, 7+8, v0.Length)
	v1 := r.videoSamples[1]
	assert.Equal(t, false, v1.IsKeyframe)
	assert.Equal(t, int64(40), v1.Dts)
	assert.Equal(t, int64(80), v1.Pts)
	assert.Equal(t, int64(0), v1.FilePosition)

	assert.Equal(t, 2, len(r.audioSamples))
	assert.Equal(t, []byte{0x21, 0x00, 0x49}, r.audioSamples[0].Unit)
	assert.Equal(t, int64(23), r.audioSamples[1].Dts)

	d.Dispose()
}

func TestDemuxer_Chunked(t *testing.T) {
	sb, _ := buildAvStream(t)

	for _, chunkSize := range []int{1, 7, 13, 64} {
		var r recorder
		d := newDemuxer(t, sb.b, &r)

		var pending []byte
		var pendingStart int64
		for i := 0; i < len(sb.b); i += chunkSize {
			end := i + chunkSize
			if end > len(sb.b) {
				end = len(sb.b)
			}
			pending = append(pending, sb.b[i:end]...)
			n := d.ParseChunks(pending, pendingStart)
			pending = pending[n:]
			pendingStart += int64(n)
		}
		assert.Equal(t, 0, len(pending))
		assert.Equal(t, int64(len(sb.b)), pendingStart)
		assert.Equal(t, 0, len(r.errs))
		assert.Equal(t, 2, len(r.trackMetas))
		assert.Equal(t, 2, len(r.videoSamples))
		assert.Equal(t, 2, len(r.audioSamples))
		assert.Equal(t, int64(40), r.videoSamples[1].Dts)
		assert.Equal(t, []byte{0x21, 0x00, 0x4a}, r.audioSamples[1].Unit)
	}
}

func TestDemuxer_ConfigChange(t *testing.T) {
	sb := newStreamBuilder(false, true)
	dcr, _ := avc.BuildDecoderConfigurationRecord(goldenSps, goldenPps)
	sb.add(flv.PackVideoSeqHeader(flv.CodecIdAvc, 0, dcr))
	sb.add(flv.PackVideoNalu(flv.CodecIdAvc, 0, 0, true, h2645.JoinNaluAvcc([]byte{0x65, 0x88})))
	// 相同的配置，忽略
	sb.add(flv.PackVideoSeqHeader(flv.CodecIdAvc, 40, dcr))
	sb.add(flv.PackVideoNalu(flv.CodecIdAvc, 40, 0, false, h2645.JoinNaluAvcc([]byte{0x41, 0x9a})))
	// pps不同的配置
	dcr2, _ := avc.BuildDecoderConfigurationRecord(goldenSps, []byte{0x68, 0xce, 0x3c, 0x81})
	sb.add(flv.PackVideoSeqHeader(flv.CodecIdAvc, 80, dcr2))
	sb.add(flv.PackVideoNalu(flv.CodecIdAvc, 80, 0, true, h2645.JoinNaluAvcc([]byte{0x65, 0x88})))

	var r recorder
	d := newDemuxer(t, sb.b, &r)
	d.ParseChunks(sb.b, 0)

	// 新配置通知之前，旧配置下的帧先吐出去
	assert.Equal(t, []string{"mediainfo", "track:video", "mediainfo", "data:0/2", "track:video", "data:0/1"}, r.events)
	assert.Equal(t, dcr2, r.trackMetas[1].Video.ConfigRecord)
	// 没有metadata，使用参考帧率
	assert.Equal(t, base.DefaultReferenceFps, r.trackMetas[0].Video.Params.FrameRate)
	assert.Equal(t, `video/x-flv; codecs="avc1.42c01e"`, r.mediaInfos[0].MimeType)
}

func TestDemuxer_UnsupportedAudio(t *testing.T) {
	sb := newStreamBuilder(true, true)
	sb.add(flv.PackTag(flv.TagTypeAudio, 0, []byte{0x2F, 0xFF, 0xFB}))
	sb.add(flv.PackTag(flv.TagTypeAudio, 26, []byte{0x2F, 0xFF, 0xFB}))
	dcr, _ := avc.BuildDecoderConfigurationRecord(goldenSps, goldenPps)
	sb.add(flv.PackVideoSeqHeader(flv.CodecIdAvc, 0, dcr))
	sb.add(flv.PackVideoNalu(flv.CodecIdAvc, 0, 0, true, h2645.JoinNaluAvcc([]byte{0x65, 0x88})))
	// 不支持的tag类型
	sb.add(flv.PackTag(0x0F, 0, []byte{1, 2, 3}))

	var r recorder
	d := newDemuxer(t, sb.b, &r)
	n := d.ParseChunks(sb.b, 0)
	assert.Equal(t, len(sb.b), n)

	// 只报一次错
	assert.Equal(t, 1, len(r.errs))
	assert.Equal(t, base.DemuxErrorKindCodecUnsupported, r.errs[0].Kind)
	// 音频track的配置永远不会到来，不吐帧
	assert.Equal(t, 1, len(r.trackMetas))
	assert.Equal(t, 0, len(r.videoSamples))

	// 外部强制没有音频后，视频可以正常吐帧
	var r2 recorder
	d2 := newDemuxer(t, sb.b, &r2)
	d2.OverrideHasAudio(false)
	d2.ParseChunks(sb.b, 0)
	assert.Equal(t, 0, len(r2.errs))
	assert.Equal(t, 1, len(r2.videoSamples))
}

func TestDemuxer_VideoError(t *testing.T) {
	sb := newStreamBuilder(false, true)
	// codec id 2，Sorenson H.263
	sb.add(flv.PackTag(flv.TagTypeVideo, 0, []byte{0x12, 0x00}))
	var r recorder
	d := newDemuxer(t, sb.b, &r)
	d.ParseChunks(sb.b, 0)
	assert.Equal(t, 1, len(r.errs))
	assert.Equal(t, base.DemuxErrorKindCodecUnsupported, r.errs[0].Kind)

	// 没有pps
	sb = newStreamBuilder(false, true)
	sb.add(flv.PackVideoSeqHeader(flv.CodecIdAvc, 0, []byte{0x01, 0x42, 0xc0, 0x1e, 0xFF, 0xE1, 0x00, 0x09,
		0x67, 0x42, 0xc0, 0x1e, 0xda, 0x02, 0x80, 0xf6, 0x40, 0x00}))
	var r2 recorder
	d = newDemuxer(t, sb.b, &r2)
	d.ParseChunks(sb.b, 0)
	assert.Equal(t, 1, len(r2.errs))
	assert.Equal(t, base.DemuxErrorKindFormatError, r2.errs[0].Kind)
	assert.Equal(t, 0, len(r2.trackMetas))

	// 非flv
	var r3 recorder
	d = newDemuxer(t, sb.b, &r3)
	b := make([]byte, len(sb.b))
	copy(b, sb.b)
	b[0] = 'X'
	assert.Equal(t, 0, d.ParseChunks(b, 0))
	assert.Equal(t, base.DemuxErrorKindFormatUnsupported, r3.errs[0].Kind)
}

func TestDemuxer_TimestampBaseAndOverride(t *testing.T) {
	sb := newStreamBuilder(true, true)
	metadataTag, _ := flv.PackMetadata(goldenMetadata())
	sb.add(metadataTag)
	sb.add(flv.PackAacSeqHeader(0, goldenAsc))
	// 扩展时间戳
	sb.add(flv.PackAacRaw(0x01000010, []byte{0x21}))

	var r recorder
	d := newDemuxer(t, sb.b, &r)
	d.SetTimestampBase(60000)
	d.OverrideDuration(30000)
	d.OverrideHasVideo(false)
	assert.Equal(t, int64(60000), d.TimestampBase())
	d.ParseChunks(sb.b, 0)

	mi := d.MediaInfo()
	assert.Equal(t, int64(30000), mi.Duration)
	assert.Equal(t, false, mi.HasVideo)
	assert.Equal(t, []int64{60000, 62000, 64000}, mi.KeyframesIndex.Times)
	assert.Equal(t, int64(60000), mi.KeyframesIndex.FirstTagTime)
	// 时间点在索引的第一个关键帧之前时，从第一个tag开始
	kf, ok := mi.GetNearestKeyframe(59000)
	assert.Equal(t, true, ok)
	assert.Equal(t, -1, kf.Index)
	assert.Equal(t, uint64(13), kf.FilePosition)
	assert.Equal(t, `video/x-flv; codecs="mp4a.40.2"`, mi.MimeType)
	assert.Equal(t, true, mi.IsComplete())
	assert.Equal(t, 1, len(r.audioSamples))
	assert.Equal(t, int64(60000+0x01000010), r.audioSamples[0].Dts)

	d.ResetMediaInfo()
	mi = d.MediaInfo()
	assert.Equal(t, "", mi.MimeType)
	assert.Equal(t, int64(30000), mi.Duration)
	assert.Equal(t, true, mi.HasAudio)
}

func TestDemuxer_ZeroRefFramesSps(t *testing.T) {
	// 与goldenSps相同，只是max_num_ref_frames为0
	sps := []byte{0x67, 0x42, 0xc0, 0x1e, 0xdc, 0x0a, 0x03, 0xd9}
	cp, err := avc.ParseSps(sps)
	assert.Equal(t, nil, err)
	assert.Equal(t, 0, cp.RefFrames)

	sb := newStreamBuilder(false, true)
	metadataTag, err := flv.PackMetadata(amf0.ObjectPairArray{
		{Key: "duration", Value: float64(10)},
		{Key: "framerate", Value: float64(25)},
	})
	assert.Equal(t, nil, err)
	sb.add(metadataTag)
	dcr, err := avc.BuildDecoderConfigurationRecord(sps, goldenPps)
	assert.Equal(t, nil, err)
	sb.add(flv.PackVideoSeqHeader(flv.CodecIdAvc, 0, dcr))
	sb.add(flv.PackVideoNalu(flv.CodecIdAvc, 0, 0, false, h2645.JoinNaluAvcc([]byte{0x65, 0x88, 0x84, 0x00})))

	var r recorder
	d := newDemuxer(t, sb.b, &r)
	d.ParseChunks(sb.b, 0)

	assert.Equal(t, 1, len(r.mediaInfos))
	mi := r.mediaInfos[0]
	assert.Equal(t, true, mi.IsComplete())
	assert.Equal(t, true, mi.VideoConfigured)
	assert.Equal(t, 0, mi.RefFrames)
	assert.Equal(t, 640, mi.Width)
	assert.Equal(t, `video/x-flv; codecs="avc1.42c01e"`, mi.MimeType)
}

func TestDemuxer_EnhancedHevc(t *testing.T) {
	dcr, err := hevc.BuildDecoderConfigurationRecord(goldenHevcVps, goldenHevcSps, goldenHevcPps)
	assert.Equal(t, nil, err)

	sb := newStreamBuilder(false, true)
	sb.add(flv.PackEnhancedVideo(flv.FourCcHevc, flv.PacketTypeSequenceStart, 0, 0, true, dcr))
	// IDR_W_RADL，但frame type不是key
	sb.add(flv.PackEnhancedVideo(flv.FourCcHevc, flv.PacketTypeCodedFrames, 0, 80, false, h2645.JoinNaluAvcc([]byte{0x26, 0x01, 0xaf})))
	sb.add(flv.PackEnhancedVideo(flv.FourCcHevc, flv.PacketTypeCodedFramesX, 40, 0, false, h2645.JoinNaluAvcc([]byte{0x02, 0x01, 0xd0})))

	var r recorder
	d := newDemuxer(t, sb.b, &r)
	d.ParseChunks(sb.b, 0)

	assert.Equal(t, 0, len(r.errs))
	assert.Equal(t, 1, len(r.trackMetas))
	vm := r.trackMetas[0].Video
	assert.Equal(t, base.VideoCodecTypeHevc, vm.CodecType)
	assert.Equal(t, "hvc1.1.2.L93.B0", vm.Codec)
	assert.Equal(t, base.Size{Width: 320, Height: 240}, vm.Params.CodecSize)

	assert.Equal(t, 2, len(r.videoSamples))
	assert.Equal(t, true, r.videoSamples[0].IsKeyframe)
	assert.Equal(t, h2645.H265NaluTypeSliceIdr, r.videoSamples[0].Units[0].Type)
	assert.Equal(t, int64(80), r.videoSamples[0].Pts)
	assert.Equal(t, false, r.videoSamples[1].IsKeyframe)
	assert.Equal(t, int64(40), r.videoSamples[1].Pts)
}

func TestNewDemuxer_NilObserver(t *testing.T) {
	_, err := flv.NewDemuxer(flv.Probe(flv.FlvHeader), flv.DemuxerConfig{}, nil)
	assert.Equal(t, base.ErrNilObserver, err)
}
