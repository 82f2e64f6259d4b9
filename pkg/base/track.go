// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

type TrackType int

const (
	TrackTypeAudio TrackType = iota + 1
	TrackTypeVideo
)

func (t TrackType) String() string {
	switch t {
	case TrackTypeAudio:
		return "audio"
	case TrackTypeVideo:
		return "video"
	}
	return "unknown"
}

type VideoCodecType int

const (
	VideoCodecTypeAvc VideoCodecType = iota + 1
	VideoCodecTypeHevc
	VideoCodecTypeAv1
)

func (v VideoCodecType) String() string {
	switch v {
	case VideoCodecTypeAvc:
		return "avc"
	case VideoCodecTypeHevc:
		return "hevc"
	case VideoCodecTypeAv1:
		return "av1"
	}
	return "unknown"
}

// ----- 解封装后，重封装前的sample ------------------------------------------------------------------------------------------

// NaluUnit
//
// Data 包含了长度前缀，长度前缀的字节数由seq header中的lengthSize决定，重封装时直接拷贝进mdat
type NaluUnit struct {
	Type uint8
	Data []byte
}

type VideoSample struct {
	Units        []NaluUnit
	Length       int // 所有Units的Data长度之和
	IsKeyframe   bool
	Dts          int64
	Cts          int64
	Pts          int64
	FilePosition int64 // 仅关键帧有意义，tag在文件中的位置
}

type AudioSample struct {
	Unit   []byte
	Length int
	Dts    int64
	Pts    int64
}

type VideoTrack struct {
	Id             int
	SequenceNumber int
	Samples        []VideoSample
	Length         int
	NaluCount      int
}

func (t *VideoTrack) Append(sample VideoSample) {
	t.Samples = append(t.Samples, sample)
	t.Length += sample.Length
	t.NaluCount += len(sample.Units)
}

func (t *VideoTrack) Clear() {
	t.Samples = nil
	t.Length = 0
	t.NaluCount = 0
}

type AudioTrack struct {
	Id             int
	SequenceNumber int
	Samples        []AudioSample
	Length         int
}

func (t *AudioTrack) Append(sample AudioSample) {
	t.Samples = append(t.Samples, sample)
	t.Length += sample.Length
}

func (t *AudioTrack) Clear() {
	t.Samples = nil
	t.Length = 0
}

// ----- track metadata ------------------------------------------------------------------------------------------------

type AudioMetadata struct {
	Id        int
	Timescale int
	Duration  int64

	SampleRate         int
	ChannelCount       int
	Codec              string // e.g. mp4a.40.5
	OriginalCodec      string // 码流中原始的object type对应的codec
	OriginalObjectType int
	Config             []byte // 重新生成的AudioSpecificConfig

	RefSampleDuration float64 // 毫秒
}

type VideoMetadata struct {
	Id        int
	Timescale int
	Duration  int64

	CodecType VideoCodecType
	Codec     string
	Params    CodecParameters

	// ConfigRecord 对应avcC、hvcC、av1C box的内容
	ConfigRecord []byte

	RefSampleDuration float64 // 毫秒
}

type TrackMetadata struct {
	Type  TrackType
	Audio *AudioMetadata
	Video *VideoMetadata
}
