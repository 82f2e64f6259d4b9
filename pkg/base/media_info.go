// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import "sort"

type KeyframesIndex struct {
	Times         []int64  // 毫秒，已经加上了timestampBase
	FilePositions []uint64 // 关键帧tag在文件中的偏移

	// 第一个tag的时间和偏移。
	// Times中不包含sequence header所在的第一个关键帧，seek到第一个关键帧之前的时间点时使用它
	FirstTagTime     int64
	FirstTagPosition uint64
}

type Keyframe struct {
	Index        int // -1表示第一个tag
	Milliseconds int64
	FilePosition uint64
}

// MediaInfo 整个流（或者分片文件中的一个part）的媒体信息
//
// 数值类型字段为0，字符串类型字段为空，表示未知
type MediaInfo struct {
	MimeType string
	Duration int64 // 毫秒

	HasAudio bool
	HasVideo bool

	AudioCodec        string
	AudioDataRate     float64 // kbps
	AudioSampleRate   int
	AudioChannelCount int

	VideoCodec    string
	VideoDataRate float64 // kbps
	Width         int
	Height        int
	Fps           float64
	Profile       string
	Level         string
	RefFrames     int
	ChromaFormat  string
	SarNum        int
	SarDen        int

	// 解析过视频的DecoderConfigurationRecord（或av1的sequence header）。
	// 上面的视频字段是否为0取决于码流本身（比如RefFrames、Sar可以合法的为0），不能用于判断信息是否齐全
	VideoConfigured bool

	Metadata       []MetadataPair // onMetaData原始内容
	SegmentCount   int
	KeyframesIndex *KeyframesIndex
}

// MetadataPair 为了避免base依赖amf0，onMetaData以name/value对的形式存储，value为amf0解析出的go类型
type MetadataPair struct {
	Key   string
	Value interface{}
}

func (mi *MediaInfo) IsComplete() bool {
	audioInfoComplete := !mi.HasAudio ||
		(mi.AudioCodec != "" && mi.AudioSampleRate != 0 && mi.AudioChannelCount != 0)

	videoInfoComplete := !mi.HasVideo ||
		(mi.VideoConfigured && mi.VideoCodec != "" && mi.Width != 0 && mi.Height != 0 && mi.Fps != 0)

	return mi.MimeType != "" && audioInfoComplete && videoInfoComplete
}

func (mi *MediaInfo) IsSeekable() bool {
	return mi.KeyframesIndex != nil && len(mi.KeyframesIndex.Times) != 0
}

// GetNearestKeyframe 查找时间点<=ms的最后一个关键帧
//
// 如果ms比索引中第一个关键帧还小，则返回第一个tag（Index为-1）；不知道第一个tag的位置时，返回索引中第一个关键帧
//
// @return ok: 没有关键帧索引时返回false
func (mi *MediaInfo) GetNearestKeyframe(ms int64) (kf Keyframe, ok bool) {
	if !mi.IsSeekable() {
		return kf, false
	}
	times := mi.KeyframesIndex.Times
	idx := sort.Search(len(times), func(i int) bool {
		return times[i] > ms
	}) - 1
	if idx < 0 {
		if mi.KeyframesIndex.FirstTagPosition != 0 {
			return Keyframe{
				Index:        -1,
				Milliseconds: mi.KeyframesIndex.FirstTagTime,
				FilePosition: mi.KeyframesIndex.FirstTagPosition,
			}, true
		}
		idx = 0
	}
	kf.Index = idx
	kf.Milliseconds = times[idx]
	if idx < len(mi.KeyframesIndex.FilePositions) {
		kf.FilePosition = mi.KeyframesIndex.FilePositions[idx]
	}
	return kf, true
}

// Clone 深拷贝，用于跨goroutine传递
//
// 注意，Metadata中value如果是引用类型（比如嵌套的object、数组），拷贝的是引用，使用方只读即可
func (mi *MediaInfo) Clone() *MediaInfo {
	out := *mi
	if mi.Metadata != nil {
		out.Metadata = make([]MetadataPair, len(mi.Metadata))
		copy(out.Metadata, mi.Metadata)
	}
	if mi.KeyframesIndex != nil {
		out.KeyframesIndex = &KeyframesIndex{
			Times:            append([]int64(nil), mi.KeyframesIndex.Times...),
			FilePositions:    append([]uint64(nil), mi.KeyframesIndex.FilePositions...),
			FirstTagTime:     mi.KeyframesIndex.FirstTagTime,
			FirstTagPosition: mi.KeyframesIndex.FirstTagPosition,
		}
	}
	return &out
}
