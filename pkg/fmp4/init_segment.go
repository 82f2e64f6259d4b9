// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package fmp4

import (
	"fmt"

	"github.com/q191201771/lalfmp4/pkg/base"
)

var unityMatrix = concat(
	u32(0x00010000), u32(0), u32(0),
	u32(0), u32(0x00010000), u32(0),
	u32(0), u32(0), u32(0x40000000),
)

// GenerateInitSegment 生成单个track的初始化段 ftyp+moov
//
// @param meta: Type为audio时使用Audio字段，为video时使用Video字段
func GenerateInitSegment(meta base.TrackMetadata) ([]byte, error) {
	t, err := newTrakContext(meta)
	if err != nil {
		return nil, err
	}
	return concat(ftyp(), moov(t)), nil
}

// ---------------------------------------------------------------------------------------------------------------------

// trakContext 把音视频的metadata拉平，方便拼装box
type trakContext struct {
	typ       base.TrackType
	id        uint32
	timescale uint32
	duration  uint32

	presentWidth  uint16
	presentHeight uint16
	codecWidth    uint16
	codecHeight   uint16

	stsdEntry []byte
}

func newTrakContext(meta base.TrackMetadata) (*trakContext, error) {
	switch meta.Type {
	case base.TrackTypeAudio:
		a := meta.Audio
		if a == nil || len(a.Config) == 0 {
			return nil, fmt.Errorf("%w. audio metadata without AudioSpecificConfig", base.ErrFmp4)
		}
		return &trakContext{
			typ:       base.TrackTypeAudio,
			id:        uint32(a.Id),
			timescale: uint32(a.Timescale),
			duration:  uint32(a.Duration),
			stsdEntry: mp4a(a),
		}, nil
	case base.TrackTypeVideo:
		v := meta.Video
		if v == nil || len(v.ConfigRecord) == 0 {
			return nil, fmt.Errorf("%w. video metadata without config record", base.ErrFmp4)
		}
		var entry []byte
		switch v.CodecType {
		case base.VideoCodecTypeAvc:
			entry = visualSampleEntry("avc1", v, box("avcC", v.ConfigRecord))
		case base.VideoCodecTypeHevc:
			entry = visualSampleEntry("hvc1", v, box("hvcC", v.ConfigRecord))
		case base.VideoCodecTypeAv1:
			entry = visualSampleEntry("av01", v, box("av1C", v.ConfigRecord))
		default:
			return nil, fmt.Errorf("%w. unknown video codec type. type=%d", base.ErrFmp4, v.CodecType)
		}
		return &trakContext{
			typ:           base.TrackTypeVideo,
			id:            uint32(v.Id),
			timescale:     uint32(v.Timescale),
			duration:      uint32(v.Duration),
			presentWidth:  uint16(v.Params.PresentSize.Width),
			presentHeight: uint16(v.Params.PresentSize.Height),
			codecWidth:    uint16(v.Params.CodecSize.Width),
			codecHeight:   uint16(v.Params.CodecSize.Height),
			stsdEntry:     entry,
		}, nil
	}
	return nil, fmt.Errorf("%w. invalid track type. type=%d", base.ErrFmp4, meta.Type)
}

func ftyp() []byte {
	return box("ftyp",
		[]byte("isom"), // major brand
		u32(1),         // minor version
		[]byte("isom"), // compatible brands
		[]byte("avc1"),
	)
}

func moov(t *trakContext) []byte {
	return box("moov", mvhd(t), trak(t), mvex(t))
}

func mvhd(t *trakContext) []byte {
	return fullBox("mvhd", 0, 0,
		u32(0), // creation_time
		u32(0), // modification_time
		u32(t.timescale),
		u32(t.duration),
		u32(0x00010000), // rate 1.0
		u16(0x0100),     // volume 1.0
		zeros(10),       // reserved
		unityMatrix,
		zeros(24),       // pre_defined
		u32(0xFFFFFFFF), // next_track_ID
	)
}

func trak(t *trakContext) []byte {
	return box("trak", tkhd(t), mdia(t))
}

func tkhd(t *trakContext) []byte {
	// flags: track_enabled | track_in_movie | track_in_preview
	return fullBox("tkhd", 0, 0x000007,
		u32(0), // creation_time
		u32(0), // modification_time
		u32(t.id),
		u32(0), // reserved
		u32(t.duration),
		zeros(8), // reserved
		u16(0),   // layer
		u16(0),   // alternate_group
		u16(0),   // volume
		u16(0),   // reserved
		unityMatrix,
		u16(t.presentWidth), u16(0),
		u16(t.presentHeight), u16(0),
	)
}

func mdia(t *trakContext) []byte {
	return box("mdia", mdhd(t), hdlr(t), minf(t))
}

func mdhd(t *trakContext) []byte {
	return fullBox("mdhd", 0, 0,
		u32(0), // creation_time
		u32(0), // modification_time
		u32(t.timescale),
		u32(t.duration),
		u16(0x55C4), // language: und
		u16(0),      // pre_defined
	)
}

func hdlr(t *trakContext) []byte {
	handler, name := "soun", "SoundHandler"
	if t.typ == base.TrackTypeVideo {
		handler, name = "vide", "VideoHandler"
	}
	return fullBox("hdlr", 0, 0,
		u32(0), // pre_defined
		[]byte(handler),
		zeros(12), // reserved
		[]byte(name), u8(0),
	)
}

func minf(t *trakContext) []byte {
	var mh []byte
	if t.typ == base.TrackTypeVideo {
		mh = fullBox("vmhd", 0, 1, u16(0), zeros(6)) // graphicsmode, opcolor
	} else {
		mh = fullBox("smhd", 0, 0, u16(0), u16(0)) // balance, reserved
	}
	return box("minf", mh, dinf(), stbl(t))
}

func dinf() []byte {
	url := fullBox("url ", 0, 1) // self-contained
	return box("dinf", fullBox("dref", 0, 0, u32(1), url))
}

func stbl(t *trakContext) []byte {
	return box("stbl",
		fullBox("stsd", 0, 0, u32(1), t.stsdEntry),
		fullBox("stts", 0, 0, u32(0)),
		fullBox("stsc", 0, 0, u32(0)),
		fullBox("stsz", 0, 0, u32(0), u32(0)),
		fullBox("stco", 0, 0, u32(0)),
	)
}

func mvex(t *trakContext) []byte {
	trex := fullBox("trex", 0, 0,
		u32(t.id),
		u32(1), // default_sample_description_index
		u32(0), // default_sample_duration
		u32(0), // default_sample_size
		u32(0x00010001),
	)
	return box("mvex", trex)
}

// visualSampleEntry avc1/hvc1/av01共用的78字节头，后面跟具体的config box
func visualSampleEntry(typ string, v *base.VideoMetadata, configBox []byte) []byte {
	return box(typ,
		zeros(6), // reserved
		u16(1),   // data_reference_index
		u16(0),   // pre_defined
		u16(0),   // reserved
		zeros(12),
		u16(uint16(v.Params.CodecSize.Width)),
		u16(uint16(v.Params.CodecSize.Height)),
		u32(0x00480000), // horizresolution 72dpi
		u32(0x00480000), // vertresolution 72dpi
		u32(0),          // reserved
		u16(1),          // frame_count
		compressorName("lalfmp4"),
		u16(0x0018), // depth
		u16(0xFFFF), // pre_defined = -1
		configBox,
	)
}

// compressorName 32字节，首字节为长度
func compressorName(name string) []byte {
	out := make([]byte, 32)
	n := copy(out[1:], name)
	out[0] = uint8(n)
	return out
}

func mp4a(a *base.AudioMetadata) []byte {
	return box("mp4a",
		zeros(6), // reserved
		u16(1),   // data_reference_index
		zeros(8), // reserved
		u16(uint16(a.ChannelCount)),
		u16(16), // samplesize
		u32(0),  // pre_defined + reserved
		u16(uint16(a.SampleRate)), u16(0),
		esds(a.Config),
	)
}

func esds(config []byte) []byte {
	n := uint8(len(config))
	return fullBox("esds", 0, 0,
		u8(0x03), u8(0x17+n), // ES_DescrTag
		u16(1),               // ES_ID
		u8(0),                // flags
		u8(0x04), u8(0x0F+n), // DecoderConfigDescrTag
		u8(0x40),        // objectTypeIndication: mpeg4 audio
		u8(0x15),        // streamType audio
		zeros(3),        // bufferSizeDB
		u32(0),          // maxBitrate
		u32(0),          // avgBitrate
		u8(0x05), u8(n), // DecSpecificInfoTag
		config,
		u8(0x06), u8(0x01), u8(0x02), // SLConfigDescrTag
	)
}
