// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package flv

import (
	"errors"

	"github.com/q191201771/lalfmp4/pkg/base"
)

var Log = base.Log

var ErrFlv = base.ErrFlv

var (
	ErrTagTooShort = errors.New("lalfmp4.flv: tag too short")
)

const (
	FlvHeaderSize        = 9
	TagHeaderSize        = 11
	PrevTagSizeFieldSize = 4
)

// FlvHeader 包含PreviousTagSize0，有音频和视频
var FlvHeader = []byte{0x46, 0x4c, 0x56, 0x01, 0x05, 0x00, 0x00, 0x00, 0x09, 0x00, 0x00, 0x00, 0x00}

const (
	// spec-video_file_format_spec_v10.pdf
	// FLV tags
	TagTypeAudio      uint8 = 8
	TagTypeVideo      uint8 = 9
	TagTypeScriptData uint8 = 18

	// Video tags
	//   VIDEODATA
	//     FrameType UB[4]
	//     CodecID   UB[4]
	//   AVCVIDEOPACKET
	//     AVCPacketType   UI8
	//     CompositionTime SI24
	//     Data            UI8[n]
	FrameTypeKey          uint8 = 1
	FrameTypeInter        uint8 = 2
	FrameTypeDisposable   uint8 = 3
	FrameTypeGenerated    uint8 = 4
	FrameTypeVideoInfoCmd uint8 = 5

	CodecIdAvc  uint8 = 7
	CodecIdHevc uint8 = 12

	AvcPacketTypeSeqHeader  uint8 = 0
	AvcPacketTypeNalu       uint8 = 1
	AvcPacketTypeEndOfSeq   uint8 = 2
	HevcPacketTypeSeqHeader       = AvcPacketTypeSeqHeader
	HevcPacketTypeNalu            = AvcPacketTypeNalu

	AvcKeyFrame    = FrameTypeKey<<4 | CodecIdAvc
	AvcInterFrame  = FrameTypeInter<<4 | CodecIdAvc
	HevcKeyFrame   = FrameTypeKey<<4 | CodecIdHevc
	HevcInterFrame = FrameTypeInter<<4 | CodecIdHevc

	// Audio tags
	//   AUDIODATA
	//     SoundFormat UB[4]
	//     SoundRate   UB[2]
	//     SoundSize   UB[1]
	//     SoundType   UB[1]
	//   AACAUDIODATA
	//     AACPacketType UI8
	//     Data          UI8[n]
	SoundFormatMp3 uint8 = 2
	SoundFormatAac uint8 = 10

	AacPacketTypeSeqHeader uint8 = 0
	AacPacketTypeRaw       uint8 = 1

	// AacAudioSpec sound rate和sound type对于aac无意义，固定填44k、16bit、stereo
	AacAudioSpec = SoundFormatAac<<4 | 0x0F
)

// enhanced-rtmp-v1.pdf
//
//	IsExHeader     UB[1]
//	FrameType      UB[3]
//	PacketType     UB[4]
//	FourCC         UI32
const (
	ExHeaderFlag uint8 = 0x80

	PacketTypeSequenceStart        uint8 = 0
	PacketTypeCodedFrames          uint8 = 1
	PacketTypeSequenceEnd          uint8 = 2
	PacketTypeCodedFramesX         uint8 = 3
	PacketTypeMetadata             uint8 = 4
	PacketTypeMpeg2TsSequenceStart uint8 = 5
)

var (
	FourCcAvc  = []byte("avc1")
	FourCcHevc = []byte("hvc1")
	FourCcAv1  = []byte("av01")
)

// soundRateTable SoundRate字段对应的采样率，aac以asc为准
var soundRateTable = []int{5500, 11025, 22050, 44100, 48000}

const (
	metadataNameOnMetaData = "onMetaData"
)
