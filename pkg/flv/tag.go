// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package flv

import (
	"bytes"

	"github.com/q191201771/lalfmp4/pkg/amf0"
	"github.com/q191201771/naza/pkg/bele"
)

type TagHeader struct {
	Type      uint8  // type
	DataSize  uint32 // body大小，不包含 header 和 prev tag size 字段
	Timestamp uint32 // 绝对时间戳，单位毫秒
	StreamId  uint32 // always 0
}

// ParseTagHeader
//
// @param rawHeader: 至少11字节
func ParseTagHeader(rawHeader []byte) (h TagHeader, err error) {
	if len(rawHeader) < TagHeaderSize {
		return h, ErrTagTooShort
	}
	h.Type = rawHeader[0]
	h.DataSize = bele.BeUint24(rawHeader[1:])
	// 第8个字节是时间戳的高8位
	h.Timestamp = (uint32(rawHeader[7]) << 24) + bele.BeUint24(rawHeader[4:])
	h.StreamId = bele.BeUint24(rawHeader[8:])
	return h, nil
}

// PackTag 打包一个序列化后的 tag 二进制buffer，包含 tag header，body，prev tag size
func PackTag(t uint8, timestamp uint32, in []byte) []byte {
	out := make([]byte, TagHeaderSize+len(in)+PrevTagSizeFieldSize)
	out[0] = t
	bele.BePutUint24(out[1:], uint32(len(in)))
	bele.BePutUint24(out[4:], timestamp&0xFFFFFF)
	out[7] = uint8(timestamp >> 24)
	out[8] = 0
	out[9] = 0
	out[10] = 0
	copy(out[11:], in)
	bele.BePutUint32(out[TagHeaderSize+len(in):], uint32(TagHeaderSize+len(in)))
	return out
}

// PackHeader 打包flv文件头，包含PreviousTagSize0
func PackHeader(hasAudio, hasVideo bool) []byte {
	out := make([]byte, len(FlvHeader))
	copy(out, FlvHeader)
	out[4] = 0
	if hasAudio {
		out[4] |= 0x04
	}
	if hasVideo {
		out[4] |= 0x01
	}
	return out
}

// PackMetadata 打包onMetaData script data tag
//
// @param ops: value为go类型，见amf0.WriteValue
func PackMetadata(ops amf0.ObjectPairArray) ([]byte, error) {
	var body bytes.Buffer
	if err := amf0.WriteString(&body, metadataNameOnMetaData); err != nil {
		return nil, err
	}
	if err := amf0.WriteEcmaArray(&body, ops); err != nil {
		return nil, err
	}
	return PackTag(TagTypeScriptData, 0, body.Bytes()), nil
}

// ----- 以下为audio/video tag body的打包 -------------------------------------------------------------------------------

func PackAacSeqHeader(timestamp uint32, asc []byte) []byte {
	body := make([]byte, 2+len(asc))
	body[0] = AacAudioSpec
	body[1] = AacPacketTypeSeqHeader
	copy(body[2:], asc)
	return PackTag(TagTypeAudio, timestamp, body)
}

func PackAacRaw(timestamp uint32, raw []byte) []byte {
	body := make([]byte, 2+len(raw))
	body[0] = AacAudioSpec
	body[1] = AacPacketTypeRaw
	copy(body[2:], raw)
	return PackTag(TagTypeAudio, timestamp, body)
}

// PackVideoSeqHeader
//
// @param codecId:   CodecIdAvc或CodecIdHevc
// @param dcr:       avcC或hvcC的内容
func PackVideoSeqHeader(codecId uint8, timestamp uint32, dcr []byte) []byte {
	body := make([]byte, 5+len(dcr))
	body[0] = FrameTypeKey<<4 | codecId
	body[1] = AvcPacketTypeSeqHeader
	copy(body[5:], dcr)
	return PackTag(TagTypeVideo, timestamp, body)
}

// PackVideoNalu
//
// @param nals: 以4字节长度为前缀的nalu
func PackVideoNalu(codecId uint8, timestamp uint32, cts int32, isKey bool, nals []byte) []byte {
	body := make([]byte, 5+len(nals))
	body[0] = FrameTypeInter<<4 | codecId
	if isKey {
		body[0] = FrameTypeKey<<4 | codecId
	}
	body[1] = AvcPacketTypeNalu
	bele.BePutUint24(body[2:], uint32(cts)&0xFFFFFF)
	copy(body[5:], nals)
	return PackTag(TagTypeVideo, timestamp, body)
}

// PackEnhancedVideo 打包enhanced rtmp格式的video tag
//
// @param fourCc:     FourCcAvc、FourCcHevc、FourCcAv1
// @param packetType: PacketTypeSequenceStart等
// @param cts:        仅当packetType为PacketTypeCodedFrames且不是av1时写入
func PackEnhancedVideo(fourCc []byte, packetType uint8, timestamp uint32, cts int32, isKey bool, payload []byte) []byte {
	withCts := packetType == PacketTypeCodedFrames && !bytes.Equal(fourCc, FourCcAv1)
	n := 5 + len(payload)
	if withCts {
		n += 3
	}
	body := make([]byte, n)
	frameType := FrameTypeInter
	if isKey {
		frameType = FrameTypeKey
	}
	body[0] = ExHeaderFlag | frameType<<4 | packetType
	copy(body[1:5], fourCc)
	pos := 5
	if withCts {
		bele.BePutUint24(body[pos:], uint32(cts)&0xFFFFFF)
		pos += 3
	}
	copy(body[pos:], payload)
	return PackTag(TagTypeVideo, timestamp, body)
}
