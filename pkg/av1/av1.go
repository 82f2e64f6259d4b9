// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package av1

import (
	"errors"
	"fmt"

	"github.com/q191201771/lalfmp4/pkg/base"
	"github.com/q191201771/naza/pkg/nazabits"
)

var Log = base.Log

var ErrAv1 = base.ErrAv1

var (
	ErrObuTooShort      = errors.New("lalfmp4.av1: obu too short")
	ErrLeb128           = errors.New("lalfmp4.av1: invalid leb128")
	ErrConfigLackOfData = errors.New("lalfmp4.av1: AV1CodecConfigurationRecord lack of data")
	ErrConfigInvalid    = errors.New("lalfmp4.av1: invalid AV1CodecConfigurationRecord")
	ErrNoSequenceHeader = errors.New("lalfmp4.av1: no sequence header obu")
)

// av1-spec 6.2.2 OBU type semantics
const (
	ObuTypeSequenceHeader       uint8 = 1
	ObuTypeTemporalDelimiter    uint8 = 2
	ObuTypeFrameHeader          uint8 = 3
	ObuTypeTileGroup            uint8 = 4
	ObuTypeMetadata             uint8 = 5
	ObuTypeFrame                uint8 = 6
	ObuTypeRedundantFrameHeader uint8 = 7
	ObuTypeTileList             uint8 = 8
	ObuTypePadding              uint8 = 15
)

type ObuHeader struct {
	Type          uint8
	ExtensionFlag bool
	HasSizeField  bool
	TemporalId    uint8
	SpatialId     uint8
}

// ParseObuHeader
//
// @return headerSize: obu header的字节数，1或2
func ParseObuHeader(b []byte) (h ObuHeader, headerSize int, err error) {
	if len(b) < 1 {
		return h, 0, ErrObuTooShort
	}
	br := nazabits.NewBitReader(b)
	_, _ = br.ReadBit() // obu_forbidden_bit
	h.Type, _ = br.ReadBits8(4)
	v, _ := br.ReadBit()
	h.ExtensionFlag = v == 1
	v, _ = br.ReadBit()
	h.HasSizeField = v == 1
	headerSize = 1
	if h.ExtensionFlag {
		if len(b) < 2 {
			return h, 0, ErrObuTooShort
		}
		h.TemporalId = b[1] >> 5
		h.SpatialId = (b[1] >> 3) & 0x3
		headerSize = 2
	}
	return h, headerSize, nil
}

// ReadLeb128
//
// @return n: leb128占用的字节数
func ReadLeb128(b []byte) (v uint64, n int, err error) {
	for i := 0; i < 8; i++ {
		if i >= len(b) {
			return 0, 0, ErrLeb128
		}
		v |= uint64(b[i]&0x7f) << (uint(i) * 7)
		if b[i]&0x80 == 0 {
			return v, i + 1, nil
		}
	}
	return 0, 0, ErrLeb128
}

func WriteLeb128(v uint64) []byte {
	var out []byte
	for {
		b := uint8(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}

// IterateObu 遍历low overhead bitstream format的obu序列，每个obu都必须带有size字段，最后一个除外
//
// @param handler: obu 包含header; payload 不包含header以及size字段
func IterateObu(b []byte, handler func(h ObuHeader, obu []byte, payload []byte)) error {
	pos := 0
	for pos < len(b) {
		h, headerSize, err := ParseObuHeader(b[pos:])
		if err != nil {
			return err
		}
		payloadStart := pos + headerSize
		payloadSize := len(b) - payloadStart
		if h.HasSizeField {
			v, n, err := ReadLeb128(b[payloadStart:])
			if err != nil {
				return err
			}
			payloadStart += n
			if v > uint64(len(b)-payloadStart) {
				return ErrObuTooShort
			}
			payloadSize = int(v)
		}
		end := payloadStart + payloadSize
		handler(h, b[pos:end], b[payloadStart:end])
		pos = end
	}
	return nil
}

// ----- AV1CodecConfigurationRecord -----------------------------------------------------------------------------------

// CodecConfigurationRecord
//
// https://aomediacodec.github.io/av1-isobmff/#av1codecconfigurationbox-syntax
type CodecConfigurationRecord struct {
	Version                          uint8
	SeqProfile                       uint8
	SeqLevelIdx0                     uint8
	SeqTier0                         uint8
	HighBitdepth                     bool
	TwelveBit                        bool
	Monochrome                       bool
	ChromaSubsamplingX               bool
	ChromaSubsamplingY               bool
	ChromaSamplePosition             uint8
	InitialPresentationDelayPresent  bool
	InitialPresentationDelayMinusOne uint8

	ConfigObus        []byte
	SequenceHeaderObu []byte // 包含obu header
}

// ParseCodecConfigurationRecord
//
// @param b: av1C box的内容
//
//	函数调用结束后，返回值中的ConfigObus、SequenceHeaderObu引用该内存块
func ParseCodecConfigurationRecord(b []byte) (ccr CodecConfigurationRecord, err error) {
	if len(b) < 4 {
		return ccr, ErrConfigLackOfData
	}
	if b[0]&0x80 == 0 {
		return ccr, ErrConfigInvalid
	}
	ccr.Version = b[0] & 0x7f
	if ccr.Version != 1 {
		return ccr, fmt.Errorf("%w. version=%d", ErrConfigInvalid, ccr.Version)
	}
	ccr.SeqProfile = b[1] >> 5
	ccr.SeqLevelIdx0 = b[1] & 0x1f
	ccr.SeqTier0 = b[2] >> 7
	ccr.HighBitdepth = b[2]&0x40 != 0
	ccr.TwelveBit = b[2]&0x20 != 0
	ccr.Monochrome = b[2]&0x10 != 0
	ccr.ChromaSubsamplingX = b[2]&0x08 != 0
	ccr.ChromaSubsamplingY = b[2]&0x04 != 0
	ccr.ChromaSamplePosition = b[2] & 0x03
	ccr.InitialPresentationDelayPresent = b[3]&0x10 != 0
	if ccr.InitialPresentationDelayPresent {
		ccr.InitialPresentationDelayMinusOne = b[3] & 0x0f
	}
	ccr.ConfigObus = b[4:]

	err = IterateObu(ccr.ConfigObus, func(h ObuHeader, obu []byte, payload []byte) {
		if h.Type == ObuTypeSequenceHeader && ccr.SequenceHeaderObu == nil {
			ccr.SequenceHeaderObu = obu
		}
	})
	if err != nil {
		return ccr, err
	}
	return ccr, nil
}

// BuildCodecConfigurationRecord 使用sequence header obu生成av1C
//
// @param obu: 包含obu header
//
// @return 内存块为独立新申请；函数调用结束后，内部不持有该内存块
func BuildCodecConfigurationRecord(obu []byte) ([]byte, error) {
	h, headerSize, err := ParseObuHeader(obu)
	if err != nil {
		return nil, err
	}
	if h.Type != ObuTypeSequenceHeader {
		return nil, ErrNoSequenceHeader
	}
	payload := obu[headerSize:]
	if h.HasSizeField {
		_, n, err := ReadLeb128(payload)
		if err != nil {
			return nil, err
		}
		payload = payload[n:]
	}
	var sh SequenceHeader
	if err = parseSequenceHeader(payload, &sh); err != nil {
		return nil, err
	}

	out := make([]byte, 4, 4+len(obu)+8)
	out[0] = 0x81
	out[1] = sh.SeqProfile<<5 | sh.OperatingPoints[0].SeqLevelIdx
	out[2] = sh.OperatingPoints[0].SeqTier << 7
	if sh.ColorConfig.BitDepth > 8 {
		out[2] |= 0x40
	}
	if sh.ColorConfig.BitDepth == 12 {
		out[2] |= 0x20
	}
	if sh.ColorConfig.MonoChrome {
		out[2] |= 0x10
	}
	if sh.ColorConfig.SubsamplingX {
		out[2] |= 0x08
	}
	if sh.ColorConfig.SubsamplingY {
		out[2] |= 0x04
	}
	out[2] |= sh.ColorConfig.ChromaSamplePosition & 0x03

	// configOBUs中的obu必须带size字段
	if h.HasSizeField {
		out = append(out, obu...)
	} else {
		out = append(out, obu[0]|0x02)
		if h.ExtensionFlag {
			out = append(out, obu[1])
		}
		out = append(out, WriteLeb128(uint64(len(payload)))...)
		out = append(out, payload...)
	}
	return out, nil
}
