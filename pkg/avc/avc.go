// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package avc

import (
	"errors"
	"fmt"

	"github.com/q191201771/lalfmp4/pkg/base"
	"github.com/q191201771/naza/pkg/bele"
)

var Log = base.Log

var ErrAvc = base.ErrAvc

var (
	ErrDcrLackOfData      = errors.New("lalfmp4.avc: AVCDecoderConfigurationRecord lack of data")
	ErrDcrInvalid         = errors.New("lalfmp4.avc: invalid AVCDecoderConfigurationRecord")
	ErrDcrStrangeLenSize  = errors.New("lalfmp4.avc: strange NaluLengthSizeMinusOne")
	ErrDcrNoSps           = errors.New("lalfmp4.avc: invalid AVCDecoderConfigurationRecord, no sps")
	ErrDcrNoPps           = errors.New("lalfmp4.avc: invalid AVCDecoderConfigurationRecord, no pps")
	ErrDcrInvalidSpsOrPps = errors.New("lalfmp4.avc: invalid sps or pps in AVCDecoderConfigurationRecord")
)

// DecoderConfigurationRecord
//
// H.264-AVC-ISO_IEC_14496-15.pdf
// 5.2.4 Decoder configuration information
type DecoderConfigurationRecord struct {
	ConfigurationVersion uint8
	AvcProfileIndication uint8
	ProfileCompatibility uint8
	AvcLevelIndication   uint8
	LengthSize           int // lengthSizeMinusOne + 1

	SpsList [][]byte // 包含nalu header
	PpsList [][]byte
}

// ParseDecoderConfigurationRecord
//
// @param b: flv video tag去除头部5字节（或者enhanced rtmp的头部）后的内容，即avcC box的内容
//
//	函数调用结束后，返回值中的SpsList、PpsList引用该内存块
func ParseDecoderConfigurationRecord(b []byte) (dcr DecoderConfigurationRecord, err error) {
	if len(b) < 7 {
		return dcr, ErrDcrLackOfData
	}

	dcr.ConfigurationVersion = b[0]
	dcr.AvcProfileIndication = b[1]
	dcr.ProfileCompatibility = b[2]
	dcr.AvcLevelIndication = b[3]
	if dcr.ConfigurationVersion != 1 || dcr.AvcProfileIndication == 0 {
		return dcr, ErrDcrInvalid
	}

	dcr.LengthSize = int(b[4]&3) + 1
	if dcr.LengthSize != 3 && dcr.LengthSize != 4 {
		return dcr, fmt.Errorf("%w. size=%d", ErrDcrStrangeLenSize, dcr.LengthSize-1)
	}

	pos := 5
	spsCount := int(b[pos] & 0x1F)
	pos++
	if spsCount == 0 {
		return dcr, ErrDcrNoSps
	} else if spsCount > 1 {
		Log.Warnf("AVCDecoderConfigurationRecord: spsCount=%d", spsCount)
	}
	if dcr.SpsList, pos, err = readParameterSets(b, pos, spsCount); err != nil {
		return dcr, err
	}

	if pos >= len(b) {
		return dcr, ErrDcrNoPps
	}
	ppsCount := int(b[pos])
	pos++
	if ppsCount == 0 {
		return dcr, ErrDcrNoPps
	} else if ppsCount > 1 {
		Log.Warnf("AVCDecoderConfigurationRecord: ppsCount=%d", ppsCount)
	}
	if dcr.PpsList, _, err = readParameterSets(b, pos, ppsCount); err != nil {
		return dcr, err
	}

	if len(dcr.SpsList) == 0 {
		return dcr, ErrDcrNoSps
	}
	return dcr, nil
}

// BuildDecoderConfigurationRecord 使用sps、pps生成avcC
//
// @return 内存块为独立新申请；函数调用结束后，内部不持有该内存块
func BuildDecoderConfigurationRecord(sps, pps []byte) ([]byte, error) {
	if len(sps) < 4 || len(pps) == 0 {
		return nil, ErrAvc
	}
	out := make([]byte, 11+len(sps)+len(pps))
	out[0] = 1
	out[1] = sps[1]
	out[2] = sps[2]
	out[3] = sps[3]
	out[4] = 0xFF // lengthSizeMinusOne=3
	out[5] = 0xE1
	bele.BePutUint16(out[6:], uint16(len(sps)))
	copy(out[8:], sps)
	pos := 8 + len(sps)
	out[pos] = 1
	bele.BePutUint16(out[pos+1:], uint16(len(pps)))
	copy(out[pos+3:], pps)
	return out, nil
}

// ParseCodecString avc1.PPCCLL，直接使用sps原始的三个字节
//
// @param sps: 包含nalu header
func ParseCodecString(sps []byte) string {
	if len(sps) < 4 {
		return "avc1"
	}
	return fmt.Sprintf("avc1.%02x%02x%02x", sps[1], sps[2], sps[3])
}

func readParameterSets(b []byte, pos int, count int) (out [][]byte, next int, err error) {
	for i := 0; i < count; i++ {
		if pos+2 > len(b) {
			return nil, pos, ErrDcrInvalidSpsOrPps
		}
		l := int(bele.BeUint16(b[pos:]))
		pos += 2
		if l == 0 {
			continue
		}
		if pos+l > len(b) {
			return nil, pos, ErrDcrInvalidSpsOrPps
		}
		out = append(out, b[pos:pos+l])
		pos += l
	}
	return out, pos, nil
}
