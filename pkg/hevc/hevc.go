// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package hevc

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/q191201771/lalfmp4/pkg/base"
	"github.com/q191201771/lalfmp4/pkg/golomb"
	"github.com/q191201771/lalfmp4/pkg/h2645"
	"github.com/q191201771/naza/pkg/bele"
)

var Log = base.Log

var ErrHevc = base.ErrHevc

var (
	ErrDcrLackOfData     = errors.New("lalfmp4.hevc: HEVCDecoderConfigurationRecord lack of data")
	ErrDcrStrangeLenSize = errors.New("lalfmp4.hevc: strange NaluLengthSizeMinusOne")
	ErrDcrNoSps          = errors.New("lalfmp4.hevc: invalid HEVCDecoderConfigurationRecord, no sps")
	ErrDcrInvalidArray   = errors.New("lalfmp4.hevc: invalid nalu array in HEVCDecoderConfigurationRecord")
)

const dcrHeaderLength = 23

// DecoderConfigurationRecord
//
// ISO_IEC_14496-15
// 8.3.3.1 HEVC decoder configuration record
type DecoderConfigurationRecord struct {
	ConfigurationVersion uint8
	LengthSize           int

	VpsList [][]byte
	SpsList [][]byte
	PpsList [][]byte
}

// ParseDecoderConfigurationRecord
//
// @param b: hvcC box的内容
//
//	函数调用结束后，返回值中的VpsList、SpsList、PpsList引用该内存块
func ParseDecoderConfigurationRecord(b []byte) (dcr DecoderConfigurationRecord, err error) {
	if len(b) < dcrHeaderLength {
		return dcr, ErrDcrLackOfData
	}
	dcr.ConfigurationVersion = b[0]
	dcr.LengthSize = int(b[21]&3) + 1
	if dcr.LengthSize != 3 && dcr.LengthSize != 4 {
		return dcr, fmt.Errorf("%w. size=%d", ErrDcrStrangeLenSize, dcr.LengthSize-1)
	}

	numOfArrays := int(b[22])
	pos := dcrHeaderLength
	for i := 0; i < numOfArrays; i++ {
		if pos+3 > len(b) {
			return dcr, ErrDcrInvalidArray
		}
		naluType := b[pos] & 0x3F
		numNalus := int(bele.BeUint16(b[pos+1:]))
		pos += 3
		for j := 0; j < numNalus; j++ {
			if pos+2 > len(b) {
				return dcr, ErrDcrInvalidArray
			}
			l := int(bele.BeUint16(b[pos:]))
			pos += 2
			if pos+l > len(b) {
				return dcr, ErrDcrInvalidArray
			}
			nalu := b[pos : pos+l]
			pos += l
			if l == 0 {
				continue
			}
			switch naluType {
			case h2645.H265NaluTypeVps:
				dcr.VpsList = append(dcr.VpsList, nalu)
			case h2645.H265NaluTypeSps:
				dcr.SpsList = append(dcr.SpsList, nalu)
			case h2645.H265NaluTypePps:
				dcr.PpsList = append(dcr.PpsList, nalu)
			default:
				Log.Debugf("HEVCDecoderConfigurationRecord: skip nalu array. type=%d", naluType)
			}
		}
	}

	if len(dcr.SpsList) == 0 {
		return dcr, ErrDcrNoSps
	}
	if len(dcr.SpsList) > 1 {
		Log.Warnf("HEVCDecoderConfigurationRecord: spsCount=%d", len(dcr.SpsList))
	}
	return dcr, nil
}

// BuildDecoderConfigurationRecord 使用vps、sps、pps生成hvcC，lengthSize固定为4
//
// @return 内存块为独立新申请；函数调用结束后，内部不持有该内存块
func BuildDecoderConfigurationRecord(vps, sps, pps []byte) ([]byte, error) {
	var s Sps
	if err := parseSpsBasic(golomb.NewReader(h2645.EbspToRbsp(sps)), &s); err != nil {
		return nil, err
	}
	ptl := s.Ptl

	out := make([]byte, dcrHeaderLength, dcrHeaderLength+3*5+len(vps)+len(sps)+len(pps))
	out[0] = 1
	out[1] = ptl.GeneralProfileSpace<<6 | ptl.GeneralTierFlag<<5 | ptl.GeneralProfileIdc
	bele.BePutUint32(out[2:], ptl.GeneralProfileCompatibilityFlags)
	copy(out[6:12], ptl.GeneralConstraintIndicatorFlags[:])
	out[12] = ptl.GeneralLevelIdc
	// min_spatial_segmentation_idc
	out[13] = 0xF0
	out[14] = 0x00
	// parallelismType
	out[15] = 0xFC
	out[16] = 0xFC | uint8(s.ChromaFormatIdc&3)
	out[17] = 0xF8
	out[18] = 0xF8
	// avgFrameRate
	out[19] = 0
	out[20] = 0
	// constantFrameRate(2) numTemporalLayers(3) temporalIdNested(1) lengthSizeMinusOne(2)
	out[21] = uint8(s.MaxSubLayersMinus1+1)<<3 | s.TemporalIdNestingFlag<<2 | 3
	out[22] = 3

	for _, item := range []struct {
		typ  uint8
		nalu []byte
	}{
		{h2645.H265NaluTypeVps, vps},
		{h2645.H265NaluTypeSps, sps},
		{h2645.H265NaluTypePps, pps},
	} {
		out = append(out, 0x80|item.typ, 0, 1, uint8(len(item.nalu)>>8), uint8(len(item.nalu)))
		out = append(out, item.nalu...)
	}
	return out, nil
}

// ParseCodecString
//
// e.g. hvc1.1.6.L93.B0
func ParseCodecString(ptl ProfileTierLevel) string {
	var sb strings.Builder
	sb.WriteString("hvc1.")
	switch ptl.GeneralProfileSpace {
	case 1:
		sb.WriteString("A")
	case 2:
		sb.WriteString("B")
	case 3:
		sb.WriteString("C")
	}
	sb.WriteString(strconv.Itoa(int(ptl.GeneralProfileIdc)))

	// 32位兼容标志位逆序
	var reversed uint32
	for i := 0; i < 32; i++ {
		if ptl.GeneralProfileCompatibilityFlags&(1<<uint(31-i)) != 0 {
			reversed |= 1 << uint(i)
		}
	}
	sb.WriteString(".")
	sb.WriteString(strings.ToUpper(strconv.FormatUint(uint64(reversed), 16)))

	sb.WriteString(".")
	if ptl.GeneralTierFlag == 1 {
		sb.WriteString("H")
	} else {
		sb.WriteString("L")
	}
	sb.WriteString(strconv.Itoa(int(ptl.GeneralLevelIdc)))

	// 末尾为0的字节省略
	constraint := ptl.GeneralConstraintIndicatorFlags[:]
	n := len(constraint)
	for n > 0 && constraint[n-1] == 0 {
		n--
	}
	for i := 0; i < n; i++ {
		sb.WriteString(".")
		sb.WriteString(strings.ToUpper(strconv.FormatUint(uint64(constraint[i]), 16)))
	}
	return sb.String()
}

func ProfileString(profileIdc uint8) string {
	switch profileIdc {
	case 1:
		return "Main"
	case 2:
		return "Main10"
	case 3:
		return "MainStillPicture"
	case 4:
		return "RExt"
	case 9:
		return "SCC"
	}
	return "Unknown"
}

// LevelString general_level_idc为 30*level
func LevelString(levelIdc uint8) string {
	major := levelIdc / 30
	minor := (levelIdc % 30) / 3
	return fmt.Sprintf("%d.%d", major, minor)
}
