// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package h2645

import (
	"github.com/q191201771/naza/pkg/bele"
)

// 无特殊说明的函数则同时支持h264和h265两种格式

const (
	H264NaluTypeSlice    uint8 = 1
	H264NaluTypeIdrSlice uint8 = 5
	H264NaluTypeSei      uint8 = 6
	H264NaluTypeSps      uint8 = 7
	H264NaluTypePps      uint8 = 8
	H264NaluTypeAud      uint8 = 9  // Access Unit Delimiter
	H264NaluTypeEos      uint8 = 10 // End of Sequence
	H264NaluTypeFd       uint8 = 12 // Filler Data
)

// ISO_IEC_23008-2_2013.pdf
// Table 7-1 – NAL unit type codes and NAL unit type classes
const (
	H265NaluTypeSliceTrailN uint8 = 0 // 0x0
	H265NaluTypeSliceTrailR uint8 = 1 // 0x01

	H265NaluTypeSliceBlaWlp       uint8 = 16 // 0x10
	H265NaluTypeSliceBlaWradl     uint8 = 17 // 0x11
	H265NaluTypeSliceBlaNlp       uint8 = 18 // 0x12
	H265NaluTypeSliceIdr          uint8 = 19 // 0x13
	H265NaluTypeSliceIdrNlp       uint8 = 20 // 0x14
	H265NaluTypeSliceCranut       uint8 = 21 // 0x15
	H265NaluTypeSliceRsvIrapVcl22 uint8 = 22 // 0x16
	H265NaluTypeSliceRsvIrapVcl23 uint8 = 23 // 0x17

	H265NaluTypeVps       uint8 = 32 // 0x20
	H265NaluTypeSps       uint8 = 33 // 0x21
	H265NaluTypePps       uint8 = 34 // 0x22
	H265NaluTypeAud       uint8 = 35 // 0x23
	H265NaluTypeSei       uint8 = 39 // 0x27
	H265NaluTypeSeiSuffix uint8 = 40 // 0x28
)

func ParseNaluType(isH264 bool, v uint8) uint8 {
	if isH264 {
		return v & 0x1f
	}
	return (v & 0x7E) >> 1
}

// IsKeyNalu h264的idr，h265的irap
func IsKeyNalu(isH264 bool, typ uint8) bool {
	if isH264 {
		return typ == H264NaluTypeIdrSlice
	}
	return typ >= H265NaluTypeSliceBlaWlp && typ <= H265NaluTypeSliceRsvIrapVcl23
}

// EbspToRbsp 去除防竞争字节，即 00 00 03 中的 03
//
// @return 内存块为独立新申请；函数调用结束后，内部不持有该内存块
func EbspToRbsp(src []byte) []byte {
	dst := make([]byte, 0, len(src))
	zeroCount := 0
	for i := 0; i < len(src); i++ {
		if zeroCount >= 2 && src[i] == 0x03 {
			// 末尾的03不是防竞争字节，保留
			if i+1 < len(src) && src[i+1] <= 0x03 {
				zeroCount = 0
				continue
			}
		}
		dst = append(dst, src[i])
		if src[i] == 0x00 {
			zeroCount++
		} else {
			zeroCount = 0
		}
	}
	return dst
}

func JoinNaluAvcc(naluList ...[]byte) []byte {
	n := len(naluList)
	if n == 0 {
		return nil
	}
	n *= 4
	for _, item := range naluList {
		n += len(item)
	}
	ret := make([]byte, n)

	pos := 0
	for _, item := range naluList {
		bele.BePutUint32(ret[pos:], uint32(len(item)))
		pos += 4
		copy(ret[pos:], item)
		pos += len(item)
	}

	return ret
}
