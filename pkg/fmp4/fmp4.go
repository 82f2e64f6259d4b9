// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package fmp4

import (
	"github.com/q191201771/lalfmp4/pkg/base"
	"github.com/q191201771/naza/pkg/bele"
)

// 生成fmp4的初始化段（ftyp+moov）以及媒体段（moof+mdat）
//
// 所有box都是一次性拼装到内存中，调用方拿到的是完整的、可直接append到MSE或写文件的字节

var Log = base.Log

const (
	boxHeaderSize     = 8
	fullBoxHeaderSize = 12
)

// SampleFlags 对应trun中的sample_flags，以及sdtp中每个sample的一个字节
type SampleFlags struct {
	IsLeading     uint8
	DependsOn     uint8 // 1: 依赖其他帧 2: 不依赖其他帧（关键帧）
	IsDependedOn  uint8
	HasRedundancy uint8
	IsNonSync     uint8
}

var (
	SampleFlagsKeyframe = SampleFlags{
		DependsOn:    2,
		IsDependedOn: 1,
	}
	SampleFlagsNonKeyframe = SampleFlags{
		DependsOn: 1,
		IsNonSync: 1,
	}
	SampleFlagsAudio = SampleFlags{
		DependsOn: 1,
	}
)

// Sample 写入moof中trun的一项
type Sample struct {
	Dts      int64
	Pts      int64
	Cts      int64
	Duration int64
	Size     int
	Flags    SampleFlags

	OriginalDts int64
}

// TrackFragment 生成一个moof所需的全部信息
type TrackFragment struct {
	Id                  int
	SequenceNumber      int
	BaseMediaDecodeTime int64
	Samples             []Sample
}

// ---------------------------------------------------------------------------------------------------------------------

// box 拼装一个普通box
//
// @param typ: 4字节的box类型
func box(typ string, payloads ...[]byte) []byte {
	size := boxHeaderSize
	for _, p := range payloads {
		size += len(p)
	}
	out := make([]byte, size)
	bele.BePutUint32(out, uint32(size))
	copy(out[4:], typ)
	pos := boxHeaderSize
	for _, p := range payloads {
		copy(out[pos:], p)
		pos += len(p)
	}
	return out
}

// fullBox 在普通box的基础上，payload前面加上1字节version和3字节flags
func fullBox(typ string, version uint8, flags uint32, payloads ...[]byte) []byte {
	vf := make([]byte, 4)
	bele.BePutUint32(vf, flags&0xFFFFFF)
	vf[0] = version
	return box(typ, append([][]byte{vf}, payloads...)...)
}

func u8(v uint8) []byte {
	return []byte{v}
}

func u16(v uint16) []byte {
	b := make([]byte, 2)
	bele.BePutUint16(b, v)
	return b
}

func u32(v uint32) []byte {
	b := make([]byte, 4)
	bele.BePutUint32(b, v)
	return b
}

func u64(v uint64) []byte {
	b := make([]byte, 8)
	bele.BePutUint64(b, v)
	return b
}

func zeros(n int) []byte {
	return make([]byte, n)
}

func concat(bs ...[]byte) []byte {
	var n int
	for _, b := range bs {
		n += len(b)
	}
	out := make([]byte, 0, n)
	for _, b := range bs {
		out = append(out, b...)
	}
	return out
}
