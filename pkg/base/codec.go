// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import (
	"fmt"
	"math"
)

type ChromaFormat int

// 取值与sps中的chroma_format_idc一致
const (
	ChromaFormatInvalid ChromaFormat = -1
	ChromaFormat400     ChromaFormat = 0
	ChromaFormat420     ChromaFormat = 1
	ChromaFormat422     ChromaFormat = 2
	ChromaFormat444     ChromaFormat = 3
)

func NewChromaFormat(idc uint32) ChromaFormat {
	if idc > 3 {
		return ChromaFormatInvalid
	}
	return ChromaFormat(idc)
}

func (c ChromaFormat) IsValid() bool {
	return c >= ChromaFormat400 && c <= ChromaFormat444
}

func (c ChromaFormat) String() string {
	switch c {
	case ChromaFormat400:
		return "4:0:0"
	case ChromaFormat420:
		return "4:2:0"
	case ChromaFormat422:
		return "4:2:2"
	case ChromaFormat444:
		return "4:4:4"
	}
	return "Invalid"
}

// FrameRate
//
// Fixed 为false时表示码流中没有帧率信息，或者帧率信息无效（比如Den为0）
type FrameRate struct {
	Fixed bool
	Num   uint32
	Den   uint32
}

func (f FrameRate) Fps() float64 {
	if f.Num == 0 || f.Den == 0 {
		return 0
	}
	return float64(f.Num) / float64(f.Den)
}

func (f FrameRate) IsValid() bool {
	return f.Fixed && f.Num != 0 && f.Den != 0
}

type Ratio struct {
	Width  int
	Height int
}

type Size struct {
	Width  int
	Height int
}

// CodecParameters 从sps、av1 sequence header中解析出的视频参数
//
// 解析完成后不再修改，新的seq header到来时重新生成
type CodecParameters struct {
	Codec string // e.g. avc1.64001f, hvc1.1.6.L93.B0, av01.0.04M.08

	Profile    string
	ProfileIdc int
	Level      string
	LevelIdc   int
	Tier       int // 仅hevc, av1使用

	BitDepth       int
	BitDepthChroma int
	ChromaFormat   ChromaFormat
	RefFrames      int

	FrameRate FrameRate
	SarRatio  Ratio

	CodecSize   Size // 去除crop后的宽高
	PresentSize Size // 按sar拉伸后的宽高，高不变

	ColourDescriptionPresent bool
	ColourPrimaries          int
	TransferCharacteristics  int
	MatrixCoefficients       int
	FullRange                bool
}

const (
	TransferCharacteristicsPq  = 16 // SMPTE ST 2084
	TransferCharacteristicsHlg = 18 // ARIB STD-B67
)

func (c *CodecParameters) IsHdr() bool {
	return c.TransferCharacteristics == TransferCharacteristicsPq || c.TransferCharacteristics == TransferCharacteristicsHlg
}

// CalcPresentSize 根据sar计算显示宽高
func (c *CodecParameters) CalcPresentSize() {
	sarScale := 1.0
	if c.SarRatio.Width > 0 && c.SarRatio.Height > 0 {
		sarScale = float64(c.SarRatio.Width) / float64(c.SarRatio.Height)
	}
	c.PresentSize = Size{
		Width:  int(math.Ceil(float64(c.CodecSize.Width) * sarScale)),
		Height: c.CodecSize.Height,
	}
}

func (c CodecParameters) String() string {
	return fmt.Sprintf("codec=%s, profile=%s, level=%s, bitdepth=%d, chroma=%s, ref=%d, fps=%.3f(fixed=%t), sar=%d:%d, codec_size=%dx%d, present_size=%dx%d",
		c.Codec, c.Profile, c.Level, c.BitDepth, c.ChromaFormat, c.RefFrames, c.FrameRate.Fps(), c.FrameRate.Fixed,
		c.SarRatio.Width, c.SarRatio.Height, c.CodecSize.Width, c.CodecSize.Height, c.PresentSize.Width, c.PresentSize.Height)
}
