// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package avc

import (
	"encoding/hex"
	"fmt"

	"github.com/q191201771/lalfmp4/pkg/base"
	"github.com/q191201771/lalfmp4/pkg/golomb"
	"github.com/q191201771/lalfmp4/pkg/h2645"
	"github.com/q191201771/naza/pkg/nazabytes"
	"github.com/q191201771/naza/pkg/nazaerrors"
)

// Sps
//
// ISO-14496-10.pdf
// 7.3.2.1.1 Sequence parameter set data syntax
type Sps struct {
	ProfileIdc      uint8
	ConstraintFlags uint8
	LevelIdc        uint8
	SpsId           uint32

	ChromaFormatIdc           uint32
	SeparateColourPlaneFlag   bool
	BitDepthLuma              uint32
	BitDepthChroma            uint32
	SeqScalingMatrixPresent   bool
	Log2MaxFrameNumMinus4     uint32
	PicOrderCntType           uint32
	Log2MaxPicOrderCntLsb     uint32
	NumRefFrames              uint32
	GapsInFrameNumAllowedFlag bool
	PicWidthInMbsMinusOne     uint32
	PicHeightInMapUnitsMinus1 uint32
	FrameMbsOnlyFlag          uint32
	Direct8x8InferenceFlag    bool
	FrameCroppingFlag         bool
	FrameCropLeftOffset       uint32
	FrameCropRightOffset      uint32
	FrameCropTopOffset        uint32
	FrameCropBottomOffset     uint32
	VuiParametersPresentFlag  bool

	// vui
	SarWidth                 uint32
	SarHeight                uint32
	VideoFullRangeFlag       bool
	ColourDescriptionPresent bool
	ColourPrimaries          uint8
	TransferCharacteristics  uint8
	MatrixCoefficients       uint8
	TimingInfoPresentFlag    bool
	NumUnitsInTick           uint32
	TimeScale                uint32
	FixedFrameRateFlag       bool
}

var (
	sarWidthTable  = []uint32{1, 12, 10, 16, 40, 24, 20, 32, 80, 18, 15, 64, 160, 4, 3, 2}
	sarHeightTable = []uint32{1, 11, 11, 11, 33, 11, 11, 11, 33, 11, 11, 33, 99, 3, 2, 1}
)

// ParseSps 解析sps，生成CodecParameters
//
// @param nalu: 包含nalu header，包含防竞争字节
func ParseSps(nalu []byte) (cp base.CodecParameters, err error) {
	cp, _, err = parseSps(nalu)
	return
}

func parseSps(nalu []byte) (cp base.CodecParameters, sps Sps, err error) {
	if len(nalu) < 4 {
		return cp, sps, ErrAvc
	}
	rbsp := h2645.EbspToRbsp(nalu)
	r := golomb.NewReader(rbsp)

	if err = parseSpsBasic(r, &sps); err != nil {
		Log.Errorf("parseSpsBasic failed. err=%+v, payload=%s", err, hex.Dump(nazabytes.Prefix(nalu, 128)))
		return cp, sps, err
	}

	if sps.VuiParametersPresentFlag {
		if err := parseSpsVui(r, &sps); err != nil {
			// 注意，这里不将错误返回给上层，vui中的字段都有默认值可以使用
			Log.Warnf("parseSpsVui failed. err=%+v, payload=%s", err, hex.Dump(nazabytes.Prefix(nalu, 128)))
		}
	}

	cp.Codec = ParseCodecString(nalu)
	cp.ProfileIdc = int(sps.ProfileIdc)
	cp.Profile = ProfileString(sps.ProfileIdc)
	cp.LevelIdc = int(sps.LevelIdc)
	cp.Level = LevelString(sps.LevelIdc)
	cp.BitDepth = int(sps.BitDepthLuma)
	cp.BitDepthChroma = int(sps.BitDepthChroma)
	cp.ChromaFormat = base.NewChromaFormat(sps.ChromaFormatIdc)
	cp.RefFrames = int(sps.NumRefFrames)

	cp.FrameRate = base.FrameRate{
		Fixed: true,
		Num:   0,
		Den:   1,
	}
	if sps.TimingInfoPresentFlag {
		cp.FrameRate = base.FrameRate{
			Fixed: sps.FixedFrameRateFlag,
			Num:   sps.TimeScale,
			Den:   sps.NumUnitsInTick * 2,
		}
	}

	cp.SarRatio = base.Ratio{Width: int(sps.SarWidth), Height: int(sps.SarHeight)}

	// crop的单位与色度采样以及场编码有关
	var cropUnitX, cropUnitY uint32
	chromaArrayType := sps.ChromaFormatIdc
	if sps.SeparateColourPlaneFlag {
		chromaArrayType = 0
	}
	if chromaArrayType == 0 {
		cropUnitX = 1
		cropUnitY = 2 - sps.FrameMbsOnlyFlag
	} else {
		subWc := uint32(1)
		if sps.ChromaFormatIdc == 1 || sps.ChromaFormatIdc == 2 {
			subWc = 2
		}
		subHc := uint32(1)
		if sps.ChromaFormatIdc == 1 {
			subHc = 2
		}
		cropUnitX = subWc
		cropUnitY = subHc * (2 - sps.FrameMbsOnlyFlag)
	}

	width := (sps.PicWidthInMbsMinusOne + 1) * 16
	height := (2 - sps.FrameMbsOnlyFlag) * ((sps.PicHeightInMapUnitsMinus1 + 1) * 16)
	width -= (sps.FrameCropLeftOffset + sps.FrameCropRightOffset) * cropUnitX
	height -= (sps.FrameCropTopOffset + sps.FrameCropBottomOffset) * cropUnitY
	cp.CodecSize = base.Size{Width: int(width), Height: int(height)}
	cp.CalcPresentSize()

	cp.ColourDescriptionPresent = sps.ColourDescriptionPresent
	cp.ColourPrimaries = int(sps.ColourPrimaries)
	cp.TransferCharacteristics = int(sps.TransferCharacteristics)
	cp.MatrixCoefficients = int(sps.MatrixCoefficients)
	cp.FullRange = sps.VideoFullRangeFlag
	return cp, sps, nil
}

func ProfileString(profileIdc uint8) string {
	switch profileIdc {
	case 66:
		return "Baseline"
	case 77:
		return "Main"
	case 88:
		return "Extended"
	case 100:
		return "High"
	case 110:
		return "High10"
	case 122:
		return "High422"
	case 244:
		return "High444"
	}
	return "Unknown"
}

func LevelString(levelIdc uint8) string {
	return fmt.Sprintf("%d.%d", levelIdc/10, levelIdc%10)
}

func isHighProfile(profileIdc uint8) bool {
	switch profileIdc {
	case 100, 110, 122, 244, 44, 83, 86, 118, 128, 138, 139, 134, 135, 144:
		return true
	}
	return false
}

func parseSpsBasic(r *golomb.Reader, sps *Sps) (err error) {
	// nalu header
	if err = r.SkipBits(8); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.ProfileIdc, err = r.ReadByte(); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.ConstraintFlags, err = r.ReadByte(); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.LevelIdc, err = r.ReadByte(); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.SpsId, err = r.ReadUeg(); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.SpsId >= 32 {
		return nazaerrors.Wrap(ErrAvc)
	}

	sps.ChromaFormatIdc = 1
	sps.BitDepthLuma = 8
	sps.BitDepthChroma = 8
	if isHighProfile(sps.ProfileIdc) {
		if sps.ChromaFormatIdc, err = r.ReadUeg(); err != nil {
			return nazaerrors.Wrap(err)
		}
		if sps.ChromaFormatIdc == 3 {
			if sps.SeparateColourPlaneFlag, err = r.ReadBool(); err != nil {
				return nazaerrors.Wrap(err)
			}
		}
		v, err := r.ReadUeg()
		if err != nil {
			return nazaerrors.Wrap(err)
		}
		sps.BitDepthLuma = v + 8
		if v, err = r.ReadUeg(); err != nil {
			return nazaerrors.Wrap(err)
		}
		sps.BitDepthChroma = v + 8
		// qpprime_y_zero_transform_bypass_flag
		if err = r.SkipBits(1); err != nil {
			return nazaerrors.Wrap(err)
		}
		if sps.SeqScalingMatrixPresent, err = r.ReadBool(); err != nil {
			return nazaerrors.Wrap(err)
		}
		if sps.SeqScalingMatrixPresent {
			n := 8
			if sps.ChromaFormatIdc == 3 {
				n = 12
			}
			for i := 0; i < n; i++ {
				present, err := r.ReadBool()
				if err != nil {
					return nazaerrors.Wrap(err)
				}
				if !present {
					continue
				}
				count := 16
				if i >= 6 {
					count = 64
				}
				if err = skipScalingList(r, count); err != nil {
					return nazaerrors.Wrap(err)
				}
			}
		}
	}

	if sps.Log2MaxFrameNumMinus4, err = r.ReadUeg(); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.PicOrderCntType, err = r.ReadUeg(); err != nil {
		return nazaerrors.Wrap(err)
	}
	switch sps.PicOrderCntType {
	case 0:
		if sps.Log2MaxPicOrderCntLsb, err = r.ReadUeg(); err != nil {
			return nazaerrors.Wrap(err)
		}
		sps.Log2MaxPicOrderCntLsb += 4
	case 1:
		// delta_pic_order_always_zero_flag
		if err = r.SkipBits(1); err != nil {
			return nazaerrors.Wrap(err)
		}
		// offset_for_non_ref_pic, offset_for_top_to_bottom_field
		if err = r.SkipSeg(); err != nil {
			return nazaerrors.Wrap(err)
		}
		if err = r.SkipSeg(); err != nil {
			return nazaerrors.Wrap(err)
		}
		num, err := r.ReadUeg()
		if err != nil {
			return nazaerrors.Wrap(err)
		}
		for i := uint32(0); i < num; i++ {
			if err = r.SkipSeg(); err != nil {
				return nazaerrors.Wrap(err)
			}
		}
	}

	if sps.NumRefFrames, err = r.ReadUeg(); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.GapsInFrameNumAllowedFlag, err = r.ReadBool(); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.PicWidthInMbsMinusOne, err = r.ReadUeg(); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.PicHeightInMapUnitsMinus1, err = r.ReadUeg(); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.FrameMbsOnlyFlag, err = r.ReadBits(1); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.FrameMbsOnlyFlag == 0 {
		// mb_adaptive_frame_field_flag
		if err = r.SkipBits(1); err != nil {
			return nazaerrors.Wrap(err)
		}
	}
	if sps.Direct8x8InferenceFlag, err = r.ReadBool(); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.FrameCroppingFlag, err = r.ReadBool(); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.FrameCroppingFlag {
		if sps.FrameCropLeftOffset, err = r.ReadUeg(); err != nil {
			return nazaerrors.Wrap(err)
		}
		if sps.FrameCropRightOffset, err = r.ReadUeg(); err != nil {
			return nazaerrors.Wrap(err)
		}
		if sps.FrameCropTopOffset, err = r.ReadUeg(); err != nil {
			return nazaerrors.Wrap(err)
		}
		if sps.FrameCropBottomOffset, err = r.ReadUeg(); err != nil {
			return nazaerrors.Wrap(err)
		}
	}

	sps.SarWidth = 1
	sps.SarHeight = 1
	if sps.VuiParametersPresentFlag, err = r.ReadBool(); err != nil {
		return nazaerrors.Wrap(err)
	}
	return nil
}

// ISO-14496-10.pdf
// E.1.1 VUI parameters syntax
func parseSpsVui(r *golomb.Reader, sps *Sps) (err error) {
	var flag bool
	if flag, err = r.ReadBool(); err != nil {
		return nazaerrors.Wrap(err)
	}
	if flag {
		aspectRatioIdc, err := r.ReadByte()
		if err != nil {
			return nazaerrors.Wrap(err)
		}
		if aspectRatioIdc == 255 {
			if sps.SarWidth, err = r.ReadBits(16); err != nil {
				return nazaerrors.Wrap(err)
			}
			if sps.SarHeight, err = r.ReadBits(16); err != nil {
				return nazaerrors.Wrap(err)
			}
		} else if aspectRatioIdc > 0 && aspectRatioIdc < 17 {
			sps.SarWidth = sarWidthTable[aspectRatioIdc-1]
			sps.SarHeight = sarHeightTable[aspectRatioIdc-1]
		}
	}

	// overscan_info_present_flag
	if flag, err = r.ReadBool(); err != nil {
		return nazaerrors.Wrap(err)
	}
	if flag {
		if err = r.SkipBits(1); err != nil {
			return nazaerrors.Wrap(err)
		}
	}

	// video_signal_type_present_flag
	if flag, err = r.ReadBool(); err != nil {
		return nazaerrors.Wrap(err)
	}
	if flag {
		// video_format
		if err = r.SkipBits(3); err != nil {
			return nazaerrors.Wrap(err)
		}
		if sps.VideoFullRangeFlag, err = r.ReadBool(); err != nil {
			return nazaerrors.Wrap(err)
		}
		if sps.ColourDescriptionPresent, err = r.ReadBool(); err != nil {
			return nazaerrors.Wrap(err)
		}
		if sps.ColourDescriptionPresent {
			if sps.ColourPrimaries, err = r.ReadByte(); err != nil {
				return nazaerrors.Wrap(err)
			}
			if sps.TransferCharacteristics, err = r.ReadByte(); err != nil {
				return nazaerrors.Wrap(err)
			}
			if sps.MatrixCoefficients, err = r.ReadByte(); err != nil {
				return nazaerrors.Wrap(err)
			}
		}
	}

	// chroma_loc_info_present_flag
	if flag, err = r.ReadBool(); err != nil {
		return nazaerrors.Wrap(err)
	}
	if flag {
		if err = r.SkipUeg(); err != nil {
			return nazaerrors.Wrap(err)
		}
		if err = r.SkipUeg(); err != nil {
			return nazaerrors.Wrap(err)
		}
	}

	if sps.TimingInfoPresentFlag, err = r.ReadBool(); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.TimingInfoPresentFlag {
		if sps.NumUnitsInTick, err = r.ReadBits(32); err != nil {
			return nazaerrors.Wrap(err)
		}
		if sps.TimeScale, err = r.ReadBits(32); err != nil {
			return nazaerrors.Wrap(err)
		}
		if sps.FixedFrameRateFlag, err = r.ReadBool(); err != nil {
			return nazaerrors.Wrap(err)
		}
	}
	return nil
}

func skipScalingList(r *golomb.Reader, count int) error {
	lastScale := int32(8)
	nextScale := int32(8)
	for j := 0; j < count; j++ {
		if nextScale != 0 {
			delta, err := r.ReadSeg()
			if err != nil {
				return err
			}
			nextScale = (lastScale + delta + 256) % 256
		}
		if nextScale != 0 {
			lastScale = nextScale
		}
	}
	return nil
}
