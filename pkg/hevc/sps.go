// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package hevc

import (
	"encoding/hex"

	"github.com/q191201771/lalfmp4/pkg/base"
	"github.com/q191201771/lalfmp4/pkg/golomb"
	"github.com/q191201771/lalfmp4/pkg/h2645"
	"github.com/q191201771/naza/pkg/nazabytes"
	"github.com/q191201771/naza/pkg/nazaerrors"
)

type ProfileTierLevel struct {
	GeneralProfileSpace              uint8
	GeneralTierFlag                  uint8
	GeneralProfileIdc                uint8
	GeneralProfileCompatibilityFlags uint32
	GeneralConstraintIndicatorFlags  [6]uint8
	GeneralLevelIdc                  uint8
}

// ShortTermRefPicSet 只保留解析后续字段所需要的信息
type ShortTermRefPicSet struct {
	NumNegativePics int
	NumPositivePics int
	DeltaPocS0      []int32
	DeltaPocS1      []int32
	UsedByCurrPicS0 []bool
	UsedByCurrPicS1 []bool
}

func (s *ShortTermRefPicSet) NumDeltaPocs() int {
	return s.NumNegativePics + s.NumPositivePics
}

// Sps
//
// ISO_IEC_23008-2
// 7.3.2.2 Sequence parameter set RBSP syntax
type Sps struct {
	VpsId                 uint8
	MaxSubLayersMinus1    uint8
	TemporalIdNestingFlag uint8
	Ptl                   ProfileTierLevel

	SpsId                   uint32
	ChromaFormatIdc         uint32
	SeparateColourPlaneFlag bool
	PicWidthInLumaSamples   uint32
	PicHeightInLumaSamples  uint32

	ConformanceWindowFlag bool
	ConfWinLeftOffset     uint32
	ConfWinRightOffset    uint32
	ConfWinTopOffset      uint32
	ConfWinBottomOffset   uint32

	// 以下为beta部分
	BitDepthLuma           uint32
	BitDepthChroma         uint32
	Log2MaxPicOrderCntLsb  uint32
	MaxDecPicBufferingMax  uint32
	ScalingListEnabledFlag bool
	PcmEnabledFlag         bool
	StRefPicSets           []ShortTermRefPicSet
	LongTermRefPicsPresent bool
	NumLongTermRefPicsSps  uint32
	VuiParametersPresent   bool

	// vui
	SarWidth                 uint32
	SarHeight                uint32
	VideoFullRangeFlag       bool
	ColourDescriptionPresent bool
	ColourPrimaries          uint8
	TransferCharacteristics  uint8
	MatrixCoefficients       uint8
	DefaultDisplayWindowFlag bool
	DefDispWinLeftOffset     uint32
	DefDispWinRightOffset    uint32
	DefDispWinTopOffset      uint32
	DefDispWinBottomOffset   uint32
	TimingInfoPresentFlag    bool
	NumUnitsInTick           uint32
	TimeScale                uint32
}

var (
	sarWidthTable  = []uint32{1, 12, 10, 16, 40, 24, 20, 32, 80, 18, 15, 64, 160, 4, 3, 2}
	sarHeightTable = []uint32{1, 11, 11, 11, 33, 11, 11, 11, 33, 11, 11, 33, 99, 3, 2, 1}
)

// ParseSps 解析sps，生成CodecParameters
//
// conformance window之前的字段解析失败返回错误，之后的字段（位深、vui等）解析失败只打日志，使用默认值
//
// @param nalu: 包含2字节nalu header，包含防竞争字节
func ParseSps(nalu []byte) (cp base.CodecParameters, err error) {
	if len(nalu) < 3 {
		return cp, ErrHevc
	}
	r := golomb.NewReader(h2645.EbspToRbsp(nalu))

	var sps Sps
	if err = parseSpsBasic(r, &sps); err != nil {
		Log.Errorf("parseSpsBasic failed. err=%+v, payload=%s", err, hex.Dump(nazabytes.Prefix(nalu, 128)))
		return cp, err
	}
	if err := parseSpsBeta(r, &sps); err != nil {
		// 注意，这里不将错误返回给上层，因为可能是Beta自身解析的问题
		Log.Warnf("parseSpsBeta failed. err=%+v, payload=%s", err, hex.Dump(nazabytes.Prefix(nalu, 128)))
	}

	cp.Codec = ParseCodecString(sps.Ptl)
	cp.ProfileIdc = int(sps.Ptl.GeneralProfileIdc)
	cp.Profile = ProfileString(sps.Ptl.GeneralProfileIdc)
	cp.LevelIdc = int(sps.Ptl.GeneralLevelIdc)
	cp.Level = LevelString(sps.Ptl.GeneralLevelIdc)
	cp.Tier = int(sps.Ptl.GeneralTierFlag)
	cp.BitDepth = int(sps.BitDepthLuma)
	cp.BitDepthChroma = int(sps.BitDepthChroma)
	cp.ChromaFormat = base.NewChromaFormat(sps.ChromaFormatIdc)
	cp.RefFrames = int(sps.MaxDecPicBufferingMax)
	if cp.RefFrames == 0 {
		cp.RefFrames = 1
	}

	cp.FrameRate = base.FrameRate{
		Fixed: true,
		Num:   0,
		Den:   1,
	}
	if sps.TimingInfoPresentFlag {
		cp.FrameRate = base.FrameRate{
			Fixed: true,
			Num:   sps.TimeScale,
			Den:   sps.NumUnitsInTick,
		}
	}
	cp.SarRatio = base.Ratio{Width: int(sps.SarWidth), Height: int(sps.SarHeight)}

	subWidthC, subHeightC := uint32(1), uint32(1)
	if !sps.SeparateColourPlaneFlag {
		switch sps.ChromaFormatIdc {
		case 1:
			subWidthC, subHeightC = 2, 2
		case 2:
			subWidthC = 2
		}
	}
	width := sps.PicWidthInLumaSamples - subWidthC*(sps.ConfWinLeftOffset+sps.ConfWinRightOffset)
	height := sps.PicHeightInLumaSamples - subHeightC*(sps.ConfWinTopOffset+sps.ConfWinBottomOffset)
	if sps.DefaultDisplayWindowFlag {
		width -= subWidthC * (sps.DefDispWinLeftOffset + sps.DefDispWinRightOffset)
		height -= subHeightC * (sps.DefDispWinTopOffset + sps.DefDispWinBottomOffset)
	}
	cp.CodecSize = base.Size{Width: int(width), Height: int(height)}
	cp.CalcPresentSize()

	cp.ColourDescriptionPresent = sps.ColourDescriptionPresent
	cp.ColourPrimaries = int(sps.ColourPrimaries)
	cp.TransferCharacteristics = int(sps.TransferCharacteristics)
	cp.MatrixCoefficients = int(sps.MatrixCoefficients)
	cp.FullRange = sps.VideoFullRangeFlag
	return cp, nil
}

func parseSpsBasic(r *golomb.Reader, sps *Sps) error {
	// nalu header
	if err := r.SkipBits(16); err != nil {
		return nazaerrors.Wrap(err)
	}
	v, err := r.ReadBits(4)
	if err != nil {
		return nazaerrors.Wrap(err)
	}
	sps.VpsId = uint8(v)
	if v, err = r.ReadBits(3); err != nil {
		return nazaerrors.Wrap(err)
	}
	sps.MaxSubLayersMinus1 = uint8(v)
	if v, err = r.ReadBits(1); err != nil {
		return nazaerrors.Wrap(err)
	}
	sps.TemporalIdNestingFlag = uint8(v)

	if err = parseProfileTierLevel(r, &sps.Ptl, sps.MaxSubLayersMinus1); err != nil {
		return err
	}

	if sps.SpsId, err = r.ReadUeg(); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.SpsId > 15 {
		return nazaerrors.Wrap(ErrHevc)
	}
	if sps.ChromaFormatIdc, err = r.ReadUeg(); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.ChromaFormatIdc == 3 {
		if sps.SeparateColourPlaneFlag, err = r.ReadBool(); err != nil {
			return nazaerrors.Wrap(err)
		}
	}
	if sps.PicWidthInLumaSamples, err = r.ReadUeg(); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.PicHeightInLumaSamples, err = r.ReadUeg(); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.ConformanceWindowFlag, err = r.ReadBool(); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.ConformanceWindowFlag {
		for _, p := range []*uint32{&sps.ConfWinLeftOffset, &sps.ConfWinRightOffset, &sps.ConfWinTopOffset, &sps.ConfWinBottomOffset} {
			if *p, err = r.ReadUeg(); err != nil {
				return nazaerrors.Wrap(err)
			}
		}
	}

	// beta解析失败时使用的默认值
	sps.BitDepthLuma = 8
	sps.BitDepthChroma = 8
	sps.SarWidth = 1
	sps.SarHeight = 1
	return nil
}

// 7.3.3 Profile, tier and level syntax
func parseProfileTierLevel(r *golomb.Reader, ptl *ProfileTierLevel, maxSubLayersMinus1 uint8) error {
	v, err := r.ReadBits(2)
	if err != nil {
		return nazaerrors.Wrap(err)
	}
	ptl.GeneralProfileSpace = uint8(v)
	if v, err = r.ReadBits(1); err != nil {
		return nazaerrors.Wrap(err)
	}
	ptl.GeneralTierFlag = uint8(v)
	if v, err = r.ReadBits(5); err != nil {
		return nazaerrors.Wrap(err)
	}
	ptl.GeneralProfileIdc = uint8(v)
	if ptl.GeneralProfileCompatibilityFlags, err = r.ReadBits(32); err != nil {
		return nazaerrors.Wrap(err)
	}
	// progressive_source_flag, interlaced_source_flag, non_packed_constraint_flag, frame_only_constraint_flag 以及44位保留位
	for i := 0; i < 6; i++ {
		if ptl.GeneralConstraintIndicatorFlags[i], err = r.ReadByte(); err != nil {
			return nazaerrors.Wrap(err)
		}
	}
	if ptl.GeneralLevelIdc, err = r.ReadByte(); err != nil {
		return nazaerrors.Wrap(err)
	}

	subLayerProfilePresent := make([]bool, maxSubLayersMinus1)
	subLayerLevelPresent := make([]bool, maxSubLayersMinus1)
	for i := 0; i < int(maxSubLayersMinus1); i++ {
		if subLayerProfilePresent[i], err = r.ReadBool(); err != nil {
			return nazaerrors.Wrap(err)
		}
		if subLayerLevelPresent[i], err = r.ReadBool(); err != nil {
			return nazaerrors.Wrap(err)
		}
	}
	if maxSubLayersMinus1 > 0 {
		// reserved_zero_2bits
		if err = r.SkipBits(uint(2 * (8 - maxSubLayersMinus1))); err != nil {
			return nazaerrors.Wrap(err)
		}
	}
	for i := 0; i < int(maxSubLayersMinus1); i++ {
		if subLayerProfilePresent[i] {
			if err = r.SkipBits(88); err != nil {
				return nazaerrors.Wrap(err)
			}
		}
		if subLayerLevelPresent[i] {
			if err = r.SkipBits(8); err != nil {
				return nazaerrors.Wrap(err)
			}
		}
	}
	return nil
}

func parseSpsBeta(r *golomb.Reader, sps *Sps) error {
	v, err := r.ReadUeg()
	if err != nil {
		return nazaerrors.Wrap(err)
	}
	sps.BitDepthLuma = v + 8
	if v, err = r.ReadUeg(); err != nil {
		return nazaerrors.Wrap(err)
	}
	sps.BitDepthChroma = v + 8
	if v, err = r.ReadUeg(); err != nil {
		return nazaerrors.Wrap(err)
	}
	sps.Log2MaxPicOrderCntLsb = v + 4

	subLayerOrderingInfoPresent, err := r.ReadBool()
	if err != nil {
		return nazaerrors.Wrap(err)
	}
	start := uint8(0)
	if !subLayerOrderingInfoPresent {
		start = sps.MaxSubLayersMinus1
	}
	for i := start; i <= sps.MaxSubLayersMinus1; i++ {
		// sps_max_dec_pic_buffering_minus1
		if v, err = r.ReadUeg(); err != nil {
			return nazaerrors.Wrap(err)
		}
		if v+1 > sps.MaxDecPicBufferingMax {
			sps.MaxDecPicBufferingMax = v + 1
		}
		// sps_max_num_reorder_pics, sps_max_latency_increase_plus1
		if err = r.SkipUeg(); err != nil {
			return nazaerrors.Wrap(err)
		}
		if err = r.SkipUeg(); err != nil {
			return nazaerrors.Wrap(err)
		}
	}

	// log2_min_luma_coding_block_size_minus3
	// log2_diff_max_min_luma_coding_block_size
	// log2_min_luma_transform_block_size_minus2
	// log2_diff_max_min_luma_transform_block_size
	// max_transform_hierarchy_depth_inter
	// max_transform_hierarchy_depth_intra
	for i := 0; i < 6; i++ {
		if err = r.SkipUeg(); err != nil {
			return nazaerrors.Wrap(err)
		}
	}

	if sps.ScalingListEnabledFlag, err = r.ReadBool(); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.ScalingListEnabledFlag {
		present, err := r.ReadBool()
		if err != nil {
			return nazaerrors.Wrap(err)
		}
		if present {
			if err = skipScalingListData(r); err != nil {
				return err
			}
		}
	}

	// amp_enabled_flag, sample_adaptive_offset_enabled_flag
	if err = r.SkipBits(2); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.PcmEnabledFlag, err = r.ReadBool(); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.PcmEnabledFlag {
		// pcm_sample_bit_depth_luma_minus1, pcm_sample_bit_depth_chroma_minus1
		if err = r.SkipBits(8); err != nil {
			return nazaerrors.Wrap(err)
		}
		if err = r.SkipUeg(); err != nil {
			return nazaerrors.Wrap(err)
		}
		if err = r.SkipUeg(); err != nil {
			return nazaerrors.Wrap(err)
		}
		// pcm_loop_filter_disabled_flag
		if err = r.SkipBits(1); err != nil {
			return nazaerrors.Wrap(err)
		}
	}

	numShortTermRefPicSets, err := r.ReadUeg()
	if err != nil {
		return nazaerrors.Wrap(err)
	}
	if numShortTermRefPicSets > 64 {
		return nazaerrors.Wrap(ErrHevc)
	}
	sps.StRefPicSets = make([]ShortTermRefPicSet, numShortTermRefPicSets)
	for i := 0; i < int(numShortTermRefPicSets); i++ {
		if err = parseShortTermRefPicSet(r, sps.StRefPicSets, i); err != nil {
			return err
		}
	}

	if sps.LongTermRefPicsPresent, err = r.ReadBool(); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.LongTermRefPicsPresent {
		if sps.NumLongTermRefPicsSps, err = r.ReadUeg(); err != nil {
			return nazaerrors.Wrap(err)
		}
		for i := uint32(0); i < sps.NumLongTermRefPicsSps; i++ {
			// lt_ref_pic_poc_lsb_sps, used_by_curr_pic_lt_sps_flag
			if err = r.SkipBits(uint(sps.Log2MaxPicOrderCntLsb) + 1); err != nil {
				return nazaerrors.Wrap(err)
			}
		}
	}

	// sps_temporal_mvp_enabled_flag, strong_intra_smoothing_enabled_flag
	if err = r.SkipBits(2); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.VuiParametersPresent, err = r.ReadBool(); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.VuiParametersPresent {
		return parseVui(r, sps)
	}
	return nil
}

// 7.3.4 Scaling list data syntax
func skipScalingListData(r *golomb.Reader) error {
	for sizeId := 0; sizeId < 4; sizeId++ {
		step := 1
		if sizeId == 3 {
			step = 3
		}
		for matrixId := 0; matrixId < 6; matrixId += step {
			predModeFlag, err := r.ReadBool()
			if err != nil {
				return nazaerrors.Wrap(err)
			}
			if !predModeFlag {
				// scaling_list_pred_matrix_id_delta
				if err = r.SkipUeg(); err != nil {
					return nazaerrors.Wrap(err)
				}
				continue
			}
			coefNum := 1 << uint(4+(sizeId<<1))
			if coefNum > 64 {
				coefNum = 64
			}
			if sizeId > 1 {
				// scaling_list_dc_coef_minus8
				if err = r.SkipSeg(); err != nil {
					return nazaerrors.Wrap(err)
				}
			}
			for i := 0; i < coefNum; i++ {
				if err = r.SkipSeg(); err != nil {
					return nazaerrors.Wrap(err)
				}
			}
		}
	}
	return nil
}

// 7.3.7 Short-term reference picture set syntax
// 7.4.8 (7-61) (7-62)
func parseShortTermRefPicSet(r *golomb.Reader, sets []ShortTermRefPicSet, idx int) error {
	cur := &sets[idx]

	interRefPicSetPredictionFlag := false
	var err error
	if idx != 0 {
		if interRefPicSetPredictionFlag, err = r.ReadBool(); err != nil {
			return nazaerrors.Wrap(err)
		}
	}

	if !interRefPicSetPredictionFlag {
		numNegativePics, err := r.ReadUeg()
		if err != nil {
			return nazaerrors.Wrap(err)
		}
		numPositivePics, err := r.ReadUeg()
		if err != nil {
			return nazaerrors.Wrap(err)
		}
		if numNegativePics > 16 || numPositivePics > 16 {
			return nazaerrors.Wrap(ErrHevc)
		}
		cur.NumNegativePics = int(numNegativePics)
		cur.NumPositivePics = int(numPositivePics)

		var prev int32
		for i := 0; i < cur.NumNegativePics; i++ {
			d, err := r.ReadUeg()
			if err != nil {
				return nazaerrors.Wrap(err)
			}
			used, err := r.ReadBool()
			if err != nil {
				return nazaerrors.Wrap(err)
			}
			prev -= int32(d) + 1
			cur.DeltaPocS0 = append(cur.DeltaPocS0, prev)
			cur.UsedByCurrPicS0 = append(cur.UsedByCurrPicS0, used)
		}
		prev = 0
		for i := 0; i < cur.NumPositivePics; i++ {
			d, err := r.ReadUeg()
			if err != nil {
				return nazaerrors.Wrap(err)
			}
			used, err := r.ReadBool()
			if err != nil {
				return nazaerrors.Wrap(err)
			}
			prev += int32(d) + 1
			cur.DeltaPocS1 = append(cur.DeltaPocS1, prev)
			cur.UsedByCurrPicS1 = append(cur.UsedByCurrPicS1, used)
		}
		return nil
	}

	// sps中的stRpsIdx永远不等于num_short_term_ref_pic_sets，所以没有delta_idx_minus1，参考的总是前一个
	ref := &sets[idx-1]

	deltaRpsSign, err := r.ReadBool()
	if err != nil {
		return nazaerrors.Wrap(err)
	}
	absDeltaRpsMinus1, err := r.ReadUeg()
	if err != nil {
		return nazaerrors.Wrap(err)
	}
	deltaRps := int32(absDeltaRpsMinus1) + 1
	if deltaRpsSign {
		deltaRps = -deltaRps
	}

	n := ref.NumDeltaPocs()
	usedByCurrPicFlag := make([]bool, n+1)
	useDeltaFlag := make([]bool, n+1)
	for j := 0; j <= n; j++ {
		if usedByCurrPicFlag[j], err = r.ReadBool(); err != nil {
			return nazaerrors.Wrap(err)
		}
		useDeltaFlag[j] = true
		if !usedByCurrPicFlag[j] {
			if useDeltaFlag[j], err = r.ReadBool(); err != nil {
				return nazaerrors.Wrap(err)
			}
		}
	}

	// (7-61)
	for j := ref.NumPositivePics - 1; j >= 0; j-- {
		dPoc := ref.DeltaPocS1[j] + deltaRps
		if dPoc < 0 && useDeltaFlag[ref.NumNegativePics+j] {
			cur.DeltaPocS0 = append(cur.DeltaPocS0, dPoc)
			cur.UsedByCurrPicS0 = append(cur.UsedByCurrPicS0, usedByCurrPicFlag[ref.NumNegativePics+j])
		}
	}
	if deltaRps < 0 && useDeltaFlag[n] {
		cur.DeltaPocS0 = append(cur.DeltaPocS0, deltaRps)
		cur.UsedByCurrPicS0 = append(cur.UsedByCurrPicS0, usedByCurrPicFlag[n])
	}
	for j := 0; j < ref.NumNegativePics; j++ {
		dPoc := ref.DeltaPocS0[j] + deltaRps
		if dPoc < 0 && useDeltaFlag[j] {
			cur.DeltaPocS0 = append(cur.DeltaPocS0, dPoc)
			cur.UsedByCurrPicS0 = append(cur.UsedByCurrPicS0, usedByCurrPicFlag[j])
		}
	}
	cur.NumNegativePics = len(cur.DeltaPocS0)

	// (7-62)
	for j := ref.NumNegativePics - 1; j >= 0; j-- {
		dPoc := ref.DeltaPocS0[j] + deltaRps
		if dPoc > 0 && useDeltaFlag[j] {
			cur.DeltaPocS1 = append(cur.DeltaPocS1, dPoc)
			cur.UsedByCurrPicS1 = append(cur.UsedByCurrPicS1, usedByCurrPicFlag[j])
		}
	}
	if deltaRps > 0 && useDeltaFlag[n] {
		cur.DeltaPocS1 = append(cur.DeltaPocS1, deltaRps)
		cur.UsedByCurrPicS1 = append(cur.UsedByCurrPicS1, usedByCurrPicFlag[n])
	}
	for j := 0; j < ref.NumPositivePics; j++ {
		dPoc := ref.DeltaPocS1[j] + deltaRps
		if dPoc > 0 && useDeltaFlag[ref.NumNegativePics+j] {
			cur.DeltaPocS1 = append(cur.DeltaPocS1, dPoc)
			cur.UsedByCurrPicS1 = append(cur.UsedByCurrPicS1, usedByCurrPicFlag[ref.NumNegativePics+j])
		}
	}
	cur.NumPositivePics = len(cur.DeltaPocS1)
	return nil
}

// E.2.1 VUI parameters syntax
//
// 只解析到timing info，之后的hrd、bitstream restriction不关心
func parseVui(r *golomb.Reader, sps *Sps) error {
	flag, err := r.ReadBool()
	if err != nil {
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

	// neutral_chroma_indication_flag, field_seq_flag, frame_field_info_present_flag
	if err = r.SkipBits(3); err != nil {
		return nazaerrors.Wrap(err)
	}

	if sps.DefaultDisplayWindowFlag, err = r.ReadBool(); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sps.DefaultDisplayWindowFlag {
		for _, p := range []*uint32{&sps.DefDispWinLeftOffset, &sps.DefDispWinRightOffset, &sps.DefDispWinTopOffset, &sps.DefDispWinBottomOffset} {
			if *p, err = r.ReadUeg(); err != nil {
				return nazaerrors.Wrap(err)
			}
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
		if sps.NumUnitsInTick == 0 || sps.TimeScale == 0 {
			sps.TimingInfoPresentFlag = false
		}
	}
	return nil
}
