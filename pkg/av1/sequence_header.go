// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package av1

import (
	"encoding/hex"
	"fmt"

	"github.com/q191201771/lalfmp4/pkg/base"
	"github.com/q191201771/lalfmp4/pkg/golomb"
	"github.com/q191201771/naza/pkg/nazabytes"
	"github.com/q191201771/naza/pkg/nazaerrors"
)

const maxOperatingPoints = 32

// av1-spec 6.4.2 Color config semantics
const (
	colorPrimariesBt709         = 1
	colorPrimariesUnspecified   = 2
	transferCharacteristicsSrgb = 13
	matrixCoefficientsIdentity  = 0
)

type TimingInfo struct {
	NumUnitsInDisplayTick    uint32
	TimeScale                uint32
	EqualPictureInterval     bool
	NumTicksPerPictureMinus1 uint32
}

type DecoderModelInfo struct {
	BufferDelayLengthMinus1           uint8
	NumUnitsInDecodingTick            uint32
	BufferRemovalTimeLengthMinus1     uint8
	FramePresentationTimeLengthMinus1 uint8
}

type OperatingPoint struct {
	Idc                        uint16
	SeqLevelIdx                uint8
	SeqTier                    uint8
	DecoderModelPresent        bool
	InitialDisplayDelayPresent bool
}

type ColorConfig struct {
	BitDepth                int
	MonoChrome              bool
	ColorDescriptionPresent bool
	ColorPrimaries          uint8
	TransferCharacteristics uint8
	MatrixCoefficients      uint8
	ColorRange              bool
	SubsamplingX            bool
	SubsamplingY            bool
	ChromaSamplePosition    uint8
	SeparateUvDeltaQ        bool
}

// SequenceHeader
//
// av1-spec 5.5 Sequence header OBU syntax
type SequenceHeader struct {
	SeqProfile                uint8
	StillPicture              bool
	ReducedStillPictureHeader bool

	TimingInfoPresent       bool
	TimingInfo              TimingInfo
	DecoderModelInfoPresent bool
	DecoderModelInfo        DecoderModelInfo
	OperatingPoints         []OperatingPoint

	MaxFrameWidthMinus1  uint32
	MaxFrameHeightMinus1 uint32

	FrameIdNumbersPresent      bool
	Use128x128Superblock       bool
	EnableFilterIntra          bool
	EnableIntraEdgeFilter      bool
	EnableInterintraCompound   bool
	EnableMaskedCompound       bool
	EnableWarpedMotion         bool
	EnableDualFilter           bool
	EnableOrderHint            bool
	EnableJntComp              bool
	EnableRefFrameMvs          bool
	SeqForceScreenContentTools uint8
	SeqForceIntegerMv          uint8
	OrderHintBits              uint8
	EnableSuperres             bool
	EnableCdef                 bool
	EnableRestoration          bool

	ColorConfig ColorConfig

	FilmGrainParamsPresent bool
}

// ParseSequenceHeaderObu
//
// @param obu: 包含obu header（以及可选的size字段）
func ParseSequenceHeaderObu(obu []byte) (cp base.CodecParameters, err error) {
	h, headerSize, err := ParseObuHeader(obu)
	if err != nil {
		return cp, err
	}
	if h.Type != ObuTypeSequenceHeader {
		return cp, ErrNoSequenceHeader
	}
	payload := obu[headerSize:]
	if h.HasSizeField {
		v, n, err := ReadLeb128(payload)
		if err != nil {
			return cp, err
		}
		payload = payload[n:]
		if v < uint64(len(payload)) {
			payload = payload[:v]
		}
	}
	return ParseSequenceHeader(payload)
}

// ParseSequenceHeader
//
// @param payload: 不包含obu header。av1的obu没有防竞争字节
func ParseSequenceHeader(payload []byte) (cp base.CodecParameters, err error) {
	var sh SequenceHeader
	if err = parseSequenceHeader(payload, &sh); err != nil {
		Log.Errorf("parse av1 sequence header failed. err=%+v, payload=%s", err, hex.Dump(nazabytes.Prefix(payload, 128)))
		return cp, err
	}

	cp.ProfileIdc = int(sh.SeqProfile)
	cp.Profile = ProfileString(sh.SeqProfile)
	op := sh.OperatingPoints[0]
	cp.LevelIdc = int(op.SeqLevelIdx)
	cp.Level = LevelString(op.SeqLevelIdx)
	cp.Tier = int(op.SeqTier)
	cp.BitDepth = sh.ColorConfig.BitDepth
	cp.BitDepthChroma = sh.ColorConfig.BitDepth
	switch {
	case sh.ColorConfig.MonoChrome:
		cp.ChromaFormat = base.ChromaFormat400
	case sh.ColorConfig.SubsamplingX && sh.ColorConfig.SubsamplingY:
		cp.ChromaFormat = base.ChromaFormat420
	case sh.ColorConfig.SubsamplingX:
		cp.ChromaFormat = base.ChromaFormat422
	case !sh.ColorConfig.SubsamplingY:
		cp.ChromaFormat = base.ChromaFormat444
	default:
		cp.ChromaFormat = base.ChromaFormatInvalid
	}
	// NUM_REF_FRAMES
	cp.RefFrames = 8

	cp.FrameRate = base.FrameRate{Fixed: true, Num: 0, Den: 1}
	if sh.TimingInfoPresent && sh.TimingInfo.NumUnitsInDisplayTick != 0 {
		ti := sh.TimingInfo
		if ti.EqualPictureInterval {
			cp.FrameRate = base.FrameRate{
				Fixed: true,
				Num:   ti.TimeScale,
				Den:   ti.NumUnitsInDisplayTick * (ti.NumTicksPerPictureMinus1 + 1),
			}
		} else {
			cp.FrameRate = base.FrameRate{
				Fixed: false,
				Num:   ti.TimeScale,
				Den:   ti.NumUnitsInDisplayTick,
			}
		}
	}

	cp.SarRatio = base.Ratio{Width: 1, Height: 1}
	cp.CodecSize = base.Size{
		Width:  int(sh.MaxFrameWidthMinus1 + 1),
		Height: int(sh.MaxFrameHeightMinus1 + 1),
	}
	cp.CalcPresentSize()

	cp.ColourDescriptionPresent = sh.ColorConfig.ColorDescriptionPresent
	cp.ColourPrimaries = int(sh.ColorConfig.ColorPrimaries)
	cp.TransferCharacteristics = int(sh.ColorConfig.TransferCharacteristics)
	cp.MatrixCoefficients = int(sh.ColorConfig.MatrixCoefficients)
	cp.FullRange = sh.ColorConfig.ColorRange

	cp.Codec = CodecString(&sh)
	return cp, nil
}

// CodecString av01.<profile>.<level><tier>.<bitDepth>
//
// e.g. av01.0.04M.08
func CodecString(sh *SequenceHeader) string {
	op := sh.OperatingPoints[0]
	tier := "M"
	if op.SeqTier == 1 {
		tier = "H"
	}
	return fmt.Sprintf("av01.%d.%02d%s.%02d", sh.SeqProfile, op.SeqLevelIdx, tier, sh.ColorConfig.BitDepth)
}

func ProfileString(seqProfile uint8) string {
	switch seqProfile {
	case 0:
		return "Main"
	case 1:
		return "High"
	case 2:
		return "Professional"
	}
	return "Unknown"
}

// LevelString av1-spec A.3 Levels，seq_level_idx 31表示没有限制
func LevelString(seqLevelIdx uint8) string {
	if seqLevelIdx == 31 {
		return "Max"
	}
	return fmt.Sprintf("%d.%d", 2+(seqLevelIdx>>2), seqLevelIdx&3)
}

func parseSequenceHeader(payload []byte, sh *SequenceHeader) (err error) {
	r := golomb.NewReader(payload)

	v, err := r.ReadBits(3)
	if err != nil {
		return nazaerrors.Wrap(err)
	}
	sh.SeqProfile = uint8(v)
	if sh.SeqProfile > 2 {
		return nazaerrors.Wrap(ErrAv1)
	}
	if sh.StillPicture, err = r.ReadBool(); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sh.ReducedStillPictureHeader, err = r.ReadBool(); err != nil {
		return nazaerrors.Wrap(err)
	}

	if sh.ReducedStillPictureHeader {
		if v, err = r.ReadBits(5); err != nil {
			return nazaerrors.Wrap(err)
		}
		sh.OperatingPoints = []OperatingPoint{{SeqLevelIdx: uint8(v)}}
	} else {
		if err = parseOperatingPoints(r, sh); err != nil {
			return err
		}
	}

	frameWidthBitsMinus1, err := r.ReadBits(4)
	if err != nil {
		return nazaerrors.Wrap(err)
	}
	frameHeightBitsMinus1, err := r.ReadBits(4)
	if err != nil {
		return nazaerrors.Wrap(err)
	}
	if sh.MaxFrameWidthMinus1, err = r.ReadBits(uint(frameWidthBitsMinus1) + 1); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sh.MaxFrameHeightMinus1, err = r.ReadBits(uint(frameHeightBitsMinus1) + 1); err != nil {
		return nazaerrors.Wrap(err)
	}

	if !sh.ReducedStillPictureHeader {
		if sh.FrameIdNumbersPresent, err = r.ReadBool(); err != nil {
			return nazaerrors.Wrap(err)
		}
	}
	if sh.FrameIdNumbersPresent {
		// delta_frame_id_length_minus_2, additional_frame_id_length_minus_1
		if err = r.SkipBits(7); err != nil {
			return nazaerrors.Wrap(err)
		}
	}

	if sh.Use128x128Superblock, err = r.ReadBool(); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sh.EnableFilterIntra, err = r.ReadBool(); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sh.EnableIntraEdgeFilter, err = r.ReadBool(); err != nil {
		return nazaerrors.Wrap(err)
	}

	sh.SeqForceScreenContentTools = 2
	sh.SeqForceIntegerMv = 2
	if !sh.ReducedStillPictureHeader {
		if err = parseInterTools(r, sh); err != nil {
			return err
		}
	}

	if sh.EnableSuperres, err = r.ReadBool(); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sh.EnableCdef, err = r.ReadBool(); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sh.EnableRestoration, err = r.ReadBool(); err != nil {
		return nazaerrors.Wrap(err)
	}

	if err = parseColorConfig(r, sh.SeqProfile, &sh.ColorConfig); err != nil {
		return err
	}

	if sh.FilmGrainParamsPresent, err = r.ReadBool(); err != nil {
		return nazaerrors.Wrap(err)
	}
	return nil
}

func parseOperatingPoints(r *golomb.Reader, sh *SequenceHeader) (err error) {
	if sh.TimingInfoPresent, err = r.ReadBool(); err != nil {
		return nazaerrors.Wrap(err)
	}
	if sh.TimingInfoPresent {
		ti := &sh.TimingInfo
		if ti.NumUnitsInDisplayTick, err = r.ReadBits(32); err != nil {
			return nazaerrors.Wrap(err)
		}
		if ti.TimeScale, err = r.ReadBits(32); err != nil {
			return nazaerrors.Wrap(err)
		}
		if ti.EqualPictureInterval, err = r.ReadBool(); err != nil {
			return nazaerrors.Wrap(err)
		}
		if ti.EqualPictureInterval {
			if ti.NumTicksPerPictureMinus1, err = readUvlc(r); err != nil {
				return err
			}
		}

		if sh.DecoderModelInfoPresent, err = r.ReadBool(); err != nil {
			return nazaerrors.Wrap(err)
		}
		if sh.DecoderModelInfoPresent {
			dmi := &sh.DecoderModelInfo
			v, err := r.ReadBits(5)
			if err != nil {
				return nazaerrors.Wrap(err)
			}
			dmi.BufferDelayLengthMinus1 = uint8(v)
			if dmi.NumUnitsInDecodingTick, err = r.ReadBits(32); err != nil {
				return nazaerrors.Wrap(err)
			}
			if v, err = r.ReadBits(5); err != nil {
				return nazaerrors.Wrap(err)
			}
			dmi.BufferRemovalTimeLengthMinus1 = uint8(v)
			if v, err = r.ReadBits(5); err != nil {
				return nazaerrors.Wrap(err)
			}
			dmi.FramePresentationTimeLengthMinus1 = uint8(v)
		}
	}

	initialDisplayDelayPresent, err := r.ReadBool()
	if err != nil {
		return nazaerrors.Wrap(err)
	}
	cnt, err := r.ReadBits(5)
	if err != nil {
		return nazaerrors.Wrap(err)
	}
	cnt++
	if cnt > maxOperatingPoints {
		return nazaerrors.Wrap(ErrAv1)
	}
	sh.OperatingPoints = make([]OperatingPoint, cnt)
	for i := range sh.OperatingPoints {
		op := &sh.OperatingPoints[i]
		v, err := r.ReadBits(12)
		if err != nil {
			return nazaerrors.Wrap(err)
		}
		op.Idc = uint16(v)
		if v, err = r.ReadBits(5); err != nil {
			return nazaerrors.Wrap(err)
		}
		op.SeqLevelIdx = uint8(v)
		if op.SeqLevelIdx > 7 {
			if v, err = r.ReadBits(1); err != nil {
				return nazaerrors.Wrap(err)
			}
			op.SeqTier = uint8(v)
		}
		if sh.DecoderModelInfoPresent {
			if op.DecoderModelPresent, err = r.ReadBool(); err != nil {
				return nazaerrors.Wrap(err)
			}
			if op.DecoderModelPresent {
				// decoder_buffer_delay, encoder_buffer_delay, low_delay_mode_flag
				n := uint(sh.DecoderModelInfo.BufferDelayLengthMinus1) + 1
				if err = r.SkipBits(2*n + 1); err != nil {
					return nazaerrors.Wrap(err)
				}
			}
		}
		if initialDisplayDelayPresent {
			if op.InitialDisplayDelayPresent, err = r.ReadBool(); err != nil {
				return nazaerrors.Wrap(err)
			}
			if op.InitialDisplayDelayPresent {
				// initial_display_delay_minus_1
				if err = r.SkipBits(4); err != nil {
					return nazaerrors.Wrap(err)
				}
			}
		}
	}
	return nil
}

func parseInterTools(r *golomb.Reader, sh *SequenceHeader) (err error) {
	for _, p := range []*bool{&sh.EnableInterintraCompound, &sh.EnableMaskedCompound, &sh.EnableWarpedMotion, &sh.EnableDualFilter, &sh.EnableOrderHint} {
		if *p, err = r.ReadBool(); err != nil {
			return nazaerrors.Wrap(err)
		}
	}
	if sh.EnableOrderHint {
		if sh.EnableJntComp, err = r.ReadBool(); err != nil {
			return nazaerrors.Wrap(err)
		}
		if sh.EnableRefFrameMvs, err = r.ReadBool(); err != nil {
			return nazaerrors.Wrap(err)
		}
	}

	seqChooseScreenContentTools, err := r.ReadBool()
	if err != nil {
		return nazaerrors.Wrap(err)
	}
	if !seqChooseScreenContentTools {
		v, err := r.ReadBits(1)
		if err != nil {
			return nazaerrors.Wrap(err)
		}
		sh.SeqForceScreenContentTools = uint8(v)
	}
	if sh.SeqForceScreenContentTools > 0 {
		seqChooseIntegerMv, err := r.ReadBool()
		if err != nil {
			return nazaerrors.Wrap(err)
		}
		if !seqChooseIntegerMv {
			v, err := r.ReadBits(1)
			if err != nil {
				return nazaerrors.Wrap(err)
			}
			sh.SeqForceIntegerMv = uint8(v)
		}
	}

	if sh.EnableOrderHint {
		v, err := r.ReadBits(3)
		if err != nil {
			return nazaerrors.Wrap(err)
		}
		sh.OrderHintBits = uint8(v) + 1
	}
	return nil
}

// av1-spec 5.5.2 Color config syntax
func parseColorConfig(r *golomb.Reader, seqProfile uint8, cc *ColorConfig) error {
	highBitdepth, err := r.ReadBool()
	if err != nil {
		return nazaerrors.Wrap(err)
	}
	cc.BitDepth = 8
	if seqProfile == 2 && highBitdepth {
		twelveBit, err := r.ReadBool()
		if err != nil {
			return nazaerrors.Wrap(err)
		}
		if twelveBit {
			cc.BitDepth = 12
		} else {
			cc.BitDepth = 10
		}
	} else if highBitdepth {
		cc.BitDepth = 10
	}

	if seqProfile != 1 {
		if cc.MonoChrome, err = r.ReadBool(); err != nil {
			return nazaerrors.Wrap(err)
		}
	}

	if cc.ColorDescriptionPresent, err = r.ReadBool(); err != nil {
		return nazaerrors.Wrap(err)
	}
	cc.ColorPrimaries = colorPrimariesUnspecified
	cc.TransferCharacteristics = 2
	cc.MatrixCoefficients = 2
	if cc.ColorDescriptionPresent {
		if cc.ColorPrimaries, err = r.ReadByte(); err != nil {
			return nazaerrors.Wrap(err)
		}
		if cc.TransferCharacteristics, err = r.ReadByte(); err != nil {
			return nazaerrors.Wrap(err)
		}
		if cc.MatrixCoefficients, err = r.ReadByte(); err != nil {
			return nazaerrors.Wrap(err)
		}
	}

	if cc.MonoChrome {
		if cc.ColorRange, err = r.ReadBool(); err != nil {
			return nazaerrors.Wrap(err)
		}
		cc.SubsamplingX = true
		cc.SubsamplingY = true
		return nil
	}

	if cc.ColorPrimaries == colorPrimariesBt709 &&
		cc.TransferCharacteristics == transferCharacteristicsSrgb &&
		cc.MatrixCoefficients == matrixCoefficientsIdentity {
		cc.ColorRange = true
	} else {
		if cc.ColorRange, err = r.ReadBool(); err != nil {
			return nazaerrors.Wrap(err)
		}
		switch seqProfile {
		case 0:
			cc.SubsamplingX, cc.SubsamplingY = true, true
		case 1:
		default:
			if cc.BitDepth == 12 {
				if cc.SubsamplingX, err = r.ReadBool(); err != nil {
					return nazaerrors.Wrap(err)
				}
				if cc.SubsamplingX {
					if cc.SubsamplingY, err = r.ReadBool(); err != nil {
						return nazaerrors.Wrap(err)
					}
				}
			} else {
				cc.SubsamplingX = true
			}
		}
		if cc.SubsamplingX && cc.SubsamplingY {
			v, err := r.ReadBits(2)
			if err != nil {
				return nazaerrors.Wrap(err)
			}
			cc.ChromaSamplePosition = uint8(v)
		}
	}

	if cc.SeparateUvDeltaQ, err = r.ReadBool(); err != nil {
		return nazaerrors.Wrap(err)
	}
	return nil
}

// av1-spec 4.10.3 uvlc()
func readUvlc(r *golomb.Reader) (uint32, error) {
	leadingZeros := uint(0)
	for {
		done, err := r.ReadBool()
		if err != nil {
			return 0, nazaerrors.Wrap(err)
		}
		if done {
			break
		}
		leadingZeros++
	}
	if leadingZeros >= 32 {
		return 0xFFFFFFFF, nil
	}
	v, err := r.ReadBits(leadingZeros)
	if err != nil {
		return 0, nazaerrors.Wrap(err)
	}
	return v + (1 << leadingZeros) - 1, nil
}
