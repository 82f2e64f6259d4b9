// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package aac

import (
	"fmt"

	"github.com/q191201771/lalfmp4/pkg/base"
	"github.com/q191201771/naza/pkg/nazabits"
)

// AudioSpecificConfig(asc)
// keywords: Seq Header,
// e.g.  rtmp, flv
//

var Log = base.Log

var (
	ErrAac                    = base.ErrAac
	ErrSamplingFrequencyIndex = base.ErrSamplingFrequencyIndex
	ErrChannelConfiguration   = base.ErrChannelConfiguration
)

const (
	AudioObjectTypeAacMain = 1
	AudioObjectTypeAacLc   = 2
	AudioObjectTypeAacHe   = 5 // SBR
	AudioObjectTypeAacHeV2 = 29

	AscSamplingFrequencyIndex48000 = 3
	AscSamplingFrequencyIndex44100 = 4
)

const (
	minAscLength = 2
)

// <ISO_IEC_14496-3.pdf>
// <1.6.3.3 samplingFrequencyIndex>
var samplingFrequencyTable = []int{
	96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050, 16000, 12000, 11025, 8000, 7350,
}

// <ISO_IEC_14496-3.pdf>
// <1.6.2.1 AudioSpecificConfig>, <page 33/110>
// <1.5.1.1 Audio Object type definition>, <page 23/110>
// <1.6.3.3 samplingFrequencyIndex>, <page 35/110>
// <1.6.3.4 channelConfiguration>
// --------------------------------------------------------
// audio object type      [5b] 1=AAC MAIN  2=AAC LC  5=HE-AAC(SBR)
// samplingFrequencyIndex [4b] 3=48000  4=44100  6=24000  5=32000  11=11025
// channelConfiguration   [4b] 1=center front speaker  2=left, right front speakers
// 以下两个字段仅当audio object type为5时存在
// extensionSamplingFrequencyIndex [4b]
// extensionAudioObjectType        [5b]
type AscContext struct {
	AudioObjectType        uint8 // [5b]
	SamplingFrequencyIndex uint8 // [4b]
	ChannelConfiguration   uint8 // [4b]

	ExtensionSamplingFrequencyIndex uint8 // [4b]
	ExtensionAudioObjectType        uint8 // [5b]
}

// Unpack
//
// @param asc: AAC Audio Specifc Config
//
//	注意，如果是rtmp/flv的message/tag，应去除Seq Header头部的2个字节
//	函数调用结束后，内部不持有该内存块
func (ascCtx *AscContext) Unpack(asc []byte) error {
	if len(asc) < minAscLength {
		Log.Warnf("aac seq header length invalid. len=%d", len(asc))
		return ErrAac
	}

	br := nazabits.NewBitReader(asc)
	ascCtx.AudioObjectType, _ = br.ReadBits8(5)
	ascCtx.SamplingFrequencyIndex, _ = br.ReadBits8(4)
	ascCtx.ChannelConfiguration, _ = br.ReadBits8(4)
	if ascCtx.AudioObjectType == AudioObjectTypeAacHe && len(asc) >= 3 {
		ascCtx.ExtensionSamplingFrequencyIndex, _ = br.ReadBits8(4)
		ascCtx.ExtensionAudioObjectType, _ = br.ReadBits8(5)
	}
	return nil
}

// Pack
//
// audio object type为5时生成4字节，extensionAudioObjectType固定为2（LC），否则生成2字节
//
// @return asc: 内存块为独立新申请；函数调用结束后，内部不持有该内存块
func (ascCtx *AscContext) Pack() (asc []byte) {
	if ascCtx.AudioObjectType == AudioObjectTypeAacHe {
		asc = make([]byte, 4)
	} else {
		asc = make([]byte, minAscLength)
	}
	bw := nazabits.NewBitWriter(asc)
	bw.WriteBits8(5, ascCtx.AudioObjectType)
	bw.WriteBits8(4, ascCtx.SamplingFrequencyIndex)
	bw.WriteBits8(4, ascCtx.ChannelConfiguration)
	if ascCtx.AudioObjectType == AudioObjectTypeAacHe {
		bw.WriteBits8(4, ascCtx.ExtensionSamplingFrequencyIndex)
		bw.WriteBits8(5, AudioObjectTypeAacLc)
	}
	return
}

func (ascCtx *AscContext) GetSamplingFrequency() (int, error) {
	if int(ascCtx.SamplingFrequencyIndex) >= len(samplingFrequencyTable) {
		Log.Errorf("GetSamplingFrequency failed. ascCtx=%+v", ascCtx)
		return -1, ErrSamplingFrequencyIndex
	}
	return samplingFrequencyTable[ascCtx.SamplingFrequencyIndex], nil
}

// ----- 针对播放端的profile选择 -------------------------------------------------------------------------------------------

// ProfilePolicy 重新生成asc时，audio object type的选择策略
//
// 由使用方根据播放端的解码能力决定
type ProfilePolicy int

const (
	// ProfilePolicyHe 总是使用HE-AAC（单声道且采样率大于等于32k时除外），方便码流中profile切换。默认值
	ProfilePolicyHe ProfilePolicy = iota

	// ProfilePolicyLc 总是使用LC-AAC
	ProfilePolicyLc

	// ProfilePolicyHeBelow24k 采样率小于等于24k时使用HE-AAC，否则使用LC-AAC
	ProfilePolicyHeBelow24k
)

func (p ProfilePolicy) String() string {
	switch p {
	case ProfilePolicyHe:
		return "He"
	case ProfilePolicyLc:
		return "Lc"
	case ProfilePolicyHeBelow24k:
		return "HeBelow24k"
	}
	return fmt.Sprintf("ProfilePolicy(%d)", int(p))
}

type AudioSpecificConfig struct {
	Config            []byte // 重新生成的asc
	SamplingFrequency int
	ChannelCount      int
	Codec             string // 重新生成的asc对应的codec，e.g. mp4a.40.5
	OriginalCodec     string // 码流中原始的codec

	OriginalAudioObjectType uint8
}

// ParseAudioSpecificConfig 解析asc，并按policy重新生成asc
//
// @param asc: 函数调用结束后，内部不持有该内存块
func ParseAudioSpecificConfig(asc []byte, policy ProfilePolicy) (ret AudioSpecificConfig, err error) {
	var ctx AscContext
	if err = ctx.Unpack(asc); err != nil {
		return
	}
	ret.SamplingFrequency, err = ctx.GetSamplingFrequency()
	if err != nil {
		return
	}
	if ctx.ChannelConfiguration >= 8 {
		return ret, ErrChannelConfiguration
	}
	ret.ChannelCount = int(ctx.ChannelConfiguration)
	ret.OriginalAudioObjectType = ctx.AudioObjectType
	ret.OriginalCodec = fmt.Sprintf("mp4a.40.%d", ctx.AudioObjectType)

	out := AscContext{
		SamplingFrequencyIndex: ctx.SamplingFrequencyIndex,
		ChannelConfiguration:   ctx.ChannelConfiguration,
	}
	useHe := func() {
		out.AudioObjectType = AudioObjectTypeAacHe
		out.ExtensionSamplingFrequencyIndex = ctx.SamplingFrequencyIndex
		if ctx.SamplingFrequencyIndex >= 6 {
			out.ExtensionSamplingFrequencyIndex = ctx.SamplingFrequencyIndex - 3
		}
	}
	useLc := func() {
		out.AudioObjectType = AudioObjectTypeAacLc
	}

	switch policy {
	case ProfilePolicyLc:
		useLc()
	case ProfilePolicyHeBelow24k:
		if ctx.SamplingFrequencyIndex >= 6 {
			useHe()
		} else {
			useLc()
		}
	default:
		if ctx.SamplingFrequencyIndex < 6 && ctx.ChannelConfiguration == 1 {
			useLc()
		} else {
			useHe()
		}
	}

	ret.Config = out.Pack()
	ret.Codec = fmt.Sprintf("mp4a.40.%d", out.AudioObjectType)
	return ret, nil
}

// ----- 静音帧 ----------------------------------------------------------------------------------------------------------

var (
	silentFrameLcMono   = []byte{0x00, 0xc8, 0x00, 0x80, 0x23, 0x80}
	silentFrameLcStereo = []byte{0x21, 0x00, 0x49, 0x90, 0x02, 0x19, 0x00, 0x23, 0x80}
	silentFrameLc3      = []byte{0x00, 0xc8, 0x00, 0x80, 0x20, 0x84, 0x01, 0x26, 0x40, 0x08, 0x64, 0x00, 0x8e}
	silentFrameLc4      = []byte{0x00, 0xc8, 0x00, 0x80, 0x20, 0x84, 0x01, 0x26, 0x40, 0x08, 0x64, 0x00, 0x80, 0x2c, 0x80, 0x08, 0x02, 0x38}
	silentFrameLc5      = []byte{0x00, 0xc8, 0x00, 0x80, 0x20, 0x84, 0x01, 0x26, 0x40, 0x08, 0x64, 0x00, 0x82, 0x30, 0x04, 0x99, 0x00, 0x21, 0x90, 0x02, 0x38}
	silentFrameLc6      = []byte{0x00, 0xc8, 0x00, 0x80, 0x20, 0x84, 0x01, 0x26, 0x40, 0x08, 0x64, 0x00, 0x82, 0x30, 0x04, 0x99, 0x00, 0x21, 0x90, 0x02, 0x00, 0xb2, 0x00, 0x20, 0x08, 0xe0}

	silentFrameHeMono   = []byte{0x1, 0x40, 0x22, 0x80, 0xa3, 0x4e, 0xe6, 0x80, 0xba, 0x8, 0x0, 0x0, 0x0, 0x1c, 0x6, 0xf1, 0xc1, 0xa, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5e}
	silentFrameHeStereo = []byte{0x1, 0x40, 0x22, 0x80, 0xa3, 0x5e, 0xe6, 0x80, 0xba, 0x8, 0x0, 0x0, 0x0, 0x0, 0x95, 0x0, 0x6, 0xf1, 0xa1, 0xa, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5a, 0x5e}
)

// GetSilentFrame 获取一帧静音的raw aac数据
//
// @param codec: 码流中原始的codec，e.g. mp4a.40.2
//
// @return 没有对应的静音帧时返回nil，调用方应重复上一帧。返回的内存块为全局共享，调用方不应修改
func GetSilentFrame(codec string, channelCount int) []byte {
	if codec == "mp4a.40.2" {
		switch channelCount {
		case 1:
			return silentFrameLcMono
		case 2:
			return silentFrameLcStereo
		case 3:
			return silentFrameLc3
		case 4:
			return silentFrameLc4
		case 5:
			return silentFrameLc5
		case 6:
			return silentFrameLc6
		}
		return nil
	}
	switch channelCount {
	case 1:
		return silentFrameHeMono
	case 2:
		return silentFrameHeStereo
	}
	return nil
}

// RefSampleDuration 一帧aac（1024个采样点）的时长，单位毫秒
func RefSampleDuration(samplingFrequency int) float64 {
	if samplingFrequency <= 0 {
		return 0
	}
	return 1024 / float64(samplingFrequency) * 1000
}
