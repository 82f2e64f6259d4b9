// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package fmp4

const (
	tfhdFlagDefaultBaseIsMoof = 0x020000

	// data-offset | sample-duration | sample-size | sample-flags | sample-composition-time-offset
	trunFlags = 0x000F01

	trunSampleSize = 16
)

// GenerateMediaSegment 生成 moof+mdat
//
// @param mdatPayload: 所有sample的数据按顺序拼接，长度需要和Samples中Size之和一致
func GenerateMediaSegment(tf *TrackFragment, mdatPayload []byte) []byte {
	return concat(GenerateMoof(tf), GenerateMdat(mdatPayload))
}

func GenerateMoof(tf *TrackFragment) []byte {
	mfhd := fullBox("mfhd", 0, 0, u32(uint32(tf.SequenceNumber)))

	// trun中的data_offset是相对moof起始位置的偏移，所以需要先算出moof的大小
	n := len(tf.Samples)
	trunSize := fullBoxHeaderSize + 4 + 4 + trunSampleSize*n
	sdtpSize := fullBoxHeaderSize + n
	trafSize := boxHeaderSize + (fullBoxHeaderSize + 4) + (fullBoxHeaderSize + 8) + trunSize + sdtpSize
	moofSize := boxHeaderSize + len(mfhd) + trafSize
	dataOffset := moofSize + boxHeaderSize

	traf := box("traf",
		fullBox("tfhd", 0, tfhdFlagDefaultBaseIsMoof, u32(uint32(tf.Id))),
		fullBox("tfdt", 1, 0, u64(uint64(tf.BaseMediaDecodeTime))),
		trun(tf.Samples, dataOffset),
		sdtp(tf.Samples),
	)
	return box("moof", mfhd, traf)
}

func GenerateMdat(payload []byte) []byte {
	return box("mdat", payload)
}

// ---------------------------------------------------------------------------------------------------------------------

func trun(samples []Sample, dataOffset int) []byte {
	body := make([]byte, 0, 8+trunSampleSize*len(samples))
	body = append(body, u32(uint32(len(samples)))...)
	body = append(body, u32(uint32(dataOffset))...)
	for i := range samples {
		s := &samples[i]
		body = append(body, u32(uint32(s.Duration))...)
		body = append(body, u32(uint32(s.Size))...)
		body = append(body,
			(s.Flags.IsLeading<<2)|s.Flags.DependsOn,
			(s.Flags.IsDependedOn<<6)|(s.Flags.HasRedundancy<<4)|s.Flags.IsNonSync,
			0x00, 0x00, // sample_degradation_priority
		)
		// version 1，cts为有符号数
		body = append(body, u32(uint32(int32(s.Cts)))...)
	}
	return fullBox("trun", 1, trunFlags, body)
}

// sdtp 每个sample一个字节
func sdtp(samples []Sample) []byte {
	body := make([]byte, len(samples))
	for i := range samples {
		f := samples[i].Flags
		body[i] = (f.IsLeading << 6) | (f.DependsOn << 4) | (f.IsDependedOn << 2) | f.HasRedundancy
	}
	return fullBox("sdtp", 0, 0, body)
}
