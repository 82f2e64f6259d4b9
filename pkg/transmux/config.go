// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package transmux

import (
	"fmt"

	"github.com/q191201771/lalfmp4/pkg/aac"
	"github.com/q191201771/lalfmp4/pkg/base"
	"github.com/q191201771/lalfmp4/pkg/loader"
)

const (
	AacProfilePolicyHe         = aac.ProfilePolicyHe
	AacProfilePolicyLc         = aac.ProfilePolicyLc
	AacProfilePolicyHeBelow24k = aac.ProfilePolicyHeBelow24k
)

// PlatformCapabilities 播放端的能力，由使用方注入
type PlatformCapabilities struct {
	AacProfilePolicy aac.ProfilePolicy `json:"aac_profile_policy"`
}

type Config struct {
	IsLive            bool `json:"is_live"`
	EnableStashBuffer bool `json:"enable_stash_buffer"`
	StashInitialSize  int  `json:"stash_initial_size"` // 单位字节

	FixAudioTimestampGap bool `json:"fix_audio_timestamp_gap"`
	ForceFirstIdr        bool `json:"force_first_idr"`

	StatisticsInfoReportIntervalMs int `json:"statistics_info_report_interval_ms"`

	ReadChunkSize        int               `json:"read_chunk_size"`
	HttpConnectTimeoutMs int               `json:"http_connect_timeout_ms"`
	HttpReadTimeoutMs    int               `json:"http_read_timeout_ms"`
	Headers              map[string]string `json:"headers"`

	Capabilities PlatformCapabilities `json:"capabilities"`

	// 不设置时根据url选择FileSource或HttpSource
	SourceFactory loader.SourceFactory `json:"-"`
}

var defaultConfig = Config{
	IsLive:                         false,
	EnableStashBuffer:              true,
	StashInitialSize:               384 * 1024,
	FixAudioTimestampGap:           true,
	ForceFirstIdr:                  false,
	StatisticsInfoReportIntervalMs: 600,
	ReadChunkSize:                  64 * 1024,
	HttpConnectTimeoutMs:           10000,
	HttpReadTimeoutMs:              10000,
	Capabilities: PlatformCapabilities{
		AacProfilePolicy: AacProfilePolicyHe,
	},
}

type ModConfigOption func(option *Config)

// DefaultConfig 返回默认配置的拷贝
func DefaultConfig() Config {
	return defaultConfig
}

func NewConfig(modOptions ...ModConfigOption) Config {
	config := defaultConfig
	for _, fn := range modOptions {
		fn(&config)
	}
	return config
}

// ---------------------------------------------------------------------------------------------------------------------

// MediaPart 多段媒体中的一段
type MediaPart struct {
	Url      string `json:"url"`
	Duration int64  `json:"duration"` // 毫秒，未知时为0
	Filesize int64  `json:"filesize"` // 未知时为0

	// TimestampBase 由前面所有分片的时长累加得到，不需要使用方填写
	TimestampBase int64 `json:"-"`
}

// MediaDataSource 输入源
//
// 单个文件或流直接填写Url，多段文件填写Parts，两者都填写时Parts优先
type MediaDataSource struct {
	Url      string `json:"url"`
	Duration int64  `json:"duration"`
	Filesize int64  `json:"filesize"`

	// nil表示以flv header为准
	HasAudio *bool `json:"has_audio"`
	HasVideo *bool `json:"has_video"`

	Parts []MediaPart `json:"parts"`
}

func (mds MediaDataSource) String() string {
	return fmt.Sprintf("url=%s, duration=%d, filesize=%d, parts=%d", mds.Url, mds.Duration, mds.Filesize, len(mds.Parts))
}

// normalize 单个源转换成只有一个分片的形式，计算每个分片的TimestampBase以及总时长
func (mds MediaDataSource) normalize() (MediaDataSource, error) {
	out := mds
	if len(mds.Parts) == 0 {
		if mds.Url == "" {
			return out, base.ErrNoMediaPart
		}
		out.Parts = []MediaPart{{
			Url:      mds.Url,
			Duration: mds.Duration,
			Filesize: mds.Filesize,
		}}
	} else {
		out.Parts = make([]MediaPart, len(mds.Parts))
		copy(out.Parts, mds.Parts)
	}

	var totalDuration int64
	for i := range out.Parts {
		if out.Parts[i].Url == "" {
			return out, fmt.Errorf("%w. url of part %d is empty", base.ErrInvalidParam, i)
		}
		out.Parts[i].TimestampBase = totalDuration
		totalDuration += out.Parts[i].Duration
	}
	if totalDuration != 0 {
		out.Duration = totalDuration
	}
	return out, nil
}
