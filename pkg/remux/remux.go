// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

// Package remux 把flv解析出的音视频sample重封装为fmp4
//
// 时间戳统一为毫秒。所有track共用一个dtsBase，
// 每个track维护一个nextDts用于保证相邻两个fragment之间的时间戳连续。
package remux

// TODO(chef): mp3音频暂不支持，flv demuxer会把它上报为CodecUnsupported
