// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package loader

import "github.com/q191201771/lalfmp4/pkg/base"

var Log = base.Log

const (
	defaultStashInitialSize = 384 * 1024
	defaultReadChunkSize    = 64 * 1024

	// stash的上限
	maxStashSizeKb = 8192
)

// 网速的归一化档位，单位KB/s
var speedNormalizeList = []int{64, 128, 256, 384, 512, 768, 1024, 1536, 2048, 3072, 4096}
