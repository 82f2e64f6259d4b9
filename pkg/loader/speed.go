// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package loader

// normalizeSpeed 把网速(KB/s)向下取到最近的档位
func normalizeSpeed(kbps int) int {
	list := speedNormalizeList
	if kbps < list[0] {
		return list[0]
	}

	lbound, ubound := 0, len(list)-1
	for lbound <= ubound {
		mid := lbound + (ubound-lbound)/2
		if mid == len(list)-1 || (kbps >= list[mid] && kbps < list[mid+1]) {
			return list[mid]
		}
		if list[mid] < kbps {
			lbound = mid + 1
		} else {
			ubound = mid - 1
		}
	}
	return list[0]
}

// calcStashSizeKb 根据归一化后的网速计算stash的大小，单位KB
func calcStashSizeKb(normalized int, isLive bool) int {
	var kb int
	switch {
	case isLive:
		kb = normalized / 8
	case normalized < 512:
		kb = normalized
	case normalized <= 1024:
		kb = normalized * 3 / 2
	default:
		kb = normalized * 2
	}
	if kb > maxStashSizeKb {
		kb = maxStashSizeKb
	}
	return kb
}
