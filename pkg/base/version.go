// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

// LalFmp4Version 整个工程的版本号。注意，该变量由外部脚本修改维护，不要手动在代码中修改
const LalFmp4Version = "v0.1.0"

var (
	LalFmp4LibraryName = "lalfmp4"
	LalFmp4GithubRepo  = "github.com/q191201771/lalfmp4"

	// LalFmp4FullInfo e.g. lalfmp4 v0.1.0 (github.com/q191201771/lalfmp4)
	LalFmp4FullInfo = LalFmp4LibraryName + " " + LalFmp4Version + " (" + LalFmp4GithubRepo + ")"

	// LalFmp4HttpUa 字节源发起http请求时使用的User-Agent
	// e.g. lalfmp4/0.1.0
	LalFmp4HttpUa = LalFmp4LibraryName + "/" + LalFmp4Version[1:]
)
