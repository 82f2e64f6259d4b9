// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	UrlSchemeHttp  = "http"
	UrlSchemeHttps = "https"
	UrlSchemeFile  = "file"
)

type UrlContext struct {
	Url    string
	Scheme string
	Host   string // 不包含端口
	Path   string // 本地文件时为文件路径
}

func (u *UrlContext) IsHttp() bool {
	return u.Scheme == UrlSchemeHttp || u.Scheme == UrlSchemeHttps
}

// ParseSourceUrl 解析字节源的地址
//
// 支持 http://, https://, file://，以及不带scheme的本地文件路径（此时Scheme为file）
func ParseSourceUrl(rawUrl string) (ctx UrlContext, err error) {
	if rawUrl == "" {
		return ctx, fmt.Errorf("%w. url is empty", ErrInvalidUrl)
	}
	ctx.Url = rawUrl
	if !strings.Contains(rawUrl, "://") {
		ctx.Scheme = UrlSchemeFile
		ctx.Path = rawUrl
		return ctx, nil
	}

	stdUrl, err := url.Parse(rawUrl)
	if err != nil {
		return ctx, fmt.Errorf("%w. url=%s, err=%s", ErrInvalidUrl, rawUrl, err.Error())
	}
	ctx.Scheme = stdUrl.Scheme
	ctx.Host = stdUrl.Hostname()
	ctx.Path = stdUrl.Path

	switch ctx.Scheme {
	case UrlSchemeHttp, UrlSchemeHttps:
		if ctx.Host == "" {
			return ctx, fmt.Errorf("%w. url=%s", ErrInvalidUrl, rawUrl)
		}
	case UrlSchemeFile:
		if ctx.Path == "" {
			return ctx, fmt.Errorf("%w. url=%s", ErrInvalidUrl, rawUrl)
		}
	default:
		return ctx, fmt.Errorf("%w. scheme=%s", ErrUnsupportedUrl, ctx.Scheme)
	}
	return ctx, nil
}
