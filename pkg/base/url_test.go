// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package base_test

import (
	"errors"
	"testing"

	"github.com/q191201771/lalfmp4/pkg/base"
	"github.com/q191201771/naza/pkg/assert"
)

func TestParseSourceUrl(t *testing.T) {
	golden := map[string]base.UrlContext{
		"http://127.0.0.1/live/test110.flv": {
			Url:    "http://127.0.0.1/live/test110.flv",
			Scheme: "http",
			Host:   "127.0.0.1",
			Path:   "/live/test110.flv",
		},
		"https://example.com:8443/vod/a.flv?token=1": {
			Url:    "https://example.com:8443/vod/a.flv?token=1",
			Scheme: "https",
			Host:   "example.com",
			Path:   "/vod/a.flv",
		},
		"file:///tmp/a.flv": {
			Url:    "file:///tmp/a.flv",
			Scheme: "file",
			Path:   "/tmp/a.flv",
		},
		"testdata/test.flv": {
			Url:    "testdata/test.flv",
			Scheme: "file",
			Path:   "testdata/test.flv",
		},
	}
	for k, v := range golden {
		ctx, err := base.ParseSourceUrl(k)
		assert.Equal(t, nil, err)
		assert.Equal(t, v, ctx, k)
	}

	ctx, _ := base.ParseSourceUrl("http://127.0.0.1/live/test110.flv")
	assert.Equal(t, true, ctx.IsHttp())
	ctx, _ = base.ParseSourceUrl("testdata/test.flv")
	assert.Equal(t, false, ctx.IsHttp())

	_, err := base.ParseSourceUrl("rtmp://127.0.0.1/live/test110")
	assert.Equal(t, true, errors.Is(err, base.ErrUnsupportedUrl))
	_, err = base.ParseSourceUrl("")
	assert.Equal(t, true, errors.Is(err, base.ErrInvalidUrl))
	_, err = base.ParseSourceUrl("http:///a.flv")
	assert.Equal(t, true, errors.Is(err, base.ErrInvalidUrl))
	_, err = base.ParseSourceUrl("file://")
	assert.Equal(t, true, errors.Is(err, base.ErrInvalidUrl))
	_, err = base.ParseSourceUrl("http://[::1/a.flv")
	assert.Equal(t, true, errors.Is(err, base.ErrInvalidUrl))
}
