// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/q191201771/lalfmp4/pkg/base"
	"github.com/q191201771/lalfmp4/pkg/transmux"
	"github.com/q191201771/naza/pkg/assert"
	"github.com/q191201771/naza/pkg/nazalog"
)

func TestPartsFlag(t *testing.T) {
	var pf partsFlag
	assert.Equal(t, nil, pf.Set("/tmp/a.flv"))
	assert.Equal(t, nil, pf.Set("http://127.0.0.1/b.flv,60000"))
	assert.IsNotNil(t, pf.Set("/tmp/c.flv,abc"))
	assert.Equal(t, []transmux.MediaPart{
		{Url: "/tmp/a.flv"},
		{Url: "http://127.0.0.1/b.flv", Duration: 60000},
	}, []transmux.MediaPart(pf))
	assert.Equal(t, "/tmp/a.flv http://127.0.0.1/b.flv", pf.String())
}

func TestLoadConfig(t *testing.T) {
	config, err := LoadConfig("")
	assert.Equal(t, nil, err)
	assert.Equal(t, "./out", config.OutDir)
	assert.Equal(t, true, config.Transmux.EnableStashBuffer)
	assert.Equal(t, nazalog.LevelInfo, config.Log.Level)

	filename := filepath.Join(t.TempDir(), "flv2fmp4.conf.json")
	content := `{"out_dir": "/tmp/x", "transmux": {"is_live": true, "read_chunk_size": 1024}, "log": {"level": 0}}`
	assert.Equal(t, nil, os.WriteFile(filename, []byte(content), 0644))
	config, err = LoadConfig(filename)
	assert.Equal(t, nil, err)
	assert.Equal(t, "/tmp/x", config.OutDir)
	assert.Equal(t, true, config.Transmux.IsLive)
	assert.Equal(t, 1024, config.Transmux.ReadChunkSize)
	// 没有配置的字段使用默认值
	assert.Equal(t, 10000, config.Transmux.HttpReadTimeoutMs)
	assert.Equal(t, nazalog.LevelTrace, config.Log.Level)
	assert.Equal(t, 5000, config.StatIntervalMs)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "notexist.json"))
	assert.IsNotNil(t, err)
}

func TestFileSink(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir)
	assert.Equal(t, nil, err)

	assert.Equal(t, nil, sink.AppendMediaSegment(base.MediaSegment{Type: base.TrackTypeVideo, Data: []byte{1}}))
	assert.Equal(t, nil, sink.AppendInitSegment(base.InitSegment{Type: base.TrackTypeVideo, Data: []byte{1, 2}}))
	assert.Equal(t, nil, sink.AppendMediaSegment(base.MediaSegment{Type: base.TrackTypeVideo, Data: []byte{3}}))
	assert.Equal(t, nil, sink.AppendInitSegment(base.InitSegment{Type: base.TrackTypeVideo, Data: []byte{4}}))
	sink.Dispose()

	b, err := os.ReadFile(filepath.Join(dir, "video.mp4"))
	assert.Equal(t, nil, err)
	assert.Equal(t, []byte{1, 2, 3}, b)
	b, err = os.ReadFile(filepath.Join(dir, "video_1.mp4"))
	assert.Equal(t, nil, err)
	assert.Equal(t, []byte{4}, b)
}
