// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package main

import (
	"encoding/json"
	"os"

	"github.com/q191201771/lalfmp4/pkg/transmux"
	"github.com/q191201771/naza/pkg/nazajson"
	"github.com/q191201771/naza/pkg/nazalog"
)

type Config struct {
	OutDir   string          `json:"out_dir"`
	Transmux transmux.Config `json:"transmux"`
	Log      nazalog.Option  `json:"log"`

	StatIntervalMs int `json:"stat_interval_ms"`
}

// LoadConfig confFile为空时全部使用默认值
func LoadConfig(confFile string) (*Config, error) {
	config := Config{
		Transmux: transmux.DefaultConfig(),
	}

	var rawContent []byte
	if confFile != "" {
		var err error
		rawContent, err = os.ReadFile(confFile)
		if err != nil {
			return nil, err
		}
		if err = json.Unmarshal(rawContent, &config); err != nil {
			return nil, err
		}
	} else {
		rawContent = []byte("{}")
	}

	j, err := nazajson.New(rawContent)
	if err != nil {
		return nil, err
	}
	if !j.Exist("out_dir") {
		config.OutDir = "./out"
	}
	if !j.Exist("stat_interval_ms") {
		config.StatIntervalMs = 5000
	}
	if !j.Exist("log.level") {
		config.Log.Level = nazalog.LevelInfo
	}
	if !j.Exist("log.is_to_stdout") {
		config.Log.IsToStdout = true
	}
	if !j.Exist("log.short_file_flag") {
		config.Log.ShortFileFlag = true
	}
	if !j.Exist("log.assert_behavior") {
		config.Log.AssertBehavior = nazalog.AssertError
	}

	return &config, nil
}
