// Copyright 2024, Chef.  All rights reserved.
// https://github.com/q191201771/lalfmp4
//
// Use of this source code is governed by a MIT-style license
// that can be found in the License file.
//
// Author: Chef (191201771@qq.com)

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/q191201771/lalfmp4/pkg/base"
	"github.com/q191201771/lalfmp4/pkg/transmux"
	"github.com/q191201771/naza/pkg/bininfo"
	"github.com/q191201771/naza/pkg/nazalog"
	"golang.org/x/sync/errgroup"
)

// 将flv文件或者http-flv流转换为fmp4文件，每个track输出一个文件
//
// 多个-i时，按顺序作为同一个节目的多个分片处理，时间戳连续

type partsFlag []transmux.MediaPart

func (p *partsFlag) String() string {
	var urls []string
	for _, part := range *p {
		urls = append(urls, part.Url)
	}
	return strings.Join(urls, " ")
}

// Set 格式为 url 或者 url,duration_ms
func (p *partsFlag) Set(value string) error {
	part := transmux.MediaPart{Url: value}
	if idx := strings.LastIndexByte(value, ','); idx != -1 {
		d, err := strconv.ParseInt(value[idx+1:], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid duration. value=%s", value)
		}
		part.Url = value[:idx]
		part.Duration = d
	}
	*p = append(*p, part)
	return nil
}

var (
	errDemux = errors.New("flv2fmp4: demux failed")
	errIo    = errors.New("flv2fmp4: io failed")
)

func main() {
	parts, outDir, confFile, isLive, seekMs := parseFlag()

	config, err := LoadConfig(confFile)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load conf failed. file=%s, err=%+v\n", confFile, err)
		os.Exit(1)
	}
	if outDir != "" {
		config.OutDir = outDir
	}
	if isLive {
		config.Transmux.IsLive = true
	}
	_ = nazalog.Init(func(option *nazalog.Option) {
		*option = config.Log
	})
	defer nazalog.Sync()
	nazalog.Infof("%s", base.LalFmp4FullInfo)

	if err = run(config, parts, seekMs); err != nil {
		nazalog.Errorf("run failed. err=%+v", err)
		nazalog.Sync()
		os.Exit(1)
	}
	nazalog.Infof("bye.")
}

func run(config *Config, parts []transmux.MediaPart, seekMs int64) error {
	sink, err := NewFileSink(config.OutDir)
	if err != nil {
		return err
	}
	defer sink.Dispose()

	observer := newObserver(seekMs)
	mds := transmux.MediaDataSource{Parts: parts}
	tm, err := transmux.NewTransmuxer(mds, observer, func(option *transmux.Config) {
		*option = config.Transmux
	})
	if err != nil {
		return err
	}
	observer.tm = tm
	tm.WithSink(sink)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer tm.Stop()
		if err := tm.Start(); err != nil {
			return err
		}
		select {
		case <-observer.doneChan:
			return nil
		case err := <-observer.errChan:
			return err
		case <-ctx.Done():
			nazalog.Infof("interrupted.")
			return nil
		}
	})
	g.Go(func() error {
		ticker := time.NewTicker(time.Duration(config.StatIntervalMs) * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-observer.doneChan:
				return nil
			case <-ticker.C:
				info := observer.statisticsInfo()
				nazalog.Infof("stat. output=%dkbit/s, speed=%.2fKB/s, part=%d/%d, url=%s",
					int(sink.Rate()), info.Speed, info.CurrentPartIndex+1, info.TotalPartCount, info.Url)
			}
		}
	})

	err = g.Wait()
	tm.Wait()
	return err
}

// ---------------------------------------------------------------------------------------------------------------------

type observer struct {
	transmux.DummyObserver

	tm     *transmux.Transmuxer
	seekMs int64

	seekOnce sync.Once
	doneOnce sync.Once
	doneChan chan struct{}
	errChan  chan error

	mu   sync.Mutex
	info transmux.StatisticsInfo
}

func newObserver(seekMs int64) *observer {
	return &observer{
		seekMs:   seekMs,
		doneChan: make(chan struct{}),
		errChan:  make(chan error, 1),
	}
}

func (o *observer) OnIoError(err *base.IoError) {
	o.fail(fmt.Errorf("%w. %s", errIo, err.Error()))
}

func (o *observer) OnDemuxError(err *base.DemuxError) {
	o.fail(fmt.Errorf("%w. %s", errDemux, err.Error()))
}

func (o *observer) OnMediaInfo(mi base.MediaInfo) {
	nazalog.Infof("media info. %+v", mi)
	if o.seekMs > 0 {
		o.seekOnce.Do(func() {
			nazalog.Infof("seek. ms=%d", o.seekMs)
			_ = o.tm.Seek(o.seekMs)
		})
	}
}

func (o *observer) OnRecommendSeekpoint(ms int64) {
	nazalog.Infof("recommend seekpoint. ms=%d", ms)
}

func (o *observer) OnStatisticsInfo(info transmux.StatisticsInfo) {
	o.mu.Lock()
	o.info = info
	o.mu.Unlock()
}

func (o *observer) OnLoadingComplete() {
	nazalog.Infof("loading complete.")
	o.doneOnce.Do(func() {
		close(o.doneChan)
	})
}

func (o *observer) statisticsInfo() transmux.StatisticsInfo {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.info
}

func (o *observer) fail(err error) {
	select {
	case o.errChan <- err:
	default:
	}
}

// ---------------------------------------------------------------------------------------------------------------------

func parseFlag() (parts []transmux.MediaPart, outDir string, confFile string, isLive bool, seekMs int64) {
	var pf partsFlag
	binInfoFlag := flag.Bool("v", false, "show bin info")
	flag.Var(&pf, "i", "specify input flv file or http-flv url, format: url[,duration_ms], may repeat for multi parts")
	o := flag.String("o", "", "specify output dir, default is ./out")
	c := flag.String("c", "", "specify conf file")
	live := flag.Bool("live", false, "input is live stream")
	seek := flag.Int64("seek", 0, "seek to ms after media info arrived")
	flag.Parse()
	if *binInfoFlag {
		_, _ = fmt.Fprint(os.Stderr, bininfo.StringifyMultiLine())
		_, _ = fmt.Fprintln(os.Stderr, base.LalFmp4FullInfo)
		os.Exit(0)
	}
	if len(pf) == 0 {
		flag.Usage()
		_, _ = fmt.Fprintf(os.Stderr, `
Example:
  ./bin/flv2fmp4 -i /tmp/test.flv -o /tmp/out
  ./bin/flv2fmp4 -i http://127.0.0.1:8080/live/test110.flv -live -o /tmp/out
  ./bin/flv2fmp4 -i /tmp/part1.flv,60000 -i /tmp/part2.flv,60000 -seek 90000 -c ./conf/flv2fmp4.conf.json
`)
		os.Exit(1)
	}
	return pf, *o, *c, *live, *seek
}
