// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package snmp periodically appends CSV rows of prompeg decoder
// counters to a log file, the way std/snmp.go did for kcp.DefaultSnmp.
package snmp

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/xtaci/prompegtun/prompeg"
)

// Source is anything whose counters can be logged; *prompeg.Decoder
// satisfies it directly.
type Source interface {
	RestoredPackets() uint64
	FailedPackets() uint64
	MediaCount() int
	FECRowCount() int
	FECColCount() int
	RestoredRatio() float64
}

var _ Source = (*prompeg.Decoder)(nil)

func header() []string {
	return []string{"Unix", "RestoredPackets", "FailedPackets", "MediaCount", "FECRowCount", "FECColCount", "RestoredRatio"}
}

func row(s Source) []string {
	return []string{
		fmt.Sprint(time.Now().Unix()),
		fmt.Sprint(s.RestoredPackets()),
		fmt.Sprint(s.FailedPackets()),
		fmt.Sprint(s.MediaCount()),
		fmt.Sprint(s.FECRowCount()),
		fmt.Sprint(s.FECColCount()),
		fmt.Sprintf("%.02f", s.RestoredRatio()),
	}
}

// Logger appends one CSV row of s's counters to path once per interval,
// until stop is closed. path is interpreted as a
// time.Format layout for its filename component, so a path like
// "stats-20060102.csv" rolls to a new file per day, matching
// std/snmp.go's SnmpLogger.
func Logger(path string, interval time.Duration, s Source, stop <-chan struct{}) {
	if path == "" || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			logdir, logfile := filepath.Split(path)
			f, err := os.OpenFile(logdir+time.Now().Format(logfile), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
			if err != nil {
				log.Println("snmp:", err)
				continue
			}
			w := csv.NewWriter(f)
			if stat, err := f.Stat(); err == nil && stat.Size() == 0 {
				if err := w.Write(header()); err != nil {
					log.Println("snmp:", err)
				}
			}
			if err := w.Write(row(s)); err != nil {
				log.Println("snmp:", err)
			}
			w.Flush()
			f.Close()
		}
	}
}
