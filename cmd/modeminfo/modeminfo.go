// SPDX-License-Identifier: MIT
//
// Copyright © 2018 Kent Gibson <warthog618@gmail.com>.

// modeminfo collects and displays information related to the modem and its
// current configuration.
//
// Unlike the info command of sim7080, modeminfo never toggles the power key,
// so the modem must already be powered on.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/warthog618/sim7080/at"
	"github.com/warthog618/sim7080/serial"
	"github.com/warthog618/sim7080/sim7080"
	"github.com/warthog618/sim7080/trace"
)

var version = "undefined"

func main() {
	dev := flag.String("d", "/dev/ttyS0", "path to modem device")
	baud := flag.Int("b", 115200, "baud rate")
	timeout := flag.Duration("t", 400*time.Millisecond, "command timeout period")
	verbose := flag.Bool("v", false, "log modem interactions")
	vsn := flag.Bool("version", false, "report version and exit")
	flag.Parse()
	if *vsn {
		fmt.Printf("%s %s\n", os.Args[0], version)
		os.Exit(0)
	}
	log := zap.NewNop()
	if *verbose {
		log, _ = zap.NewDevelopment()
	}
	m, err := serial.New(serial.WithPort(*dev), serial.WithBaud(*baud))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer m.Close()
	var mio io.ReadWriter = m
	if *verbose {
		mio = trace.New(m, trace.WithLogger(log))
	}
	a := at.New(mio, at.WithTimeout(*timeout), at.WithLogger(log))
	if rsp := a.Execute("E0"); rsp.IsError() {
		fmt.Fprintf(os.Stderr, "modem not responding: %s\n", rsp.Status)
		return
	}
	cmds := append([]string{
		"+CGMI",
		"+CGMM",
		"+CGMR",
		"+CGSN",
		"+CIMI",
		"+CCID",
		"+COPS?",
		"+CBANDCFG?",
		"+CMNB?",
		"+CGNAPN",
	}, sim7080.InfoCommands...)
	for _, cmd := range cmds {
		rsp := a.Execute(cmd)
		fmt.Println("AT" + cmd)
		if rsp.IsError() {
			if rsp.Err != nil {
				fmt.Printf(" %s\n", rsp.Err)
			} else {
				fmt.Printf(" %s\n", rsp.Status)
			}
			continue
		}
		for _, l := range rsp.Message {
			fmt.Printf(" %s\n", l)
		}
	}
}
