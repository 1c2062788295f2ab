// cmd/ptdiag/main.go
//
// ptdiag drives the driver against a real adapter: open, firmware
// version, battery voltage, then optionally a channel connect with a
// pass-everything filter and a short receive loop.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"passthru-go/driver"
	"passthru-go/errcode"
	"passthru-go/j2534"
)

var protocols = map[string]j2534.Protocol{
	"can":      j2534.CAN,
	"iso15765": j2534.ISO15765,
	"iso9141":  j2534.ISO9141,
	"iso14230": j2534.ISO14230,
	"j1850vpw": j2534.J1850VPW,
	"j1850pwm": j2534.J1850PWM,
}

func main() {
	proto := flag.String("proto", "", "connect a channel: can, iso15765, iso9141, iso14230, j1850vpw, j1850pwm")
	baud := flag.Uint("baud", 500000, "channel baud rate")
	listen := flag.Duration("listen", 5*time.Second, "how long to poll for received messages")
	flag.Parse()

	var deviceID uint32
	if code := driver.PassThruOpen("", &deviceID); code != errcode.NoError {
		die("open", code)
	}
	defer driver.PassThruClose(deviceID)
	fmt.Printf("device open, id 0x%04X\n", deviceID)

	var fw, dll, api string
	if code := driver.PassThruReadVersion(deviceID, &fw, &dll, &api); code != errcode.NoError {
		die("read version", code)
	}
	fmt.Printf("firmware %s, driver %s, api %s\n", fw, dll, api)

	var mv uint32
	if code := driver.PassThruIoctl(0, uint32(j2534.ReadVBatt), nil, &mv); code != errcode.NoError {
		die("read vbatt", code)
	}
	fmt.Printf("battery: %d mV\n", mv)

	if *proto == "" {
		return
	}
	p, ok := protocols[strings.ToLower(*proto)]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown protocol %q\n", *proto)
		os.Exit(2)
	}

	var channelID uint32
	if code := driver.PassThruConnect(deviceID, uint32(p), 0, uint32(*baud), &channelID); code != errcode.NoError {
		die("connect", code)
	}
	defer driver.PassThruDisconnect(channelID)
	fmt.Printf("channel %d up (%s @ %d)\n", channelID, p, *baud)

	// Pass everything: zero mask matches all ids.
	var mask, pattern j2534.Msg
	mask.ProtocolID = uint32(p)
	mask.SetBytes([]byte{0x00, 0x00, 0x00, 0x00})
	pattern.ProtocolID = uint32(p)
	pattern.SetBytes([]byte{0x00, 0x00, 0x00, 0x00})
	var filterID uint32
	if code := driver.PassThruStartMsgFilter(channelID, uint32(j2534.PassFilter), &mask, &pattern, nil, &filterID); code != errcode.NoError {
		die("start filter", code)
	}
	fmt.Printf("pass filter %d installed, listening %s...\n", filterID, *listen)

	deadline := time.Now().Add(*listen)
	msgs := make([]j2534.Msg, 16)
	total := 0
	for time.Now().Before(deadline) {
		count := uint32(len(msgs))
		code := driver.PassThruReadMsgs(channelID, msgs, &count, 0)
		for i := uint32(0); i < count; i++ {
			fmt.Printf("  rx %s\n", msgs[i].String())
		}
		total += int(count)
		if code == errcode.BufferEmpty {
			time.Sleep(50 * time.Millisecond)
		}
	}
	fmt.Printf("%d messages received\n", total)
}

func die(op string, code errcode.Code) {
	var desc string
	driver.PassThruGetLastError(&desc)
	if desc != "" {
		desc = " (" + desc + ")"
	}
	fmt.Fprintf(os.Stderr, "%s failed: %s%s\n", op, code, desc)
	os.Exit(1)
}
