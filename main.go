package main

import (
	"context"
	"time"

	"github.com/ftrias/MCP4551/bus"
	"github.com/ftrias/MCP4551/services/bridge"
	"github.com/ftrias/MCP4551/services/config"
	"github.com/ftrias/MCP4551/services/hal"
	"github.com/ftrias/MCP4551/services/hal/platform"
	"github.com/ftrias/MCP4551/services/heartbeat"
)

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	println("boot", platform.BoardID)

	ctx := context.WithValue(context.Background(), config.CtxDeviceKey, platform.BoardID)

	buses, err := platform.Open(platform.DefaultPlan)
	if err != nil {
		println("Error: i2c:", err.Error())
		return
	}

	b := bus.NewBus(8)

	go hal.Run(ctx, b.NewConnection("hal"), buses)

	hb := &heartbeat.Service{}
	_ = hb.Start(ctx, b.NewConnection("heartbeat"))

	bridge.UARTDial = platform.DialUART
	go bridge.Start(ctx, b.NewConnection("bridge"))

	config.NewConfigService().Start(ctx, b.NewConnection("config"))

	select {}
}
