package main

import (
	"sync"
	"time"

	"github.com/openfms/agvd/core/model"
)

// Battery models the pack voltage of a simulated vehicle. Driving
// drains it linearly, docking at a charge station refills it.
type Battery struct {
	Voltage        float64
	DrainPerMinute float64
	FillPerMinute  float64
	mu             sync.Mutex
}

func newBattery() *Battery {
	return &Battery{
		Voltage:        model.MaxBatteryVoltage,
		DrainPerMinute: 0.05,
		FillPerMinute:  0.5,
	}
}

// Drain lowers the voltage for dt of driving time.
func (b *Battery) Drain(dt time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Voltage -= b.DrainPerMinute * dt.Minutes()
	if b.Voltage < model.MinBatteryVoltage {
		b.Voltage = model.MinBatteryVoltage
	}
}

// Charge raises the voltage for dt of charging time.
func (b *Battery) Charge(dt time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Voltage += b.FillPerMinute * dt.Minutes()
	if b.Voltage > model.MaxBatteryVoltage {
		b.Voltage = model.MaxBatteryVoltage
	}
}

// Read returns the current voltage and charge percentage.
func (b *Battery) Read() (float64, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Voltage, model.BatteryPercentFromVoltage(b.Voltage)
}
