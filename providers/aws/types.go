// Package aws implements the cloud-compute provider plugin.
package aws

import (
	"time"

	"github.com/shopspring/decimal"

	"wastescan/core/types"
)

// scanRegions is the fixed region list every full scan enumerates
var scanRegions = []string{
	"us-east-1",
	"us-west-2",
	"eu-west-1",
	"eu-central-1",
	"ap-southeast-1",
}

// Regions returns a copy of the fixed region list
func Regions() []string {
	out := make([]string, len(scanRegions))
	copy(out, scanRegions)
	return out
}

// Instance is a stopped compute instance, tagged with its origin region
type Instance struct {
	ID           string
	Name         string
	InstanceType string
	Region       string

	// StoppedSince is parsed from the state transition reason when
	// the provider exposes it
	StoppedSince *time.Time
}

// Volume is an unattached block storage volume
type Volume struct {
	ID      string
	SizeGiB int64
	Region  string
}

// Address is an allocated but unassociated elastic IP
type Address struct {
	PublicIP string
	Region   string
}

// CPUSample is a running instance paired with its trailing average
// CPU utilization, as a 0-100 percentage
type CPUSample struct {
	InstanceID   string
	Name         string
	InstanceType string
	Region       string
	AvgCPU       float64
}

// Snapshot is the normalized usage snapshot handed to classification
type Snapshot struct {
	// Regions actually scanned; free-tier snapshots cover only the
	// first region of the fixed list
	Regions []string

	StoppedInstances  []Instance
	UnattachedVolumes []Volume
	IdleAddresses     []Address

	// CPUSamples covers running instances only; classification picks
	// out the under-utilized ones
	CPUSamples []CPUSample

	// CostByPeriod is the global cost history, period key to native
	// monthly spend, fetched once per scan
	CostByPeriod map[string]decimal.Decimal
}

// Provider implements types.UsageSnapshot
func (s Snapshot) Provider() types.Provider {
	return types.ProviderAWS
}

// IsEmpty implements types.UsageSnapshot
func (s Snapshot) IsEmpty() bool {
	return len(s.Regions) == 0
}
