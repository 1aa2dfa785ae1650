package aws

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"wastescan/core/pricing"
	"wastescan/core/rules"
	"wastescan/core/types"
)

type ruleSet struct{}

// Provider implements rules.RuleSet
func (ruleSet) Provider() types.Provider {
	return types.ProviderAWS
}

// Evaluate implements rules.RuleSet. The cloud provider is metered,
// so there is no free plan to guard: any resource left allocated
// incurs cost. Four categories, each emitted even when healthy so a
// clean region sweep is distinguishable from an unscanned one.
func (ruleSet) Evaluate(in rules.Input) []types.Finding {
	snap, ok := in.Snapshot.(Snapshot)
	if !ok || snap.IsEmpty() {
		return nil
	}

	conn := in.Connection
	findings := make([]types.Finding, 0, 4)

	// Stopped instances
	if n := len(snap.StoppedInstances); n > 0 {
		savings := in.Table.Convert(
			decimal.NewFromInt(int64(n)).Mul(pricing.RateStoppedInstanceMonth))
		longest := 0
		for _, inst := range snap.StoppedInstances {
			if inst.StoppedSince != nil {
				if d := rules.DaysSince(in.Now, *inst.StoppedSince); d > longest {
					longest = d
				}
			}
		}
		reason := fmt.Sprintf("%d stopped instances across %s still accrue storage charges",
			n, regionList(snap.StoppedInstances))
		if longest > 0 {
			reason = fmt.Sprintf("%s; the longest has been stopped %d days", reason, longest)
		}
		findings = append(findings, rules.Actionable(conn, types.FindingZombie,
			"instance", fmt.Sprintf("%d stopped instances", n), savings, reason))
	} else {
		findings = append(findings, rules.Healthy(conn, "instance", "Stopped instances",
			fmt.Sprintf("No stopped instances in %d regions scanned", len(snap.Regions))))
	}

	// Unattached volumes
	if n := len(snap.UnattachedVolumes); n > 0 {
		var totalGiB int64
		for _, vol := range snap.UnattachedVolumes {
			totalGiB += vol.SizeGiB
		}
		savings := in.Table.Convert(
			decimal.NewFromInt(totalGiB).Mul(pricing.RateEBSGiBMonth))
		findings = append(findings, rules.Actionable(conn, types.FindingUnused,
			"volume", fmt.Sprintf("%d unattached volumes", n), savings,
			fmt.Sprintf("%d volumes totalling %d GiB are not attached to any instance", n, totalGiB)))
	} else {
		findings = append(findings, rules.Healthy(conn, "volume", "Unattached volumes",
			"Every volume is attached to an instance"))
	}

	// Idle elastic IPs
	if n := len(snap.IdleAddresses); n > 0 {
		savings := in.Table.Convert(
			decimal.NewFromInt(int64(n)).Mul(pricing.RateIdleAddressMonth))
		findings = append(findings, rules.Actionable(conn, types.FindingZombie,
			"elastic_ip", fmt.Sprintf("%d idle elastic IPs", n), savings,
			fmt.Sprintf("%d elastic IP addresses are allocated but not associated", n)))
	} else {
		findings = append(findings, rules.Healthy(conn, "elastic_ip", "Elastic IPs",
			"All allocated elastic IPs are associated"))
	}

	// Under-utilized running instances. A downgrade to the next
	// smaller size roughly halves the run cost, so half the monthly
	// cost is the recoverable estimate.
	bound := in.Thresholds.UtilizationLowerBound * 100
	var idle []CPUSample
	for _, sample := range snap.CPUSamples {
		if sample.AvgCPU < bound {
			idle = append(idle, sample)
		}
	}
	if n := len(idle); n > 0 {
		total := decimal.Zero
		lowest := idle[0]
		for _, sample := range idle {
			total = total.Add(pricing.InstanceMonthlyCost(sample.InstanceType))
			if sample.AvgCPU < lowest.AvgCPU {
				lowest = sample
			}
		}
		savings := in.Table.Convert(total.Div(decimal.NewFromInt(2)))
		findings = append(findings, rules.Actionable(conn, types.FindingDowngrade,
			"instance_size", fmt.Sprintf("%d under-utilized instances", n), savings,
			fmt.Sprintf("%d running instances average below %.0f%% CPU; the quietest (%s) sits at %.1f%%",
				n, bound, lowest.InstanceID, lowest.AvgCPU)))
	} else {
		findings = append(findings, rules.Healthy(conn, "instance_size", "Instance sizing",
			"No running instance averages below the utilization bound"))
	}

	return findings
}

func regionList(instances []Instance) string {
	seen := make(map[string]bool)
	var regions []string
	for _, inst := range instances {
		if !seen[inst.Region] {
			seen[inst.Region] = true
			regions = append(regions, inst.Region)
		}
	}
	sort.Strings(regions)
	return strings.Join(regions, ", ")
}
