package aws

import (
	"context"
	"regexp"
	"strings"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/shopspring/decimal"

	"wastescan/internal/errors"
)

// costHistoryMonths is how far back the global cost fetch reaches
const costHistoryMonths = 3

// cpuSampleDays is the trailing window for utilization averages
const cpuSampleDays = 14

// Client is the upstream API boundary for the cloud provider
type Client interface {
	StoppedInstances(ctx context.Context, region string) ([]Instance, error)
	UnattachedVolumes(ctx context.Context, region string) ([]Volume, error)
	IdleAddresses(ctx context.Context, region string) ([]Address, error)

	// CPUUtilization samples the trailing average CPU of every
	// running instance in a region
	CPUUtilization(ctx context.Context, region string) ([]CPUSample, error)

	// CostHistory returns native monthly spend keyed by period,
	// covering the trailing history window
	CostHistory(ctx context.Context) (map[string]decimal.Decimal, error)
}

type sdkClient struct {
	cfg awssdk.Config
	now func() time.Time
}

// NewClient builds an SDK-backed client from an "accessKey:secretKey"
// credential pair
func NewClient(ctx context.Context, secret string) (Client, error) {
	accessKey, secretKey, ok := strings.Cut(secret, ":")
	if !ok || accessKey == "" || secretKey == "" {
		return nil, errors.Auth("cloud credential must be accessKey:secretKey")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(scanRegions[0]),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		return nil, errors.TransientProvider("failed to load cloud config", err)
	}
	return &sdkClient{cfg: cfg, now: time.Now}, nil
}

// ec2For builds a region-scoped service client. A fresh value per
// call keeps concurrent region scans from interfering with each other.
func (c *sdkClient) ec2For(region string) *ec2.Client {
	return ec2.NewFromConfig(c.cfg, func(o *ec2.Options) {
		o.Region = region
	})
}

var transitionReasonRegex = regexp.MustCompile(`\(([^)]+)\)`)

// parseTransitionDate extracts the stop timestamp embedded in an
// instance state transition reason, e.g.
// "User initiated (2026-07-01 10:02:33 GMT)"
func parseTransitionDate(reason string) (time.Time, bool) {
	matches := transitionReasonRegex.FindStringSubmatch(reason)
	if len(matches) < 2 {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02 15:04:05 MST", matches[1])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (c *sdkClient) StoppedInstances(ctx context.Context, region string) ([]Instance, error) {
	client := c.ec2For(region)
	output, err := client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			{
				Name:   awssdk.String("instance-state-name"),
				Values: []string{"stopped"},
			},
		},
	})
	if err != nil {
		return nil, errors.TransientProvider("failed to describe instances in "+region, err)
	}

	var instances []Instance
	for _, reservation := range output.Reservations {
		for _, inst := range reservation.Instances {
			record := Instance{
				ID:           awssdk.ToString(inst.InstanceId),
				InstanceType: string(inst.InstanceType),
				Region:       region,
			}
			for _, tag := range inst.Tags {
				if awssdk.ToString(tag.Key) == "Name" {
					record.Name = awssdk.ToString(tag.Value)
				}
			}
			if stoppedAt, ok := parseTransitionDate(awssdk.ToString(inst.StateTransitionReason)); ok {
				record.StoppedSince = &stoppedAt
			}
			instances = append(instances, record)
		}
	}
	return instances, nil
}

func (c *sdkClient) UnattachedVolumes(ctx context.Context, region string) ([]Volume, error) {
	client := c.ec2For(region)
	output, err := client.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{
		Filters: []ec2types.Filter{
			{
				Name:   awssdk.String("status"),
				Values: []string{"available"},
			},
		},
	})
	if err != nil {
		return nil, errors.TransientProvider("failed to describe volumes in "+region, err)
	}

	var volumes []Volume
	for _, vol := range output.Volumes {
		volumes = append(volumes, Volume{
			ID:      awssdk.ToString(vol.VolumeId),
			SizeGiB: int64(awssdk.ToInt32(vol.Size)),
			Region:  region,
		})
	}
	return volumes, nil
}

func (c *sdkClient) IdleAddresses(ctx context.Context, region string) ([]Address, error) {
	client := c.ec2For(region)
	output, err := client.DescribeAddresses(ctx, nil)
	if err != nil {
		return nil, errors.TransientProvider("failed to describe addresses in "+region, err)
	}

	var addresses []Address
	for _, addr := range output.Addresses {
		if addr.AssociationId == nil {
			addresses = append(addresses, Address{
				PublicIP: awssdk.ToString(addr.PublicIp),
				Region:   region,
			})
		}
	}
	return addresses, nil
}

func (c *sdkClient) CPUUtilization(ctx context.Context, region string) ([]CPUSample, error) {
	client := c.ec2For(region)
	output, err := client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			{
				Name:   awssdk.String("instance-state-name"),
				Values: []string{"running"},
			},
		},
	})
	if err != nil {
		return nil, errors.TransientProvider("failed to describe instances in "+region, err)
	}

	cw := cloudwatch.NewFromConfig(c.cfg, func(o *cloudwatch.Options) {
		o.Region = region
	})
	end := c.now().UTC()
	start := end.AddDate(0, 0, -cpuSampleDays)

	var samples []CPUSample
	for _, reservation := range output.Reservations {
		for _, inst := range reservation.Instances {
			sample := CPUSample{
				InstanceID:   awssdk.ToString(inst.InstanceId),
				InstanceType: string(inst.InstanceType),
				Region:       region,
			}
			for _, tag := range inst.Tags {
				if awssdk.ToString(tag.Key) == "Name" {
					sample.Name = awssdk.ToString(tag.Value)
				}
			}

			stats, err := cw.GetMetricStatistics(ctx, &cloudwatch.GetMetricStatisticsInput{
				Namespace:  awssdk.String("AWS/EC2"),
				MetricName: awssdk.String("CPUUtilization"),
				Dimensions: []cwtypes.Dimension{
					{
						Name:  awssdk.String("InstanceId"),
						Value: inst.InstanceId,
					},
				},
				StartTime:  awssdk.Time(start),
				EndTime:    awssdk.Time(end),
				Period:     awssdk.Int32(86400),
				Statistics: []cwtypes.Statistic{cwtypes.StatisticAverage},
			})
			if err != nil {
				return nil, errors.TransientProvider("failed to fetch CPU metrics in "+region, err)
			}
			if len(stats.Datapoints) == 0 {
				continue
			}
			var sum float64
			for _, dp := range stats.Datapoints {
				sum += awssdk.ToFloat64(dp.Average)
			}
			sample.AvgCPU = sum / float64(len(stats.Datapoints))
			samples = append(samples, sample)
		}
	}
	return samples, nil
}

func (c *sdkClient) CostHistory(ctx context.Context) (map[string]decimal.Decimal, error) {
	client := costexplorer.NewFromConfig(c.cfg)

	now := c.now().UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).
		AddDate(0, -costHistoryMonths, 0)

	output, err := client.GetCostAndUsage(ctx, &costexplorer.GetCostAndUsageInput{
		Granularity: cetypes.GranularityMonthly,
		TimePeriod: &cetypes.DateInterval{
			Start: awssdk.String(start.Format("2006-01-02")),
			End:   awssdk.String(now.Format("2006-01-02")),
		},
		Metrics: []string{"UnblendedCost"},
	})
	if err != nil {
		return nil, errors.TransientProvider("failed to fetch cost history", err)
	}

	history := make(map[string]decimal.Decimal)
	for _, result := range output.ResultsByTime {
		metric, ok := result.Total["UnblendedCost"]
		if !ok || metric.Amount == nil {
			continue
		}
		amount, err := decimal.NewFromString(awssdk.ToString(metric.Amount))
		if err != nil {
			continue
		}
		periodStart, err := time.Parse("2006-01-02", awssdk.ToString(result.TimePeriod.Start))
		if err != nil {
			continue
		}
		history[periodStart.Format("2006-01")] = amount
	}
	return history, nil
}
