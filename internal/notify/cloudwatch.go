package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/vaibhav2408/config-manager/internal/detector"
)

// cloudwatchAPI is the subset of CloudWatch operations needed to publish
// change metrics.
type cloudwatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatch publishes a ConfigChanges data point for every detected change,
// dimensioned by service id.
type CloudWatch struct {
	client    cloudwatchAPI
	namespace string
	logger    *slog.Logger
}

// NewCloudWatch creates a CloudWatch notifier publishing into namespace.
func NewCloudWatch(ctx context.Context, namespace, region string, logger *slog.Logger) (*CloudWatch, error) {
	awsCfg, err := loadAWSConfig(ctx, region)
	if err != nil {
		return nil, err
	}
	return newCloudWatchWithAPI(cloudwatch.NewFromConfig(awsCfg), namespace, logger), nil
}

func newCloudWatchWithAPI(api cloudwatchAPI, namespace string, logger *slog.Logger) *CloudWatch {
	return &CloudWatch{client: api, namespace: namespace, logger: logger}
}

func (c *CloudWatch) Notify(ctx context.Context, ch detector.Change) error {
	dims := []cwtypes.Dimension{{
		Name:  aws.String("ServiceId"),
		Value: aws.String(ch.ServiceID),
	}}
	ts := aws.Time(ch.DetectedAt)

	_, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(c.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String("ConfigChanges"),
				Dimensions: dims,
				Timestamp:  ts,
				Unit:       cwtypes.StandardUnitCount,
				Value:      aws.Float64(1),
			},
			{
				MetricName: aws.String("ChangedConfigs"),
				Dimensions: dims,
				Timestamp:  ts,
				Unit:       cwtypes.StandardUnitCount,
				Value:      aws.Float64(float64(len(ch.Changed) + len(ch.Removed))),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("publishing change metric for %s: %w", ch.ServiceID, err)
	}

	c.logger.Debug("published change metric", "namespace", c.namespace, "service_id", ch.ServiceID)
	return nil
}
