package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/vaibhav2408/config-manager/internal/detector"
)

type lambdaAPI interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// Lambda invokes a function asynchronously with the JSON encoded change as
// payload.
type Lambda struct {
	client   lambdaAPI
	function string
	logger   *slog.Logger
}

// NewLambda creates a Lambda notifier for the given function name or ARN.
func NewLambda(ctx context.Context, function, region string, logger *slog.Logger) (*Lambda, error) {
	awsCfg, err := loadAWSConfig(ctx, region)
	if err != nil {
		return nil, err
	}
	return newLambdaWithAPI(lambda.NewFromConfig(awsCfg), function, logger), nil
}

func newLambdaWithAPI(api lambdaAPI, function string, logger *slog.Logger) *Lambda {
	return &Lambda{client: api, function: function, logger: logger}
}

func (l *Lambda) Notify(ctx context.Context, ch detector.Change) error {
	payload, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("marshaling change of %s: %w", ch.ServiceID, err)
	}

	out, err := l.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(l.function),
		InvocationType: lambdatypes.InvocationTypeEvent,
		Payload:        payload,
	})
	if err != nil {
		return fmt.Errorf("invoking %s: %w", l.function, err)
	}
	if out.FunctionError != nil {
		return fmt.Errorf("%s returned error: %s", l.function, aws.ToString(out.FunctionError))
	}

	l.logger.Debug("invoked change handler",
		"function", l.function,
		"service_id", ch.ServiceID,
		"status_code", out.StatusCode,
	)
	return nil
}
