package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/memorydb"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/redshift"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/yairfalse/birthmark/internal/audit"
)

// Clients holds one handle per AWS service. Fields are interfaces so tests
// can inject fakes; a nil field leaves its adapters out of the registry.
type Clients struct {
	Region string

	CloudTrail     audit.LookupEventsAPI
	STS            STSAPI
	EC2            EC2API
	RDS            RDSAPI
	EKS            EKSAPI
	Lambda         LambdaAPI
	DynamoDB       DynamoDBAPI
	ECS            ECSAPI
	SQS            SQSAPI
	Redshift       RedshiftAPI
	MemoryDB       MemoryDBAPI
	Route53        Route53API
	ECR            ECRAPI
	S3             S3API
	ELB            ELBAPI
	AutoScaling    AutoScalingAPI
	IAM            IAMAPI
	KMS            KMSAPI
	CloudWatchLogs CloudWatchLogsAPI
}

// ClientConfig selects the region and shared-config profile.
type ClientConfig struct {
	Region  string
	Profile string
}

// NewClients loads the default credential chain and builds every client.
// SDK retries are disabled; rate-limit handling belongs to the backoff package.
func NewClients(ctx context.Context, cfg ClientConfig) (*Clients, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &Clients{
		Region:         cfg.Region,
		CloudTrail:     cloudtrail.NewFromConfig(awsCfg),
		STS:            sts.NewFromConfig(awsCfg),
		EC2:            ec2.NewFromConfig(awsCfg),
		RDS:            rds.NewFromConfig(awsCfg),
		EKS:            eks.NewFromConfig(awsCfg),
		Lambda:         lambda.NewFromConfig(awsCfg),
		DynamoDB:       dynamodb.NewFromConfig(awsCfg),
		ECS:            ecs.NewFromConfig(awsCfg),
		SQS:            sqs.NewFromConfig(awsCfg),
		Redshift:       redshift.NewFromConfig(awsCfg),
		MemoryDB:       memorydb.NewFromConfig(awsCfg),
		Route53:        route53.NewFromConfig(awsCfg),
		ECR:            ecr.NewFromConfig(awsCfg),
		S3:             s3.NewFromConfig(awsCfg),
		ELB:            elasticloadbalancingv2.NewFromConfig(awsCfg),
		AutoScaling:    autoscaling.NewFromConfig(awsCfg),
		IAM:            iam.NewFromConfig(awsCfg),
		KMS:            kms.NewFromConfig(awsCfg),
		CloudWatchLogs: cloudwatchlogs.NewFromConfig(awsCfg),
	}, nil
}

// CallerIdentity is the account and principal the clients act as.
type CallerIdentity struct {
	Account string `json:"account"`
	ARN     string `json:"arn"`
	UserID  string `json:"userId"`
}

// Identity resolves the caller identity through STS.
func Identity(ctx context.Context, client STSAPI) (CallerIdentity, error) {
	out, err := client.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return CallerIdentity{}, fmt.Errorf("get caller identity: %w", err)
	}
	return CallerIdentity{
		Account: aws.ToString(out.Account),
		ARN:     aws.ToString(out.Arn),
		UserID:  aws.ToString(out.UserId),
	}, nil
}
