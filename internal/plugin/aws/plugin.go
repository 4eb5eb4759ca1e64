// Package aws implements resource-kind adapters backed by the AWS SDK.
package aws

import (
	"github.com/yairfalse/birthmark/internal/backoff"
	"github.com/yairfalse/birthmark/internal/plugin"
)

// DefaultWorkers bounds concurrent describe calls per kind.
const DefaultWorkers = 8

// Options are shared by every adapter.
type Options struct {
	Retry         *backoff.Controller
	Workers       int
	RatePerSecond float64
}

// Adapters builds one adapter per kind whose client is configured.
func Adapters(c *Clients, opts Options) []plugin.Adapter {
	rt := newRuntime(opts)

	var adapters []plugin.Adapter
	if c.EC2 != nil {
		adapters = append(adapters, newEC2Adapter(c.EC2, rt), newVPCAdapter(c.EC2, rt))
	}
	if c.RDS != nil {
		adapters = append(adapters, newRDSAdapter(c.RDS, rt))
	}
	if c.EKS != nil {
		adapters = append(adapters, newEKSAdapter(c.EKS, rt))
	}
	if c.Lambda != nil {
		adapters = append(adapters, newLambdaAdapter(c.Lambda, rt))
	}
	if c.DynamoDB != nil {
		adapters = append(adapters, newDynamoDBAdapter(c.DynamoDB, rt))
	}
	if c.ECS != nil {
		adapters = append(adapters, newECSAdapter(c.ECS, rt))
	}
	if c.SQS != nil {
		adapters = append(adapters, newSQSAdapter(c.SQS, rt))
	}
	if c.Redshift != nil {
		adapters = append(adapters, newRedshiftAdapter(c.Redshift, rt))
	}
	if c.MemoryDB != nil {
		adapters = append(adapters, newMemoryDBAdapter(c.MemoryDB, rt))
	}
	if c.Route53 != nil {
		adapters = append(adapters, newRoute53Adapter(c.Route53, rt))
	}
	if c.ECR != nil {
		adapters = append(adapters, newECRAdapter(c.ECR, rt))
	}
	if c.S3 != nil {
		adapters = append(adapters, newS3Adapter(c.S3, rt))
	}
	if c.ELB != nil {
		adapters = append(adapters, newELBAdapter(c.ELB, rt))
	}
	if c.AutoScaling != nil {
		adapters = append(adapters, newASGAdapter(c.AutoScaling, rt))
	}
	if c.IAM != nil {
		adapters = append(adapters, newIAMRoleAdapter(c.IAM, rt))
	}
	if c.KMS != nil {
		adapters = append(adapters, newKMSAdapter(c.KMS, rt))
	}
	if c.CloudWatchLogs != nil {
		adapters = append(adapters, newCloudWatchLogsAdapter(c.CloudWatchLogs, rt))
	}
	return adapters
}

// NewRegistry registers every configured adapter once at startup.
func NewRegistry(c *Clients, opts Options) *plugin.Registry {
	return plugin.NewRegistry(Adapters(c, opts)...)
}
