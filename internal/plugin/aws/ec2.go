package aws

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/yairfalse/birthmark/internal/audit"
	"github.com/yairfalse/birthmark/pkg/resource"
)

const instancesPath = "responseElements.instancesSet.items"

// ec2Adapter reconciles RunInstances events with DescribeInstances. One
// RunInstances call can launch several instances; every one is reported.
type ec2Adapter struct {
	*adapter
	client EC2API
}

func newEC2Adapter(client EC2API, rt *runtime) *ec2Adapter {
	a := &ec2Adapter{client: client}
	a.adapter = &adapter{
		eventSpec: eventSpec{
			kind:          "ec2",
			eventName:     "RunInstances",
			eventSource:   "ec2.amazonaws.com",
			resourceType:  "AWS::EC2::Instance",
			identityPaths: []string{instancesPath + ".0.instanceId"},
		},
		rt:   rt,
		list: a.listInstances,
	}
	return a
}

// ExtractIdentities returns every instance id launched by the event.
func (a *ec2Adapter) ExtractIdentities(p audit.Payload) ([]string, error) {
	ids := p.Strings(instancesPath, "instanceId")
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: RunInstances event has no instancesSet items", resource.ErrMalformedPayload)
	}
	return ids, nil
}

func (a *ec2Adapter) listInstances(ctx context.Context) ([]resource.LiveResource, error) {
	var resources []resource.LiveResource
	var nextToken *string

	for {
		output, err := call(ctx, a.rt, "ec2.DescribeInstances", func(ctx context.Context) (*ec2.DescribeInstancesOutput, error) {
			return a.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{NextToken: nextToken})
		})
		if err != nil {
			return nil, fmt.Errorf("describe instances: %w", err)
		}

		for _, reservation := range output.Reservations {
			for _, instance := range reservation.Instances {
				resources = append(resources, convertEC2Instance(instance))
			}
		}

		if output.NextToken == nil {
			break
		}
		nextToken = output.NextToken
	}

	return resources, nil
}

func convertEC2Instance(instance ec2types.Instance) resource.LiveResource {
	status := "unknown"
	if instance.State != nil {
		status = string(instance.State.Name)
	}
	r := newLive(aws.ToString(instance.InstanceId), extractNameTag(instance.Tags), status)
	r.Attrs["instance_type"] = string(instance.InstanceType)
	if instance.Placement != nil {
		r.Attrs["az"] = aws.ToString(instance.Placement.AvailabilityZone)
	}
	r.Attrs["vpc_id"] = aws.ToString(instance.VpcId)
	r.Attrs["private_ip"] = aws.ToString(instance.PrivateIpAddress)
	return r
}

// InstanceStateChange is one entry of a terminate response.
type InstanceStateChange struct {
	InstanceID    string `json:"instanceId"`
	PreviousState string `json:"previousState"`
	CurrentState  string `json:"currentState"`
}

// Delete terminates the instance.
func (a *ec2Adapter) Delete(ctx context.Context, id string) (any, error) {
	output, err := call(ctx, a.rt, "ec2.TerminateInstances", func(ctx context.Context) (*ec2.TerminateInstancesOutput, error) {
		return a.client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: []string{id}})
	})
	if err != nil {
		return nil, fmt.Errorf("terminate instance %s: %w", id, err)
	}

	changes := make([]InstanceStateChange, 0, len(output.TerminatingInstances))
	for _, c := range output.TerminatingInstances {
		change := InstanceStateChange{InstanceID: aws.ToString(c.InstanceId)}
		if c.PreviousState != nil {
			change.PreviousState = string(c.PreviousState.Name)
		}
		if c.CurrentState != nil {
			change.CurrentState = string(c.CurrentState.Name)
		}
		changes = append(changes, change)
	}
	return changes, nil
}

func newVPCAdapter(client EC2API, rt *runtime) *adapter {
	return &adapter{
		eventSpec: eventSpec{
			kind:          "vpc",
			eventName:     "CreateVpc",
			eventSource:   "ec2.amazonaws.com",
			resourceType:  "AWS::EC2::VPC",
			identityPaths: []string{"responseElements.vpc.vpcId"},
		},
		rt: rt,
		list: func(ctx context.Context) ([]resource.LiveResource, error) {
			var resources []resource.LiveResource
			var nextToken *string

			for {
				output, err := call(ctx, rt, "ec2.DescribeVpcs", func(ctx context.Context) (*ec2.DescribeVpcsOutput, error) {
					return client.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{NextToken: nextToken})
				})
				if err != nil {
					return nil, fmt.Errorf("describe vpcs: %w", err)
				}

				for _, vpc := range output.Vpcs {
					r := newLive(aws.ToString(vpc.VpcId), extractNameTag(vpc.Tags), string(vpc.State))
					r.Attrs["cidr"] = aws.ToString(vpc.CidrBlock)
					r.Attrs["is_default"] = strconv.FormatBool(aws.ToBool(vpc.IsDefault))
					resources = append(resources, r)
				}

				if output.NextToken == nil {
					break
				}
				nextToken = output.NextToken
			}

			return resources, nil
		},
	}
}

// extractNameTag extracts the Name tag from EC2 tags.
func extractNameTag(tags []ec2types.Tag) string {
	for _, tag := range tags {
		if aws.ToString(tag.Key) == "Name" {
			return aws.ToString(tag.Value)
		}
	}
	return ""
}
