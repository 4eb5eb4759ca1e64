package aws

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
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
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/yairfalse/birthmark/pkg/resource"
)

// rds

func newRDSAdapter(client RDSAPI, rt *runtime) *adapter {
	return &adapter{
		eventSpec: eventSpec{
			kind:          "rds",
			eventName:     "CreateDBInstance",
			eventSource:   "rds.amazonaws.com",
			resourceType:  "AWS::RDS::DBInstance",
			identityPaths: []string{"responseElements.dBInstanceIdentifier", "requestParameters.dBInstanceIdentifier"},
		},
		rt: rt,
		list: func(ctx context.Context) ([]resource.LiveResource, error) {
			var resources []resource.LiveResource
			var marker *string

			for {
				output, err := call(ctx, rt, "rds.DescribeDBInstances", func(ctx context.Context) (*rds.DescribeDBInstancesOutput, error) {
					return client.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{Marker: marker})
				})
				if err != nil {
					return nil, fmt.Errorf("describe db instances: %w", err)
				}

				for _, instance := range output.DBInstances {
					r := newLive(aws.ToString(instance.DBInstanceIdentifier), aws.ToString(instance.DBName), aws.ToString(instance.DBInstanceStatus))
					r.Attrs["engine"] = aws.ToString(instance.Engine)
					r.Attrs["instance_class"] = aws.ToString(instance.DBInstanceClass)
					resources = append(resources, r)
				}

				if output.Marker == nil {
					break
				}
				marker = output.Marker
			}

			return resources, nil
		},
	}
}

// eks: list names, then describe each.

func newEKSAdapter(client EKSAPI, rt *runtime) *adapter {
	return &adapter{
		eventSpec: eventSpec{
			kind:          "eks",
			eventName:     "CreateCluster",
			eventSource:   "eks.amazonaws.com",
			resourceType:  "AWS::EKS::Cluster",
			identityPaths: []string{"responseElements.cluster.name"},
		},
		rt: rt,
		list: func(ctx context.Context) ([]resource.LiveResource, error) {
			var names []string
			var nextToken *string

			for {
				output, err := call(ctx, rt, "eks.ListClusters", func(ctx context.Context) (*eks.ListClustersOutput, error) {
					return client.ListClusters(ctx, &eks.ListClustersInput{NextToken: nextToken})
				})
				if err != nil {
					return nil, fmt.Errorf("list clusters: %w", err)
				}
				names = append(names, output.Clusters...)

				if output.NextToken == nil {
					break
				}
				nextToken = output.NextToken
			}

			return fanOut(ctx, rt, names, func(ctx context.Context, name string) (resource.LiveResource, bool, error) {
				output, err := call(ctx, rt, "eks.DescribeCluster", func(ctx context.Context) (*eks.DescribeClusterOutput, error) {
					return client.DescribeCluster(ctx, &eks.DescribeClusterInput{Name: aws.String(name)})
				})
				if err != nil {
					if isNotFound(err) {
						return resource.LiveResource{}, false, nil
					}
					return resource.LiveResource{}, false, fmt.Errorf("describe cluster %s: %w", name, err)
				}
				if output.Cluster == nil {
					return resource.LiveResource{}, false, nil
				}
				r := newLive(aws.ToString(output.Cluster.Name), aws.ToString(output.Cluster.Name), string(output.Cluster.Status))
				r.Attrs["version"] = aws.ToString(output.Cluster.Version)
				return r, true, nil
			})
		},
	}
}

// lambda: list functions, then GetFunction for the current State.

func newLambdaAdapter(client LambdaAPI, rt *runtime) *deletingAdapter {
	a := &adapter{
		eventSpec: eventSpec{
			kind:          "lambda",
			eventName:     "CreateFunction20150331",
			eventSource:   "lambda.amazonaws.com",
			resourceType:  "AWS::Lambda::Function",
			identityPaths: []string{"responseElements.functionName", "requestParameters.functionName"},
		},
		rt: rt,
		list: func(ctx context.Context) ([]resource.LiveResource, error) {
			var names []string
			var marker *string

			for {
				output, err := call(ctx, rt, "lambda.ListFunctions", func(ctx context.Context) (*lambda.ListFunctionsOutput, error) {
					return client.ListFunctions(ctx, &lambda.ListFunctionsInput{Marker: marker})
				})
				if err != nil {
					return nil, fmt.Errorf("list functions: %w", err)
				}
				for _, fn := range output.Functions {
					names = append(names, aws.ToString(fn.FunctionName))
				}

				if output.NextMarker == nil {
					break
				}
				marker = output.NextMarker
			}

			return fanOut(ctx, rt, names, func(ctx context.Context, name string) (resource.LiveResource, bool, error) {
				output, err := call(ctx, rt, "lambda.GetFunction", func(ctx context.Context) (*lambda.GetFunctionOutput, error) {
					return client.GetFunction(ctx, &lambda.GetFunctionInput{FunctionName: aws.String(name)})
				})
				if err != nil {
					if isNotFound(err) {
						return resource.LiveResource{}, false, nil
					}
					return resource.LiveResource{}, false, fmt.Errorf("get function %s: %w", name, err)
				}
				r := newLive(name, name, "unknown")
				if cfg := output.Configuration; cfg != nil {
					if cfg.State != "" {
						r.Status = string(cfg.State)
					}
					r.Attrs["runtime"] = string(cfg.Runtime)
					r.Attrs["memory_mb"] = strconv.Itoa(int(aws.ToInt32(cfg.MemorySize)))
				}
				return r, true, nil
			})
		},
	}

	return &deletingAdapter{
		adapter: a,
		del: func(ctx context.Context, id string) (any, error) {
			_, err := call(ctx, rt, "lambda.DeleteFunction", func(ctx context.Context) (*lambda.DeleteFunctionOutput, error) {
				return client.DeleteFunction(ctx, &lambda.DeleteFunctionInput{FunctionName: aws.String(id)})
			})
			if err != nil {
				return nil, fmt.Errorf("delete function %s: %w", id, err)
			}
			return map[string]string{"functionName": id}, nil
		},
	}
}

// dynamodb: list tables, then describe each.

func newDynamoDBAdapter(client DynamoDBAPI, rt *runtime) *adapter {
	return &adapter{
		eventSpec: eventSpec{
			kind:          "dynamodb",
			eventName:     "CreateTable",
			eventSource:   "dynamodb.amazonaws.com",
			resourceType:  "AWS::DynamoDB::Table",
			identityPaths: []string{"responseElements.tableDescription.tableName", "requestParameters.tableName"},
		},
		rt: rt,
		list: func(ctx context.Context) ([]resource.LiveResource, error) {
			var names []string
			var lastKey *string

			for {
				output, err := call(ctx, rt, "dynamodb.ListTables", func(ctx context.Context) (*dynamodb.ListTablesOutput, error) {
					return client.ListTables(ctx, &dynamodb.ListTablesInput{ExclusiveStartTableName: lastKey})
				})
				if err != nil {
					return nil, fmt.Errorf("list tables: %w", err)
				}
				names = append(names, output.TableNames...)

				if output.LastEvaluatedTableName == nil {
					break
				}
				lastKey = output.LastEvaluatedTableName
			}

			return fanOut(ctx, rt, names, func(ctx context.Context, name string) (resource.LiveResource, bool, error) {
				output, err := call(ctx, rt, "dynamodb.DescribeTable", func(ctx context.Context) (*dynamodb.DescribeTableOutput, error) {
					return client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(name)})
				})
				if err != nil {
					if isNotFound(err) {
						return resource.LiveResource{}, false, nil
					}
					return resource.LiveResource{}, false, fmt.Errorf("describe table %s: %w", name, err)
				}
				if output.Table == nil {
					return resource.LiveResource{}, false, nil
				}
				r := newLive(aws.ToString(output.Table.TableName), aws.ToString(output.Table.TableName), string(output.Table.TableStatus))
				r.Attrs["items"] = strconv.FormatInt(aws.ToInt64(output.Table.ItemCount), 10)
				return r, true, nil
			})
		},
	}
}

// ecs: list cluster ARNs, then describe in batches of 100.

func newECSAdapter(client ECSAPI, rt *runtime) *adapter {
	return &adapter{
		eventSpec: eventSpec{
			kind:          "ecs",
			eventName:     "CreateCluster",
			eventSource:   "ecs.amazonaws.com",
			resourceType:  "AWS::ECS::Cluster",
			identityPaths: []string{"responseElements.cluster.clusterName", "requestParameters.clusterName"},
		},
		rt: rt,
		list: func(ctx context.Context) ([]resource.LiveResource, error) {
			var clusterArns []string
			var nextToken *string

			for {
				output, err := call(ctx, rt, "ecs.ListClusters", func(ctx context.Context) (*ecs.ListClustersOutput, error) {
					return client.ListClusters(ctx, &ecs.ListClustersInput{NextToken: nextToken})
				})
				if err != nil {
					return nil, fmt.Errorf("list clusters: %w", err)
				}
				clusterArns = append(clusterArns, output.ClusterArns...)

				if output.NextToken == nil {
					break
				}
				nextToken = output.NextToken
			}

			// DescribeClusters has a limit of 100 clusters per call
			const batchSize = 100
			var batches [][]string
			for i := 0; i < len(clusterArns); i += batchSize {
				batches = append(batches, clusterArns[i:min(i+batchSize, len(clusterArns))])
			}

			described, err := fanOut(ctx, rt, batches, func(ctx context.Context, batch []string) ([]resource.LiveResource, bool, error) {
				output, err := call(ctx, rt, "ecs.DescribeClusters", func(ctx context.Context) (*ecs.DescribeClustersOutput, error) {
					return client.DescribeClusters(ctx, &ecs.DescribeClustersInput{Clusters: batch})
				})
				if err != nil {
					return nil, false, fmt.Errorf("describe clusters: %w", err)
				}
				out := make([]resource.LiveResource, 0, len(output.Clusters))
				for _, cluster := range output.Clusters {
					r := newLive(aws.ToString(cluster.ClusterName), aws.ToString(cluster.ClusterName), aws.ToString(cluster.Status))
					r.Attrs["services"] = strconv.Itoa(int(cluster.ActiveServicesCount))
					out = append(out, r)
				}
				return out, true, nil
			})
			if err != nil {
				return nil, err
			}

			var resources []resource.LiveResource
			for _, batch := range described {
				resources = append(resources, batch...)
			}
			return resources, nil
		},
	}
}

// sqs: list queue URLs, then fetch attributes per queue.

func newSQSAdapter(client SQSAPI, rt *runtime) *deletingAdapter {
	a := &adapter{
		eventSpec: eventSpec{
			kind:          "sqs",
			eventName:     "CreateQueue",
			eventSource:   "sqs.amazonaws.com",
			resourceType:  "AWS::SQS::Queue",
			identityPaths: []string{"responseElements.queueUrl"},
			namePaths:     []string{"requestParameters.queueName"},
		},
		rt: rt,
		list: func(ctx context.Context) ([]resource.LiveResource, error) {
			var urls []string
			var nextToken *string

			for {
				output, err := call(ctx, rt, "sqs.ListQueues", func(ctx context.Context) (*sqs.ListQueuesOutput, error) {
					return client.ListQueues(ctx, &sqs.ListQueuesInput{NextToken: nextToken})
				})
				if err != nil {
					return nil, fmt.Errorf("list queues: %w", err)
				}
				urls = append(urls, output.QueueUrls...)

				if output.NextToken == nil {
					break
				}
				nextToken = output.NextToken
			}

			return fanOut(ctx, rt, urls, func(ctx context.Context, url string) (resource.LiveResource, bool, error) {
				output, err := call(ctx, rt, "sqs.GetQueueAttributes", func(ctx context.Context) (*sqs.GetQueueAttributesOutput, error) {
					return client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
						QueueUrl:       aws.String(url),
						AttributeNames: []sqstypes.QueueAttributeName{sqstypes.QueueAttributeNameAll},
					})
				})
				if err != nil {
					if isNotFound(err) {
						return resource.LiveResource{}, false, nil
					}
					return resource.LiveResource{}, false, fmt.Errorf("get queue attributes %s: %w", url, err)
				}
				r := newLive(url, extractQueueName(url), "Active")
				for _, key := range []string{"ApproximateNumberOfMessages", "FifoQueue", "QueueArn"} {
					if v, ok := output.Attributes[key]; ok {
						r.Attrs[key] = v
					}
				}
				return r, true, nil
			})
		},
	}

	return &deletingAdapter{
		adapter: a,
		del: func(ctx context.Context, id string) (any, error) {
			_, err := call(ctx, rt, "sqs.DeleteQueue", func(ctx context.Context) (*sqs.DeleteQueueOutput, error) {
				return client.DeleteQueue(ctx, &sqs.DeleteQueueInput{QueueUrl: aws.String(id)})
			})
			if err != nil {
				return nil, fmt.Errorf("delete queue %s: %w", id, err)
			}
			return map[string]string{"queueUrl": id}, nil
		},
	}
}

// extractQueueName extracts queue name from SQS URL.
func extractQueueName(queueURL string) string {
	for i := len(queueURL) - 1; i >= 0; i-- {
		if queueURL[i] == '/' {
			return queueURL[i+1:]
		}
	}
	return queueURL
}

// redshift

func newRedshiftAdapter(client RedshiftAPI, rt *runtime) *adapter {
	return &adapter{
		eventSpec: eventSpec{
			kind:          "redshift",
			eventName:     "CreateCluster",
			eventSource:   "redshift.amazonaws.com",
			resourceType:  "AWS::Redshift::Cluster",
			identityPaths: []string{"responseElements.clusterIdentifier", "requestParameters.clusterIdentifier"},
		},
		rt: rt,
		list: func(ctx context.Context) ([]resource.LiveResource, error) {
			var resources []resource.LiveResource
			var marker *string

			for {
				output, err := call(ctx, rt, "redshift.DescribeClusters", func(ctx context.Context) (*redshift.DescribeClustersOutput, error) {
					return client.DescribeClusters(ctx, &redshift.DescribeClustersInput{Marker: marker})
				})
				if err != nil {
					return nil, fmt.Errorf("describe clusters: %w", err)
				}

				for _, cluster := range output.Clusters {
					id := aws.ToString(cluster.ClusterIdentifier)
					r := newLive(id, id, aws.ToString(cluster.ClusterStatus))
					r.Attrs["node_type"] = aws.ToString(cluster.NodeType)
					resources = append(resources, r)
				}

				if output.Marker == nil {
					break
				}
				marker = output.Marker
			}

			return resources, nil
		},
	}
}

// memorydb

func newMemoryDBAdapter(client MemoryDBAPI, rt *runtime) *adapter {
	return &adapter{
		eventSpec: eventSpec{
			kind:          "memorydb",
			eventName:     "CreateCluster",
			eventSource:   "memorydb.amazonaws.com",
			resourceType:  "AWS::MemoryDB::Cluster",
			identityPaths: []string{"responseElements.cluster.name", "requestParameters.clusterName"},
		},
		rt: rt,
		list: func(ctx context.Context) ([]resource.LiveResource, error) {
			var resources []resource.LiveResource
			var nextToken *string

			for {
				output, err := call(ctx, rt, "memorydb.DescribeClusters", func(ctx context.Context) (*memorydb.DescribeClustersOutput, error) {
					return client.DescribeClusters(ctx, &memorydb.DescribeClustersInput{NextToken: nextToken})
				})
				if err != nil {
					return nil, fmt.Errorf("describe clusters: %w", err)
				}

				for _, cluster := range output.Clusters {
					name := aws.ToString(cluster.Name)
					r := newLive(name, name, aws.ToString(cluster.Status))
					r.Attrs["node_type"] = aws.ToString(cluster.NodeType)
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

// route53

func newRoute53Adapter(client Route53API, rt *runtime) *adapter {
	return &adapter{
		eventSpec: eventSpec{
			kind:          "route53",
			eventName:     "CreateHostedZone",
			eventSource:   "route53.amazonaws.com",
			resourceType:  "AWS::Route53::HostedZone",
			identityPaths: []string{"responseElements.hostedZone.id"},
			namePaths:     []string{"requestParameters.name", "responseElements.hostedZone.name"},
		},
		rt: rt,
		list: func(ctx context.Context) ([]resource.LiveResource, error) {
			var resources []resource.LiveResource
			var marker *string

			for {
				output, err := call(ctx, rt, "route53.ListHostedZones", func(ctx context.Context) (*route53.ListHostedZonesOutput, error) {
					return client.ListHostedZones(ctx, &route53.ListHostedZonesInput{Marker: marker})
				})
				if err != nil {
					return nil, fmt.Errorf("list hosted zones: %w", err)
				}

				for _, zone := range output.HostedZones {
					r := newLive(aws.ToString(zone.Id), aws.ToString(zone.Name), "Active")
					r.Attrs["records"] = strconv.FormatInt(aws.ToInt64(zone.ResourceRecordSetCount), 10)
					resources = append(resources, r)
				}

				if !output.IsTruncated {
					break
				}
				marker = output.NextMarker
			}

			return resources, nil
		},
	}
}

// ecr

func newECRAdapter(client ECRAPI, rt *runtime) *adapter {
	return &adapter{
		eventSpec: eventSpec{
			kind:          "ecr",
			eventName:     "CreateRepository",
			eventSource:   "ecr.amazonaws.com",
			resourceType:  "AWS::ECR::Repository",
			identityPaths: []string{"responseElements.repository.repositoryName", "requestParameters.repositoryName"},
		},
		rt: rt,
		list: func(ctx context.Context) ([]resource.LiveResource, error) {
			var resources []resource.LiveResource
			var nextToken *string

			for {
				output, err := call(ctx, rt, "ecr.DescribeRepositories", func(ctx context.Context) (*ecr.DescribeRepositoriesOutput, error) {
					return client.DescribeRepositories(ctx, &ecr.DescribeRepositoriesInput{NextToken: nextToken})
				})
				if err != nil {
					return nil, fmt.Errorf("describe repositories: %w", err)
				}

				for _, repo := range output.Repositories {
					name := aws.ToString(repo.RepositoryName)
					r := newLive(name, name, "ACTIVE")
					r.Attrs["uri"] = aws.ToString(repo.RepositoryUri)
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

// s3 (ListBuckets is a single call)

func newS3Adapter(client S3API, rt *runtime) *adapter {
	return &adapter{
		eventSpec: eventSpec{
			kind:          "s3",
			eventName:     "CreateBucket",
			eventSource:   "s3.amazonaws.com",
			resourceType:  "AWS::S3::Bucket",
			identityPaths: []string{"requestParameters.bucketName"},
		},
		rt: rt,
		list: func(ctx context.Context) ([]resource.LiveResource, error) {
			output, err := call(ctx, rt, "s3.ListBuckets", func(ctx context.Context) (*s3.ListBucketsOutput, error) {
				return client.ListBuckets(ctx, &s3.ListBucketsInput{})
			})
			if err != nil {
				return nil, fmt.Errorf("list buckets: %w", err)
			}

			resources := make([]resource.LiveResource, 0, len(output.Buckets))
			for _, bucket := range output.Buckets {
				name := aws.ToString(bucket.Name)
				r := newLive(name, name, "active")
				if bucket.CreationDate != nil {
					r.Attrs["created"] = bucket.CreationDate.Format("2006-01-02")
				}
				resources = append(resources, r)
			}
			return resources, nil
		},
	}
}

// elb

func newELBAdapter(client ELBAPI, rt *runtime) *adapter {
	return &adapter{
		eventSpec: eventSpec{
			kind:          "elb",
			eventName:     "CreateLoadBalancer",
			eventSource:   "elasticloadbalancing.amazonaws.com",
			resourceType:  "AWS::ElasticLoadBalancingV2::LoadBalancer",
			identityPaths: []string{"responseElements.loadBalancers.0.loadBalancerArn"},
			namePaths:     []string{"requestParameters.name"},
		},
		rt: rt,
		list: func(ctx context.Context) ([]resource.LiveResource, error) {
			var resources []resource.LiveResource
			var marker *string

			for {
				output, err := call(ctx, rt, "elbv2.DescribeLoadBalancers", func(ctx context.Context) (*elasticloadbalancingv2.DescribeLoadBalancersOutput, error) {
					return client.DescribeLoadBalancers(ctx, &elasticloadbalancingv2.DescribeLoadBalancersInput{Marker: marker})
				})
				if err != nil {
					return nil, fmt.Errorf("describe load balancers: %w", err)
				}

				for _, lb := range output.LoadBalancers {
					status := "unknown"
					if lb.State != nil {
						status = string(lb.State.Code)
					}
					r := newLive(aws.ToString(lb.LoadBalancerArn), aws.ToString(lb.LoadBalancerName), status)
					r.Attrs["type"] = string(lb.Type)
					resources = append(resources, r)
				}

				if output.NextMarker == nil {
					break
				}
				marker = output.NextMarker
			}

			return resources, nil
		},
	}
}

// asg

func newASGAdapter(client AutoScalingAPI, rt *runtime) *adapter {
	return &adapter{
		eventSpec: eventSpec{
			kind:          "asg",
			eventName:     "CreateAutoScalingGroup",
			eventSource:   "autoscaling.amazonaws.com",
			resourceType:  "AWS::AutoScaling::AutoScalingGroup",
			identityPaths: []string{"requestParameters.autoScalingGroupName"},
		},
		rt: rt,
		list: func(ctx context.Context) ([]resource.LiveResource, error) {
			var resources []resource.LiveResource
			var nextToken *string

			for {
				output, err := call(ctx, rt, "autoscaling.DescribeAutoScalingGroups", func(ctx context.Context) (*autoscaling.DescribeAutoScalingGroupsOutput, error) {
					return client.DescribeAutoScalingGroups(ctx, &autoscaling.DescribeAutoScalingGroupsInput{NextToken: nextToken})
				})
				if err != nil {
					return nil, fmt.Errorf("describe auto scaling groups: %w", err)
				}

				for _, asg := range output.AutoScalingGroups {
					// Status is only set while the group is being deleted
					status := "active"
					if asg.Status != nil {
						status = aws.ToString(asg.Status)
					}
					name := aws.ToString(asg.AutoScalingGroupName)
					r := newLive(name, name, status)
					r.Attrs["desired"] = strconv.Itoa(int(aws.ToInt32(asg.DesiredCapacity)))
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

// iam_role (CloudTrail records IAM in us-east-1)

func newIAMRoleAdapter(client IAMAPI, rt *runtime) *adapter {
	return &adapter{
		eventSpec: eventSpec{
			kind:          "iam_role",
			eventName:     "CreateRole",
			eventSource:   "iam.amazonaws.com",
			resourceType:  "AWS::IAM::Role",
			identityPaths: []string{"responseElements.role.roleName", "requestParameters.roleName"},
		},
		rt: rt,
		list: func(ctx context.Context) ([]resource.LiveResource, error) {
			var resources []resource.LiveResource
			var marker *string

			for {
				output, err := call(ctx, rt, "iam.ListRoles", func(ctx context.Context) (*iam.ListRolesOutput, error) {
					return client.ListRoles(ctx, &iam.ListRolesInput{Marker: marker})
				})
				if err != nil {
					return nil, fmt.Errorf("list roles: %w", err)
				}

				for _, role := range output.Roles {
					name := aws.ToString(role.RoleName)
					r := newLive(name, name, "active")
					r.Attrs["path"] = aws.ToString(role.Path)
					resources = append(resources, r)
				}

				if !output.IsTruncated {
					break
				}
				marker = output.Marker
			}

			return resources, nil
		},
	}
}

// kms: list key ids, then describe each for its state.

func newKMSAdapter(client KMSAPI, rt *runtime) *adapter {
	return &adapter{
		eventSpec: eventSpec{
			kind:          "kms",
			eventName:     "CreateKey",
			eventSource:   "kms.amazonaws.com",
			resourceType:  "AWS::KMS::Key",
			identityPaths: []string{"responseElements.keyMetadata.keyId"},
			namePaths:     []string{"requestParameters.description"},
		},
		rt: rt,
		list: func(ctx context.Context) ([]resource.LiveResource, error) {
			var keyIDs []string
			var marker *string

			for {
				output, err := call(ctx, rt, "kms.ListKeys", func(ctx context.Context) (*kms.ListKeysOutput, error) {
					return client.ListKeys(ctx, &kms.ListKeysInput{Marker: marker})
				})
				if err != nil {
					return nil, fmt.Errorf("list keys: %w", err)
				}
				for _, key := range output.Keys {
					keyIDs = append(keyIDs, aws.ToString(key.KeyId))
				}

				if !output.Truncated {
					break
				}
				marker = output.NextMarker
			}

			return fanOut(ctx, rt, keyIDs, func(ctx context.Context, keyID string) (resource.LiveResource, bool, error) {
				output, err := call(ctx, rt, "kms.DescribeKey", func(ctx context.Context) (*kms.DescribeKeyOutput, error) {
					return client.DescribeKey(ctx, &kms.DescribeKeyInput{KeyId: aws.String(keyID)})
				})
				if err != nil {
					if isNotFound(err) {
						return resource.LiveResource{}, false, nil
					}
					return resource.LiveResource{}, false, fmt.Errorf("describe key %s: %w", keyID, err)
				}
				md := output.KeyMetadata
				if md == nil {
					return resource.LiveResource{}, false, nil
				}
				r := newLive(aws.ToString(md.KeyId), aws.ToString(md.Description), string(md.KeyState))
				r.Attrs["manager"] = string(md.KeyManager)
				return r, true, nil
			})
		},
	}
}

// cloudwatch_logs

func newCloudWatchLogsAdapter(client CloudWatchLogsAPI, rt *runtime) *adapter {
	return &adapter{
		eventSpec: eventSpec{
			kind:          "cloudwatch_logs",
			eventName:     "CreateLogGroup",
			eventSource:   "logs.amazonaws.com",
			resourceType:  "AWS::Logs::LogGroup",
			identityPaths: []string{"requestParameters.logGroupName"},
		},
		rt: rt,
		list: func(ctx context.Context) ([]resource.LiveResource, error) {
			var resources []resource.LiveResource
			var nextToken *string

			for {
				output, err := call(ctx, rt, "logs.DescribeLogGroups", func(ctx context.Context) (*cloudwatchlogs.DescribeLogGroupsOutput, error) {
					return client.DescribeLogGroups(ctx, &cloudwatchlogs.DescribeLogGroupsInput{NextToken: nextToken})
				})
				if err != nil {
					return nil, fmt.Errorf("describe log groups: %w", err)
				}

				for _, lg := range output.LogGroups {
					name := aws.ToString(lg.LogGroupName)
					r := newLive(name, name, "active")
					r.Attrs["stored_bytes"] = strconv.FormatInt(aws.ToInt64(lg.StoredBytes), 10)
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
