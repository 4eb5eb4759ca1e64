package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/birthmark/pkg/resource"
)

const runInstancesDoc = `{
  "eventName": "RunInstances",
  "eventSource": "ec2.amazonaws.com",
  "userIdentity": {"type": "IAMUser", "arn": "arn:aws:iam::123456789012:user/alice", "principalId": "AIDAEXAMPLE"},
  "requestParameters": {"maxCount": 2},
  "responseElements": {
    "instancesSet": {"items": [
      {"instanceId": "i-aaa", "tagSet": {"items": [{"key": "Name", "value": "web"}]}},
      {"instanceId": "i-bbb"},
      {"other": true}
    ]}
  }
}`

func TestPayload_Paths(t *testing.T) {
	p := MustParsePayload(runInstancesDoc)

	assert.Equal(t, "RunInstances", p.EventName())
	assert.Equal(t, "ec2.amazonaws.com", p.EventSource())
	assert.Equal(t, "i-aaa", p.String("responseElements.instancesSet.items.0.instanceId"))
	assert.Equal(t, "i-bbb", p.String("responseElements.instancesSet.items.1.instanceId"))
	assert.Equal(t, "2", p.String("requestParameters.maxCount"))
	assert.Equal(t, "true", p.String("responseElements.instancesSet.items.2.other"))
	assert.Empty(t, p.String("responseElements.instancesSet"), "objects are not scalars")
	assert.Empty(t, p.String("missing.path"))
	assert.Equal(t, 3, p.Len("responseElements.instancesSet.items"))
	assert.Equal(t, []string{"i-aaa", "i-bbb"}, p.Strings("responseElements.instancesSet.items", "instanceId"))
	assert.True(t, p.Succeeded())
}

func TestPayload_Creator(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"arn", `{"userIdentity":{"arn":"arn:aws:iam::1:user/bob","principalId":"P"}}`, "arn:aws:iam::1:user/bob"},
		{"principal", `{"userIdentity":{"principalId":"AROA:bob@example.com"}}`, "AROA:bob@example.com"},
		{"service", `{"userIdentity":{"type":"AWSService","invokedBy":"autoscaling.amazonaws.com"}}`, "autoscaling.amazonaws.com"},
		{"none", `{"userIdentity":{}}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MustParsePayload(tt.doc).Creator())
		})
	}
}

func TestPayload_FailedCall(t *testing.T) {
	p := MustParsePayload(`{"eventName":"RunInstances","errorCode":"Client.InstanceLimitExceeded"}`)
	assert.False(t, p.Succeeded())
	assert.Equal(t, "Client.InstanceLimitExceeded", p.ErrorCode())
}

func TestParsePayload_Malformed(t *testing.T) {
	for _, raw := range []string{"", "   ", "{", `"string"`, "null"} {
		_, err := ParsePayload(raw)
		require.Error(t, err, "input %q", raw)
		assert.ErrorIs(t, err, resource.ErrMalformedPayload)
	}
}

func TestPayload_ZeroValue(t *testing.T) {
	var p Payload
	assert.Empty(t, p.String("eventName"))
	assert.Empty(t, p.Creator())
	assert.Nil(t, p.Strings("a", "b"))
}
