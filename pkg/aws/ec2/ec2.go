// Copyright 2023 The FileScheduler Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ec2

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/pkg/errors"

	awsconfig "github.com/filescheduler/filescheduler/pkg/aws"
)

const (
	// Instances shut down by the bootstrap script must terminate rather
	// than stop, otherwise they keep accruing cost.
	shutdownBehaviorTerminate = "terminate"

	// Fixed tags applied to every transfer instance.
	TagSquad    = "ninja"
	TagPlatform = "dataanalytics"
)

// TransferInstanceSpec describes the single-use instance that performs an
// on-prem transfer leg.
type TransferInstanceSpec struct {
	ImageID         string
	InstanceType    string
	InstanceProfile string
	KeyName         string
	SubnetID        string
	SecurityGroupID string
	// Name is the value of the Name tag, expected to be timestamped by
	// the caller.
	Name string
	// UserData is the plaintext bootstrap script. It is base64-encoded on
	// the wire as the EC2 API requires.
	UserData string
}

// EC2 is a wrapper around ec2.EC2 structs
type EC2 struct {
	*ec2.EC2
	DryRun bool
}

// NewClient returns ec2 client struct.
func NewClient(ctx context.Context, awsConfig *aws.Config, region string) (*EC2, error) {
	s, err := awsconfig.NewSession(awsConfig, region)
	if err != nil {
		return nil, err
	}
	return &EC2{EC2: ec2.New(s)}, nil
}

// RunTransferInstance launches a single self-terminating transfer instance
// and returns its instance ID. The call is not retried by this layer.
func (e *EC2) RunTransferInstance(ctx context.Context, spec TransferInstanceSpec) (string, error) {
	rii := &ec2.RunInstancesInput{
		DryRun:       &e.DryRun,
		ImageId:      aws.String(spec.ImageID),
		InstanceType: aws.String(spec.InstanceType),
		IamInstanceProfile: &ec2.IamInstanceProfileSpecification{
			Name: aws.String(spec.InstanceProfile),
		},
		InstanceInitiatedShutdownBehavior: aws.String(shutdownBehaviorTerminate),
		MinCount:                          aws.Int64(1),
		MaxCount:                          aws.Int64(1),
		KeyName:                           aws.String(spec.KeyName),
		SecurityGroupIds:                  []*string{aws.String(spec.SecurityGroupID)},
		SubnetId:                          aws.String(spec.SubnetID),
		UserData:                          aws.String(base64.StdEncoding.EncodeToString([]byte(spec.UserData))),
		TagSpecifications: []*ec2.TagSpecification{
			{
				ResourceType: aws.String(ec2.ResourceTypeInstance),
				Tags: []*ec2.Tag{
					{Key: aws.String("Name"), Value: aws.String(spec.Name)},
					{Key: aws.String("squad"), Value: aws.String(TagSquad)},
					{Key: aws.String("platform"), Value: aws.String(TagPlatform)},
				},
			},
		},
	}
	out, err := e.RunInstancesWithContext(ctx, rii)
	if err != nil {
		return "", errors.Wrap(err, "Failed to run transfer instance")
	}
	if len(out.Instances) == 0 || out.Instances[0].InstanceId == nil {
		return "", errors.New("RunInstances returned no instances")
	}
	return *out.Instances[0].InstanceId, nil
}

// TerminateInstance tears down a transfer instance out-of-band. Normal
// instances self-terminate; this exists for operator cleanup.
func (e *EC2) TerminateInstance(ctx context.Context, instanceID string) error {
	tii := &ec2.TerminateInstancesInput{
		DryRun:      &e.DryRun,
		InstanceIds: []*string{aws.String(instanceID)},
	}
	_, err := e.TerminateInstancesWithContext(ctx, tii)
	return errors.Wrapf(err, "Failed to terminate instance %s", instanceID)
}

// InstanceName returns the timestamped Name tag value for a new transfer
// instance.
func InstanceName(prefix string, now time.Time) string {
	return prefix + "-" + now.Format("20060102-1504")
}
